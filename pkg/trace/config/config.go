// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package config loads the collector's runtime settings through the same
// viper/pflag stack the real agent uses: defaults, an optional YAML file,
// DD_COLLECTOR_-prefixed environment variables, then command-line flags,
// in increasing order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "DD_COLLECTOR"

// Config holds everything cmd/trace-collector needs to start serving.
type Config struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	AgentURL        string `mapstructure:"agent_url"`
	ExporterVersion string `mapstructure:"exporter_version"`
	QueueCapacity   int    `mapstructure:"queue_capacity"`
	MaxPayloadBytes int64  `mapstructure:"max_payload_bytes"`
	StatsdAddr      string `mapstructure:"statsd_addr"`
	LogLevel        string `mapstructure:"log_level"`
}

// Validate rejects settings the rest of the collector can't act on.
func (c Config) Validate() error {
	if c.ExporterVersion != "v0.4" && c.ExporterVersion != "v0.5" {
		return fmt.Errorf("config: exporter_version must be \"v0.4\" or \"v0.5\", got %q", c.ExporterVersion)
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("config: queue_capacity must be at least 1 (§5 backpressure queue), got %d", c.QueueCapacity)
	}
	if c.MaxPayloadBytes < 1 {
		return fmt.Errorf("config: max_payload_bytes must be positive, got %d", c.MaxPayloadBytes)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8126")
	v.SetDefault("agent_url", "http://localhost:8126/v0.5/traces")
	v.SetDefault("exporter_version", "v0.5")
	v.SetDefault("queue_capacity", 100)
	v.SetDefault("max_payload_bytes", 10<<20)
	v.SetDefault("statsd_addr", "")
	v.SetDefault("log_level", "info")
}

// flagKeys maps each dash-cased flag name to its underscore-cased viper key.
var flagKeys = map[string]string{
	"listen-addr":       "listen_addr",
	"agent-url":         "agent_url",
	"exporter-version":  "exporter_version",
	"queue-capacity":    "queue_capacity",
	"max-payload-bytes": "max_payload_bytes",
	"statsd-addr":       "statsd_addr",
	"log-level":         "log_level",
}

// Flags registers the collector's command-line flags onto fs, to be bound
// by Load after pflag.Parse.
func Flags(fs *pflag.FlagSet) {
	fs.String("listen-addr", ":8126", "address the inbound /v0.1/events HTTP listener binds to")
	fs.String("agent-url", "http://localhost:8126/v0.5/traces", "downstream agent URL traces are PUT to")
	fs.String("exporter-version", "v0.5", "downstream wire format: v0.4 or v0.5")
	fs.Int("queue-capacity", 100, "bounded backpressure queue capacity between transport and processor")
	fs.Int64("max-payload-bytes", 10<<20, "maximum accepted inbound payload size in bytes")
	fs.String("statsd-addr", "", "statsd address for metrics; empty disables metrics")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
}

// Load builds a Config from defaults, an optional YAML file at configPath
// (skipped if configPath is empty; a file that cannot be read is an
// error), DD_COLLECTOR_-prefixed environment
// variables, and fs (already parsed pflag flags), in that precedence
// order.
func Load(configPath string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		// BindPFlags keys by literal flag name; our flags are dash-cased
		// while Config's mapstructure tags are underscore-cased, so each
		// flag is bound individually to its matching viper key instead of
		// relying on name identity.
		for flagName, key := range flagKeys {
			if f := fs.Lookup(flagName); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("config: binding flag %s: %w", flagName, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
