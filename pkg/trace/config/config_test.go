package config_test

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DataDog/trace-collector/pkg/trace/config"
)

func TestLoadDefaults(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.Flags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := config.Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, ":8126", cfg.ListenAddr)
	assert.Equal(t, "v0.5", cfg.ExporterVersion)
	assert.Equal(t, 100, cfg.QueueCapacity)
	require.NoError(t, cfg.Validate())
}

func TestLoadFlagOverridesDefault(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.Flags(fs)
	require.NoError(t, fs.Parse([]string{"--exporter-version=v0.4", "--queue-capacity=5"}))

	cfg, err := config.Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, "v0.4", cfg.ExporterVersion)
	assert.Equal(t, 5, cfg.QueueCapacity)
}

func TestValidateRejectsUnknownExporterVersion(t *testing.T) {
	cfg := config.Config{ExporterVersion: "v0.9", QueueCapacity: 1, MaxPayloadBytes: 1}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroQueueCapacity(t *testing.T) {
	cfg := config.Config{ExporterVersion: "v0.4", QueueCapacity: 0, MaxPayloadBytes: 1}
	assert.Error(t, cfg.Validate())
}
