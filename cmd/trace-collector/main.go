// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Command trace-collector runs the sidecar collector standalone: it binds
// an HTTP listener for PUT /v0.1/events, assembles traces, and re-encodes
// completed ones to a downstream agent.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DataDog/trace-collector/pkg/trace/api"
	"github.com/DataDog/trace-collector/pkg/trace/client"
	"github.com/DataDog/trace-collector/pkg/trace/config"
	"github.com/DataDog/trace-collector/pkg/trace/export/v04"
	"github.com/DataDog/trace-collector/pkg/trace/export/v05"
	"github.com/DataDog/trace-collector/pkg/trace/log"
	"github.com/DataDog/trace-collector/pkg/trace/metrics"
	"github.com/DataDog/trace-collector/pkg/trace/processor"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace-collector",
		Short: "Distributed-tracing sidecar collector",
		RunE:  run,
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	config.Flags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.LogLevel != "" {
		log.SetLevel(cfg.LogLevel)
	}
	defer log.Sync() //nolint:errcheck

	m, err := metrics.New(cfg.StatsdAddr, "service:trace-collector")
	if err != nil {
		return fmt.Errorf("trace-collector: starting metrics: %w", err)
	}
	defer m.Close() //nolint:errcheck

	exporter, err := newExporter(cfg.ExporterVersion)
	if err != nil {
		return err
	}

	downstream := &client.HTTPClient{URL: cfg.AgentURL}

	srv := api.NewServer(runtime.NumCPU(), cfg.QueueCapacity, cfg.MaxPayloadBytes, exporter, downstream, m)
	srv.Start()
	defer srv.Stop()

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", cfg.ListenAddr, "exporter", cfg.ExporterVersion, "agent_url", cfg.AgentURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Infow("shutting down")
		return httpServer.Shutdown(context.Background())
	}
}

func newExporter(version string) (processor.Exporter, error) {
	switch version {
	case "v0.4":
		return v04.Exporter{}, nil
	case "v0.5":
		return v05.Exporter{}, nil
	default:
		return nil, fmt.Errorf("trace-collector: unknown exporter version %q", version)
	}
}
