// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package log is a thin package-level wrapper around zap, in the style of
// datadog-agent's pkg/util/log: callers reach for log.Debugf/log.Warnw/
// log.Errorw instead of holding their own *zap.Logger, so components (the
// processor, the exporters, the API layer) don't need a logger threaded
// through every constructor.
package log

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger = mustNewDefault()
)

func mustNewDefault() *zap.SugaredLogger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return l.Sugar()
}

// SetLevel reconfigures the global logger at the given zap level name
// ("debug", "info", "warn", "error"). Invalid levels are ignored.
func SetLevel(level string) {
	var lvl zap.AtomicLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	l, err := cfg.Build()
	if err != nil {
		return
	}
	mu.Lock()
	logger = l.Sugar()
	mu.Unlock()
}

// UseDevelopment switches to a human-readable console encoder, for local
// runs of cmd/trace-collector.
func UseDevelopment() {
	l, err := zap.NewDevelopment()
	if err != nil {
		return
	}
	mu.Lock()
	logger = l.Sugar()
	mu.Unlock()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debugf(template string, args ...interface{}) { current().Debugf(template, args...) }
func Infof(template string, args ...interface{})  { current().Infof(template, args...) }
func Warnf(template string, args ...interface{})  { current().Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { current().Errorf(template, args...) }

func Debugw(msg string, keysAndValues ...interface{}) { current().Debugw(msg, keysAndValues...) }
func Infow(msg string, keysAndValues ...interface{})  { current().Infow(msg, keysAndValues...) }
func Warnw(msg string, keysAndValues ...interface{})  { current().Warnw(msg, keysAndValues...) }
func Errorw(msg string, keysAndValues ...interface{}) { current().Errorw(msg, keysAndValues...) }

// Sync flushes any buffered log entries. Call before process exit.
func Sync() error {
	return current().Sync()
}
