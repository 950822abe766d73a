// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package metrics wraps a statsd client so the rest of the collector never
// has to nil-check it: with no StatsdAddr configured, Client is a
// real-but-inert sink, matching the always-present statsd client the real
// trace agent wires through pkg/trace/metrics/timing.
package metrics

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/DataDog/trace-collector/pkg/trace/log"
)

// Client counts and times collector events. A nil *statsd.Client backing
// it is valid and makes every call a no-op.
type Client struct {
	statsd *statsd.Client
	tags   []string
}

// New dials addr and returns a Client. An empty addr returns a no-op
// Client instead of dialing anything.
func New(addr string, tags ...string) (*Client, error) {
	if addr == "" {
		return &Client{tags: tags}, nil
	}
	c, err := statsd.New(addr, statsd.WithTags(tags))
	if err != nil {
		return nil, err
	}
	return &Client{statsd: c, tags: tags}, nil
}

// Count increments name by value, merging extraTags with the client's
// base tags.
func (c *Client) Count(name string, value int64, extraTags ...string) {
	if c == nil || c.statsd == nil {
		return
	}
	if err := c.statsd.Count(name, value, extraTags, 1); err != nil {
		log.Debugf("metrics: count %s failed: %v", name, err)
	}
}

// Timing reports d against name.
func (c *Client) Timing(name string, d time.Duration, extraTags ...string) {
	if c == nil || c.statsd == nil {
		return
	}
	if err := c.statsd.Timing(name, d, extraTags, 1); err != nil {
		log.Debugf("metrics: timing %s failed: %v", name, err)
	}
}

// Gauge reports an instantaneous value for name.
func (c *Client) Gauge(name string, value float64, extraTags ...string) {
	if c == nil || c.statsd == nil {
		return
	}
	if err := c.statsd.Gauge(name, value, extraTags, 1); err != nil {
		log.Debugf("metrics: gauge %s failed: %v", name, err)
	}
}

// Close flushes and releases the underlying statsd connection, if any.
func (c *Client) Close() error {
	if c == nil || c.statsd == nil {
		return nil
	}
	return c.statsd.Close()
}
