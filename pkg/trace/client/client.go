// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package client hands an already-encoded wire buffer off to whatever sits
// downstream of the core: the real agent over HTTP, or a single-slot
// channel when this collector is embedded in another process. The core
// never inspects the result of a send (§4.6/§6 of the design).
package client

import (
	"context"
	"errors"
)

// Client is the narrow capability the core requires of its downstream:
// take a buffer, attempt delivery, never hand back anything the core would
// have to interpret.
type Client interface {
	Send(ctx context.Context, body []byte) error
}

// UpstreamUnavailable wraps a failed send to the downstream agent. The core
// never surfaces this to the connection that produced the traces (a trace,
// once exported, is already removed from the aggregate); it exists purely
// for the adapter's own logging/metrics.
type UpstreamUnavailable struct {
	Err error
}

func (e *UpstreamUnavailable) Error() string {
	return "client: upstream agent unavailable: " + e.Err.Error()
}

func (e *UpstreamUnavailable) Unwrap() error { return e.Err }

// IsUpstreamUnavailable reports whether err is (or wraps) an
// UpstreamUnavailable.
func IsUpstreamUnavailable(err error) bool {
	var u *UpstreamUnavailable
	return errors.As(err, &u)
}
