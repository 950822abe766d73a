// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package v04 implements the keyed MessagePack encoder for completed
// traces: an array of traces, each an array of spans, each span a map with
// literal string keys (§4.4). It is the simpler of the two downstream
// encoders; v05 carries the string-table form.
package v04

import (
	"bytes"
	"context"

	"github.com/DataDog/trace-collector/pkg/trace/client"
	"github.com/DataDog/trace-collector/pkg/trace/msgpack"
	"github.com/DataDog/trace-collector/pkg/trace/tracing"
)

// Exporter encodes a batch of traces in v0.4 keyed form and hands the
// result to a client.Client. The zero value is ready to use.
type Exporter struct{}

// EncodeAndSend satisfies processor.Exporter. An empty batch still calls
// through to the client with a valid empty-array encoding (flush()
// idempotence, §4.3), rather than short-circuiting before the client at
// all, so a TraceCountSender still observes a trace count of 0.
func (Exporter) EncodeAndSend(ctx context.Context, traces tracing.Traces, c client.Client) error {
	body, traceCount, err := Encode(traces)
	if err != nil {
		return err
	}
	if sender, ok := c.(client.TraceCountSender); ok {
		return sender.SendTraces(ctx, body, traceCount)
	}
	return c.Send(ctx, body)
}

// Encode renders traces as a MessagePack array-of-arrays-of-maps and
// returns the bytes alongside the trace count for the caller to forward in
// X-Datadog-Trace-Count.
func Encode(traces tracing.Traces) (body []byte, traceCount int, err error) {
	var buf bytes.Buffer
	w := msgpack.NewWriter(&buf)

	if err := w.ArrayHeader(uint32(len(traces))); err != nil {
		return nil, 0, err
	}
	for _, trace := range traces {
		if err := encodeTrace(w, trace); err != nil {
			return nil, 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(traces), nil
}

func encodeTrace(w *msgpack.Writer, trace *tracing.Trace) error {
	if err := w.ArrayHeader(uint32(len(trace.Spans))); err != nil {
		return err
	}
	for _, span := range trace.Spans {
		if err := encodeSpan(w, span); err != nil {
			return err
		}
	}
	return nil
}

// encodeSpan writes span as a map with 12 keys iff span_type is non-empty,
// 11 otherwise (§4.4, §8).
func encodeSpan(w *msgpack.Writer, span *tracing.Span) error {
	hasType := span.Type != ""
	n := uint32(11)
	if hasType {
		n = 12
	}
	if err := w.MapHeader(n); err != nil {
		return err
	}

	fields := []struct {
		key string
		wr  func() error
	}{
		{"trace_id", func() error { return w.Uint(span.TraceID) }},
		{"span_id", func() error { return w.Uint(span.SpanID) }},
		{"parent_id", func() error { return w.Uint(span.ParentID) }},
		{"start", func() error { return w.Uint(span.Start) }},
		{"duration", func() error { return w.Uint(span.Duration + 1) }},
		{"service", func() error { return w.String(span.Service) }},
		{"name", func() error { return w.String(span.Name) }},
		{"resource", func() error { return w.String(span.Resource) }},
		{"error", func() error { return w.Uint(span.Error) }},
		{"meta", func() error { return encodeStringMap(w, span.Meta) }},
		{"metrics", func() error { return encodeFloatMap(w, span.Metrics) }},
	}
	if hasType {
		fields = append(fields, struct {
			key string
			wr  func() error
		}{"type", func() error { return w.String(span.Type) }})
	}

	for _, f := range fields {
		if err := w.String(f.key); err != nil {
			return err
		}
		if err := f.wr(); err != nil {
			return err
		}
	}
	return nil
}

func encodeStringMap(w *msgpack.Writer, m map[string]string) error {
	if err := w.MapHeader(uint32(len(m))); err != nil {
		return err
	}
	for k, v := range m {
		if err := w.String(k); err != nil {
			return err
		}
		if err := w.String(v); err != nil {
			return err
		}
	}
	return nil
}

func encodeFloatMap(w *msgpack.Writer, m map[string]float64) error {
	if err := w.MapHeader(uint32(len(m))); err != nil {
		return err
	}
	for k, v := range m {
		if err := w.String(k); err != nil {
			return err
		}
		if err := w.Float64(v); err != nil {
			return err
		}
	}
	return nil
}
