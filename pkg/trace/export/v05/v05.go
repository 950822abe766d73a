// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package v05 implements the string-table MessagePack encoder for
// completed traces: a two-element document `[string_table, traces]` where
// every span field that would otherwise repeat a string is replaced by an
// index into the shared table (§4.5). This is the denser of the two
// downstream encoders and the one the budget calls out as dominating
// implementation effort alongside the processor.
package v05

import (
	"bytes"
	"context"

	"github.com/DataDog/trace-collector/pkg/trace/client"
	"github.com/DataDog/trace-collector/pkg/trace/msgpack"
	"github.com/DataDog/trace-collector/pkg/trace/tracing"
)

// Exporter encodes a batch of traces in v0.5 interned form and hands the
// result to a client.Client. The zero value is ready to use.
type Exporter struct{}

// EncodeAndSend satisfies processor.Exporter.
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

// stringTable deduplicates strings in first-seen order, with index 0
// reserved for the empty string (§4.5, §8).
type stringTable struct {
	strings []string
	index   map[string]uint64
}

func newStringTable() *stringTable {
	t := &stringTable{index: make(map[string]uint64)}
	t.add("")
	return t
}

// add returns s's index, assigning it the next index if s hasn't been seen.
func (t *stringTable) add(s string) uint64 {
	if idx, ok := t.index[s]; ok {
		return idx
	}
	idx := uint64(len(t.strings))
	t.strings = append(t.strings, s)
	t.index[s] = idx
	return idx
}

// Encode renders traces as a MessagePack `[string_table, traces]` document
// and returns the bytes alongside the trace count.
func Encode(traces tracing.Traces) (body []byte, traceCount int, err error) {
	table := newStringTable()

	// Pass 1: walk every span to populate the table before any index is
	// written, since a span's own indices may reference strings
	// introduced by a later span (dedup is global, not per-span).
	for _, trace := range traces {
		for _, span := range trace.Spans {
			table.add(span.Service)
			table.add(span.Name)
			table.add(span.Resource)
			table.add(span.Type)
			for k, v := range span.Meta {
				table.add(k)
				table.add(v)
			}
			for k := range span.Metrics {
				table.add(k)
			}
		}
	}

	var buf bytes.Buffer
	w := msgpack.NewWriter(&buf)

	if err := w.ArrayHeader(2); err != nil {
		return nil, 0, err
	}
	if err := encodeStringTable(w, table); err != nil {
		return nil, 0, err
	}
	if err := encodeTraces(w, traces, table); err != nil {
		return nil, 0, err
	}
	if err := w.Flush(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(traces), nil
}

func encodeStringTable(w *msgpack.Writer, table *stringTable) error {
	if err := w.ArrayHeader(uint32(len(table.strings))); err != nil {
		return err
	}
	for _, s := range table.strings {
		if err := w.String(s); err != nil {
			return err
		}
	}
	return nil
}

func encodeTraces(w *msgpack.Writer, traces tracing.Traces, table *stringTable) error {
	if err := w.ArrayHeader(uint32(len(traces))); err != nil {
		return err
	}
	for _, trace := range traces {
		if err := w.ArrayHeader(uint32(len(trace.Spans))); err != nil {
			return err
		}
		for _, span := range trace.Spans {
			if err := encodeSpan(w, span, table); err != nil {
				return err
			}
		}
	}
	return nil
}

// encodeSpan writes span as the fixed 12-element array
// [service_idx, name_idx, resource_idx, trace_id, span_id, parent_id,
// start, duration+1, error, meta_map, metrics_map, type_idx] (§4.5).
func encodeSpan(w *msgpack.Writer, span *tracing.Span, table *stringTable) error {
	if err := w.ArrayHeader(12); err != nil {
		return err
	}
	if err := w.Uint(table.add(span.Service)); err != nil {
		return err
	}
	if err := w.Uint(table.add(span.Name)); err != nil {
		return err
	}
	if err := w.Uint(table.add(span.Resource)); err != nil {
		return err
	}
	if err := w.Uint(span.TraceID); err != nil {
		return err
	}
	if err := w.Uint(span.SpanID); err != nil {
		return err
	}
	if err := w.Uint(span.ParentID); err != nil {
		return err
	}
	if err := w.Uint(span.Start); err != nil {
		return err
	}
	if err := w.Uint(span.Duration + 1); err != nil {
		return err
	}
	if err := w.Uint(span.Error); err != nil {
		return err
	}
	if err := encodeMetaMap(w, span.Meta, table); err != nil {
		return err
	}
	if err := encodeMetricsMap(w, span.Metrics, table); err != nil {
		return err
	}
	return w.Uint(table.add(span.Type))
}

func encodeMetaMap(w *msgpack.Writer, m map[string]string, table *stringTable) error {
	if err := w.MapHeader(uint32(len(m))); err != nil {
		return err
	}
	for k, v := range m {
		if err := w.Uint(table.add(k)); err != nil {
			return err
		}
		if err := w.Uint(table.add(v)); err != nil {
			return err
		}
	}
	return nil
}

func encodeMetricsMap(w *msgpack.Writer, m map[string]float64, table *stringTable) error {
	if err := w.MapHeader(uint32(len(m))); err != nil {
		return err
	}
	for k, v := range m {
		if err := w.Uint(table.add(k)); err != nil {
			return err
		}
		if err := w.Float64(v); err != nil {
			return err
		}
	}
	return nil
}
