// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package processor implements the event decoder and trace-assembly state
// machine: it consumes one inbound payload at a time, maintains a
// per-connection cumulative string table, dispatches by event kind, and
// mutates an in-memory Traces aggregate. It is grounded on
// original_source/collector/common/src/processing.rs field-for-field; see
// DESIGN.md for the resolved framing and duplicate-span open questions.
package processor

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/atomic"

	"github.com/DataDog/trace-collector/pkg/trace/client"
	"github.com/DataDog/trace-collector/pkg/trace/interner"
	"github.com/DataDog/trace-collector/pkg/trace/log"
	"github.com/DataDog/trace-collector/pkg/trace/msgpack"
	"github.com/DataDog/trace-collector/pkg/trace/tracing"
)

// Exporter encodes a finished batch of traces and hands the result to a
// Client. v04.Exporter and v05.Exporter both satisfy this.
type Exporter interface {
	EncodeAndSend(ctx context.Context, traces tracing.Traces, c client.Client) error
}

// Stats is a point-in-time snapshot of a Processor's counters.
type Stats struct {
	EventsByKind     map[uint64]uint64
	MalformedInputs  uint64
	UnknownEventKind uint64
	DurationClamped  uint64
	StringTableSize  int
}

// Processor owns one connection's worth of trace assembly: its Traces
// aggregate, its cumulative string table, and its process-scoped string
// interner. It is not safe for concurrent use — ownership transfers to a
// single task at connection accept and is dropped at connection close
// (§5).
type Processor struct {
	exporter Exporter
	client   client.Client

	traces  tracing.Traces
	strings []string
	intern  *interner.Interner

	eventsByKind     map[uint64]*atomic.Uint64
	malformedInputs  atomic.Uint64
	unknownEventKind atomic.Uint64
	durationClamped  atomic.Uint64

	strictDuplicateSpans bool
}

// Option configures a Processor at construction.
type Option func(*Processor)

// WithStrictDuplicateSpans rejects a duplicate StartSpan for an existing
// (trace_id, span_id) as MalformedInput instead of silently overwriting
// it. Off by default, matching the source's naive insert+increment (see
// DESIGN.md).
func WithStrictDuplicateSpans() Option {
	return func(p *Processor) { p.strictDuplicateSpans = true }
}

// New constructs a Processor bound to one exporter and one downstream
// client, ready to process payloads from a single connection.
func New(exporter Exporter, c client.Client, opts ...Option) *Processor {
	p := &Processor{
		exporter: exporter,
		client:   c,
		traces:   tracing.NewTraces(),
		intern:   interner.New(),
		eventsByKind: map[uint64]*atomic.Uint64{
			kindStartWebRequest:  atomic.NewUint64(0),
			kindAddError:         atomic.NewUint64(0),
			kindFinishWebRequest: atomic.NewUint64(0),
			kindStartSpan:        atomic.NewUint64(0),
			kindFinishSpan:       atomic.NewUint64(0),
			kindAddTags:          atomic.NewUint64(0),
			kindStrings:          atomic.NewUint64(0),
			kindStartMySQLQuery:  atomic.NewUint64(0),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process consumes exactly one payload from rd: an outer two-element
// array `[strings, events]`. Strings are appended to the per-connection
// cumulative table; events are applied in array order. Any codec
// violation or out-of-range string index fails the whole payload with
// *msgpack.MalformedInput and leaves the Traces aggregate as it was after
// the last successfully applied event.
func (p *Processor) Process(ctx context.Context, rd io.Reader) error {
	r := msgpack.NewReader(rd)

	outerLen, err := r.ArrayHeader()
	if err != nil {
		p.malformedInputs.Inc()
		return err
	}
	if outerLen != 2 {
		p.malformedInputs.Inc()
		return &msgpack.MalformedInput{Op: "outer payload framing", Err: errOuterArity(outerLen)}
	}

	if err := p.readStrings(r); err != nil {
		p.malformedInputs.Inc()
		return err
	}

	eventCount, err := r.ArrayHeader()
	if err != nil {
		p.malformedInputs.Inc()
		return err
	}

	for i := uint32(0); i < eventCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processEvent(r); err != nil {
			p.malformedInputs.Inc()
			return err
		}
	}
	return nil
}

func (p *Processor) readStrings(r *msgpack.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	if cap(p.strings)-len(p.strings) < int(n) {
		grown := make([]string, len(p.strings), len(p.strings)+int(n))
		copy(grown, p.strings)
		p.strings = grown
	}
	for i := uint32(0); i < n; i++ {
		s, err := r.String()
		if err != nil {
			return err
		}
		p.strings = append(p.strings, s)
	}
	return nil
}

// Flush extracts every complete trace (started == finished, started > 0)
// from the aggregate, removes them, and hands the batch to the exporter
// in one call. Incomplete traces persist for later payloads. Calling
// Flush twice in a row with no intervening Process exports the empty set
// the second time.
func (p *Processor) Flush(ctx context.Context) error {
	done := p.traces.DrainComplete()
	return p.exporter.EncodeAndSend(ctx, done, p.client)
}

// Stats returns a snapshot of this Processor's counters. The event,
// malformed-input, unknown-kind and clamp counters are atomic;
// StringTableSize is read without synchronization, so Stats is not safe
// to call concurrently with Process.
func (p *Processor) Stats() Stats {
	byKind := make(map[uint64]uint64, len(p.eventsByKind))
	for k, v := range p.eventsByKind {
		byKind[k] = v.Load()
	}
	return Stats{
		EventsByKind:     byKind,
		MalformedInputs:  p.malformedInputs.Load(),
		UnknownEventKind: p.unknownEventKind.Load(),
		DurationClamped:  p.durationClamped.Load(),
		StringTableSize:  len(p.strings),
	}
}

// recordDurationClamp logs and counts a finish_time < start underflow,
// which Span.Finish already clamped to duration=0 rather than panic. This
// is an InternalInvariant, not a MalformedInput: the wire encoding was
// fine, but a tracer emitted an impossible timestamp pair.
func (p *Processor) recordDurationClamp(traceID, spanID uint64) {
	p.durationClamped.Inc()
	err := &InternalInvariant{Reason: fmt.Sprintf("finish_time precedes start for trace_id=%d span_id=%d", traceID, spanID)}
	log.Warnw(err.Error(), "trace_id", traceID, "span_id", spanID)
}

func (p *Processor) lookupString(idx int) (string, error) {
	if idx < 0 || idx >= len(p.strings) {
		return "", &msgpack.MalformedInput{Op: "string table lookup", Err: errStringIndex(idx)}
	}
	return p.strings[idx], nil
}

type errOuterArity uint32

func (e errOuterArity) Error() string {
	return "outer payload array must have exactly 2 elements (strings, events)"
}

type errStringIndex int

func (e errStringIndex) Error() string {
	return "string table index out of range"
}
