// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package tracing holds the in-memory Span/Trace/Traces aggregate the
// event processor assembles and the exporters re-encode. Field tags match
// the wire names used by the v0.4 keyed exporter; the v0.5 exporter
// addresses the same fields positionally.
package tracing

// DefaultService is the service of spans created by StartWebRequest
// events; StartMySQLQuery spans use it with a "-mysql" suffix. StartSpan
// events always carry their own service.
const DefaultService = "unnamed-app"

// Span is the unit of work. Once Finish has set Duration, it is not set
// again; once Error transitions 0->1 it never reverts.
type Span struct {
	TraceID  uint64 `msg:"trace_id"`
	SpanID   uint64 `msg:"span_id"`
	ParentID uint64 `msg:"parent_id"`

	Start    uint64 `msg:"start"`
	Duration uint64 `msg:"duration"`

	Service  string `msg:"service"`
	Name     string `msg:"name"`
	Resource string `msg:"resource"`
	Type     string `msg:"type"` // empty string means "unset"

	Error uint64 `msg:"error"`

	Meta    map[string]string  `msg:"meta"`
	Metrics map[string]float64 `msg:"metrics"`

	finished bool
}

// NewSpan constructs a Span ready for insertion into a Trace: Error and
// Duration start at zero, finished is false until a Finish* event arrives.
func NewSpan(traceID, spanID, parentID, start uint64, service, name, resource, spanType string) *Span {
	return &Span{
		TraceID:  traceID,
		SpanID:   spanID,
		ParentID: parentID,
		Start:    start,
		Service:  service,
		Name:     name,
		Resource: resource,
		Type:     spanType,
		Meta:     make(map[string]string),
		Metrics:  make(map[string]float64),
	}
}

// Finished reports whether a Finish* event has already set this span's
// duration. Duration alone can't answer this: a clamped underflow (see
// Finish) legitimately leaves Duration at 0.
func (s *Span) Finished() bool { return s.finished }

// Finish sets Duration from finishTime and Start, clamping to 0 instead of
// underflowing when finishTime precedes Start (the source panics here; we
// don't). It is a no-op if the span was already finished, matching
// "duration is assigned exactly once."
func (s *Span) Finish(finishTime uint64) (clamped bool) {
	if s.finished {
		return false
	}
	s.finished = true
	if finishTime < s.Start {
		s.Duration = 0
		return true
	}
	s.Duration = finishTime - s.Start
	return false
}

// SetError marks the span as errored. Once set it is never cleared.
func (s *Span) SetError() { s.Error = 1 }

// MergeMeta merges src into s.Meta, last-writer-wins on key collision.
func (s *Span) MergeMeta(src map[string]string) {
	if len(src) == 0 {
		return
	}
	if s.Meta == nil {
		s.Meta = make(map[string]string, len(src))
	}
	for k, v := range src {
		s.Meta[k] = v
	}
}

// MergeMetrics merges src into s.Metrics, last-writer-wins on key collision.
func (s *Span) MergeMetrics(src map[string]float64) {
	if len(src) == 0 {
		return
	}
	if s.Metrics == nil {
		s.Metrics = make(map[string]float64, len(src))
	}
	for k, v := range src {
		s.Metrics[k] = v
	}
}
