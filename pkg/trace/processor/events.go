package processor

import (
	"strconv"

	"github.com/DataDog/trace-collector/pkg/trace/msgpack"
	"github.com/DataDog/trace-collector/pkg/trace/tracing"
)

// Event kinds, per spec.md §4.2.
const (
	kindStartWebRequest  = 1
	kindAddError         = 2
	kindFinishWebRequest = 3
	kindStartSpan        = 4
	kindFinishSpan       = 5
	kindAddTags          = 6
	kindStrings          = 7
	kindStartMySQLQuery  = 8
)

// processEvent reads one event: an array whose first element is the
// unsigned event_kind, dispatches to the matching handler, and generically
// skips the remaining elements of any kind it doesn't recognize so the
// stream never desynchronizes (§9).
func (p *Processor) processEvent(r *msgpack.Reader) error {
	arrLen, err := r.ArrayHeader()
	if err != nil {
		return err
	}
	kind, err := r.Uint64()
	if err != nil {
		return err
	}

	if counter, ok := p.eventsByKind[kind]; ok {
		counter.Inc()
	}

	switch kind {
	case kindStartWebRequest:
		return p.handleStartWebRequest(r)
	case kindAddError:
		return p.handleAddError(r, arrLen)
	case kindFinishWebRequest:
		return p.handleFinishWebRequest(r)
	case kindStartSpan:
		return p.handleStartSpan(r)
	case kindFinishSpan:
		return p.handleFinishSpan(r)
	case kindAddTags:
		return p.handleAddTags(r)
	case kindStrings:
		return p.handleStrings(r)
	case kindStartMySQLQuery:
		return p.handleStartMySQLQuery(r)
	default:
		p.unknownEventKind.Inc()
		// arrLen elements total, one (kind) already consumed.
		for i := uint32(1); i < arrLen; i++ {
			if err := r.Skip(); err != nil {
				return err
			}
		}
		return nil
	}
}

// handleStartSpan implements kind 4:
// [kind, start, trace_id, span_id, parent_id, service, name, resource, meta, metrics, span_type]
func (p *Processor) handleStartSpan(r *msgpack.Reader) error {
	start, err := r.Uint64()
	if err != nil {
		return err
	}
	traceID, err := r.Uint64()
	if err != nil {
		return err
	}
	spanID, err := r.Uint64()
	if err != nil {
		return err
	}
	parentID, err := r.Uint64()
	if err != nil {
		return err
	}
	service, err := p.readIndexedString(r)
	if err != nil {
		return err
	}
	name, err := p.readIndexedString(r)
	if err != nil {
		return err
	}
	resource, err := p.readIndexedString(r)
	if err != nil {
		return err
	}
	meta, metrics, err := p.readTags(r)
	if err != nil {
		return err
	}
	spanType, err := p.readIndexedString(r)
	if err != nil {
		return err
	}

	span := tracing.NewSpan(traceID, spanID, parentID, start, service, name, resource, spanType)
	span.MergeMeta(meta)
	span.MergeMetrics(metrics)
	if err := p.insertSpan(traceID, span); err != nil {
		return err
	}
	return nil
}

// handleFinishSpan implements kind 5:
// [kind, finish_time, trace_id, span_id, meta, metrics]
// Silently discards events against a span with no prior Start (§4.2).
func (p *Processor) handleFinishSpan(r *msgpack.Reader) error {
	finishTime, err := r.Uint64()
	if err != nil {
		return err
	}
	traceID, err := r.Uint64()
	if err != nil {
		return err
	}
	spanID, err := r.Uint64()
	if err != nil {
		return err
	}
	meta, metrics, err := p.readTags(r)
	if err != nil {
		return err
	}

	trace, ok := p.traces[traceID]
	if !ok {
		return nil
	}
	span := trace.Span(spanID)
	if span == nil {
		return nil
	}
	if clamped := span.Finish(finishTime); clamped {
		p.recordDurationClamp(traceID, spanID)
	}
	span.MergeMeta(meta)
	span.MergeMetrics(metrics)
	trace.Finished++
	return nil
}

// handleAddTags implements kind 6: [kind, ignored, trace_id, span_id, meta, metrics]
func (p *Processor) handleAddTags(r *msgpack.Reader) error {
	if _, err := r.Uint64(); err != nil { // ignored
		return err
	}
	traceID, err := r.Uint64()
	if err != nil {
		return err
	}
	spanID, err := r.Uint64()
	if err != nil {
		return err
	}
	meta, metrics, err := p.readTags(r)
	if err != nil {
		return err
	}

	trace, ok := p.traces[traceID]
	if !ok {
		return nil
	}
	span := trace.Span(spanID)
	if span == nil {
		return nil
	}
	span.MergeMeta(meta)
	span.MergeMetrics(metrics)
	return nil
}

// handleAddError implements kind 2:
// [kind, ignored, trace_id, span_id, (name_idx, message_idx, stack_idx)?]
// arrLen gates whether the optional string-index triple follows, per §9's
// "branch on the event's outer array length, not on a sentinel."
func (p *Processor) handleAddError(r *msgpack.Reader, arrLen uint32) error {
	if _, err := r.Uint64(); err != nil { // ignored
		return err
	}
	traceID, err := r.Uint64()
	if err != nil {
		return err
	}
	spanID, err := r.Uint64()
	if err != nil {
		return err
	}

	var name, message, stack string
	hasDetail := arrLen >= 7
	if hasDetail {
		if name, err = p.readIndexedString(r); err != nil {
			return err
		}
		if message, err = p.readIndexedString(r); err != nil {
			return err
		}
		if stack, err = p.readIndexedString(r); err != nil {
			return err
		}
	}

	trace, ok := p.traces[traceID]
	if !ok {
		return nil
	}
	span := trace.Span(spanID)
	if span == nil {
		return nil
	}
	span.SetError()
	if hasDetail {
		span.MergeMeta(map[string]string{
			p.intern.Intern("error.name"):    name,
			p.intern.Intern("error.message"): message,
			p.intern.Intern("error.stack"):   stack,
		})
	}
	return nil
}

// handleStrings implements kind 7: [kind, strings]. Appends to the
// cumulative per-connection string table.
func (p *Processor) handleStrings(r *msgpack.Reader) error {
	n, err := r.ArrayHeader()
	if err != nil {
		return err
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

// handleStartWebRequest implements kind 1:
// [kind, start, trace_id, span_id, parent_id, component, method, url, route]
func (p *Processor) handleStartWebRequest(r *msgpack.Reader) error {
	start, err := r.Uint64()
	if err != nil {
		return err
	}
	traceID, err := r.Uint64()
	if err != nil {
		return err
	}
	spanID, err := r.Uint64()
	if err != nil {
		return err
	}
	parentID, err := r.Uint64()
	if err != nil {
		return err
	}
	component, err := p.readIndexedString(r)
	if err != nil {
		return err
	}
	method, err := p.readIndexedString(r)
	if err != nil {
		return err
	}
	url, err := p.readIndexedString(r)
	if err != nil {
		return err
	}
	route, err := p.readIndexedString(r)
	if err != nil {
		return err
	}

	name := p.intern.Intern(component + ".request")
	resource := p.intern.Intern(method + " " + route)

	span := tracing.NewSpan(traceID, spanID, parentID, start,
		p.intern.Intern(tracing.DefaultService), name, resource, p.intern.Intern("web"))
	span.MergeMeta(map[string]string{
		p.intern.Intern("http.method"): method,
		p.intern.Intern("http.url"):    url,
	})
	if err := p.insertSpan(traceID, span); err != nil {
		return err
	}
	return nil
}

// handleFinishWebRequest implements kind 3:
// [kind, finish_time, trace_id, span_id, status_code:u16]
func (p *Processor) handleFinishWebRequest(r *msgpack.Reader) error {
	finishTime, err := r.Uint64()
	if err != nil {
		return err
	}
	traceID, err := r.Uint64()
	if err != nil {
		return err
	}
	spanID, err := r.Uint64()
	if err != nil {
		return err
	}
	statusCode, err := r.Uint16()
	if err != nil {
		return err
	}

	trace, ok := p.traces[traceID]
	if !ok {
		return nil
	}
	span := trace.Span(spanID)
	if span == nil {
		return nil
	}
	if clamped := span.Finish(finishTime); clamped {
		p.recordDurationClamp(traceID, spanID)
	}
	span.MergeMeta(map[string]string{
		p.intern.Intern("http.status_code"): strconv.FormatUint(uint64(statusCode), 10),
	})
	trace.Finished++
	return nil
}

// handleStartMySQLQuery implements kind 8:
// [kind, start, trace_id, span_id, parent_id, sql, database, user, host, port:u16]
func (p *Processor) handleStartMySQLQuery(r *msgpack.Reader) error {
	start, err := r.Uint64()
	if err != nil {
		return err
	}
	traceID, err := r.Uint64()
	if err != nil {
		return err
	}
	spanID, err := r.Uint64()
	if err != nil {
		return err
	}
	parentID, err := r.Uint64()
	if err != nil {
		return err
	}
	sql, err := p.readIndexedString(r)
	if err != nil {
		return err
	}
	database, err := p.readIndexedString(r)
	if err != nil {
		return err
	}
	user, err := p.readIndexedString(r)
	if err != nil {
		return err
	}
	host, err := p.readIndexedString(r)
	if err != nil {
		return err
	}
	port, err := r.Uint16()
	if err != nil {
		return err
	}

	span := tracing.NewSpan(traceID, spanID, parentID, start,
		p.intern.Intern(tracing.DefaultService+"-mysql"), p.intern.Intern("mysql.query"), sql, p.intern.Intern("sql"))
	span.MergeMeta(map[string]string{
		p.intern.Intern("db.type"): p.intern.Intern("mysql"),
		p.intern.Intern("db.user"): user,
		p.intern.Intern("db.name"): database,
		p.intern.Intern("out.host"): host,
	})
	span.MergeMetrics(map[string]float64{
		p.intern.Intern("out.port"): float64(port),
	})
	if err := p.insertSpan(traceID, span); err != nil {
		return err
	}
	return nil
}

// insertSpan adds span to its trace. In strict mode (opt-in,
// WithStrictDuplicateSpans) a duplicate (trace_id, span_id) fails the
// connection with MalformedInput; by default it overwrites and
// double-counts Started, matching the source (see DESIGN.md).
func (p *Processor) insertSpan(traceID uint64, span *tracing.Span) error {
	trace := p.traces.GetOrCreate(traceID)
	if p.strictDuplicateSpans {
		if _, exists := trace.Spans[span.SpanID]; exists {
			return &msgpack.MalformedInput{Op: "duplicate StartSpan", Err: errDuplicateSpan(span.SpanID)}
		}
	}
	trace.Insert(span)
	return nil
}

type errDuplicateSpan uint64

func (e errDuplicateSpan) Error() string {
	return "duplicate StartSpan for an existing span_id"
}

func (p *Processor) readIndexedString(r *msgpack.Reader) (string, error) {
	idx, err := r.Usize()
	if err != nil {
		return "", err
	}
	return p.lookupString(idx)
}

func (p *Processor) readTags(r *msgpack.Reader) (meta map[string]string, metrics map[string]float64, err error) {
	metaLen, err := r.MapHeader()
	if err != nil {
		return nil, nil, err
	}
	if metaLen > 0 {
		meta = make(map[string]string, metaLen)
		for i := uint32(0); i < metaLen; i++ {
			k, err := p.readIndexedString(r)
			if err != nil {
				return nil, nil, err
			}
			v, err := p.readIndexedString(r)
			if err != nil {
				return nil, nil, err
			}
			meta[k] = v
		}
	}

	metricsLen, err := r.MapHeader()
	if err != nil {
		return nil, nil, err
	}
	if metricsLen > 0 {
		metrics = make(map[string]float64, metricsLen)
		for i := uint32(0); i < metricsLen; i++ {
			k, err := p.readIndexedString(r)
			if err != nil {
				return nil, nil, err
			}
			v, err := r.Float64()
			if err != nil {
				return nil, nil, err
			}
			metrics[k] = v
		}
	}

	return meta, metrics, nil
}
