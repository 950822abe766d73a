package client

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/DataDog/trace-collector/pkg/trace/log"
)

// TraceCountSender is an optional capability a Client may implement to
// carry the X-Datadog-Trace-Count header alongside the encoded body (§6).
// Exporters type-assert for it and fall back to plain Send when absent
// (e.g. the embedded BufferClient has no use for a trace count).
type TraceCountSender interface {
	SendTraces(ctx context.Context, body []byte, traceCount int) error
}

// HTTPClient fire-and-forgets an encoded payload to a downstream agent via
// a single PUT, matching exporting/agent.rs's tokio::spawn-and-forget
// pattern: the core never observes the response.
type HTTPClient struct {
	// URL is the full destination, e.g. "http://localhost:8126/v0.5/traces".
	URL string
	// HTTP is the underlying client; must be safe for concurrent use since
	// it may be shared across connections (§5). Defaults to
	// http.DefaultClient when nil.
	HTTP *http.Client
	// Limiter, if set, caps the rate of PUTs issued to the downstream
	// agent; a burst of flushes across many connections otherwise has no
	// bound. Nil means unlimited.
	Limiter *rate.Limiter
}

var _ Client = (*HTTPClient)(nil)
var _ TraceCountSender = (*HTTPClient)(nil)

// Send issues the PUT without a trace count header. Prefer SendTraces when
// the caller knows how many traces it encoded.
func (c *HTTPClient) Send(ctx context.Context, body []byte) error {
	return c.send(ctx, body, -1)
}

// SendTraces issues the PUT with X-Datadog-Trace-Count set to traceCount.
func (c *HTTPClient) SendTraces(ctx context.Context, body []byte, traceCount int) error {
	return c.send(ctx, body, traceCount)
}

func (c *HTTPClient) send(ctx context.Context, body []byte, traceCount int) error {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return &UpstreamUnavailable{Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.URL, bytes.NewReader(body))
	if err != nil {
		return &UpstreamUnavailable{Err: err}
	}
	req.Header.Set("Content-Type", "application/msgpack")
	if traceCount >= 0 {
		req.Header.Set("X-Datadog-Trace-Count", strconv.Itoa(traceCount))
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}

	// Fire-and-forget: the core doesn't wait on or inspect the response,
	// but we still drain and close the body so the connection is reusable.
	go func() {
		resp, err := hc.Do(req)
		if err != nil {
			log.Warnw("downstream agent PUT failed", "url", c.URL, "error", err)
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			log.Warnw("downstream agent rejected payload", "url", c.URL, "status", resp.StatusCode)
		}
	}()

	return nil
}
