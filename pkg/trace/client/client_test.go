package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/DataDog/trace-collector/pkg/trace/client"
)

func TestHTTPClientSendSetsContentTypeAndTraceCount(t *testing.T) {
	var gotContentType, gotTraceCount string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotTraceCount = r.Header.Get("X-Datadog-Trace-Count")
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	done := make(chan struct{})
	c := &client.HTTPClient{URL: ts.URL}
	go func() {
		_ = c.SendTraces(context.Background(), []byte("body"), 3)
		close(done)
	}()

	// The real PUT happens on a detached goroutine inside send(); give the
	// test server a moment to observe it before asserting.
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SendTraces did not return")
	}
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, "application/msgpack", gotContentType)
	assert.Equal(t, "3", gotTraceCount)
}

func TestHTTPClientSendWithoutTraceCountOmitsHeader(t *testing.T) {
	var gotTraceCount string
	headerSeen := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceCount = r.Header.Get("X-Datadog-Trace-Count")
		close(headerSeen)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c := &client.HTTPClient{URL: ts.URL}
	require.NoError(t, c.Send(context.Background(), []byte("body")))

	select {
	case <-headerSeen:
	case <-time.After(time.Second):
		t.Fatal("request was never received")
	}
	assert.Empty(t, gotTraceCount)
}

func TestHTTPClientRespectsLimiterCancellation(t *testing.T) {
	c := &client.HTTPClient{URL: "http://127.0.0.1:0", Limiter: rate.NewLimiter(rate.Limit(0), 0)}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Send(ctx, []byte("body"))
	require.Error(t, err)
	assert.True(t, client.IsUpstreamUnavailable(err))
}

func TestBufferClientSendThenRecv(t *testing.T) {
	b := client.NewBufferClient()
	require.NoError(t, b.Send(context.Background(), []byte("payload")))

	got, err := b.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestBufferClientSendBlocksUntilRecvWithFullSlot(t *testing.T) {
	b := client.NewBufferClient()
	require.NoError(t, b.Send(context.Background(), []byte("first")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := b.Send(ctx, []byte("second"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
