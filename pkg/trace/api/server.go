// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package api is the inbound HTTP transport: a gorilla/mux router exposing
// PUT /v0.1/events, a bounded backpressure queue, and a fixed worker pool
// draining that queue FIFO. Each connection id has its own Processor,
// kept for as long as the connection's payloads decode cleanly. It is the
// concrete realization of spec §4.7/§5: "one task per connection" maps
// onto shared workers, with same-connection payloads serialized through a
// per-connection mutex so two payloads from one connection are never
// decoded concurrently.
package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/DataDog/trace-collector/pkg/trace/client"
	"github.com/DataDog/trace-collector/pkg/trace/log"
	"github.com/DataDog/trace-collector/pkg/trace/metrics"
	"github.com/DataDog/trace-collector/pkg/trace/msgpack"
	"github.com/DataDog/trace-collector/pkg/trace/processor"
)

// ConnectionIDHeader lets a caller multiplex several logical connections
// over one TCP connection (or a shared proxy) by naming them explicitly;
// absent the header, the client's remote address is the connection id.
const ConnectionIDHeader = "X-Datadog-Connection-Id"

// job is one queued inbound payload awaiting decode.
type job struct {
	connID string
	body   []byte
}

// connState is the per-connection Processor and the mutex serializing
// access to it. Workers are shared; connStates are not.
type connState struct {
	mu   sync.Mutex
	proc *processor.Processor
}

// Server owns the inbound listener, the bounded queue, and the worker
// pool. The zero value is not usable; construct with NewServer.
type Server struct {
	router *mux.Router

	queue      chan job
	numWorkers int

	exporter        processor.Exporter
	client          client.Client
	metrics         *metrics.Client
	maxPayloadBytes int64

	conns sync.Map // connID string -> *connState

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewServer builds a Server. numWorkers and queueCapacity must both be at
// least 1 (§5); exporter and c are shared across every connection's
// Processor. maxPayloadBytes bounds the inbound request body.
func NewServer(numWorkers, queueCapacity int, maxPayloadBytes int64, exporter processor.Exporter, c client.Client, m *metrics.Client) *Server {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if queueCapacity < 1 {
		queueCapacity = 1
	}
	s := &Server{
		queue:           make(chan job, queueCapacity),
		numWorkers:      numWorkers,
		exporter:        exporter,
		client:          c,
		metrics:         m,
		maxPayloadBytes: maxPayloadBytes,
		stop:            make(chan struct{}),
	}
	s.router = newRouter(s)
	return s
}

func newRouter(s *Server) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/v0.1/events", http.HandlerFunc(s.handleEvents)).Methods(http.MethodPut)
	notFound := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.NotFoundHandler = notFound
	r.MethodNotAllowedHandler = notFound
	return r
}

// ServeHTTP lets a Server be used directly as an http.Handler, e.g. with
// httptest.NewServer in tests or as the handler for a custom *http.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start launches the worker pool. Call once before serving traffic.
func (s *Server) Start() {
	s.wg.Add(s.numWorkers)
	for i := 0; i < s.numWorkers; i++ {
		go func() {
			defer s.wg.Done()
			s.work()
		}()
	}
}

// Stop signals every worker to drain the queue and exit, and waits for
// them to do so.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// handleEvents implements PUT /v0.1/events (§4.7): handoff to the queue is
// success (202) even if decoding later fails on a worker; pushing onto a
// full queue blocks (applying backpressure on the wire) until a slot
// frees or the client gives up.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.maxPayloadBytes+1))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if int64(len(body)) > s.maxPayloadBytes {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	connID := connectionID(r)

	select {
	case s.queue <- job{connID: connID, body: body}:
		w.WriteHeader(http.StatusAccepted)
	case <-r.Context().Done():
	}
}

func connectionID(r *http.Request) string {
	if id := r.Header.Get(ConnectionIDHeader); id != "" {
		return id
	}
	return r.RemoteAddr
}

func (s *Server) work() {
	for {
		select {
		case <-s.stop:
			s.drainRemaining()
			return
		case j := <-s.queue:
			s.processJob(j)
		}
	}
}

func (s *Server) drainRemaining() {
	for {
		select {
		case j := <-s.queue:
			s.processJob(j)
		default:
			return
		}
	}
}

func (s *Server) processJob(j job) {
	st := s.connStateFor(j.connID)

	st.mu.Lock()
	defer st.mu.Unlock()

	ctx := context.Background()
	if err := st.proc.Process(ctx, bytes.NewReader(j.body)); err != nil {
		var malformed *msgpack.MalformedInput
		if errors.As(err, &malformed) {
			log.Warnw("malformed inbound payload, closing connection", "conn_id", j.connID, "error", err)
			s.metrics.Count("payloads.malformed", 1)
		} else {
			log.Errorw("unexpected error processing inbound payload", "conn_id", j.connID, "error", err)
		}
		s.conns.Delete(j.connID)
		return
	}
	s.metrics.Count("payloads.processed", 1)

	start := time.Now()
	if err := st.proc.Flush(ctx); err != nil {
		log.Warnw("flush to downstream agent failed", "conn_id", j.connID, "error", err)
		s.metrics.Count("flush.errors", 1)
		return
	}
	s.metrics.Timing("flush.duration", time.Since(start))
}

func (s *Server) connStateFor(connID string) *connState {
	if v, ok := s.conns.Load(connID); ok {
		return v.(*connState)
	}
	st := &connState{proc: processor.New(s.exporter, s.client)}
	actual, _ := s.conns.LoadOrStore(connID, st)
	return actual.(*connState)
}
