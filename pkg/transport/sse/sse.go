// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sse implements the server side of the MCP HTTP+SSE transport.
//
// A client opens a long-lived GET stream, is told where to POST its messages
// through an "endpoint" event, and receives every server message as a
// "message" event on that stream.
package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/stacklok/openmcp/pkg/logger"
	transporterrors "github.com/stacklok/openmcp/pkg/transport/errors"
	"github.com/stacklok/openmcp/pkg/transport/jsonrpc"
	"github.com/stacklok/openmcp/pkg/transport/sessionid"
	"github.com/stacklok/openmcp/pkg/transport/ssecommon"
	"github.com/stacklok/openmcp/pkg/transport/types"
)

// Option configures a Transport.
type Option func(*Transport)

// WithObserver sets the observer notified of transport events.
func WithObserver(o types.Observer) Option {
	return func(t *Transport) {
		if o != nil {
			t.observer = o
		}
	}
}

// WithLimits sets the body size and keep-alive limits.
func WithLimits(l types.Limits) Option {
	return func(t *Transport) {
		t.limits = l.WithDefaults()
	}
}

// Transport is one SSE session.
type Transport struct {
	endpoint  string
	sessionID string
	observer  types.Observer
	limits    types.Limits

	mu      sync.Mutex
	stream  *ssecommon.Stream
	started bool
	closed  bool
	handler types.MessageHandler
	onClose []func()
}

var _ types.Transport = (*Transport)(nil)

// New creates an SSE transport for sessionID. Clients are told to POST to
// endpoint with the session id appended as a query parameter.
func New(endpoint, sessionID string, opts ...Option) *Transport {
	t := &Transport{
		endpoint:  endpoint,
		sessionID: sessionID,
		observer:  types.NopObserver{},
		limits:    types.DefaultLimits(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Type implements types.Transport.
func (*Transport) Type() types.TransportType {
	return types.TransportTypeSSE
}

// SessionID implements types.Transport.
func (t *Transport) SessionID() string {
	return t.sessionID
}

// SetMessageHandler implements types.Transport.
func (t *Transport) SetMessageHandler(h types.MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// OnClose implements types.Transport. If the transport is already closed fn runs immediately.
func (t *Transport) OnClose(fn func()) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		fn()
		return
	}
	t.onClose = append(t.onClose, fn)
	t.mu.Unlock()
}

// EndpointURL returns the URL announced in the endpoint event.
func (t *Transport) EndpointURL() string {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return fmt.Sprintf("%s?%s=%s", t.endpoint, sessionid.QueryParam, url.QueryEscape(t.sessionID))
	}
	q := u.Query()
	q.Set(sessionid.QueryParam, t.sessionID)
	u.RawQuery = q.Encode()
	return u.String()
}

// Start opens the event stream on w and announces the POST endpoint.
// It may be called once.
func (t *Transport) Start(w http.ResponseWriter) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transporterrors.NewTransportError(transporterrors.ErrTransportClosed, t.sessionID, "")
	}
	if t.started {
		t.mu.Unlock()
		return transporterrors.NewTransportError(transporterrors.ErrAlreadyStarted, t.sessionID, "")
	}
	stream, err := ssecommon.NewStream(w)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.started = true
	t.stream = stream
	t.mu.Unlock()

	if err := stream.Open(nil); err != nil {
		return err
	}
	return stream.WriteEvent(ssecommon.NewSSEMessage(ssecommon.EventEndpoint, t.EndpointURL()))
}

// Serve blocks until the transport is closed or ctx is done, writing
// keep-alive comments in between. A done ctx closes the transport.
func (t *Transport) Serve(ctx context.Context) error {
	t.mu.Lock()
	stream := t.stream
	t.mu.Unlock()
	if stream == nil {
		return transporterrors.NewTransportError(transporterrors.ErrNotConnected, t.sessionID, "")
	}

	var keepAlive <-chan time.Time
	if t.limits.KeepAliveInterval > 0 {
		ticker := time.NewTicker(t.limits.KeepAliveInterval)
		defer ticker.Stop()
		keepAlive = ticker.C
	}

	for {
		select {
		case <-stream.Done():
			return nil
		case <-ctx.Done():
			logger.Debugw("SSE client disconnected", "session_id", t.sessionID)
			return t.Close()
		case <-keepAlive:
			if err := stream.WriteComment("keep-alive"); err != nil {
				return t.Close()
			}
		}
	}
}

// ServeHTTP serves the GET stream and the message POSTs of this session.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if err := t.Start(w); err != nil {
			t.observer.Error(t.sessionID, err)
			if errors.Is(err, transporterrors.ErrAlreadyStarted) {
				http.Error(w, "SSE stream already open for this session", http.StatusConflict)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_ = t.Serve(r.Context())
	case http.MethodPost:
		t.HandlePostMessage(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandlePostMessage accepts one client message, hands it to the message
// handler and acknowledges it with 202 Accepted.
func (t *Transport) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	t.mu.Lock()
	ready := t.started && !t.closed
	handler := t.handler
	t.mu.Unlock()
	if !ready {
		http.Error(w, "SSE connection not established", http.StatusInternalServerError)
		return
	}

	if ct := r.Header.Get("Content-Type"); !types.IsJSONContentType(ct) {
		http.Error(w, fmt.Sprintf("Unsupported content-type: %s", ct), http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, t.limits.MaxBodyBytes))
	if err != nil {
		t.observer.Error(t.sessionID, err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	msg, err := jsonrpc.Decode(body)
	if err != nil {
		t.observer.Error(t.sessionID, err)
		http.Error(w, fmt.Sprintf("Invalid message: %v", err), http.StatusBadRequest)
		return
	}
	t.observer.MessageReceived(t.sessionID, msg)

	if handler != nil {
		ctx := r.Context()
		if msg.Kind() == jsonrpc.KindRequest {
			ctx = jsonrpc.WithRequestID(ctx, msg.ID())
		}
		handler(ctx, msg)
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprint(w, "Accepted")
}

// Send implements types.Transport. Every message goes out on the single event stream.
func (t *Transport) Send(_ context.Context, msg jsonrpc.Message) error {
	t.mu.Lock()
	stream, closed := t.stream, t.closed
	t.mu.Unlock()
	if stream == nil || closed {
		return transporterrors.NewTransportError(transporterrors.ErrNotConnected, t.sessionID, "")
	}

	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := stream.WriteEvent(ssecommon.NewSSEMessage(ssecommon.EventMessage, string(data))); err != nil {
		if errors.Is(err, ssecommon.ErrStreamClosed) {
			return transporterrors.NewTransportError(transporterrors.ErrNotConnected, t.sessionID, "")
		}
		return err
	}
	t.observer.MessageSent(t.sessionID, msg)
	return nil
}

// Close implements types.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	stream := t.stream
	callbacks := t.onClose
	t.onClose = nil
	t.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	for _, fn := range callbacks {
		fn()
	}
	t.observer.Closed(t.sessionID)
	return nil
}
