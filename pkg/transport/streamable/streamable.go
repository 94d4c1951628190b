// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package streamable implements the server side of the MCP streamable HTTP
// transport.
//
// Every POST carrying requests gets its own event stream. The stream stays
// open until each of its requests has been answered, so concurrent POSTs are
// independent of each other. A GET opens the single standalone stream used for
// server-initiated messages, and DELETE terminates the session.
package streamable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/jsonrpc2"

	"github.com/stacklok/openmcp/pkg/logger"
	transporterrors "github.com/stacklok/openmcp/pkg/transport/errors"
	"github.com/stacklok/openmcp/pkg/transport/jsonrpc"
	"github.com/stacklok/openmcp/pkg/transport/ssecommon"
	"github.com/stacklok/openmcp/pkg/transport/types"
)

const (
	// HTTPStreamableHTTPEndpoint is the endpoint for Streamable HTTP connections
	HTTPStreamableHTTPEndpoint = "mcp"
)

// Option configures a Transport.
type Option func(*Transport)

// WithSessionIDGenerator sets the function minting the session id on
// initialize. Without a generator the transport is stateless: no session id is
// issued and no session header is required.
func WithSessionIDGenerator(gen func() string) Option {
	return func(t *Transport) {
		t.generateID = gen
	}
}

// WithObserver sets the observer notified of transport events.
func WithObserver(o types.Observer) Option {
	return func(t *Transport) {
		if o != nil {
			t.observer = o
		}
	}
}

// WithLimits sets the body, batch and stream limits.
func WithLimits(l types.Limits) Option {
	return func(t *Transport) {
		t.limits = l.WithDefaults()
	}
}

// WithOnSessionInitialized registers fn to run with the new session id once
// an initialize request has been accepted.
func WithOnSessionInitialized(fn func(sessionID string)) Option {
	return func(t *Transport) {
		t.onInitialized = fn
	}
}

type streamID int64

// responseStream is the event stream answering one POST.
type responseStream struct {
	id       streamID
	sink     *ssecommon.Stream
	requests []jsonrpc2.ID
}

// Transport is one streamable HTTP session.
type Transport struct {
	generateID    func() string
	onInitialized func(string)
	observer      types.Observer
	limits        types.Limits

	mu          sync.Mutex
	sessionID   string
	initialized bool
	closed      bool
	handler     types.MessageHandler
	onClose     []func()

	nextStreamID   streamID
	streams        map[streamID]*responseStream
	requestStreams map[jsonrpc2.ID]streamID
	responses      map[jsonrpc2.ID]jsonrpc.Message
	standalone     *ssecommon.Stream
}

var _ types.Transport = (*Transport)(nil)

// New creates a streamable HTTP transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		observer:       types.NopObserver{},
		limits:         types.DefaultLimits(),
		streams:        make(map[streamID]*responseStream),
		requestStreams: make(map[jsonrpc2.ID]streamID),
		responses:      make(map[jsonrpc2.ID]jsonrpc.Message),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Type implements types.Transport.
func (*Transport) Type() types.TransportType {
	return types.TransportTypeStreamableHTTP
}

// SessionID implements types.Transport. It is empty until initialize succeeds.
func (t *Transport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Initialized reports whether an initialize request has been accepted.
func (t *Transport) Initialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialized
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

// ServeHTTP dispatches on the request method.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		t.handleGet(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		jsonrpc.WriteError(w, jsonrpc.NewProtocolError(
			http.StatusMethodNotAllowed, jsonrpc.CodeServerError, "Method not allowed."))
	}
}

func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	if !types.AcceptsMediaType(r, "application/json") || !types.AcceptsMediaType(r, "text/event-stream") {
		jsonrpc.WriteError(w, jsonrpc.NewProtocolError(http.StatusNotAcceptable, jsonrpc.CodeServerError,
			"Not Acceptable: Client must accept both application/json and text/event-stream"))
		return
	}
	if !types.IsJSONContentType(r.Header.Get("Content-Type")) {
		jsonrpc.WriteError(w, jsonrpc.NewProtocolError(http.StatusUnsupportedMediaType, jsonrpc.CodeServerError,
			"Unsupported Media Type: Content-Type must be application/json"))
		return
	}

	msgs, perr := t.readBatch(w, r)
	if perr != nil {
		jsonrpc.WriteError(w, perr)
		return
	}

	var requestIDs []jsonrpc2.ID
	isInitialize := false
	for _, msg := range msgs {
		if msg.IsInitialize() {
			isInitialize = true
		}
		if msg.Kind() == jsonrpc.KindRequest {
			requestIDs = append(requestIDs, msg.ID())
		}
	}

	if isInitialize {
		if perr := t.initialize(len(msgs)); perr != nil {
			jsonrpc.WriteError(w, perr)
			return
		}
	} else if perr := t.validateSession(r); perr != nil {
		jsonrpc.WriteError(w, perr)
		return
	}

	sessionID := t.SessionID()
	for _, msg := range msgs {
		t.observer.MessageReceived(sessionID, msg)
	}

	if len(requestIDs) == 0 {
		for _, msg := range msgs {
			t.dispatch(r.Context(), msg)
		}
		if sessionID != "" {
			w.Header().Set(types.SessionIDHeader, sessionID)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	t.serveRequests(w, r, msgs, requestIDs, sessionID)
}

// readBatch reads and decodes the POST body, enforcing the size limits.
func (t *Transport) readBatch(w http.ResponseWriter, r *http.Request) ([]jsonrpc.Message, *jsonrpc.ProtocolError) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, t.limits.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, jsonrpc.NewProtocolError(http.StatusRequestEntityTooLarge, jsonrpc.CodeInvalidRequest,
				"Invalid Request: body too large")
		}
		return nil, jsonrpc.NewProtocolError(http.StatusBadRequest, jsonrpc.CodeParseError,
			"Parse error: failed to read request body")
	}

	msgs, err := jsonrpc.DecodeBatch(body)
	switch {
	case errors.Is(err, jsonrpc.ErrEmptyBatch):
		return nil, jsonrpc.NewProtocolError(http.StatusBadRequest, jsonrpc.CodeInvalidRequest,
			"Invalid Request: empty batch")
	case err != nil:
		t.observer.Error(t.SessionID(), err)
		return nil, jsonrpc.NewProtocolError(http.StatusBadRequest, jsonrpc.CodeParseError,
			fmt.Sprintf("Parse error: %v", err))
	case len(msgs) > t.limits.MaxBatchSize:
		return nil, jsonrpc.NewProtocolError(http.StatusBadRequest, jsonrpc.CodeInvalidRequest,
			fmt.Sprintf("Invalid Request: batch exceeds %d messages", t.limits.MaxBatchSize))
	}
	return msgs, nil
}

// initialize accepts an initialize request and mints the session id.
func (t *Transport) initialize(batchSize int) *jsonrpc.ProtocolError {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return jsonrpc.NewProtocolError(http.StatusNotFound, jsonrpc.CodeSessionNotFound, "Session not found")
	}
	if t.initialized {
		t.mu.Unlock()
		return jsonrpc.NewProtocolError(http.StatusBadRequest, jsonrpc.CodeInvalidRequest,
			"Invalid Request: Server already initialized")
	}
	if batchSize > 1 {
		t.mu.Unlock()
		return jsonrpc.NewProtocolError(http.StatusBadRequest, jsonrpc.CodeInvalidRequest,
			"Invalid Request: Only one initialization request is allowed")
	}
	if t.generateID != nil {
		t.sessionID = t.generateID()
	}
	t.initialized = true
	sessionID := t.sessionID
	cb := t.onInitialized
	t.mu.Unlock()

	if cb != nil {
		cb(sessionID)
	}
	return nil
}

// validateSession checks the session header of a non-initialize request.
func (t *Transport) validateSession(r *http.Request) *jsonrpc.ProtocolError {
	t.mu.Lock()
	closed, initialized, sessionID := t.closed, t.initialized, t.sessionID
	t.mu.Unlock()

	switch {
	case closed:
		return jsonrpc.NewProtocolError(http.StatusNotFound, jsonrpc.CodeSessionNotFound, "Session not found")
	case !initialized:
		return jsonrpc.NewProtocolError(http.StatusBadRequest, jsonrpc.CodeServerError,
			"Bad Request: Server not initialized")
	case sessionID == "":
		// Stateless mode.
		return nil
	}

	values := r.Header.Values(types.SessionIDHeader)
	switch {
	case len(values) == 0:
		return jsonrpc.NewProtocolError(http.StatusBadRequest, jsonrpc.CodeServerError,
			"Bad Request: Mcp-Session-Id header is required")
	case len(values) > 1 || strings.Contains(values[0], ","):
		return jsonrpc.NewProtocolError(http.StatusBadRequest, jsonrpc.CodeServerError,
			"Bad Request: Mcp-Session-Id header must be a single value")
	case values[0] != sessionID:
		return jsonrpc.NewProtocolError(http.StatusNotFound, jsonrpc.CodeSessionNotFound, "Session not found")
	}
	return nil
}

// serveRequests answers a POST carrying at least one request on its own stream.
func (t *Transport) serveRequests(
	w http.ResponseWriter, r *http.Request, msgs []jsonrpc.Message, requestIDs []jsonrpc2.ID, sessionID string,
) {
	sink, err := ssecommon.NewStream(w)
	if err != nil {
		t.observer.Error(sessionID, err)
		jsonrpc.WriteError(w, err)
		return
	}

	id, perr := t.registerStream(sink, requestIDs)
	if perr != nil {
		jsonrpc.WriteError(w, perr)
		return
	}
	defer t.releaseStream(id)

	header := http.Header{}
	if sessionID != "" {
		header.Set(types.SessionIDHeader, sessionID)
	}
	if err := sink.Open(header); err != nil {
		return
	}

	var timeout <-chan time.Time
	if t.limits.ResponseStreamTimeout > 0 {
		timer := time.NewTimer(t.limits.ResponseStreamTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	// Handlers see ctx canceled once the stream is done, whatever the reason.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		for _, msg := range msgs {
			t.dispatch(ctx, msg)
		}
	}()

	select {
	case <-sink.Done():
	case <-r.Context().Done():
		logger.Debugw("client closed response stream", "session_id", sessionID, "stream", id)
	case <-timeout:
		t.observer.Error(sessionID, fmt.Errorf("response stream %d timed out after %s", id, t.limits.ResponseStreamTimeout))
	}
}

func (t *Transport) registerStream(sink *ssecommon.Stream, requestIDs []jsonrpc2.ID) (streamID, *jsonrpc.ProtocolError) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, jsonrpc.NewProtocolError(http.StatusNotFound, jsonrpc.CodeSessionNotFound, "Session not found")
	}

	seen := make(map[jsonrpc2.ID]struct{}, len(requestIDs))
	for _, rid := range requestIDs {
		_, dup := seen[rid]
		_, inFlight := t.requestStreams[rid]
		if dup || inFlight {
			return 0, jsonrpc.NewProtocolError(http.StatusBadRequest, jsonrpc.CodeInvalidRequest,
				fmt.Sprintf("Invalid Request: duplicate request id %v", rid.Raw()))
		}
		seen[rid] = struct{}{}
	}

	t.nextStreamID++
	id := t.nextStreamID
	t.streams[id] = &responseStream{id: id, sink: sink, requests: requestIDs}
	for _, rid := range requestIDs {
		t.requestStreams[rid] = id
	}
	return id, nil
}

// releaseStream removes a stream and every correlation entry pointing at it.
func (t *Transport) releaseStream(id streamID) {
	t.mu.Lock()
	rs, ok := t.streams[id]
	if ok {
		t.forgetLocked(rs)
	}
	t.mu.Unlock()

	if ok {
		rs.sink.Close()
	}
}

func (t *Transport) forgetLocked(rs *responseStream) {
	delete(t.streams, rs.id)
	for _, rid := range rs.requests {
		if t.requestStreams[rid] == rs.id {
			delete(t.requestStreams, rid)
		}
		delete(t.responses, rid)
	}
}

func (t *Transport) dispatch(ctx context.Context, msg jsonrpc.Message) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler == nil {
		return
	}
	if msg.Kind() == jsonrpc.KindRequest {
		ctx = jsonrpc.WithRequestID(ctx, msg.ID())
	}
	handler(ctx, msg)
}

func (t *Transport) handleGet(w http.ResponseWriter, r *http.Request) {
	if !types.AcceptsMediaType(r, "text/event-stream") {
		jsonrpc.WriteError(w, jsonrpc.NewProtocolError(http.StatusNotAcceptable, jsonrpc.CodeServerError,
			"Not Acceptable: Client must accept text/event-stream"))
		return
	}
	if perr := t.validateSession(r); perr != nil {
		jsonrpc.WriteError(w, perr)
		return
	}

	sink, err := ssecommon.NewStream(w)
	if err != nil {
		jsonrpc.WriteError(w, err)
		return
	}

	t.mu.Lock()
	if t.standalone != nil {
		t.mu.Unlock()
		jsonrpc.WriteError(w, jsonrpc.NewProtocolError(http.StatusConflict, jsonrpc.CodeServerError,
			"Conflict: Only one SSE stream is allowed per session"))
		return
	}
	header := http.Header{}
	if t.sessionID != "" {
		header.Set(types.SessionIDHeader, t.sessionID)
	}
	// Headers go out before the stream becomes visible to Send.
	if err := sink.Open(header); err != nil {
		t.mu.Unlock()
		return
	}
	t.standalone = sink
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		if t.standalone == sink {
			t.standalone = nil
		}
		t.mu.Unlock()
		sink.Close()
	}()

	var keepAlive <-chan time.Time
	if t.limits.KeepAliveInterval > 0 {
		ticker := time.NewTicker(t.limits.KeepAliveInterval)
		defer ticker.Stop()
		keepAlive = ticker.C
	}

	for {
		select {
		case <-sink.Done():
			return
		case <-r.Context().Done():
			return
		case <-keepAlive:
			if err := sink.WriteComment("keep-alive"); err != nil {
				return
			}
		}
	}
}

func (t *Transport) handleDelete(w http.ResponseWriter, r *http.Request) {
	if perr := t.validateSession(r); perr != nil {
		jsonrpc.WriteError(w, perr)
		return
	}
	_ = t.Close()
	w.WriteHeader(http.StatusOK)
}

// Send implements types.Transport.
//
// Responses are routed by their own id, other messages by the request id
// carried in ctx. Messages without a related request go to the standalone
// stream and are dropped when no such stream is open.
func (t *Transport) Send(ctx context.Context, msg jsonrpc.Message) error {
	related, hasRelated := jsonrpc.RequestIDFromContext(ctx)
	isResponse := msg.Kind() == jsonrpc.KindResponse
	if isResponse {
		related = msg.ID()
		hasRelated = related.IsValid()
	}

	t.mu.Lock()
	sessionID := t.sessionID
	if t.closed {
		t.mu.Unlock()
		return transporterrors.NewTransportError(transporterrors.ErrTransportClosed, sessionID, "")
	}
	if isResponse && !hasRelated {
		t.mu.Unlock()
		return transporterrors.NewTransportError(transporterrors.ErrMissingCorrelationID, sessionID, "")
	}
	if !hasRelated {
		standalone := t.standalone
		t.mu.Unlock()
		if standalone == nil {
			logger.Debugw("dropping server message without an open standalone stream",
				"session_id", sessionID, "method", msg.Method())
			return nil
		}
		return t.write(standalone, sessionID, msg)
	}
	id, ok := t.requestStreams[related]
	rs := t.streams[id]
	t.mu.Unlock()
	if !ok || rs == nil {
		return transporterrors.NewTransportError(transporterrors.ErrUnknownRequest, sessionID, fmt.Sprintf("%v", related.Raw()))
	}

	if err := t.write(rs.sink, sessionID, msg); err != nil {
		return err
	}
	if !isResponse {
		return nil
	}

	t.mu.Lock()
	if cur, ok := t.streams[id]; !ok || cur != rs {
		// Released while we were writing.
		t.mu.Unlock()
		return nil
	}
	t.responses[related] = msg
	complete := true
	for _, rid := range rs.requests {
		if _, answered := t.responses[rid]; !answered {
			complete = false
			break
		}
	}
	if complete {
		t.forgetLocked(rs)
	}
	t.mu.Unlock()

	if complete {
		rs.sink.Close()
	}
	return nil
}

func (t *Transport) write(sink *ssecommon.Stream, sessionID string, msg jsonrpc.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := sink.WriteEvent(ssecommon.NewSSEMessage(ssecommon.EventMessage, string(data))); err != nil {
		if errors.Is(err, ssecommon.ErrStreamClosed) {
			return transporterrors.NewTransportError(transporterrors.ErrUnknownRequest, sessionID, "stream closed")
		}
		return err
	}
	t.observer.MessageSent(sessionID, msg)
	return nil
}

// Close implements types.Transport. It closes every open stream and clears
// all correlation state.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	sinks := make([]*ssecommon.Stream, 0, len(t.streams)+1)
	for _, rs := range t.streams {
		sinks = append(sinks, rs.sink)
	}
	if t.standalone != nil {
		sinks = append(sinks, t.standalone)
	}
	t.streams = make(map[streamID]*responseStream)
	t.requestStreams = make(map[jsonrpc2.ID]streamID)
	t.responses = make(map[jsonrpc2.ID]jsonrpc.Message)
	t.standalone = nil
	callbacks := t.onClose
	t.onClose = nil
	sessionID := t.sessionID
	t.mu.Unlock()

	for _, sink := range sinks {
		sink.Close()
	}
	for _, fn := range callbacks {
		fn()
	}
	t.observer.Closed(sessionID)
	return nil
}

// pendingRequests reports how many request ids are waiting for a response.
func (t *Transport) pendingRequests() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requestStreams)
}
