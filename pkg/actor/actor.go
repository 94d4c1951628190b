// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package actor implements the per-session actor: the long-lived owner of one
// actor id's configuration, its tool server handle and the live transports of
// every session bound to it.
package actor

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"

	"github.com/stacklok/toolhive-core/httperr"

	"github.com/stacklok/openmcp/pkg/logger"
	transporterrors "github.com/stacklok/openmcp/pkg/transport/errors"
	"github.com/stacklok/openmcp/pkg/transport/jsonrpc"
	"github.com/stacklok/openmcp/pkg/transport/sessionid"
	"github.com/stacklok/openmcp/pkg/transport/sse"
	"github.com/stacklok/openmcp/pkg/transport/streamable"
	"github.com/stacklok/openmcp/pkg/transport/types"
)

//go:generate mockgen -destination=mocks/mock_actor.go -package=mocks -source=actor.go ServerHandle

var (
	// ErrSessionExists is returned when a transport is created for a session that already has one.
	ErrSessionExists = httperr.WithCode(errors.New("session already exists"), http.StatusConflict)

	// ErrSessionNotFound is returned when a request names a session this actor does not hold.
	ErrSessionNotFound = httperr.WithCode(errors.New("session not found"), http.StatusNotFound)

	// ErrMissingSessionID is returned when a request reaches the actor without a session id.
	ErrMissingSessionID = httperr.WithCode(errors.New("missing session id"), http.StatusBadRequest)

	// ErrForeignSession is returned for a session id minted for another actor or server type.
	ErrForeignSession = httperr.WithCode(errors.New("session does not belong to this actor"), http.StatusNotFound)
)

// Config is the actor's base configuration, a JSON object.
type Config map[string]any

// ServerHandle is the tool server bound to an actor. It is created once per
// actor and connected to every transport the actor creates.
type ServerHandle interface {
	// Connect binds message dispatch for t, typically through t.SetMessageHandler.
	Connect(ctx context.Context, t types.Transport) error
	// Close releases the server.
	Close() error
}

// Factory builds the tool server handle for an actor.
type Factory func(ctx context.Context, cfg Config, sessionID string) (ServerHandle, error)

// Transport is a session transport that serves its own HTTP requests.
type Transport interface {
	types.Transport
	http.Handler
}

type session struct {
	transport    Transport
	clientConfig ClientConfig
}

// Option configures an Actor.
type Option func(*Actor)

// WithObserver sets the observer passed to every transport.
func WithObserver(o types.Observer) Option {
	return func(a *Actor) {
		if o != nil {
			a.observer = o
		}
	}
}

// WithLimits sets the limits passed to every transport.
func WithLimits(l types.Limits) Option {
	return func(a *Actor) {
		a.limits = l.WithDefaults()
	}
}

// WithClientConfigExtractor replaces HeaderClientConfig.
func WithClientConfigExtractor(fn ClientConfigExtractor) Option {
	return func(a *Actor) {
		if fn != nil {
			a.extractClientConfig = fn
		}
	}
}

// WithCodec sets the codec session ids are checked against.
func WithCodec(c *sessionid.Codec) Option {
	return func(a *Actor) {
		if c != nil {
			a.codec = c
		}
	}
}

// WithOnIdle sets fn to run whenever a session is removed and the actor is
// left idle, see Idle.
func WithOnIdle(fn func(*Actor)) Option {
	return func(a *Actor) {
		a.onIdle = fn
	}
}

// Actor owns one actor id. All of its state is guarded by a single mutex;
// different actors share nothing.
type Actor struct {
	id                  string
	serverType          string
	factory             Factory
	observer            types.Observer
	limits              types.Limits
	extractClientConfig ClientConfigExtractor
	codec               *sessionid.Codec
	onIdle              func(*Actor)

	mu        sync.Mutex
	config    Config
	configSet bool
	sessions  map[string]*session

	serverMu sync.Mutex
	server   ServerHandle
}

// New creates an actor. The tool server is not built until the first transport is created.
func New(id, serverType string, factory Factory, opts ...Option) *Actor {
	a := &Actor{
		id:                  id,
		serverType:          serverType,
		factory:             factory,
		observer:            types.NopObserver{},
		limits:              types.DefaultLimits(),
		extractClientConfig: HeaderClientConfig,
		codec:               sessionid.NewCodec(),
		sessions:            make(map[string]*session),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the actor id.
func (a *Actor) ID() string { return a.id }

// ServerType returns the server type the actor serves.
func (a *Actor) ServerType() string { return a.serverType }

// SetConfig sets the base configuration. Only the first call has an effect;
// it reports whether cfg was applied.
func (a *Actor) SetConfig(cfg Config) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.configSet {
		return false
	}
	a.config = cfg
	a.configSet = true
	return true
}

// Config returns the base configuration, or nil when none was set.
func (a *Actor) Config() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// serverHandle returns the tool server, building it on first use.
func (a *Actor) serverHandle(ctx context.Context, sessionID string) (ServerHandle, error) {
	a.serverMu.Lock()
	defer a.serverMu.Unlock()
	if a.server != nil {
		return a.server, nil
	}
	if a.factory == nil {
		return nil, fmt.Errorf("no server factory for server type %q", a.serverType)
	}
	server, err := a.factory(ctx, a.Config(), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s server: %w", a.serverType, err)
	}
	a.server = server
	return server, nil
}

// CreateTransportFor creates the transport of kind for sessionID, connects it
// to the tool server and registers it. The session is removed again when the
// transport closes. endpoint is the POST URL announced to SSE clients.
func (a *Actor) CreateTransportFor(
	ctx context.Context, sessionID string, kind types.TransportType, endpoint string,
) (Transport, error) {
	if sessionID == "" {
		return nil, ErrMissingSessionID
	}
	if !a.codec.IsValid(sessionID, a.id, a.serverType) {
		return nil, ErrForeignSession
	}

	var t Transport
	switch kind {
	case types.TransportTypeSSE:
		t = sse.New(endpoint, sessionID, sse.WithObserver(a.observer), sse.WithLimits(a.limits))
	case types.TransportTypeStreamableHTTP:
		t = streamable.New(
			streamable.WithSessionIDGenerator(func() string { return sessionID }),
			streamable.WithObserver(a.observer),
			streamable.WithLimits(a.limits),
		)
	default:
		return nil, fmt.Errorf("cannot create transport %q: %w", kind, transporterrors.ErrUnsupportedTransport)
	}

	a.mu.Lock()
	if _, exists := a.sessions[sessionID]; exists {
		a.mu.Unlock()
		return nil, ErrSessionExists
	}
	a.sessions[sessionID] = &session{transport: t}
	a.mu.Unlock()

	server, err := a.serverHandle(ctx, sessionID)
	if err == nil {
		err = server.Connect(ctx, &boundTransport{Transport: t, actor: a, sessionID: sessionID})
	}
	if err != nil {
		a.removeSession(sessionID, t)
		return nil, err
	}

	t.OnClose(func() { a.removeSession(sessionID, t) })
	logger.Debugw("created transport", "actor_id", a.id, "session_id", sessionID, "transport", kind.String())
	return t, nil
}

func (a *Actor) removeSession(sessionID string, t Transport) {
	a.mu.Lock()
	s, ok := a.sessions[sessionID]
	removed := ok && s.transport == t
	if removed {
		delete(a.sessions, sessionID)
	}
	a.mu.Unlock()

	if removed {
		a.notifyIfIdle()
	}
}

// Idle reports whether the actor has neither a configuration nor a session.
// Nothing can address an idle actor except a session id it minted earlier.
func (a *Actor) Idle() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.configSet && len(a.sessions) == 0
}

func (a *Actor) notifyIfIdle() {
	if a.onIdle != nil && a.Idle() {
		a.onIdle(a)
	}
}

// GetSession returns the transport of sessionID.
func (a *Actor) GetSession(sessionID string) (Transport, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return s.transport, true
}

// CloseSession removes sessionID and closes its transport.
func (a *Actor) CloseSession(sessionID string) error {
	a.mu.Lock()
	s, ok := a.sessions[sessionID]
	if ok {
		delete(a.sessions, sessionID)
	}
	a.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	err := s.transport.Close()
	a.notifyIfIdle()
	return err
}

// Sessions returns the ids of the live sessions, sorted.
func (a *Actor) Sessions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Sorted(maps.Keys(a.sessions))
}

// SetClientConfig replaces the client configuration of sessionID.
func (a *Actor) SetClientConfig(sessionID string, cc ClientConfig) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.clientConfig = cc
	return nil
}

// ClientConfig returns the client configuration of sessionID.
func (a *Actor) ClientConfig(sessionID string) ClientConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.sessions[sessionID]; ok {
		return s.clientConfig
	}
	return nil
}

// Close closes every session and the tool server.
func (a *Actor) Close() error {
	a.mu.Lock()
	sessions := a.sessions
	a.sessions = make(map[string]*session)
	a.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		errs = append(errs, s.transport.Close())
	}

	a.serverMu.Lock()
	if a.server != nil {
		errs = append(errs, a.server.Close())
		a.server = nil
	}
	a.serverMu.Unlock()
	return errors.Join(errs...)
}

// refreshClientConfig replaces the client configuration of sessionID with the
// one carried by r, clearing it when r carries none.
func (a *Actor) refreshClientConfig(sessionID string, r *http.Request) {
	_ = a.SetClientConfig(sessionID, a.extractClientConfig(r))
}

// boundTransport injects the session's client configuration into the context
// of every message handed to the tool server.
type boundTransport struct {
	Transport
	actor     *Actor
	sessionID string
}

func (b *boundTransport) SetMessageHandler(h types.MessageHandler) {
	if h == nil {
		b.Transport.SetMessageHandler(nil)
		return
	}
	b.Transport.SetMessageHandler(func(ctx context.Context, msg jsonrpc.Message) {
		if cc := b.actor.ClientConfig(b.sessionID); cc != nil {
			ctx = WithClientConfig(ctx, cc)
		}
		h(ctx, msg)
	})
}
