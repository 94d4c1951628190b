// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package router maps stateless HTTP requests onto session actors.
//
// A request carrying a session id is routed to the actor named inside the id.
// A request without one gets an actor derived from its configuration, or a
// fresh one, and a newly minted session id appended to its query string.
package router

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stacklok/toolhive-core/httperr"

	"github.com/stacklok/openmcp/pkg/actor"
	"github.com/stacklok/openmcp/pkg/directory"
	"github.com/stacklok/openmcp/pkg/logger"
	"github.com/stacklok/openmcp/pkg/transport/jsonrpc"
	"github.com/stacklok/openmcp/pkg/transport/sessionid"
	"github.com/stacklok/openmcp/pkg/transport/ssecommon"
	"github.com/stacklok/openmcp/pkg/transport/streamable"
	"github.com/stacklok/openmcp/pkg/transport/types"
)

// ErrSessionNotValid is returned for a session id that does not decode or
// belongs to another server type.
var ErrSessionNotValid = httperr.WithCode(
	errors.New("session not valid for this server type"),
	http.StatusNotFound,
)

// Option configures a Router.
type Option func(*Router)

// WithCodec sets the session id codec.
func WithCodec(c *sessionid.Codec) Option {
	return func(rt *Router) {
		if c != nil {
			rt.codec = c
		}
	}
}

// Router serves the SSE and streamable HTTP surfaces of every server type
// registered in its directory.
type Router struct {
	dir   *directory.Directory
	codec *sessionid.Codec
}

// New creates a router over dir.
func New(dir *directory.Directory, opts ...Option) *Router {
	rt := &Router{
		dir:   dir,
		codec: sessionid.NewCodec(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Mount registers the routes of every server type on r:
//
//	GET    /{type}/sse
//	GET    /{type}/{actorId}/sse
//	POST   /{type}/{actorId}/messages
//	GET|POST|DELETE /{type}/mcp
func (rt *Router) Mount(r chi.Router) {
	for _, serverType := range rt.dir.ServerTypes() {
		r.Route("/"+serverType, func(r chi.Router) {
			r.Get(ssecommon.HTTPSSEEndpoint, errorHandler(rt.serveSSE(serverType)))
			r.Get("/{actorId}"+ssecommon.HTTPSSEEndpoint, errorHandler(rt.serveSSE(serverType)))
			r.Post("/{actorId}"+ssecommon.HTTPMessagesEndpoint, errorHandler(rt.handleMessage(serverType)))
			r.HandleFunc("/"+streamable.HTTPStreamableHTTPEndpoint, streamableErrorHandler(rt.serveStreamable(serverType)))
		})
	}
}

// Handler returns a chi router with every route mounted.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	rt.Mount(r)
	return r
}

func (rt *Router) serveSSE(serverType string) handlerWithError {
	return func(w http.ResponseWriter, r *http.Request) error {
		a, sessionID, err := rt.route(r, serverType, false)
		if err != nil {
			return err
		}
		defer rt.dir.Release(a)

		endpoint := fmt.Sprintf("%s/%s%s", mountPrefix(r), url.PathEscape(a.ID()), ssecommon.HTTPMessagesEndpoint)
		logger.Debugw("opening SSE stream", "server_type", serverType, "actor_id", a.ID(), "session_id", sessionID)
		a.ServeSSE(w, r, endpoint)
		return nil
	}
}

func (rt *Router) handleMessage(serverType string) handlerWithError {
	return func(w http.ResponseWriter, r *http.Request) error {
		if r.URL.Query().Get(sessionid.QueryParam) == "" {
			return actor.ErrMissingSessionID
		}
		a, _, err := rt.route(r, serverType, false)
		if err != nil {
			return err
		}
		defer rt.dir.Release(a)

		a.HandleSSEMessage(w, r)
		return nil
	}
}

func (rt *Router) serveStreamable(serverType string) handlerWithError {
	return func(w http.ResponseWriter, r *http.Request) error {
		if actor.SessionIDFromRequest(r) == "" {
			if perr := rejectSessionless(w, r); perr != nil {
				jsonrpc.WriteError(w, perr)
				return nil
			}
		}
		a, _, err := rt.route(r, serverType, true)
		if err != nil {
			return err
		}
		defer rt.dir.Release(a)

		a.ServeStreamable(w, r)
		return nil
	}
}

// rejectSessionless answers streamable requests without a session id that
// could never open one, before any actor is created for them. Only a POST
// may carry an initialize request.
func rejectSessionless(w http.ResponseWriter, r *http.Request) *jsonrpc.ProtocolError {
	switch r.Method {
	case http.MethodPost:
		return nil
	case http.MethodGet, http.MethodDelete:
		return jsonrpc.NewProtocolError(http.StatusBadRequest, jsonrpc.CodeServerError,
			"Bad Request: Mcp-Session-Id header is required")
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		return jsonrpc.NewProtocolError(http.StatusMethodNotAllowed, jsonrpc.CodeServerError, "Method not allowed.")
	}
}

// route resolves the actor of r. When r carries no session id, one is
// minted and appended to r's query string.
func (rt *Router) route(r *http.Request, serverType string, streamableSurface bool) (*actor.Actor, string, error) {
	ctx := r.Context()
	query := r.URL.Query()

	sessionID := query.Get(sessionid.QueryParam)
	if sessionID == "" && streamableSurface {
		sessionID = r.Header.Get(types.SessionIDHeader)
	}

	if sessionID != "" {
		payload, err := rt.codec.Decode(sessionID)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrSessionNotValid, err)
		}
		if payload.ServerType != serverType {
			return nil, "", ErrSessionNotValid
		}
		a, err := rt.dir.Resolve(ctx, serverType, payload.ActorID)
		if err != nil {
			return nil, "", err
		}
		return a, sessionID, nil
	}

	cfg := ConfigFromQuery(query)
	actorID := chi.URLParam(r, "actorId")
	if actorID == "" {
		if len(cfg) > 0 {
			id, err := ActorIDForConfig(cfg)
			if err != nil {
				return nil, "", httperr.WithCode(err, http.StatusBadRequest)
			}
			actorID = id
		} else {
			actorID = uuid.NewString()
		}
	}

	a, err := rt.dir.Resolve(ctx, serverType, actorID)
	if err != nil {
		return nil, "", err
	}
	if len(cfg) > 0 {
		if err := rt.dir.SetConfig(ctx, a, cfg); err != nil {
			return nil, "", err
		}
	}

	sessionID, err = rt.codec.Encode(actorID, serverType)
	if err != nil {
		return nil, "", httperr.WithCode(err, http.StatusBadRequest)
	}
	query.Set(sessionid.QueryParam, sessionID)
	r.URL.RawQuery = query.Encode()
	return a, sessionID, nil
}

// mountPrefix returns the request path up to and including /{serverType}, so
// that the announced endpoint survives mounting the router under a sub-path.
func mountPrefix(r *http.Request) string {
	prefix := strings.TrimSuffix(r.URL.Path, ssecommon.HTTPSSEEndpoint)
	if actorID := chi.URLParam(r, "actorId"); actorID != "" {
		prefix = strings.TrimSuffix(prefix, "/"+actorID)
	}
	return prefix
}
