// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package actor

import (
	"errors"
	"net/http"

	"github.com/stacklok/toolhive-core/httperr"

	"github.com/stacklok/openmcp/pkg/transport/jsonrpc"
	"github.com/stacklok/openmcp/pkg/transport/sessionid"
	"github.com/stacklok/openmcp/pkg/transport/types"
)

// initializedTransport is implemented by transports that only become a
// session after a successful handshake.
type initializedTransport interface {
	Initialized() bool
}

// SessionIDFromRequest returns the session id of r: the sessionId query
// parameter, falling back to the Mcp-Session-Id header.
func SessionIDFromRequest(r *http.Request) string {
	if id := r.URL.Query().Get(sessionid.QueryParam); id != "" {
		return id
	}
	return r.Header.Get(types.SessionIDHeader)
}

// ServeSSE opens the SSE stream of the session named in r and blocks until it
// closes. endpoint is the URL clients POST their messages to.
func (a *Actor) ServeSSE(w http.ResponseWriter, r *http.Request, endpoint string) {
	sessionID := r.URL.Query().Get(sessionid.QueryParam)
	t, err := a.CreateTransportFor(r.Context(), sessionID, types.TransportTypeSSE, endpoint)
	if err != nil {
		a.observer.Error(sessionID, err)
		http.Error(w, err.Error(), httperr.Code(err))
		return
	}
	a.refreshClientConfig(sessionID, r)
	t.ServeHTTP(w, r)
}

// HandleSSEMessage hands a client POST to the SSE transport of its session.
func (a *Actor) HandleSSEMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get(sessionid.QueryParam)
	t, ok := a.GetSession(sessionID)
	if !ok || t.Type() != types.TransportTypeSSE {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if !jsonrpc.PeekInitialize(r, a.limits.MaxBodyBytes) {
		a.refreshClientConfig(sessionID, r)
	}
	t.ServeHTTP(w, r)
}

// ServeStreamable serves a streamable HTTP request. Only an initialize POST
// creates a transport for a session the actor does not hold; the transport is
// dropped again unless the POST initialized it.
func (a *Actor) ServeStreamable(w http.ResponseWriter, r *http.Request) {
	sessionID := SessionIDFromRequest(r)
	isPost := r.Method == http.MethodPost
	isInitialize := isPost && jsonrpc.PeekInitialize(r, a.limits.MaxBodyBytes)

	if t, ok := a.GetSession(sessionID); ok {
		if t.Type() != types.TransportTypeStreamableHTTP {
			writeStreamableError(w, ErrSessionNotFound)
			return
		}
		if isPost && !isInitialize {
			a.refreshClientConfig(sessionID, r)
		}
		t.ServeHTTP(w, r)
		return
	}

	if !isInitialize {
		if r.Header.Get(types.SessionIDHeader) != "" {
			writeStreamableError(w, ErrSessionNotFound)
			return
		}
		jsonrpc.WriteError(w, jsonrpc.NewProtocolError(http.StatusBadRequest, jsonrpc.CodeServerError,
			"Bad Request: Server not initialized"))
		return
	}

	t, err := a.CreateTransportFor(r.Context(), sessionID, types.TransportTypeStreamableHTTP, "")
	if errors.Is(err, ErrSessionExists) {
		// Lost a race with a concurrent POST for the same session.
		a.ServeStreamable(w, r)
		return
	}
	if err != nil {
		a.observer.Error(sessionID, err)
		writeStreamableError(w, err)
		return
	}

	t.ServeHTTP(w, r)

	if it, ok := t.(initializedTransport); ok && !it.Initialized() {
		_ = a.CloseSession(sessionID)
	}
}

func writeStreamableError(w http.ResponseWriter, err error) {
	code := httperr.Code(err)
	rpcCode := jsonrpc.CodeServerError
	switch code {
	case http.StatusNotFound:
		rpcCode = jsonrpc.CodeSessionNotFound
	case http.StatusInternalServerError:
		rpcCode = jsonrpc.CodeInternalError
	}
	jsonrpc.WriteError(w, jsonrpc.NewProtocolError(code, rpcCode, err.Error()))
}
