// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/openmcp/pkg/actor"
	"github.com/stacklok/openmcp/pkg/directory"
	"github.com/stacklok/openmcp/pkg/transport/jsonrpc"
	"github.com/stacklok/openmcp/pkg/transport/sessionid"
	"github.com/stacklok/openmcp/pkg/transport/types"
)

const (
	initializeRequest = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`
	listRequest       = `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`
)

type echoServer struct{}

func (echoServer) Connect(_ context.Context, t types.Transport) error {
	t.SetMessageHandler(func(ctx context.Context, msg jsonrpc.Message) {
		if msg.Kind() != jsonrpc.KindRequest {
			return
		}
		resp, err := jsonrpc.NewResponse(msg.ID(), map[string]string{"method": msg.Method()}, nil)
		if err != nil {
			panic(err)
		}
		_ = t.Send(ctx, resp)
	})
	return nil
}

func (echoServer) Close() error { return nil }

func echoFactory(context.Context, actor.Config, string) (actor.ServerHandle, error) {
	return echoServer{}, nil
}

func newRouter() (*Router, *directory.Directory) {
	dir := directory.New(map[string]actor.Factory{"openapi": echoFactory, "echo": echoFactory})
	return New(dir), dir
}

func streamablePost(target, body, sessionID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(types.SessionIDHeader, sessionID)
	}
	return req
}

func TestOpenAPIScenario(t *testing.T) {
	t.Parallel()

	rt, dir := newRouter()
	h := rt.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, streamablePost("/openapi/mcp?url=X", initializeRequest, ""))
	require.Equal(t, http.StatusOK, rec.Code)

	sessionID := rec.Header().Get(types.SessionIDHeader)
	require.NotEmpty(t, sessionID)
	payload, err := sessionid.Decode(sessionID)
	require.NoError(t, err)
	assert.Equal(t, "openapi", payload.ServerType)

	wantActorID, err := ActorIDForConfig(actor.Config{"url": "X"})
	require.NoError(t, err)
	assert.Equal(t, wantActorID, payload.ActorID)

	a, ok := dir.Get("openapi", payload.ActorID)
	require.True(t, ok)
	assert.Equal(t, actor.Config{"url": "X"}, a.Config())

	// Replaying with the session id and a different url reaches the same
	// actor and leaves its configuration alone.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, streamablePost("/openapi/mcp?url=Y", listRequest, sessionID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tools/list")

	assert.Equal(t, 1, dir.Len())
	assert.Equal(t, actor.Config{"url": "X"}, a.Config())
}

func TestSameConfigSharesActor(t *testing.T) {
	t.Parallel()

	rt, dir := newRouter()
	h := rt.Handler()

	var sessions []string
	for range 2 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, streamablePost("/echo/mcp?prefix=hi&tag=a&tag=b", initializeRequest, ""))
		require.Equal(t, http.StatusOK, rec.Code)
		sessions = append(sessions, rec.Header().Get(types.SessionIDHeader))
	}

	assert.NotEqual(t, sessions[0], sessions[1])
	assert.Equal(t, 1, dir.Len())

	first, err := sessionid.Decode(sessions[0])
	require.NoError(t, err)
	a, ok := dir.Get("echo", first.ActorID)
	require.True(t, ok)
	assert.Len(t, a.Sessions(), 2)
	assert.Equal(t, actor.Config{"prefix": "hi", "tag": []any{"a", "b"}}, a.Config())
}

func TestNoConfigGetsFreshActor(t *testing.T) {
	t.Parallel()

	rt, dir := newRouter()
	h := rt.Handler()

	for range 2 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, streamablePost("/echo/mcp", initializeRequest, ""))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 2, dir.Len())
}

func TestRequestsWithoutSessionLeaveNoActor(t *testing.T) {
	t.Parallel()

	stale, err := sessionid.Encode("gone", "echo")
	require.NoError(t, err)

	badAccept := streamablePost("/echo/mcp", initializeRequest, "")
	badAccept.Header.Set("Accept", "application/json")

	tests := []struct {
		name string
		req  *http.Request
		code int
	}{
		{"GET without session", httptest.NewRequest(http.MethodGet, "/echo/mcp", nil), http.StatusBadRequest},
		{"DELETE without session", httptest.NewRequest(http.MethodDelete, "/echo/mcp", nil), http.StatusBadRequest},
		{"PUT", httptest.NewRequest(http.MethodPut, "/echo/mcp", nil), http.StatusMethodNotAllowed},
		{"POST before initialize", streamablePost("/echo/mcp", listRequest, ""), http.StatusBadRequest},
		{"POST stale session", streamablePost("/echo/mcp", listRequest, stale), http.StatusNotFound},
		{"initialize rejected by transport", badAccept, http.StatusNotAcceptable},
		{"SSE message without session", httptest.NewRequest(http.MethodPost, "/echo/a1/messages",
			strings.NewReader(listRequest)), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rt, dir := newRouter()

			rec := httptest.NewRecorder()
			rt.Handler().ServeHTTP(rec, tt.req)
			assert.Equal(t, tt.code, rec.Code)
			assert.Zero(t, dir.Len())
		})
	}
}

func TestDeletedSessionReleasesActor(t *testing.T) {
	t.Parallel()

	rt, dir := newRouter()
	h := rt.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, streamablePost("/echo/mcp", initializeRequest, ""))
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get(types.SessionIDHeader)
	assert.Equal(t, 1, dir.Len())

	req := httptest.NewRequest(http.MethodDelete, "/echo/mcp", nil)
	req.Header.Set(types.SessionIDHeader, sessionID)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, dir.Len())
}

func TestInvalidSession(t *testing.T) {
	t.Parallel()

	otherType, err := sessionid.Encode("a1", "echo")
	require.NoError(t, err)

	tests := []struct {
		name      string
		sessionID string
	}{
		{"undecodable", "garbage"},
		{"other server type", otherType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rt, _ := newRouter()
			h := rt.Handler()

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost,
				"/openapi/a1/messages?sessionId="+url.QueryEscape(tt.sessionID), strings.NewReader(listRequest))
			req.Header.Set("Content-Type", "application/json")
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "session not valid for this server type\n", rec.Body.String())

			rec = httptest.NewRecorder()
			h.ServeHTTP(rec, streamablePost("/openapi/mcp", listRequest, tt.sessionID))
			assert.Equal(t, http.StatusNotFound, rec.Code)

			var env struct {
				Error struct {
					Code    int    `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, jsonrpc.CodeSessionNotFound, env.Error.Code)
			assert.Equal(t, "session not valid for this server type", env.Error.Message)
		})
	}
}

func TestSSERoundTrip(t *testing.T) {
	t.Parallel()

	rt, _ := newRouter()
	srv := httptest.NewServer(rt.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/openapi/sse?url=X", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: endpoint\n", line)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	endpoint := strings.TrimSpace(strings.TrimPrefix(line, "data: "))

	actorID, err := ActorIDForConfig(actor.Config{"url": "X"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(endpoint, "/openapi/"+actorID+"/messages?sessionId=openmcp_"), endpoint)

	post, err := http.Post(srv.URL+endpoint, "application/json", strings.NewReader(listRequest))
	require.NoError(t, err)
	_ = post.Body.Close()
	assert.Equal(t, http.StatusAccepted, post.StatusCode)

	// Skip the blank line closing the endpoint event.
	_, err = reader.ReadString('\n')
	require.NoError(t, err)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: message\n", line)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "tools/list")
}

func TestConfigFromQuery(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ConfigFromQuery(url.Values{"sessionId": {"x"}}))
	assert.Equal(t,
		actor.Config{"url": "X", "tag": []any{"a", "b"}},
		ConfigFromQuery(url.Values{"sessionId": {"x"}, "url": {"X"}, "tag": {"a", "b"}}),
	)
}

func TestActorIDForConfig(t *testing.T) {
	t.Parallel()

	a, err := ActorIDForConfig(actor.Config{"a": "1", "b": map[string]any{"y": 2, "x": 1}})
	require.NoError(t, err)
	b, err := ActorIDForConfig(actor.Config{"b": map[string]any{"x": 1, "y": 2}, "a": "1"})
	require.NoError(t, err)
	c, err := ActorIDForConfig(actor.Config{"a": "2"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
