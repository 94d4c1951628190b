// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package actor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/openmcp/pkg/actor/mocks"
	"github.com/stacklok/openmcp/pkg/transport/jsonrpc"
	"github.com/stacklok/openmcp/pkg/transport/sessionid"
	"github.com/stacklok/openmcp/pkg/transport/types"
)

const (
	testActorID    = "a1"
	testServerType = "echo"
)

func newSessionID(t *testing.T) string {
	t.Helper()
	id, err := sessionid.Encode(testActorID, testServerType)
	require.NoError(t, err)
	return id
}

// echoConnect installs a handler answering every request with the client
// configuration found in its context.
func echoConnect(_ context.Context, tr types.Transport) error {
	tr.SetMessageHandler(func(ctx context.Context, msg jsonrpc.Message) {
		if msg.Kind() != jsonrpc.KindRequest {
			return
		}
		cc, _ := ClientConfigFromContext(ctx)
		resp, err := jsonrpc.NewResponse(msg.ID(), map[string]any{"clientConfig": cc}, nil)
		if err != nil {
			panic(err)
		}
		_ = tr.Send(ctx, resp)
	})
	return nil
}

func newEchoActor(t *testing.T) (*Actor, *int) {
	t.Helper()
	ctrl := gomock.NewController(t)
	server := mocks.NewMockServerHandle(ctrl)
	server.EXPECT().Connect(gomock.Any(), gomock.Any()).DoAndReturn(echoConnect).AnyTimes()
	server.EXPECT().Close().Return(nil).AnyTimes()

	calls := 0
	factory := func(context.Context, Config, string) (ServerHandle, error) {
		calls++
		return server, nil
	}
	return New(testActorID, testServerType, factory), &calls
}

func TestSetConfig(t *testing.T) {
	t.Parallel()

	a := New(testActorID, testServerType, nil)
	assert.Nil(t, a.Config())

	assert.True(t, a.SetConfig(Config{"url": "https://one"}))
	assert.False(t, a.SetConfig(Config{"url": "https://two"}))
	assert.Equal(t, Config{"url": "https://one"}, a.Config())
}

func TestCreateTransportFor(t *testing.T) {
	t.Parallel()

	t.Run("creates the server once", func(t *testing.T) {
		t.Parallel()
		a, calls := newEchoActor(t)

		first, err := a.CreateTransportFor(context.Background(), newSessionID(t), types.TransportTypeSSE, "/messages")
		require.NoError(t, err)
		assert.Equal(t, types.TransportTypeSSE, first.Type())

		second, err := a.CreateTransportFor(context.Background(), newSessionID(t), types.TransportTypeStreamableHTTP, "")
		require.NoError(t, err)
		assert.Equal(t, types.TransportTypeStreamableHTTP, second.Type())

		assert.Equal(t, 1, *calls)
		assert.Len(t, a.Sessions(), 2)
	})

	t.Run("passes the config to the factory", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		server := mocks.NewMockServerHandle(ctrl)
		server.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(nil)

		var got Config
		a := New(testActorID, testServerType, func(_ context.Context, cfg Config, _ string) (ServerHandle, error) {
			got = cfg
			return server, nil
		})
		a.SetConfig(Config{"prefix": "hi"})

		_, err := a.CreateTransportFor(context.Background(), newSessionID(t), types.TransportTypeSSE, "/messages")
		require.NoError(t, err)
		assert.Equal(t, Config{"prefix": "hi"}, got)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		t.Parallel()
		a, _ := newEchoActor(t)
		id := newSessionID(t)

		_, err := a.CreateTransportFor(context.Background(), id, types.TransportTypeSSE, "/messages")
		require.NoError(t, err)
		_, err = a.CreateTransportFor(context.Background(), id, types.TransportTypeSSE, "/messages")
		assert.ErrorIs(t, err, ErrSessionExists)
	})

	t.Run("rejects foreign and missing ids", func(t *testing.T) {
		t.Parallel()
		a, _ := newEchoActor(t)

		foreign, err := sessionid.Encode("other", testServerType)
		require.NoError(t, err)
		_, err = a.CreateTransportFor(context.Background(), foreign, types.TransportTypeSSE, "/messages")
		assert.ErrorIs(t, err, ErrForeignSession)

		_, err = a.CreateTransportFor(context.Background(), "", types.TransportTypeSSE, "/messages")
		assert.ErrorIs(t, err, ErrMissingSessionID)
	})

	t.Run("factory failure leaves no session", func(t *testing.T) {
		t.Parallel()
		a := New(testActorID, testServerType, func(context.Context, Config, string) (ServerHandle, error) {
			return nil, errors.New("boom")
		})

		_, err := a.CreateTransportFor(context.Background(), newSessionID(t), types.TransportTypeSSE, "/messages")
		require.Error(t, err)
		assert.Empty(t, a.Sessions())
	})

	t.Run("closing the transport removes the session", func(t *testing.T) {
		t.Parallel()
		a, _ := newEchoActor(t)
		id := newSessionID(t)

		tr, err := a.CreateTransportFor(context.Background(), id, types.TransportTypeSSE, "/messages")
		require.NoError(t, err)
		require.NoError(t, tr.Close())

		_, ok := a.GetSession(id)
		assert.False(t, ok)
	})
}

func TestCloseSession(t *testing.T) {
	t.Parallel()

	a, _ := newEchoActor(t)
	id := newSessionID(t)
	_, err := a.CreateTransportFor(context.Background(), id, types.TransportTypeStreamableHTTP, "")
	require.NoError(t, err)

	require.NoError(t, a.CloseSession(id))
	assert.Empty(t, a.Sessions())
	assert.ErrorIs(t, a.CloseSession(id), ErrSessionNotFound)
}

func TestClientConfig(t *testing.T) {
	t.Parallel()

	a, _ := newEchoActor(t)
	id := newSessionID(t)
	assert.ErrorIs(t, a.SetClientConfig(id, ClientConfig{"k": "v"}), ErrSessionNotFound)

	_, err := a.CreateTransportFor(context.Background(), id, types.TransportTypeSSE, "/messages")
	require.NoError(t, err)
	require.NoError(t, a.SetClientConfig(id, ClientConfig{"k": "v"}))
	assert.Equal(t, ClientConfig{"k": "v"}, a.ClientConfig(id))
	assert.Nil(t, a.Config(), "client config never touches the base config")
}

func TestHeaderClientConfig(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	assert.Nil(t, HeaderClientConfig(r))

	r.Header.Set("X-Mcp-Client-Api-Key", "secret")
	r.Header.Set("x-mcp-client-region", "eu")
	r.Header.Set("X-Other", "ignored")
	assert.Equal(t, ClientConfig{"api-key": "secret", "region": "eu"}, HeaderClientConfig(r))
}

func streamablePost(body, sessionID string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/echo/mcp?sessionId="+sessionID, strings.NewReader(body))
	r.Header.Set("Accept", "application/json, text/event-stream")
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestServeStreamable(t *testing.T) {
	t.Parallel()

	t.Run("initialize then request with client config", func(t *testing.T) {
		t.Parallel()
		a, _ := newEchoActor(t)
		id := newSessionID(t)

		initReq := streamablePost(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`, id)
		initReq.Header.Set("X-Mcp-Client-Token", "ignored")
		rec := httptest.NewRecorder()
		a.ServeStreamable(rec, initReq)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, id, rec.Header().Get(types.SessionIDHeader))
		assert.Equal(t, []string{id}, a.Sessions())
		assert.Nil(t, a.ClientConfig(id), "the initializing POST does not set client config")

		list := func(token string) *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/echo/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
			req.Header.Set("Accept", "application/json, text/event-stream")
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(types.SessionIDHeader, id)
			if token != "" {
				req.Header.Set("X-Mcp-Client-Token", token)
			}
			return req
		}

		rec = httptest.NewRecorder()
		a.ServeStreamable(rec, list("abc"))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"token":"abc"`)

		rec = httptest.NewRecorder()
		a.ServeStreamable(rec, list(""))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"clientConfig":null`)
		assert.Nil(t, a.ClientConfig(id), "dropped headers clear the client config")
	})

	t.Run("non-initialize POST with unknown session header", func(t *testing.T) {
		t.Parallel()
		a, _ := newEchoActor(t)

		req := httptest.NewRequest(http.MethodPost, "/echo/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
		req.Header.Set("Accept", "application/json, text/event-stream")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(types.SessionIDHeader, newSessionID(t))

		rec := httptest.NewRecorder()
		a.ServeStreamable(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, a.Sessions())

		var env struct {
			Error struct {
				Code int `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.Equal(t, jsonrpc.CodeSessionNotFound, env.Error.Code)
	})

	t.Run("non-initialize POST for unknown session is dropped", func(t *testing.T) {
		t.Parallel()
		a, _ := newEchoActor(t)

		rec := httptest.NewRecorder()
		a.ServeStreamable(rec, streamablePost(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`, newSessionID(t)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, a.Sessions())
	})

	t.Run("GET for unknown session", func(t *testing.T) {
		t.Parallel()
		a, _ := newEchoActor(t)

		req := httptest.NewRequest(http.MethodGet, "/echo/mcp", nil)
		rec := httptest.NewRecorder()
		a.ServeStreamable(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		req.Header.Set(types.SessionIDHeader, newSessionID(t))
		rec = httptest.NewRecorder()
		a.ServeStreamable(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var env struct {
			Error struct {
				Code int `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		assert.Equal(t, jsonrpc.CodeSessionNotFound, env.Error.Code)
	})
}

func TestHandleSSEMessage(t *testing.T) {
	t.Parallel()

	a, _ := newEchoActor(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo/a1/messages?sessionId=unknown", strings.NewReader(`{}`))
	a.HandleSSEMessage(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id := newSessionID(t)
	tr, err := a.CreateTransportFor(context.Background(), id, types.TransportTypeSSE, "/echo/a1/messages")
	require.NoError(t, err)

	stream := httptest.NewRecorder()
	require.NoError(t, tr.(interface{ Start(http.ResponseWriter) error }).Start(stream))

	req = httptest.NewRequest(http.MethodPost, "/echo/a1/messages?sessionId="+id,
		strings.NewReader(`{"jsonrpc":"2.0","id":7,"method":"tools/list"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Mcp-Client-Token", "xyz")
	rec = httptest.NewRecorder()
	a.HandleSSEMessage(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, stream.Body.String(), "event: endpoint\ndata: /echo/a1/messages?sessionId="+id)
	assert.Contains(t, stream.Body.String(), `"token":"xyz"`)
}

func TestClose(t *testing.T) {
	t.Parallel()

	a, _ := newEchoActor(t)
	_, err := a.CreateTransportFor(context.Background(), newSessionID(t), types.TransportTypeSSE, "/messages")
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.Empty(t, a.Sessions())
}

func TestOnIdle(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	server := mocks.NewMockServerHandle(ctrl)
	server.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	factory := func(context.Context, Config, string) (ServerHandle, error) { return server, nil }

	var idle []*Actor
	a := New(testActorID, testServerType, factory, WithOnIdle(func(a *Actor) { idle = append(idle, a) }))
	assert.True(t, a.Idle())

	id := newSessionID(t)
	_, err := a.CreateTransportFor(context.Background(), id, types.TransportTypeStreamableHTTP, "")
	require.NoError(t, err)
	assert.False(t, a.Idle())
	assert.Empty(t, idle)

	require.NoError(t, a.CloseSession(id))
	assert.Equal(t, []*Actor{a}, idle)

	a.SetConfig(Config{"url": "one"})
	assert.False(t, a.Idle(), "a configured actor is never idle")
}
