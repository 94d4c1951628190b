// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package toolserver binds mcp-go servers to session transports and provides
// the built-in server implementations.
package toolserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/stacklok/openmcp/pkg/actor"
	"github.com/stacklok/openmcp/pkg/logger"
	"github.com/stacklok/openmcp/pkg/transport/jsonrpc"
	"github.com/stacklok/openmcp/pkg/transport/types"
)

// Server adapts an mcp-go server to actor.ServerHandle.
type Server struct {
	mcp *server.MCPServer
}

var _ actor.ServerHandle = (*Server)(nil)

// New wraps mcpServer.
func New(mcpServer *server.MCPServer) *Server {
	return &Server{mcp: mcpServer}
}

// Connect routes every client request and notification of t through the
// mcp-go server and sends the result back on t.
func (s *Server) Connect(_ context.Context, t types.Transport) error {
	t.SetMessageHandler(func(ctx context.Context, msg jsonrpc.Message) {
		// The server never issues requests, so there is nothing to correlate.
		if msg.Kind() == jsonrpc.KindResponse {
			return
		}
		if err := s.handle(ctx, t, msg); err != nil {
			logger.Debugw("failed to handle message",
				"session_id", t.SessionID(), "method", msg.Method(), "error", err)
		}
	})
	return nil
}

func (s *Server) handle(ctx context.Context, t types.Transport, msg jsonrpc.Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}

	result := s.mcp.HandleMessage(ctx, raw)
	if result == nil {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	out, err := jsonrpc.Decode(data)
	if err != nil {
		return fmt.Errorf("server produced an invalid message: %w", err)
	}
	return t.Send(ctx, out)
}

// Close implements actor.ServerHandle.
func (*Server) Close() error {
	return nil
}
