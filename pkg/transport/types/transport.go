// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package types provides common types and interfaces for the transport package
// used in communication between the client and MCP server.
package types

import (
	"context"
	"net/http"
	"time"

	"github.com/stacklok/openmcp/pkg/transport/errors"
	"github.com/stacklok/openmcp/pkg/transport/jsonrpc"
)

// SessionIDHeader is the header carrying the session id on the streamable HTTP transport.
const SessionIDHeader = "Mcp-Session-Id"

// Middleware is a function that wraps an http.Handler with additional functionality.
type Middleware func(http.Handler) http.Handler

// MessageHandler receives every message a transport accepts from the client.
// For requests, ctx carries the request id (see jsonrpc.RequestIDFromContext)
// so that messages sent with the same ctx are routed back to the right stream.
type MessageHandler func(ctx context.Context, msg jsonrpc.Message)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks -source=transport.go Transport,Observer

// Transport is the server side of one MCP session.
type Transport interface {
	// Type returns the transport type.
	Type() TransportType

	// SessionID returns the session id the transport is bound to.
	SessionID() string

	// SetMessageHandler installs the handler for inbound messages.
	SetMessageHandler(h MessageHandler)

	// OnClose registers fn to run once when the transport closes.
	OnClose(fn func())

	// Send delivers a message to the client.
	Send(ctx context.Context, msg jsonrpc.Message) error

	// Close terminates the transport. Closing twice is a no-op.
	Close() error
}

// Observer receives transport lifecycle events. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	MessageReceived(sessionID string, msg jsonrpc.Message)
	MessageSent(sessionID string, msg jsonrpc.Message)
	Error(sessionID string, err error)
	Closed(sessionID string)
}

// NopObserver ignores all events.
type NopObserver struct{}

// MessageReceived implements Observer.
func (NopObserver) MessageReceived(string, jsonrpc.Message) {}

// MessageSent implements Observer.
func (NopObserver) MessageSent(string, jsonrpc.Message) {}

// Error implements Observer.
func (NopObserver) Error(string, error) {}

// Closed implements Observer.
func (NopObserver) Closed(string) {}

// MultiObserver fans events out to several observers.
type MultiObserver []Observer

// MessageReceived implements Observer.
func (m MultiObserver) MessageReceived(sessionID string, msg jsonrpc.Message) {
	for _, o := range m {
		o.MessageReceived(sessionID, msg)
	}
}

// MessageSent implements Observer.
func (m MultiObserver) MessageSent(sessionID string, msg jsonrpc.Message) {
	for _, o := range m {
		o.MessageSent(sessionID, msg)
	}
}

// Error implements Observer.
func (m MultiObserver) Error(sessionID string, err error) {
	for _, o := range m {
		o.Error(sessionID, err)
	}
}

// Closed implements Observer.
func (m MultiObserver) Closed(sessionID string) {
	for _, o := range m {
		o.Closed(sessionID)
	}
}

// TransportType represents the type of transport to use.
//
//nolint:revive // Intentionally named TransportType despite package name
type TransportType string

const (
	// TransportTypeSSE represents the SSE transport.
	TransportTypeSSE TransportType = "sse"

	// TransportTypeStreamableHTTP represents the streamable HTTP transport.
	TransportTypeStreamableHTTP TransportType = "streamable-http"
)

// String returns the string representation of the transport type.
func (t TransportType) String() string {
	return string(t)
}

// ParseTransportType parses a string into a transport type.
func ParseTransportType(s string) (TransportType, error) {
	switch s {
	case "sse", "SSE":
		return TransportTypeSSE, nil
	case "streamable-http", "STREAMABLE-HTTP":
		return TransportTypeStreamableHTTP, nil
	default:
		return "", errors.ErrUnsupportedTransport
	}
}

// Limits bounds the resources a transport may hold on to.
type Limits struct {
	// MaxBodyBytes caps the size of one POST body.
	MaxBodyBytes int64

	// MaxBatchSize caps the number of messages in one POST.
	MaxBatchSize int

	// ResponseStreamTimeout bounds how long a POST response stream waits for
	// all of its requests to be answered. A negative value disables the bound.
	ResponseStreamTimeout time.Duration

	// KeepAliveInterval is the period of SSE keep-alive comments. A negative value disables them.
	KeepAliveInterval time.Duration
}

const (
	// DefaultMaxBodyBytes is the default POST body limit (4 MiB).
	DefaultMaxBodyBytes int64 = 4 << 20

	// DefaultMaxBatchSize is the default batch size limit.
	DefaultMaxBatchSize = 64

	// DefaultResponseStreamTimeout is the default response stream bound.
	DefaultResponseStreamTimeout = 10 * time.Minute

	// DefaultKeepAliveInterval is the default SSE keep-alive period.
	DefaultKeepAliveInterval = 30 * time.Second
)

// DefaultLimits returns the default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBodyBytes:          DefaultMaxBodyBytes,
		MaxBatchSize:          DefaultMaxBatchSize,
		ResponseStreamTimeout: DefaultResponseStreamTimeout,
		KeepAliveInterval:     DefaultKeepAliveInterval,
	}
}

// WithDefaults fills unset fields with defaults. Negative durations disable the bound.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = d.MaxBodyBytes
	}
	if l.MaxBatchSize <= 0 {
		l.MaxBatchSize = d.MaxBatchSize
	}
	if l.ResponseStreamTimeout == 0 {
		l.ResponseStreamTimeout = d.ResponseStreamTimeout
	}
	if l.KeepAliveInterval == 0 {
		l.KeepAliveInterval = d.KeepAliveInterval
	}
	return l
}
