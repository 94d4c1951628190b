// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package jsonrpc classifies JSON-RPC 2.0 messages carried by the MCP
// transports and writes the JSON-RPC error envelopes used at the HTTP edge.
//
// Messages are decoded with golang.org/x/exp/jsonrpc2 and tagged exactly once,
// at parse time, as a request, a notification or a response.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/exp/jsonrpc2"
)

// MethodInitialize is the method name of the MCP initialize request.
const MethodInitialize = "initialize"

var (
	// ErrParse is returned when a payload is not valid JSON or not a valid JSON-RPC message.
	ErrParse = errors.New("parse error")

	// ErrEmptyBatch is returned when a batch contains no messages.
	ErrEmptyBatch = errors.New("empty batch")
)

// Kind tags a message as request, notification or response.
type Kind int

const (
	// KindRequest is a message with a method and an id.
	KindRequest Kind = iota + 1
	// KindNotification is a message with a method and no id.
	KindNotification
	// KindResponse is a message with an id and a result or an error.
	KindResponse
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	case KindResponse:
		return "response"
	default:
		return "unknown"
	}
}

// Message is a classified JSON-RPC message.
type Message struct {
	kind Kind
	msg  jsonrpc2.Message
}

// Wrap classifies a jsonrpc2 message.
func Wrap(m jsonrpc2.Message) Message {
	switch v := m.(type) {
	case *jsonrpc2.Request:
		if v.ID.IsValid() {
			return Message{kind: KindRequest, msg: v}
		}
		return Message{kind: KindNotification, msg: v}
	case *jsonrpc2.Response:
		return Message{kind: KindResponse, msg: v}
	default:
		return Message{}
	}
}

// NewRequest builds a request message.
func NewRequest(id jsonrpc2.ID, method string, params any) (Message, error) {
	call, err := jsonrpc2.NewCall(id, method, params)
	if err != nil {
		return Message{}, err
	}
	return Wrap(call), nil
}

// NewNotification builds a notification message.
func NewNotification(method string, params any) (Message, error) {
	n, err := jsonrpc2.NewNotification(method, params)
	if err != nil {
		return Message{}, err
	}
	return Wrap(n), nil
}

// NewResponse builds a response message carrying either result or rerr.
func NewResponse(id jsonrpc2.ID, result any, rerr error) (Message, error) {
	r, err := jsonrpc2.NewResponse(id, result, rerr)
	if err != nil {
		return Message{}, err
	}
	return Wrap(r), nil
}

// Kind returns the tag assigned at parse time.
func (m Message) Kind() Kind { return m.kind }

// IsZero reports whether m holds no message.
func (m Message) IsZero() bool { return m.msg == nil }

// ID returns the message id; it is invalid for notifications.
func (m Message) ID() jsonrpc2.ID {
	switch v := m.msg.(type) {
	case *jsonrpc2.Request:
		return v.ID
	case *jsonrpc2.Response:
		return v.ID
	default:
		return jsonrpc2.ID{}
	}
}

// Method returns the method name of a request or notification.
func (m Message) Method() string {
	if r, ok := m.msg.(*jsonrpc2.Request); ok {
		return r.Method
	}
	return ""
}

// IsInitialize reports whether m is an initialize request.
func (m Message) IsInitialize() bool {
	return m.kind == KindRequest && m.Method() == MethodInitialize
}

// Raw returns the underlying jsonrpc2 message.
func (m Message) Raw() jsonrpc2.Message { return m.msg }

// Encode serializes the message.
func (m Message) Encode() ([]byte, error) {
	if m.msg == nil {
		return nil, fmt.Errorf("cannot encode empty message")
	}
	return jsonrpc2.EncodeMessage(m.msg)
}

// Decode parses a single JSON-RPC message.
func Decode(data []byte) (Message, error) {
	var version struct {
		JSONRPC string `json:"jsonrpc"`
	}
	if err := json.Unmarshal(data, &version); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if version.JSONRPC != "2.0" {
		return Message{}, fmt.Errorf("%w: jsonrpc version must be \"2.0\"", ErrParse)
	}

	m, err := jsonrpc2.DecodeMessage(data)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrParse, err)
	}
	msg := Wrap(m)
	if msg.IsZero() {
		return Message{}, fmt.Errorf("%w: unsupported message type %T", ErrParse, m)
	}
	return msg, nil
}

// DecodeBatch parses either a single message or a JSON array of messages.
func DecodeBatch(data []byte) ([]Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrParse)
	}
	if trimmed[0] != '[' {
		msg, err := Decode(trimmed)
		if err != nil {
			return nil, err
		}
		return []Message{msg}, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if len(raws) == 0 {
		return nil, ErrEmptyBatch
	}
	msgs := make([]Message, 0, len(raws))
	for i, raw := range raws {
		msg, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("batch element %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

type requestIDKey struct{}

// WithRequestID returns a context carrying the id of the inbound request being handled.
// Transports use it to route messages sent while handling that request.
func WithRequestID(ctx context.Context, id jsonrpc2.ID) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the inbound request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) (jsonrpc2.ID, bool) {
	id, ok := ctx.Value(requestIDKey{}).(jsonrpc2.ID)
	if !ok || !id.IsValid() {
		return jsonrpc2.ID{}, false
	}
	return id, true
}
