// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ssecommon provides Server-Sent Events framing and the stream sink
// shared by the SSE and streamable HTTP transports.
package ssecommon

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// HTTPSSEEndpoint is the path suffix that opens an SSE stream.
	HTTPSSEEndpoint = "/sse"

	// HTTPMessagesEndpoint is the path suffix receiving SSE client messages.
	HTTPMessagesEndpoint = "/messages"

	// EventEndpoint announces the POST endpoint to SSE clients.
	EventEndpoint = "endpoint"

	// EventMessage carries a JSON-RPC message.
	EventMessage = "message"
)

var (
	// ErrStreamClosed is returned when writing to a closed stream.
	ErrStreamClosed = errors.New("stream closed")

	// ErrStreamingUnsupported is returned when the response writer cannot flush.
	ErrStreamingUnsupported = errors.New("streaming not supported")
)

// SSEMessage represents a Server-Sent Event.
type SSEMessage struct {
	EventType string
	Data      string
	ID        string
	CreatedAt time.Time
}

// NewSSEMessage creates a new SSE message.
func NewSSEMessage(eventType, data string) *SSEMessage {
	return &SSEMessage{
		EventType: eventType,
		Data:      data,
		CreatedAt: time.Now(),
	}
}

// WithID sets the event id.
func (m *SSEMessage) WithID(id string) *SSEMessage {
	m.ID = id
	return m
}

// ToSSEString converts the message to the SSE wire format.
// Multi-line data is split into one data field per line.
func (m *SSEMessage) ToSSEString() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "event: %s\n", m.EventType)
	if m.ID != "" {
		fmt.Fprintf(&sb, "id: %s\n", m.ID)
	}
	for _, line := range strings.Split(m.Data, "\n") {
		fmt.Fprintf(&sb, "data: %s\n", line)
	}
	sb.WriteString("\n")
	return sb.String()
}

// Stream is an outbound event-stream sink over an HTTP response.
//
// Writes are serialized and refused once the stream is closed, so the owning
// HTTP handler may return as soon as Close has been called.
type Stream struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewStream wraps w. It fails when w does not support flushing.
func NewStream(w http.ResponseWriter) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &Stream{
		w:       w,
		flusher: flusher,
		done:    make(chan struct{}),
	}, nil
}

// Open writes the event-stream headers plus any extra headers and flushes them.
func (s *Stream) Open(extra http.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	for k, vs := range extra {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
	return nil
}

// WriteEvent writes one event and flushes it.
func (s *Stream) WriteEvent(msg *SSEMessage) error {
	return s.write(msg.ToSSEString())
}

// WriteComment writes an SSE comment line, used for keep-alives.
func (s *Stream) WriteComment(text string) error {
	return s.write(": " + text + "\n\n")
}

func (s *Stream) write(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	if _, err := fmt.Fprint(s.w, payload); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Close marks the stream closed and releases whoever waits on Done.
// It is safe to call more than once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
}

// Done is closed once the stream is closed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether Close has been called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
