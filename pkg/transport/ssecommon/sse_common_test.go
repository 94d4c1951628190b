// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package ssecommon

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSSEMessage(t *testing.T) {
	t.Parallel()

	eventType := "test-event"
	data := "test data"

	msg := NewSSEMessage(eventType, data)

	require.NotNil(t, msg)
	assert.Equal(t, eventType, msg.EventType)
	assert.Equal(t, data, msg.Data)
	assert.Empty(t, msg.ID)
	assert.WithinDuration(t, time.Now(), msg.CreatedAt, time.Second)
}

func TestSSEMessage_ToSSEString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		eventType      string
		data           string
		expectedOutput string
	}{
		{
			name:      "simple message",
			eventType: "message",
			data:      "Hello, World!",
			expectedOutput: "event: message\n" +
				"data: Hello, World!\n" +
				"\n",
		},
		{
			name:      "multiline data",
			eventType: "multiline",
			data:      "Line 1\nLine 2\nLine 3",
			expectedOutput: "event: multiline\n" +
				"data: Line 1\n" +
				"data: Line 2\n" +
				"data: Line 3\n" +
				"\n",
		},
		{
			name:      "empty data",
			eventType: "empty",
			data:      "",
			expectedOutput: "event: empty\n" +
				"data: \n" +
				"\n",
		},
		{
			name:      "data with trailing newline",
			eventType: "trailing",
			data:      "Data with newline\n",
			expectedOutput: "event: trailing\n" +
				"data: Data with newline\n" +
				"data: \n" +
				"\n",
		},
		{
			name:      "JSON data",
			eventType: "json",
			data:      `{"key": "value", "number": 42}`,
			expectedOutput: "event: json\n" +
				`data: {"key": "value", "number": 42}` + "\n" +
				"\n",
		},
		{
			name:      "special characters",
			eventType: "special",
			data:      "Data with: colons, newlines\nand other chars!@#$%",
			expectedOutput: "event: special\n" +
				"data: Data with: colons, newlines\n" +
				"data: and other chars!@#$%\n" +
				"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg := NewSSEMessage(tt.eventType, tt.data)
			result := msg.ToSSEString()

			assert.Equal(t, tt.expectedOutput, result)

			// Verify the format is correct for SSE
			lines := strings.Split(result, "\n")
			assert.True(t, strings.HasPrefix(lines[0], "event: "), "First line should start with 'event: '")

			// Count data lines
			dataLines := 0
			for _, line := range lines {
				if strings.HasPrefix(line, "data: ") {
					dataLines++
				}
			}
			expectedDataLines := len(strings.Split(tt.data, "\n"))
			assert.Equal(t, expectedDataLines, dataLines, "Should have correct number of data lines")

			// Should end with empty line
			assert.Equal(t, "", lines[len(lines)-1], "Should end with empty line")
			assert.Equal(t, "", lines[len(lines)-2], "Should have blank line before final newline")
		})
	}
}

func TestSSEMessage_EdgeCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		eventType string
		data      string
	}{
		{
			name:      "empty event type",
			eventType: "",
			data:      "some data",
		},
		{
			name:      "whitespace event type",
			eventType: "   ",
			data:      "some data",
		},
		{
			name:      "event type with spaces",
			eventType: "my event",
			data:      "some data",
		},
		{
			name:      "very long data",
			eventType: "long",
			data:      strings.Repeat("A", 10000),
		},
		{
			name:      "unicode data",
			eventType: "unicode",
			data:      "Hello ä¸–ç•Œ ðŸŒ Ã©mojis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg := NewSSEMessage(tt.eventType, tt.data)

			assert.Equal(t, tt.eventType, msg.EventType)
			assert.Equal(t, tt.data, msg.Data)

			// Should not panic when converting to SSE string
			result := msg.ToSSEString()
			assert.NotEmpty(t, result)
			assert.Contains(t, result, fmt.Sprintf("event: %s\n", tt.eventType))
		})
	}
}

func TestSSEMessage_WithID(t *testing.T) {
	t.Parallel()

	msg := NewSSEMessage("message", "{}")
	result := msg.WithID("3_0")

	assert.Same(t, msg, result)
	assert.Equal(t, "event: message\nid: 3_0\ndata: {}\n\n", msg.ToSSEString())
}

type nonFlushingWriter struct {
	header http.Header
}

func (w *nonFlushingWriter) Header() http.Header       { return w.header }
func (*nonFlushingWriter) Write(b []byte) (int, error) { return len(b), nil }
func (*nonFlushingWriter) WriteHeader(int)             {}

func TestNewStream_RequiresFlusher(t *testing.T) {
	t.Parallel()

	_, err := NewStream(&nonFlushingWriter{header: http.Header{}})
	assert.ErrorIs(t, err, ErrStreamingUnsupported)
}

func TestStream_OpenWriteClose(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	s, err := NewStream(rec)
	require.NoError(t, err)

	extra := http.Header{}
	extra.Set("Mcp-Session-Id", "abc")
	require.NoError(t, s.Open(extra))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "abc", rec.Header().Get("Mcp-Session-Id"))

	require.NoError(t, s.WriteEvent(NewSSEMessage(EventMessage, `{"a":1}`)))
	require.NoError(t, s.WriteComment("keep-alive"))
	assert.Equal(t, "event: message\ndata: {\"a\":1}\n\n: keep-alive\n\n", rec.Body.String())

	assert.False(t, s.Closed())
	s.Close()
	s.Close()
	assert.True(t, s.Closed())

	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed after Close")
	}

	assert.ErrorIs(t, s.WriteEvent(NewSSEMessage(EventMessage, "late")), ErrStreamClosed)
	assert.ErrorIs(t, s.Open(nil), ErrStreamClosed)
	assert.NotContains(t, rec.Body.String(), "late")
}

func TestStream_ConcurrentWrites(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	s, err := NewStream(rec)
	require.NoError(t, err)
	require.NoError(t, s.Open(nil))

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WriteEvent(NewSSEMessage(EventMessage, fmt.Sprintf("%d", i)))
		}()
	}
	wg.Wait()
	s.Close()

	assert.Equal(t, 20, strings.Count(rec.Body.String(), "event: message\n"))
}
