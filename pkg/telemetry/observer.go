// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/stacklok/openmcp/pkg/logger"
	"github.com/stacklok/openmcp/pkg/transport/jsonrpc"
	"github.com/stacklok/openmcp/pkg/transport/sessionid"
	"github.com/stacklok/openmcp/pkg/transport/types"
)

const (
	// instrumentationName is the name of this instrumentation package
	instrumentationName = "github.com/stacklok/openmcp/pkg/telemetry"

	unknownServerType = "unknown"
)

// SessionDurationBuckets are the histogram bucket boundaries, in seconds, of
// the session duration metric.
var SessionDurationBuckets = []float64{
	1, 5, 10, 30, 60, 300, 600, 1800, 3600, 7200, 21600, 86400,
}

// MetricsObserver records transport events as OpenTelemetry metrics.
type MetricsObserver struct {
	codec *sessionid.Codec

	messages        metric.Int64Counter
	errors          metric.Int64Counter
	activeSessions  metric.Int64UpDownCounter
	sessionDuration metric.Float64Histogram

	mu       sync.Mutex
	sessions map[string]time.Time
}

var _ types.Observer = (*MetricsObserver)(nil)

// NewMetricsObserver creates an observer recording to meterProvider. codec
// decodes the server type of each session id; nil selects the default codec.
func NewMetricsObserver(meterProvider metric.MeterProvider, codec *sessionid.Codec) *MetricsObserver {
	if codec == nil {
		codec = sessionid.NewCodec()
	}
	meter := meterProvider.Meter(instrumentationName)

	messages, _ := meter.Int64Counter(
		"openmcp_messages", // The exporter adds the _total suffix automatically
		metric.WithDescription("Total number of JSON-RPC messages handled by session transports"),
	)
	errs, _ := meter.Int64Counter(
		"openmcp_transport_errors",
		metric.WithDescription("Total number of session transport errors"),
	)
	activeSessions, _ := meter.Int64UpDownCounter(
		"openmcp_active_sessions",
		metric.WithDescription("Number of sessions that exchanged at least one message and are not closed"),
	)
	sessionDuration, _ := meter.Float64Histogram(
		"openmcp_session_duration",
		metric.WithDescription("Duration of MCP sessions"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(SessionDurationBuckets...),
	)

	return &MetricsObserver{
		codec:           codec,
		messages:        messages,
		errors:          errs,
		activeSessions:  activeSessions,
		sessionDuration: sessionDuration,
		sessions:        make(map[string]time.Time),
	}
}

// MessageReceived implements types.Observer.
func (o *MetricsObserver) MessageReceived(sessionID string, msg jsonrpc.Message) {
	serverType := o.serverType(sessionID)
	o.track(sessionID, serverType)
	o.recordMessage(serverType, "received", msg)
}

// MessageSent implements types.Observer.
func (o *MetricsObserver) MessageSent(sessionID string, msg jsonrpc.Message) {
	o.recordMessage(o.serverType(sessionID), "sent", msg)
}

// Error implements types.Observer.
func (o *MetricsObserver) Error(sessionID string, _ error) {
	o.errors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("server_type", o.serverType(sessionID))))
}

// Closed implements types.Observer.
func (o *MetricsObserver) Closed(sessionID string) {
	o.mu.Lock()
	start, ok := o.sessions[sessionID]
	delete(o.sessions, sessionID)
	o.mu.Unlock()
	if !ok {
		return
	}

	attrs := metric.WithAttributes(attribute.String("server_type", o.serverType(sessionID)))
	ctx := context.Background()
	o.activeSessions.Add(ctx, -1, attrs)
	o.sessionDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

func (o *MetricsObserver) track(sessionID, serverType string) {
	if sessionID == "" {
		return
	}
	o.mu.Lock()
	_, seen := o.sessions[sessionID]
	if !seen {
		o.sessions[sessionID] = time.Now()
	}
	o.mu.Unlock()
	if !seen {
		o.activeSessions.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("server_type", serverType)))
	}
}

func (o *MetricsObserver) recordMessage(serverType, direction string, msg jsonrpc.Message) {
	attrs := []attribute.KeyValue{
		attribute.String("server_type", serverType),
		attribute.String("direction", direction),
		attribute.String("kind", msg.Kind().String()),
	}
	if method := msg.Method(); method != "" {
		attrs = append(attrs, attribute.String("mcp_method", method))
	}
	o.messages.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func (o *MetricsObserver) serverType(sessionID string) string {
	payload, err := o.codec.Decode(sessionID)
	if err != nil {
		return unknownServerType
	}
	return payload.ServerType
}

// LogObserver writes transport events to the package logger.
type LogObserver struct{}

var _ types.Observer = LogObserver{}

// MessageReceived implements types.Observer.
func (LogObserver) MessageReceived(sessionID string, msg jsonrpc.Message) {
	logger.Debugw("message received",
		"session_id", sessionID, "kind", msg.Kind().String(), "method", msg.Method())
}

// MessageSent implements types.Observer.
func (LogObserver) MessageSent(sessionID string, msg jsonrpc.Message) {
	logger.Debugw("message sent",
		"session_id", sessionID, "kind", msg.Kind().String(), "method", msg.Method())
}

// Error implements types.Observer.
func (LogObserver) Error(sessionID string, err error) {
	logger.Warnw("transport error", "session_id", sessionID, "error", err)
}

// Closed implements types.Observer.
func (LogObserver) Closed(sessionID string) {
	logger.Debugw("session closed", "session_id", sessionID)
}
