// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logger holds the process-wide slog logger of openmcp.
//
// Transports and actors log through the helpers here, which format their
// message only when the level is enabled. Use [Get] to inject the logger.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/spf13/viper"

	"github.com/stacklok/toolhive-core/env"
	"github.com/stacklok/toolhive-core/logging"
)

// unstructuredLogsEnv selects plain text output unless it parses as false.
const unstructuredLogsEnv = "UNSTRUCTURED_LOGS"

var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(logging.New())
}

// Get returns the current logger.
func Get() *slog.Logger {
	return singleton.Load()
}

// Set replaces the logger. Tests use it to capture output.
func Set(l *slog.Logger) {
	singleton.Store(l)
}

func logf(level slog.Level, format string, args ...any) {
	l := Get()
	ctx := context.Background()
	if !l.Enabled(ctx, level) {
		return
	}
	l.Log(ctx, level, fmt.Sprintf(format, args...))
}

// Debugw logs msg with key/value pairs at debug level.
func Debugw(msg string, keysAndValues ...any) {
	Get().Debug(msg, keysAndValues...)
}

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) {
	logf(slog.LevelInfo, format, args...)
}

// Warnf logs a formatted message at warning level.
func Warnf(format string, args ...any) {
	logf(slog.LevelWarn, format, args...)
}

// Warnw logs msg with key/value pairs at warning level.
func Warnw(msg string, keysAndValues ...any) {
	Get().Warn(msg, keysAndValues...)
}

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) {
	logf(slog.LevelError, format, args...)
}

// Initialize creates the logger from the process environment and the viper
// "debug" key, and makes it the slog default.
func Initialize() {
	InitializeWithEnv(&env.OSReader{})
}

// InitializeWithEnv is Initialize with the environment read through envReader.
func InitializeWithEnv(envReader env.Reader) {
	var opts []logging.Option
	if unstructuredLogs(envReader) {
		opts = append(opts, logging.WithFormat(logging.FormatText))
	}
	if viper.GetBool("debug") {
		opts = append(opts, logging.WithLevel(slog.LevelDebug))
	}

	l := logging.New(opts...)
	singleton.Store(l)
	slog.SetDefault(l)
}

func unstructuredLogs(envReader env.Reader) bool {
	v, err := strconv.ParseBool(envReader.Getenv(unstructuredLogsEnv))
	if err != nil {
		// Unset or not a boolean.
		return true
	}
	return v
}
