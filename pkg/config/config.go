// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config provides the configuration model of the openmcp server.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stacklok/openmcp/pkg/directory"
	"github.com/stacklok/openmcp/pkg/telemetry"
	"github.com/stacklok/openmcp/pkg/transport/sessionid"
	"github.com/stacklok/openmcp/pkg/transport/types"
)

// Duration is a wrapper around time.Duration that marshals/unmarshals as a duration string.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// Config is the server configuration.
type Config struct {
	// Listen is the address the HTTP server binds to.
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`

	// SessionID configures the session id format.
	SessionID SessionIDConfig `json:"sessionId,omitempty" yaml:"sessionId,omitempty"`

	// Servers lists the server types mounted by the router.
	Servers []ServerConfig `json:"servers,omitempty" yaml:"servers,omitempty"`

	// Limits bounds the resources a single session transport may use.
	Limits LimitsConfig `json:"limits,omitempty" yaml:"limits,omitempty"`

	// Redis enables the shared actor configuration store when set.
	Redis *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`

	// Metrics configures the /metrics endpoint.
	Metrics MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// SessionIDConfig configures the session id codec.
type SessionIDConfig struct {
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Delimiter string `json:"delimiter,omitempty" yaml:"delimiter,omitempty"`
}

// ServerConfig declares one server type.
type ServerConfig struct {
	// Name is the server type: the first path segment of its routes and the
	// type recorded in its session ids.
	Name string `json:"name" yaml:"name"`

	// Type selects the implementation serving the sessions, e.g. "echo".
	Type string `json:"type" yaml:"type"`

	// Version is reported to clients during initialization.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// LimitsConfig mirrors types.Limits in configuration form.
type LimitsConfig struct {
	MaxBatchSize      int      `json:"maxBatchSize,omitempty" yaml:"maxBatchSize,omitempty"`
	MaxBodyBytes      int64    `json:"maxBodyBytes,omitempty" yaml:"maxBodyBytes,omitempty"`
	StreamTimeout     Duration `json:"streamTimeout,omitempty" yaml:"streamTimeout,omitempty"`
	KeepAliveInterval Duration `json:"keepAliveInterval,omitempty" yaml:"keepAliveInterval,omitempty"`
}

// RedisConfig configures the Redis actor configuration store.
type RedisConfig struct {
	Addr      string   `json:"addr" yaml:"addr"`
	Username  string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password  string   `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int      `json:"db,omitempty" yaml:"db,omitempty"`
	KeyPrefix string   `json:"keyPrefix,omitempty" yaml:"keyPrefix,omitempty"`
	TTL       Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// MetricsConfig configures metrics.
type MetricsConfig struct {
	// Disabled removes the /metrics endpoint and the metrics observer.
	Disabled bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	// RuntimeMetrics adds the Go runtime and process collectors.
	RuntimeMetrics bool `json:"runtimeMetrics,omitempty" yaml:"runtimeMetrics,omitempty"`
}

// TransportLimits converts the limits to their transport form, with defaults
// filled in.
func (c *Config) TransportLimits() types.Limits {
	return types.Limits{
		MaxBatchSize:          c.Limits.MaxBatchSize,
		MaxBodyBytes:          c.Limits.MaxBodyBytes,
		ResponseStreamTimeout: time.Duration(c.Limits.StreamTimeout),
		KeepAliveInterval:     time.Duration(c.Limits.KeepAliveInterval),
	}.WithDefaults()
}

// Codec returns the session id codec described by the configuration.
func (c *Config) Codec() *sessionid.Codec {
	return sessionid.NewCodec(
		sessionid.WithNamespace(c.SessionID.Namespace),
		sessionid.WithDelimiter(c.SessionID.Delimiter),
	)
}

// StoreConfig converts the Redis settings for the directory store.
func (r *RedisConfig) StoreConfig() directory.RedisConfig {
	return directory.RedisConfig{
		Addr:      r.Addr,
		Username:  r.Username,
		Password:  r.Password,
		DB:        r.DB,
		KeyPrefix: r.KeyPrefix,
		TTL:       time.Duration(r.TTL),
	}
}

// TelemetryConfig converts the metrics settings for the telemetry provider.
func (c *Config) TelemetryConfig(version string) telemetry.Config {
	return telemetry.Config{
		ServiceName:           "openmcp",
		ServiceVersion:        version,
		IncludeRuntimeMetrics: c.Metrics.RuntimeMetrics,
	}
}
