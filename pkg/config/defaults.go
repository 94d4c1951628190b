// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"dario.cat/mergo"

	"github.com/stacklok/openmcp/pkg/toolserver"
	"github.com/stacklok/openmcp/pkg/transport/sessionid"
	"github.com/stacklok/openmcp/pkg/transport/types"
)

// DefaultListen is the default HTTP listen address.
const DefaultListen = ":8080"

// Default returns a fully populated configuration serving a single echo
// server type.
func Default() *Config {
	return &Config{
		Listen: DefaultListen,
		SessionID: SessionIDConfig{
			Namespace: sessionid.DefaultNamespace,
			Delimiter: sessionid.DefaultDelimiter,
		},
		Servers: []ServerConfig{
			{Name: toolserver.KindEcho, Type: toolserver.KindEcho},
		},
		Limits: LimitsConfig{
			MaxBatchSize:      types.DefaultMaxBatchSize,
			MaxBodyBytes:      types.DefaultMaxBodyBytes,
			StreamTimeout:     Duration(types.DefaultResponseStreamTimeout),
			KeepAliveInterval: Duration(types.DefaultKeepAliveInterval),
		},
	}
}

// EnsureDefaults fills every unset field of c from Default.
func (c *Config) EnsureDefaults() {
	// Merge only fills zero fields, so explicit values always win.
	_ = mergo.Merge(c, Default())
}
