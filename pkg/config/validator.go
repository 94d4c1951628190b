// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/stacklok/openmcp/pkg/toolserver"
)

// ErrInvalidConfig is returned for a configuration that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// serverNamePattern keeps server types usable as a single URL path segment.
var serverNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// reservedServerNames collide with the routes mounted next to the servers.
var reservedServerNames = []string{"health", "metrics"}

// Validate reports every problem found in c.
func (c *Config) Validate() error {
	var errs []string

	if c.Listen == "" {
		errs = append(errs, "listen address is required")
	}
	if c.SessionID.Delimiter == "" {
		errs = append(errs, "sessionId.delimiter is required")
	}

	errs = append(errs, c.validateServers()...)
	errs = append(errs, c.validateLimits()...)
	errs = append(errs, c.validateRedis()...)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateServers() []string {
	if len(c.Servers) == 0 {
		return []string{"at least one server is required"}
	}

	var errs []string
	seen := make(map[string]bool, len(c.Servers))
	for i, s := range c.Servers {
		switch {
		case !serverNamePattern.MatchString(s.Name):
			errs = append(errs, fmt.Sprintf("servers[%d].name %q must match %s", i, s.Name, serverNamePattern))
		case slices.Contains(reservedServerNames, s.Name):
			errs = append(errs, fmt.Sprintf("servers[%d].name %q is reserved", i, s.Name))
		case c.SessionID.Delimiter != "" && strings.Contains(s.Name, c.SessionID.Delimiter):
			errs = append(errs, fmt.Sprintf("servers[%d].name %q contains the session id delimiter", i, s.Name))
		case seen[s.Name]:
			errs = append(errs, fmt.Sprintf("servers[%d].name %q is duplicated", i, s.Name))
		}
		seen[s.Name] = true

		if !slices.Contains(toolserver.Kinds(), s.Type) {
			errs = append(errs, fmt.Sprintf("servers[%d].type %q must be one of %v", i, s.Type, toolserver.Kinds()))
		}
	}
	return errs
}

func (c *Config) validateLimits() []string {
	var errs []string
	if c.Limits.MaxBatchSize < 0 {
		errs = append(errs, "limits.maxBatchSize must not be negative")
	}
	if c.Limits.MaxBodyBytes < 0 {
		errs = append(errs, "limits.maxBodyBytes must not be negative")
	}
	return errs
}

func (c *Config) validateRedis() []string {
	if c.Redis == nil {
		return nil
	}
	var errs []string
	if c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required")
	}
	if c.Redis.DB < 0 {
		errs = append(errs, "redis.db must not be negative")
	}
	if c.Redis.TTL < 0 {
		errs = append(errs, "redis.ttl must not be negative")
	}
	return errs
}
