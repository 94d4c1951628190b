// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/cespare/xxhash/v2"
	"github.com/gowebpki/jcs"

	"github.com/stacklok/openmcp/pkg/actor"
	"github.com/stacklok/openmcp/pkg/transport/sessionid"
)

// ConfigFromQuery builds an actor configuration from every query parameter
// except the session id. Repeated parameters become lists.
func ConfigFromQuery(query url.Values) actor.Config {
	var cfg actor.Config
	for key, values := range query {
		if key == sessionid.QueryParam || len(values) == 0 {
			continue
		}
		if cfg == nil {
			cfg = make(actor.Config)
		}
		if len(values) == 1 {
			cfg[key] = values[0]
			continue
		}
		list := make([]any, len(values))
		for i, v := range values {
			list[i] = v
		}
		cfg[key] = list
	}
	return cfg
}

// ActorIDForConfig derives the actor id of a configuration: the xxhash64 of
// its RFC 8785 canonical JSON, so equal configurations share an actor.
func ActorIDForConfig(cfg actor.Config) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize config: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(canonical)), nil
}
