// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package actor

import (
	"context"
	"net/http"
	"strings"
)

// ClientConfigHeaderPrefix prefixes the headers read by HeaderClientConfig.
const ClientConfigHeaderPrefix = "X-Mcp-Client-"

// ClientConfig is per-request configuration supplied by the client, such as
// credentials for the backend API. It never changes the actor's base Config.
type ClientConfig map[string]string

// ClientConfigExtractor reads the client configuration from an inbound request.
// It returns nil when the request carries none.
type ClientConfigExtractor func(r *http.Request) ClientConfig

// HeaderClientConfig collects every X-Mcp-Client-<Name> header into a
// ClientConfig keyed by the lower-cased <Name>.
func HeaderClientConfig(r *http.Request) ClientConfig {
	var cc ClientConfig
	for name, values := range r.Header {
		key, ok := strings.CutPrefix(http.CanonicalHeaderKey(name), ClientConfigHeaderPrefix)
		if !ok || key == "" || len(values) == 0 {
			continue
		}
		if cc == nil {
			cc = make(ClientConfig)
		}
		cc[strings.ToLower(key)] = values[0]
	}
	return cc
}

type clientConfigKey struct{}

// WithClientConfig returns a context carrying cc.
func WithClientConfig(ctx context.Context, cc ClientConfig) context.Context {
	return context.WithValue(ctx, clientConfigKey{}, cc)
}

// ClientConfigFromContext returns the client configuration of the session
// whose message is being handled.
func ClientConfigFromContext(ctx context.Context) (ClientConfig, bool) {
	cc, ok := ctx.Value(clientConfigKey{}).(ClientConfig)
	return cc, ok && cc != nil
}
