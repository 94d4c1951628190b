// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"mime"
	"net/http"
	"strings"
)

// AcceptsMediaType reports whether one of the request's Accept headers lists
// mediaType. Parameters such as q-values are ignored; wildcards do not match.
func AcceptsMediaType(r *http.Request, mediaType string) bool {
	for _, header := range r.Header.Values("Accept") {
		for _, part := range strings.Split(header, ",") {
			mt, _, _ := strings.Cut(part, ";")
			if strings.EqualFold(strings.TrimSpace(mt), mediaType) {
				return true
			}
		}
	}
	return false
}

// IsJSONContentType reports whether a Content-Type header value is application/json.
func IsJSONContentType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}
