// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sessionid

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		actorID    string
		serverType string
	}{
		{"simple", "actor-1", "openapi"},
		{"uuid actor", "0b4e3a4e-5a2f-4b8e-9f6e-0c1d2e3f4a5b", "echo"},
		{"hex actor", "9f86d081884c7d65", "openapi"},
		{"unicode", "acteur-é", "serveur"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, err := Encode(tt.actorID, tt.serverType)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(id, DefaultNamespace+"_"))

			p, err := Decode(id)
			require.NoError(t, err)
			assert.Equal(t, tt.actorID, p.ActorID)
			assert.Equal(t, tt.serverType, p.ServerType)
			assert.NotEmpty(t, p.UID)
		})
	}
}

func TestEncodeProducesDistinctUIDs(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for range 50 {
		id, err := Encode("actor", "openapi")
		require.NoError(t, err)

		p, err := Decode(id)
		require.NoError(t, err)

		_, dup := seen[p.UID]
		assert.False(t, dup, "uid %s repeated", p.UID)
		seen[p.UID] = struct{}{}
	}
}

func TestEncodeRejectsBadFields(t *testing.T) {
	t.Parallel()

	_, err := Encode("", "openapi")
	assert.Error(t, err)

	_, err = Encode("actor", "")
	assert.Error(t, err)

	_, err = Encode("act::or", "openapi")
	assert.Error(t, err)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	payload := func(s string) string {
		return DefaultNamespace + "_" + base64.RawURLEncoding.EncodeToString([]byte(s))
	}

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{"empty", "", ErrInvalidSessionID},
		{"no prefix", "garbage", ErrInvalidSessionID},
		{"wrong namespace", "other_" + base64.RawURLEncoding.EncodeToString([]byte("a::b::c")), ErrInvalidSessionID},
		{"prefix only", DefaultNamespace + "_", ErrInvalidSessionID},
		{"not base64", DefaultNamespace + "_!!!", ErrInvalidSessionID},
		{"two fields", payload("openapi::uid"), ErrMalformedSessionPayload},
		{"four fields", payload("a::b::c::d"), ErrMalformedSessionPayload},
		{"empty server type", payload("::uid::actor"), ErrMalformedSessionPayload},
		{"empty uid", payload("openapi::::actor"), ErrMalformedSessionPayload},
		{"empty actor", payload("openapi::uid::"), ErrMalformedSessionPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(tt.id)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIsValid(t *testing.T) {
	t.Parallel()

	id, err := Encode("actor-1", "openapi")
	require.NoError(t, err)

	assert.True(t, IsValid(id, "actor-1", "openapi"))
	assert.False(t, IsValid(id, "actor-2", "openapi"))
	assert.False(t, IsValid(id, "actor-1", "echo"))
	assert.False(t, IsValid("garbage", "actor-1", "openapi"))
	assert.False(t, IsValid("", "", ""))
	assert.False(t, IsValid(DefaultNamespace+"_%%%", "actor-1", "openapi"))
}

func TestCodecOptions(t *testing.T) {
	t.Parallel()

	c := NewCodec(WithNamespace("acme"), WithDelimiter("|"))
	assert.Equal(t, "acme", c.Namespace())

	id, err := c.Encode("actor::1", "openapi")
	require.NoError(t, err, "default delimiter is allowed when a custom one is set")
	assert.True(t, strings.HasPrefix(id, "acme_"))

	p, err := c.Decode(id)
	require.NoError(t, err)
	assert.Equal(t, "actor::1", p.ActorID)

	_, err = Decode(id)
	assert.ErrorIs(t, err, ErrInvalidSessionID, "default codec must reject other namespaces")

	_, err = c.Encode("a|b", "openapi")
	assert.Error(t, err)
}
