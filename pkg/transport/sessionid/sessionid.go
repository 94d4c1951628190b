// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package sessionid encodes and decodes the opaque session identifiers handed
// out to MCP clients.
//
// A session id has the form "<namespace>_<payload>" where payload is the
// unpadded URL-safe base64 encoding of
//
//	serverType + delimiter + uid + delimiter + actorID
//
// The id is a pure address: it tells the router which kind of server the
// session belongs to and which actor owns it. It must never be used for
// authorization decisions.
package sessionid

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultNamespace is the prefix put in front of every session id.
	DefaultNamespace = "openmcp"

	// DefaultDelimiter separates the fields of the encoded payload.
	DefaultDelimiter = "::"

	// QueryParam is the query parameter carrying the session id.
	QueryParam = "sessionId"
)

var (
	// ErrInvalidSessionID is returned when the id is missing the namespace
	// prefix or its payload is not valid base64.
	ErrInvalidSessionID = errors.New("invalid session id")

	// ErrMalformedSessionPayload is returned when the decoded payload does not
	// contain exactly three non-empty fields.
	ErrMalformedSessionPayload = errors.New("malformed session id payload")
)

var encoding = base64.RawURLEncoding

// Payload is the decoded content of a session id.
type Payload struct {
	ServerType string
	UID        string
	ActorID    string
}

// Codec encodes and decodes session ids for one namespace.
type Codec struct {
	namespace string
	delimiter string
	newUID    func() string
}

// Option configures a Codec.
type Option func(*Codec)

// WithNamespace overrides the namespace prefix.
func WithNamespace(namespace string) Option {
	return func(c *Codec) {
		if namespace != "" {
			c.namespace = namespace
		}
	}
}

// WithDelimiter overrides the payload field delimiter.
func WithDelimiter(delimiter string) Option {
	return func(c *Codec) {
		if delimiter != "" {
			c.delimiter = delimiter
		}
	}
}

// NewCodec creates a codec with the given options applied on top of the defaults.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{
		namespace: DefaultNamespace,
		delimiter: DefaultDelimiter,
		newUID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Namespace returns the namespace prefix used by the codec.
func (c *Codec) Namespace() string { return c.namespace }

// Encode mints a new session id for the given actor and server type.
// Every call produces a different id because a fresh uid is generated.
func (c *Codec) Encode(actorID, serverType string) (string, error) {
	uid := c.newUID()
	for name, v := range map[string]string{"actor id": actorID, "server type": serverType, "uid": uid} {
		if v == "" {
			return "", fmt.Errorf("cannot encode session id: %s is empty", name)
		}
		if strings.Contains(v, c.delimiter) {
			return "", fmt.Errorf("cannot encode session id: %s contains delimiter %q", name, c.delimiter)
		}
	}

	raw := strings.Join([]string{serverType, uid, actorID}, c.delimiter)
	return c.namespace + "_" + encoding.EncodeToString([]byte(raw)), nil
}

// Decode recovers the payload of a session id.
// It returns an error wrapping ErrInvalidSessionID or ErrMalformedSessionPayload.
func (c *Codec) Decode(id string) (Payload, error) {
	encoded, ok := strings.CutPrefix(id, c.namespace+"_")
	if !ok {
		return Payload{}, fmt.Errorf("%w: missing %q prefix", ErrInvalidSessionID, c.namespace)
	}
	if encoded == "" {
		return Payload{}, fmt.Errorf("%w: empty payload", ErrInvalidSessionID)
	}

	raw, err := encoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidSessionID, err)
	}

	parts := strings.Split(string(raw), c.delimiter)
	if len(parts) != 3 {
		return Payload{}, fmt.Errorf("%w: expected 3 fields, got %d", ErrMalformedSessionPayload, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return Payload{}, fmt.Errorf("%w: empty field", ErrMalformedSessionPayload)
		}
	}

	return Payload{ServerType: parts[0], UID: parts[1], ActorID: parts[2]}, nil
}

// IsValid reports whether id decodes and belongs to the given actor and server type.
// It never fails; any decode error yields false.
func (c *Codec) IsValid(id, actorID, serverType string) bool {
	p, err := c.Decode(id)
	if err != nil {
		return false
	}
	return p.ActorID == actorID && p.ServerType == serverType
}

var defaultCodec = NewCodec()

// Encode mints a session id with the default codec.
func Encode(actorID, serverType string) (string, error) {
	return defaultCodec.Encode(actorID, serverType)
}

// Decode decodes a session id with the default codec.
func Decode(id string) (Payload, error) {
	return defaultCodec.Decode(id)
}

// IsValid checks a session id with the default codec.
func IsValid(id, actorID, serverType string) bool {
	return defaultCodec.IsValid(id, actorID, serverType)
}
