// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error codes used in transport-level error envelopes.
const (
	CodeServerError     = -32000
	CodeSessionNotFound = -32001
	CodeInvalidRequest  = -32600
	CodeInternalError   = -32603
	CodeParseError      = -32700
)

// ProtocolError is an error that is reported to the client as a JSON-RPC
// error envelope with the given HTTP status.
type ProtocolError struct {
	Status  int
	Code    int
	Message string
}

// NewProtocolError creates a ProtocolError.
func NewProtocolError(status, code int, message string) *ProtocolError {
	return &ProtocolError{Status: status, Code: code, Message: message}
}

// Error returns the error message.
func (e *ProtocolError) Error() string { return e.Message }

type envelopeError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	JSONRPC string        `json:"jsonrpc"`
	Error   envelopeError `json:"error"`
	ID      any           `json:"id"`
}

// WriteError writes err as a JSON-RPC error envelope with a null id.
// Errors that are not a ProtocolError are reported as 500 internal errors.
func WriteError(w http.ResponseWriter, err error) {
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		perr = NewProtocolError(http.StatusInternalServerError, CodeInternalError, "Internal error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(perr.Status)
	_ = json.NewEncoder(w).Encode(envelope{
		JSONRPC: "2.0",
		Error:   envelopeError{Code: perr.Code, Message: perr.Message},
		ID:      nil,
	})
}
