// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"errors"
	"net/http"

	"github.com/stacklok/toolhive-core/httperr"

	"github.com/stacklok/openmcp/pkg/logger"
	"github.com/stacklok/openmcp/pkg/transport/jsonrpc"
)

// handlerWithError is an HTTP handler that returns its error instead of
// writing the error response itself.
type handlerWithError func(http.ResponseWriter, *http.Request) error

// errorHandler writes returned errors as plain text, the way SSE clients
// expect them. 5xx details are logged and not sent to the client.
func errorHandler(fn handlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		code := httperr.Code(err)
		if code >= http.StatusInternalServerError {
			logger.Errorf("Internal server error: %v", err)
			http.Error(w, http.StatusText(code), code)
			return
		}
		http.Error(w, publicMessage(err), code)
	}
}

// streamableErrorHandler writes returned errors as JSON-RPC error envelopes.
func streamableErrorHandler(fn handlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		code := httperr.Code(err)
		switch {
		case code >= http.StatusInternalServerError:
			logger.Errorf("Internal server error: %v", err)
			jsonrpc.WriteError(w, jsonrpc.NewProtocolError(code, jsonrpc.CodeInternalError, http.StatusText(code)))
		case code == http.StatusNotFound:
			jsonrpc.WriteError(w, jsonrpc.NewProtocolError(code, jsonrpc.CodeSessionNotFound, publicMessage(err)))
		default:
			jsonrpc.WriteError(w, jsonrpc.NewProtocolError(code, jsonrpc.CodeServerError, publicMessage(err)))
		}
	}
}

// publicMessage hides decode details of an invalid session id.
func publicMessage(err error) string {
	if errors.Is(err, ErrSessionNotValid) {
		return ErrSessionNotValid.Error()
	}
	return err.Error()
}
