// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransportError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *TransportError
		want string
	}{
		{"message and session", NewTransportError(ErrUnknownRequest, "s1", "id 4"), "no stream found for request id: id 4 (session: s1)"},
		{"message only", NewTransportError(ErrUnknownRequest, "", "id 4"), "no stream found for request id: id 4"},
		{"session only", NewTransportError(ErrTransportClosed, "s1", ""), "transport closed (session: s1)"},
		{"bare", NewTransportError(ErrNotConnected, "", ""), "not connected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	t.Parallel()

	err := NewTransportError(ErrMissingCorrelationID, "s1", "")
	assert.True(t, errors.Is(err, ErrMissingCorrelationID))
	assert.False(t, errors.Is(err, ErrUnknownRequest))
}
