// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import (
	"bytes"
	"io"
	"net/http"
	"slices"
)

type peekedBody struct {
	io.Reader
	io.Closer
}

// PeekInitialize reports whether the body of r carries an initialize request.
// At most limit bytes are inspected; r.Body is replaced so that it still
// reads from the start.
func PeekInitialize(r *http.Request, limit int64) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}

	head, err := io.ReadAll(io.LimitReader(r.Body, limit))
	r.Body = peekedBody{Reader: io.MultiReader(bytes.NewReader(head), r.Body), Closer: r.Body}
	if err != nil {
		return false
	}

	msgs, err := DecodeBatch(head)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(msgs, Message.IsInitialize)
}
