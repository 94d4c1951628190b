// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package toolserver

import (
	"errors"
	"fmt"
	"slices"

	"github.com/stacklok/openmcp/pkg/actor"
)

// ErrUnknownKind is returned for a server implementation that is not built in.
var ErrUnknownKind = errors.New("unknown server implementation")

var builtins = map[string]func(name, version string) actor.Factory{
	KindEcho: EchoFactory,
}

// Kinds returns the built-in implementations, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(builtins))
	for k := range builtins {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// NewFactory returns the factory of the built-in implementation kind. name and
// version are reported to clients during initialization.
func NewFactory(kind, name, version string) (actor.Factory, error) {
	build, ok := builtins[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return build(name, version), nil
}
