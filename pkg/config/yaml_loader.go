// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/stacklok/toolhive-core/env"
	"gopkg.in/yaml.v3"
)

// YAMLLoader loads a configuration file, expanding ${VAR} references through
// an env.Reader before parsing.
type YAMLLoader struct {
	path      string
	envReader env.Reader
}

// NewYAMLLoader creates a loader for the file at path.
func NewYAMLLoader(path string, envReader env.Reader) *YAMLLoader {
	return &YAMLLoader{path: path, envReader: envReader}
}

// Load reads, expands, parses and defaults the configuration file. It does
// not validate it.
func (l *YAMLLoader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", l.path, err)
	}

	expanded := os.Expand(string(data), l.envReader.Getenv)

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewBufferString(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", l.path, err)
	}

	cfg.EnsureDefaults()
	return &cfg, nil
}
