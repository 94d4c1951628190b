// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry metrics for MCP sessions, exported
// through a Prometheus /metrics endpoint, and the transport observers that
// record them.
package telemetry
