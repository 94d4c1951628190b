// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Config holds the configuration for metrics.
type Config struct {
	// ServiceName is the service name reported with every metric
	ServiceName string `json:"serviceName" yaml:"serviceName"`

	// ServiceVersion is the service version reported with every metric
	ServiceVersion string `json:"serviceVersion" yaml:"serviceVersion"`

	// IncludeRuntimeMetrics adds the Go runtime and process collectors to
	// the /metrics endpoint
	IncludeRuntimeMetrics bool `json:"includeRuntimeMetrics" yaml:"includeRuntimeMetrics"`
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:           "openmcp",
		IncludeRuntimeMetrics: true,
	}
}

// Provider owns the meter provider and the Prometheus registry it exports to.
type Provider struct {
	meterProvider     *sdkmetric.MeterProvider
	prometheusHandler http.Handler
}

// NewProvider creates a meter provider backed by a dedicated Prometheus
// registry.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	if config.ServiceName == "" {
		return nil, fmt.Errorf("service name is required")
	}

	registry := prometheus.NewRegistry()
	if config.IncludeRuntimeMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	return &Provider{
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(res),
		),
		prometheusHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// MeterProvider returns the configured meter provider.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// PrometheusHandler returns the handler serving the /metrics endpoint.
func (p *Provider) PrometheusHandler() http.Handler {
	return p.prometheusHandler
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}
