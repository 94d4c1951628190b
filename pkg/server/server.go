// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server assembles the openmcp HTTP server from its configuration.
package server

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/openmcp/pkg/actor"
	"github.com/stacklok/openmcp/pkg/config"
	"github.com/stacklok/openmcp/pkg/directory"
	"github.com/stacklok/openmcp/pkg/logger"
	"github.com/stacklok/openmcp/pkg/router"
	"github.com/stacklok/openmcp/pkg/telemetry"
	"github.com/stacklok/openmcp/pkg/toolserver"
	"github.com/stacklok/openmcp/pkg/transport/types"
)

const (
	// defaultReadHeaderTimeout prevents slowloris attacks by limiting time to read request headers.
	defaultReadHeaderTimeout = 10 * time.Second

	// defaultShutdownTimeout is the maximum time to wait for graceful shutdown.
	defaultShutdownTimeout = 10 * time.Second
)

// Server serves every configured server type over SSE and streamable HTTP.
type Server struct {
	config  *config.Config
	handler http.Handler
	dir     *directory.Directory

	// shutdownFuncs release the metrics provider and the config store.
	shutdownFuncs []func(context.Context) error

	mu         sync.Mutex
	listener   net.Listener
	httpServer *http.Server

	ready     chan struct{}
	readyOnce sync.Once
	stopped   chan struct{}
	stopOnce  sync.Once
	stopErr   error
}

// New builds the server described by cfg. version is reported to clients of
// servers that do not configure their own. cfg must already be validated.
func New(ctx context.Context, cfg *config.Config, version string) (*Server, error) {
	s := &Server{
		config:  cfg,
		ready:   make(chan struct{}),
		stopped: make(chan struct{}),
	}

	codec := cfg.Codec()
	observers := types.MultiObserver{telemetry.LogObserver{}}

	var metricsHandler http.Handler
	if !cfg.Metrics.Disabled {
		provider, err := telemetry.NewProvider(ctx, cfg.TelemetryConfig(version))
		if err != nil {
			return nil, fmt.Errorf("failed to create telemetry provider: %w", err)
		}
		s.shutdownFuncs = append(s.shutdownFuncs, provider.Shutdown)
		observers = append(observers, telemetry.NewMetricsObserver(provider.MeterProvider(), codec))
		metricsHandler = provider.PrometheusHandler()
	}

	factories := make(map[string]actor.Factory, len(cfg.Servers))
	for _, sc := range cfg.Servers {
		factory, err := toolserver.NewFactory(sc.Type, sc.Name, cmp.Or(sc.Version, version))
		if err != nil {
			_ = s.shutdown(ctx)
			return nil, fmt.Errorf("server %s: %w", sc.Name, err)
		}
		factories[sc.Name] = factory
	}

	dirOpts := []directory.Option{
		directory.WithActorOptions(
			actor.WithObserver(observers),
			actor.WithLimits(cfg.TransportLimits()),
			actor.WithCodec(codec),
		),
	}
	if cfg.Redis != nil {
		store, err := directory.NewRedisConfigStore(ctx, cfg.Redis.StoreConfig())
		if err != nil {
			_ = s.shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.shutdownFuncs = append(s.shutdownFuncs, func(context.Context) error { return store.Close() })
		dirOpts = append(dirOpts, directory.WithConfigStore(store))
		logger.Infof("Actor configurations are shared through redis at %s", cfg.Redis.Addr)
	}
	s.dir = directory.New(factories, dirOpts...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Get("/health", handleHealth)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	router.New(s.dir, router.WithCodec(codec)).Mount(r)
	s.handler = r

	return s, nil
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Directory returns the actor directory of the server.
func (s *Server) Directory() *directory.Directory {
	return s.dir
}

// Ready is closed once the server accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Address returns the server's actual listen address.
// If the server is started with port 0, this returns the actual bound port.
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Listen
}

// Start serves until ctx is cancelled or the HTTP server fails, then stops
// the server.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	// No write timeout: SSE streams stay open for the whole session.
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpServer
	s.mu.Unlock()

	logger.Infof("Serving %v at %s", s.dir.ServerTypes(), listener.Addr())
	s.readyOnce.Do(func() { close(s.ready) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			logger.Infof("Shutting down server")
			return s.Stop(context.WithoutCancel(ctx))
		case <-s.stopped:
			return nil
		}
	})
	return g.Wait()
}

// Stop closes every session, then shuts the HTTP server down. It is safe to
// call more than once.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		var errs []error

		// Sessions go first so that open SSE streams end and Shutdown can
		// drain their connections.
		if err := s.dir.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close sessions: %w", err))
		}

		s.mu.Lock()
		httpServer := s.httpServer
		s.mu.Unlock()
		if httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("failed to shutdown HTTP server: %w", err))
			}
		}

		errs = append(errs, s.shutdown(ctx))
		s.stopErr = errors.Join(errs...)
		close(s.stopped)
	})
	return s.stopErr
}

func (s *Server) shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range s.shutdownFuncs {
		errs = append(errs, fn(ctx))
	}
	s.shutdownFuncs = nil
	return errors.Join(errs...)
}

// handleHealth reports that the server is responding.
func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		logger.Errorf("Failed to encode health response: %v", err)
	}
}
