// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package directory maps actor ids to their live actors, creating actors on
// first use. Concurrent first requests for the same actor id are collapsed so
// that exactly one actor is ever created for it.
package directory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync"

	"github.com/stacklok/toolhive-core/httperr"
	"golang.org/x/sync/singleflight"

	"github.com/stacklok/openmcp/pkg/actor"
	"github.com/stacklok/openmcp/pkg/logger"
)

// ErrUnknownServerType is returned when no factory is registered for a server type.
var ErrUnknownServerType = httperr.WithCode(errors.New("unknown server type"), http.StatusNotFound)

type actorKey struct {
	serverType string
	actorID    string
}

func (k actorKey) String() string {
	return k.serverType + "/" + k.actorID
}

// Option configures a Directory.
type Option func(*Directory)

// WithConfigStore sets the durable configuration store. The default keeps
// configurations in memory.
func WithConfigStore(s ConfigStore) Option {
	return func(d *Directory) {
		if s != nil {
			d.store = s
		}
	}
}

// WithActorOptions sets the options every new actor is created with.
func WithActorOptions(opts ...actor.Option) Option {
	return func(d *Directory) {
		d.actorOpts = append(d.actorOpts, opts...)
	}
}

// Directory owns every actor of the process.
type Directory struct {
	factories map[string]actor.Factory
	store     ConfigStore
	actorOpts []actor.Option

	mu     sync.RWMutex
	actors map[actorKey]*actor.Actor
	refs   map[actorKey]int
	group  singleflight.Group
}

// New creates a directory serving the server types in factories.
func New(factories map[string]actor.Factory, opts ...Option) *Directory {
	d := &Directory{
		factories: factories,
		store:     NewLocalConfigStore(),
		actors:    make(map[actorKey]*actor.Actor),
		refs:      make(map[actorKey]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ServerTypes returns the registered server types, sorted.
func (d *Directory) ServerTypes() []string {
	return slices.Sorted(maps.Keys(d.factories))
}

// Get returns the actor for (serverType, actorID) without creating it.
func (d *Directory) Get(serverType, actorID string) (*actor.Actor, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.actors[actorKey{serverType, actorID}]
	return a, ok
}

// Len returns the number of live actors.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.actors)
}

// Resolve returns the actor for (serverType, actorID), creating it on first
// use. A new actor regains any configuration held by the config store.
//
// Every Resolve marks the actor in use until the matching Release.
func (d *Directory) Resolve(ctx context.Context, serverType, actorID string) (*actor.Actor, error) {
	key := actorKey{serverType, actorID}
	for {
		a, err := d.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if d.acquire(key, a) {
			return a, nil
		}
		// Evicted between load and acquire.
	}
}

func (d *Directory) load(ctx context.Context, key actorKey) (*actor.Actor, error) {
	if a, ok := d.Get(key.serverType, key.actorID); ok {
		return a, nil
	}

	factory, ok := d.factories[key.serverType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServerType, key.serverType)
	}

	// The flight is shared with other callers and must not die with ctx.
	ctx = context.WithoutCancel(ctx)
	v, err, _ := d.group.Do(key.String(), func() (any, error) {
		if a, ok := d.Get(key.serverType, key.actorID); ok {
			return a, nil
		}

		opts := slices.Concat(d.actorOpts, []actor.Option{actor.WithOnIdle(d.evictIfUnused)})
		a := actor.New(key.actorID, key.serverType, factory, opts...)
		cfg, found, err := d.store.Load(ctx, key.String())
		if err != nil {
			return nil, fmt.Errorf("failed to load config for actor %s: %w", key, err)
		}
		if found {
			a.SetConfig(cfg)
		}

		d.mu.Lock()
		d.actors[key] = a
		d.mu.Unlock()
		logger.Debugw("created actor", "server_type", key.serverType, "actor_id", key.actorID, "config_restored", found)
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*actor.Actor), nil
}

func (d *Directory) acquire(key actorKey, a *actor.Actor) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.actors[key] != a {
		return false
	}
	d.refs[key]++
	return true
}

// Release ends a use of a begun by Resolve. An idle actor that nobody uses
// any more is evicted and closed.
func (d *Directory) Release(a *actor.Actor) {
	key := actorKey{a.ServerType(), a.ID()}
	d.mu.Lock()
	if d.actors[key] == a && d.refs[key] > 0 {
		d.refs[key]--
	}
	d.mu.Unlock()
	d.evictIfUnused(a)
}

func (d *Directory) evictIfUnused(a *actor.Actor) {
	key := actorKey{a.ServerType(), a.ID()}
	d.mu.Lock()
	if d.actors[key] != a || d.refs[key] > 0 || !a.Idle() {
		d.mu.Unlock()
		return
	}
	delete(d.actors, key)
	delete(d.refs, key)
	d.mu.Unlock()

	if err := a.Close(); err != nil {
		logger.Debugw("failed to close evicted actor", "server_type", key.serverType, "actor_id", key.actorID, "error", err)
	}
	logger.Debugw("evicted idle actor", "server_type", key.serverType, "actor_id", key.actorID)
}

// SetConfig applies cfg to a unless a configuration was already stored for
// it, in which case the stored one is applied instead.
func (d *Directory) SetConfig(ctx context.Context, a *actor.Actor, cfg actor.Config) error {
	if a.Config() != nil {
		return nil
	}
	winner, err := d.store.StoreIfAbsent(ctx, actorKey{a.ServerType(), a.ID()}.String(), cfg)
	if err != nil {
		return fmt.Errorf("failed to store config for actor %s: %w", a.ID(), err)
	}
	a.SetConfig(winner)
	return nil
}

// Close closes every actor.
func (d *Directory) Close() error {
	d.mu.Lock()
	actors := d.actors
	d.actors = make(map[actorKey]*actor.Actor)
	d.refs = make(map[actorKey]int)
	d.mu.Unlock()

	var errs []error
	for _, a := range actors {
		errs = append(errs, a.Close())
	}
	return errors.Join(errs...)
}
