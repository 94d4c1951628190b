// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/stacklok/openmcp/pkg/actor"
	"github.com/stacklok/openmcp/pkg/logger"
)

// ConfigStore persists actor configurations so that "set at most once" holds
// across actor recreation and across replicas.
type ConfigStore interface {
	// Load returns the configuration stored for key, if any.
	Load(ctx context.Context, key string) (actor.Config, bool, error)
	// StoreIfAbsent stores cfg under key unless a configuration is already
	// stored, and returns whichever configuration is stored afterwards.
	StoreIfAbsent(ctx context.Context, key string, cfg actor.Config) (actor.Config, error)
}

// LocalConfigStore keeps configurations in process memory.
type LocalConfigStore struct {
	mu      sync.Mutex
	configs map[string]actor.Config
}

// NewLocalConfigStore creates an empty in-memory store.
func NewLocalConfigStore() *LocalConfigStore {
	return &LocalConfigStore{configs: make(map[string]actor.Config)}
}

// Load implements ConfigStore.
func (s *LocalConfigStore) Load(_ context.Context, key string) (actor.Config, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[key]
	return cfg, ok, nil
}

// StoreIfAbsent implements ConfigStore.
func (s *LocalConfigStore) StoreIfAbsent(_ context.Context, key string, cfg actor.Config) (actor.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.configs[key]; ok {
		return existing, nil
	}
	s.configs[key] = cfg
	return cfg, nil
}

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second

	// DefaultKeyPrefix prefixes every key written by RedisConfigStore.
	DefaultKeyPrefix = "openmcp:actor-config:"

	// defaultConnectTries bounds the startup ping attempts.
	defaultConnectTries = 5
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces the stored keys, for example per deployment.
	KeyPrefix string
	// TTL expires stored configurations. Zero keeps them forever.
	TTL time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisConfigStore stores configurations in Redis with SET NX, so the first
// writer wins across every replica sharing the Redis instance.
type RedisConfigStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewRedisConfigStore connects to Redis, retrying the initial ping with
// exponential backoff.
func NewRedisConfigStore(ctx context.Context, cfg RedisConfig) (*RedisConfigStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{cfg.Addr},
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 200 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second
	expBackoff.Reset()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, client.Ping(ctx).Err()
	},
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(defaultConnectTries),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Warnf("Redis at %s not reachable (%v), retrying in %v", cfg.Addr, err, d)
		}),
	)
	if err != nil {
		// Close the client to prevent resource leak
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisConfigStoreWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisConfigStoreWithClient creates a store on a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisConfigStoreWithClient(client redis.UniversalClient, keyPrefix string, ttl time.Duration) *RedisConfigStore {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisConfigStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Load implements ConfigStore.
func (s *RedisConfigStore) Load(ctx context.Context, key string) (actor.Config, bool, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load actor config: %w", err)
	}

	var cfg actor.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, false, fmt.Errorf("failed to decode actor config: %w", err)
	}
	return cfg, true, nil
}

// StoreIfAbsent implements ConfigStore.
func (s *RedisConfigStore) StoreIfAbsent(ctx context.Context, key string, cfg actor.Config) (actor.Config, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actor config: %w", err)
	}

	stored, err := s.client.SetNX(ctx, s.keyPrefix+key, data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to store actor config: %w", err)
	}
	if stored {
		return cfg, nil
	}

	existing, ok, err := s.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Expired between SETNX and GET.
		return cfg, nil
	}
	return existing, nil
}

// Close closes the Redis client.
func (s *RedisConfigStore) Close() error {
	return s.client.Close()
}
