// Package redis provides a cache.Store backed by Redis. Entries are
// CBOR-encoded and expire through Redis TTLs set to the entry lifetime.
package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ridewave/httppipe/cache"
	"github.com/ridewave/httppipe/cache/internal/tracking"
)

// scanBatch is the COUNT hint used while clearing the prefix.
const scanBatch = 200

// Store implements cache.Store on Redis.
type Store struct {
	client *redis.Client
	config *Config
	closed atomic.Bool
}

var _ cache.Store = (*Store)(nil)

// NewStore validates cfg, connects and verifies the connection with PING.
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, cache.NewConfigError("redis", "configuration is required", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, cache.NewConnectionError("ping", cfg.Address(), err)
	}

	return &Store{client: client, config: cfg}, nil
}

func (s *Store) key(k string) string {
	return s.config.KeyPrefix + k
}

// Get loads and decodes the entry under key.
func (s *Store) Get(ctx context.Context, key string) (*cache.Entry, error) {
	if s.closed.Load() {
		return nil, cache.ErrClosed
	}

	start := time.Now()
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		tracking.RecordStoreOperation(ctx, tracking.BackendRedis, tracking.OpGet, time.Since(start), false, nil)
		return nil, cache.ErrNotFound
	}

	var entry *cache.Entry
	if err == nil {
		entry, err = cache.DecodeEntry(data)
	}
	tracking.RecordStoreOperation(ctx, tracking.BackendRedis, tracking.OpGet, time.Since(start), err == nil, err)

	if err != nil {
		return nil, cache.NewOperationError("get", key, err)
	}
	return entry, nil
}

// Set encodes entry and stores it with a TTL equal to its lifetime.
func (s *Store) Set(ctx context.Context, key string, entry *cache.Entry) error {
	if s.closed.Load() {
		return cache.ErrClosed
	}
	if entry == nil {
		return cache.NewOperationError("set", key, errors.New("nil entry"))
	}

	ttl := entry.Lifetime()
	if ttl <= 0 {
		return nil
	}

	data, err := cache.EncodeEntry(entry)
	if err != nil {
		return cache.NewOperationError("set", key, err)
	}

	start := time.Now()
	err = s.client.Set(ctx, s.key(key), data, ttl).Err()
	tracking.RecordStoreOperation(ctx, tracking.BackendRedis, tracking.OpSet, time.Since(start), false, err)

	if err != nil {
		return cache.NewOperationError("set", key, err)
	}
	return nil
}

// Remove deletes key. Missing keys are not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	if s.closed.Load() {
		return cache.ErrClosed
	}

	start := time.Now()
	err := s.client.Del(ctx, s.key(key)).Err()
	tracking.RecordStoreOperation(ctx, tracking.BackendRedis, tracking.OpRemove, time.Since(start), false, err)

	if err != nil {
		return cache.NewOperationError("remove", key, err)
	}
	return nil
}

// Clear deletes every key under the configured prefix using SCAN, so
// other data in the same database is left alone.
func (s *Store) Clear(ctx context.Context) error {
	if s.closed.Load() {
		return cache.ErrClosed
	}

	start := time.Now()
	err := s.clearPrefix(ctx)
	tracking.RecordStoreOperation(ctx, tracking.BackendRedis, tracking.OpClear, time.Since(start), false, err)

	if err != nil {
		return cache.NewOperationError("clear", s.config.KeyPrefix+"*", err)
	}
	return nil
}

func (s *Store) clearPrefix(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.config.KeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Health checks the connection with PING.
func (s *Store) Health(ctx context.Context) error {
	if s.closed.Load() {
		return cache.ErrClosed
	}

	start := time.Now()
	err := s.client.Ping(ctx).Err()
	tracking.RecordStoreOperation(ctx, tracking.BackendRedis, tracking.OpPing, time.Since(start), false, err)

	if err != nil {
		return cache.NewConnectionError("ping", s.config.Address(), err)
	}
	return nil
}

// Close releases the connection pool. Only the first call closes; later
// calls return cache.ErrClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return cache.ErrClosed
	}
	return s.client.Close()
}
