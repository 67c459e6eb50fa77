// Package memory provides a bounded in-process cache.Store backed by an LRU.
package memory

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ridewave/httppipe/cache"
	"github.com/ridewave/httppipe/cache/internal/tracking"
)

// DefaultMaxEntries bounds the store when no size is given.
const DefaultMaxEntries = 1000

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now, used to report expired entries as misses.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store keeps entries in memory, evicting the least recently written one
// when full. Reads never reorder or remove entries; an expired entry stays
// until a write supersedes it or it is evicted. Entries are copied on the
// way in and out.
type Store struct {
	entries *lru.Cache[string, *cache.Entry]
	now     func() time.Time
}

var _ cache.Store = (*Store)(nil)

// New creates a store holding at most maxEntries entries. Non-positive
// sizes fall back to DefaultMaxEntries.
func New(maxEntries int, opts ...Option) (*Store, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	entries, err := lru.New[string, *cache.Entry](maxEntries)
	if err != nil {
		return nil, cache.NewConfigError("memory.max_entries", "failed to create LRU", err)
	}

	s := &Store{entries: entries, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns a copy of the entry under key. Fully expired entries are
// reported as misses.
func (s *Store) Get(ctx context.Context, key string) (*cache.Entry, error) {
	start := time.Now()

	entry, ok := s.entries.Peek(key)
	if ok && entry.IsExpired(s.now()) {
		ok = false
	}

	tracking.RecordStoreOperation(ctx, tracking.BackendMemory, tracking.OpGet, time.Since(start), ok, nil)
	if !ok {
		return nil, cache.ErrNotFound
	}
	return entry.Clone(), nil
}

// Set stores a copy of entry. Entries without a positive lifetime are
// ignored.
func (s *Store) Set(ctx context.Context, key string, entry *cache.Entry) error {
	if entry == nil {
		return cache.NewOperationError("set", key, errors.New("nil entry"))
	}
	if entry.Lifetime() <= 0 {
		return nil
	}

	start := time.Now()
	if evicted := s.entries.Add(key, entry.Clone()); evicted {
		tracking.RecordEviction(ctx, tracking.BackendMemory)
	}
	tracking.RecordStoreOperation(ctx, tracking.BackendMemory, tracking.OpSet, time.Since(start), false, nil)
	return nil
}

// Remove evicts key.
func (s *Store) Remove(ctx context.Context, key string) error {
	start := time.Now()
	s.entries.Remove(key)
	tracking.RecordStoreOperation(ctx, tracking.BackendMemory, tracking.OpRemove, time.Since(start), false, nil)
	return nil
}

// Clear evicts everything.
func (s *Store) Clear(ctx context.Context) error {
	start := time.Now()
	s.entries.Purge()
	tracking.RecordStoreOperation(ctx, tracking.BackendMemory, tracking.OpClear, time.Since(start), false, nil)
	return nil
}

// Len reports the number of entries held, expired ones included.
func (s *Store) Len() int {
	return s.entries.Len()
}
