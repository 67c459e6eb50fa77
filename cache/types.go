// Package cache holds the response cache model used by the HTTP pipeline:
// the stored entry with its freshness rules, cache key construction,
// Cache-Control parsing and the pluggable Store contract.
//
// Backends live in sub-packages: cache/memory (bounded LRU) and cache/redis.
package cache

import "context"

// Store persists cached responses. Implementations must be safe for
// concurrent use; Get must be side-effect free and return a value the
// caller may keep without synchronizing with later writes.
type Store interface {
	// Get returns ErrNotFound when nothing usable is stored under key.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores or supersedes the entry under key. Entries whose lifetime
	// (MaxAge+MaxStale) is not positive are not stored.
	Set(ctx context.Context, key string, entry *Entry) error

	// Remove evicts key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Clear evicts every entry owned by the store.
	Clear(ctx context.Context) error
}
