package testing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ridewave/httppipe/cache"
)

// AssertCacheHit asserts that Get on key succeeds.
func AssertCacheHit(t *testing.T, s cache.Store, key string) {
	t.Helper()

	if _, err := s.Get(context.Background(), key); err != nil {
		t.Errorf("expected cache hit for key %q, got error: %v", key, err)
	}
}

// AssertCacheMiss asserts that Get on key returns cache.ErrNotFound.
func AssertCacheMiss(t *testing.T, s cache.Store, key string) {
	t.Helper()

	if _, err := s.Get(context.Background(), key); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected cache miss (ErrNotFound) for key %q, got: %v", key, err)
	}
}

// AssertOperationCount asserts the exact number of calls to operation.
func AssertOperationCount(t *testing.T, m *MockStore, operation string, expected int64) {
	t.Helper()

	if actual := m.OperationCount(operation); actual != expected {
		t.Errorf("expected %d %s operations, got %d", expected, operation, actual)
	}
}

// AssertKeyExists asserts key is stored, without counting a Get.
func AssertKeyExists(t *testing.T, m *MockStore, key string) {
	t.Helper()

	if !m.Has(key) {
		t.Errorf("expected key %q to exist\n%s", key, m.Dump())
	}
}

// AssertKeyNotExists asserts key is not stored.
func AssertKeyNotExists(t *testing.T, m *MockStore, key string) {
	t.Helper()

	if m.Has(key) {
		t.Errorf("expected key %q to not exist\n%s", key, m.Dump())
	}
}

// AssertStoredBody asserts the body stored under key.
func AssertStoredBody(t *testing.T, m *MockStore, key string, expected []byte) {
	t.Helper()

	e, ok := m.Peek(key)
	if !ok {
		t.Errorf("expected key %q to exist\n%s", key, m.Dump())
		return
	}
	if !bytes.Equal(e.Body, expected) {
		t.Errorf("body mismatch for key %q: expected %q, got %q", key, expected, e.Body)
	}
}

// AssertStoreEmpty asserts nothing is stored.
func AssertStoreEmpty(t *testing.T, m *MockStore) {
	t.Helper()

	if n := m.Len(); n != 0 {
		t.Errorf("expected empty store, found %d entries\n%s", n, m.Dump())
	}
}
