package testing

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ridewave/httppipe/cache"
)

// Operation names accepted by OperationCount.
const (
	OpGet    = "Get"
	OpSet    = "Set"
	OpRemove = "Remove"
	OpClear  = "Clear"
)

// MockStore is a thread-safe in-memory cache.Store with failure injection
// and call tracking. It never expires entries on its own.
type MockStore struct {
	mu      sync.Mutex
	entries map[string]*cache.Entry

	delay     time.Duration
	getError  error
	setError  error
	remError  error
	clearErr  error
	onSetHook func(key string, entry *cache.Entry)

	getCalls    atomic.Int64
	setCalls    atomic.Int64
	removeCalls atomic.Int64
	clearCalls  atomic.Int64
}

var _ cache.Store = (*MockStore)(nil)

// NewMockStore creates an empty store that succeeds at everything.
func NewMockStore() *MockStore {
	return &MockStore{entries: make(map[string]*cache.Entry)}
}

// WithDelay stalls every operation, honouring context cancellation.
func (m *MockStore) WithDelay(delay time.Duration) *MockStore {
	m.delay = delay
	return m
}

// WithGetFailure makes Get return err.
func (m *MockStore) WithGetFailure(err error) *MockStore {
	m.getError = err
	return m
}

// WithSetFailure makes Set return err.
func (m *MockStore) WithSetFailure(err error) *MockStore {
	m.setError = err
	return m
}

// WithRemoveFailure makes Remove return err.
func (m *MockStore) WithRemoveFailure(err error) *MockStore {
	m.remError = err
	return m
}

// WithClearFailure makes Clear return err.
func (m *MockStore) WithClearFailure(err error) *MockStore {
	m.clearErr = err
	return m
}

// OnSet registers a callback run after each successful Set.
func (m *MockStore) OnSet(fn func(key string, entry *cache.Entry)) *MockStore {
	m.onSetHook = fn
	return m
}

func (m *MockStore) wait(ctx context.Context) error {
	if m.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(m.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get returns a copy of the stored entry.
func (m *MockStore) Get(ctx context.Context, key string) (*cache.Entry, error) {
	m.getCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if m.getError != nil {
		return nil, m.getError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return e.Clone(), nil
}

// Set stores a copy of entry. Entries without a positive lifetime are
// ignored like the real stores do.
func (m *MockStore) Set(ctx context.Context, key string, entry *cache.Entry) error {
	m.setCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return err
	}
	if m.setError != nil {
		return m.setError
	}
	if entry == nil || entry.Lifetime() <= 0 {
		return nil
	}

	m.mu.Lock()
	m.entries[key] = entry.Clone()
	hook := m.onSetHook
	m.mu.Unlock()

	if hook != nil {
		hook(key, entry.Clone())
	}
	return nil
}

// Remove deletes key.
func (m *MockStore) Remove(ctx context.Context, key string) error {
	m.removeCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return err
	}
	if m.remError != nil {
		return m.remError
	}

	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Clear deletes every entry.
func (m *MockStore) Clear(ctx context.Context) error {
	m.clearCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return err
	}
	if m.clearErr != nil {
		return m.clearErr
	}

	m.mu.Lock()
	clear(m.entries)
	m.mu.Unlock()
	return nil
}

// Put seeds an entry without counting a Set.
func (m *MockStore) Put(key string, entry *cache.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry.Clone()
}

// Peek returns a copy of the entry without counting a Get.
func (m *MockStore) Peek(key string) (*cache.Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e.Clone(), ok
}

// Has reports whether key is stored.
func (m *MockStore) Has(key string) bool {
	_, ok := m.Peek(key)
	return ok
}

// Len is the number of stored entries.
func (m *MockStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Keys returns the stored keys, sorted.
func (m *MockStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// OperationCount returns how many times operation was called.
func (m *MockStore) OperationCount(operation string) int64 {
	switch operation {
	case OpGet:
		return m.getCalls.Load()
	case OpSet:
		return m.setCalls.Load()
	case OpRemove:
		return m.removeCalls.Load()
	case OpClear:
		return m.clearCalls.Load()
	default:
		return 0
	}
}

// ResetCounters zeroes all call counters.
func (m *MockStore) ResetCounters() {
	m.getCalls.Store(0)
	m.setCalls.Store(0)
	m.removeCalls.Store(0)
	m.clearCalls.Store(0)
}

// Dump renders the store for failure messages.
func (m *MockStore) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "MockStore (%d entries):\n", m.Len())
	for _, k := range m.Keys() {
		e, _ := m.Peek(k)
		fmt.Fprintf(&b, "  %s: status=%d body=%dB maxAge=%s maxStale=%s\n",
			k, e.StatusCode, len(e.Body), e.MaxAge, e.MaxStale)
	}
	return b.String()
}
