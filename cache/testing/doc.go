// Package testing provides an in-memory cache.Store double for tests of
// code that sits on top of the response cache.
//
// MockStore keeps entries in a map, counts every call and can be told to
// fail or stall:
//
//	store := testing.NewMockStore().
//	    WithSetFailure(errors.New("disk full")).
//	    WithDelay(50 * time.Millisecond)
//
// Assertion helpers take *testing.T and report through t.Errorf:
//
//	AssertKeyExists(t, store, "GET /rides")
//	AssertOperationCount(t, store, "Set", 1)
//
// For real Redis behaviour use cache/redis with miniredis or the
// integration containers.
package testing
