package httpclient

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridewave/httppipe/cache"
	cachetest "github.com/ridewave/httppipe/cache/testing"
)

const ridesKey = "GET /rides"

func newCachingClient(t *testing.T, transport Transport, store cache.Store, clock *fakeClock) Client {
	t.Helper()
	c, err := NewBuilder(nil).
		WithTransport(transport).
		WithCache(store, CacheOptions{DefaultTTL: time.Minute, Now: clock.Now}).
		Build()
	require.NoError(t, err)
	return c
}

func TestCacheStaleWhileRevalidateRoundTrip(t *testing.T) {
	clock := newFakeClock()
	store := cachetest.NewMockStore()
	transport := newScriptedTransport(func(n int, req *Request) (*Response, error) {
		if n == 0 {
			return jsonResponse(http.StatusOK, `{"rides":[1,2]}`,
				"ETag", `"v1"`,
				"Cache-Control", "max-age=60, stale-while-revalidate=300"), nil
		}
		if req.Headers.Get("If-None-Match") == `"v1"` {
			return &Response{StatusCode: http.StatusNotModified, Headers: http.Header{"Cache-Control": []string{"max-age=120"}}}, nil
		}
		return jsonResponse(http.StatusOK, `{"rides":[]}`), nil
	})
	c := newCachingClient(t, transport, store, clock)
	ctx := t.Context()

	first, err := c.Get(ctx, &Request{Path: "/rides"})
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, first.CacheStatus())
	cachetest.AssertStoredBody(t, store, ridesKey, []byte(`{"rides":[1,2]}`))

	clock.Advance(30 * time.Second)
	hit, err := c.Get(ctx, &Request{Path: "/rides"})
	require.NoError(t, err)
	assert.Equal(t, CacheHit, hit.CacheStatus())
	assert.Equal(t, 0, hit.Stats.Attempts)
	assert.Equal(t, 1, transport.count())

	clock.Advance(60 * time.Second)
	revalidated, err := c.Get(ctx, &Request{Path: "/rides"})
	require.NoError(t, err)
	assert.Equal(t, CacheRevalidated, revalidated.CacheStatus())
	assert.Equal(t, http.StatusOK, revalidated.StatusCode)
	assert.JSONEq(t, `{"rides":[1,2]}`, string(revalidated.Body))
	assert.Equal(t, 2, transport.count())
	assert.Equal(t, `"v1"`, transport.request(1).Headers.Get("If-None-Match"))

	entry, ok := store.Peek(ridesKey)
	require.True(t, ok)
	assert.Equal(t, clock.Now(), entry.CachedAt)
	assert.Equal(t, 120*time.Second, entry.MaxAge)
	assert.Equal(t, 300*time.Second, entry.MaxStale)

	clock.Advance(90 * time.Second)
	again, err := c.Get(ctx, &Request{Path: "/rides"})
	require.NoError(t, err)
	assert.Equal(t, CacheHit, again.CacheStatus())
	assert.Equal(t, 2, transport.count())
}

func TestCacheExpiredEntryIsRefetched(t *testing.T) {
	clock := newFakeClock()
	store := cachetest.NewMockStore()
	transport := newScriptedTransport(func(n int, req *Request) (*Response, error) {
		assert.Empty(t, req.Headers.Get("If-None-Match"))
		return jsonResponse(http.StatusOK, `{"n":1}`, "ETag", `"v1"`, "Cache-Control", "max-age=10"), nil
	})
	c := newCachingClient(t, transport, store, clock)

	_, err := c.Get(t.Context(), &Request{Path: "/rides"})
	require.NoError(t, err)

	clock.Advance(11 * time.Second)
	resp, err := c.Get(t.Context(), &Request{Path: "/rides"})
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, resp.CacheStatus())
	assert.Equal(t, 2, transport.count())
}

func TestCacheStoresOnlyCacheableResponses(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		resp    *Response
		options RequestOptions
	}{
		{name: "post", method: http.MethodPost, resp: jsonResponse(http.StatusOK, `{}`)},
		{name: "created", method: http.MethodGet, resp: jsonResponse(http.StatusCreated, `{}`)},
		{name: "no-store", method: http.MethodGet, resp: jsonResponse(http.StatusOK, `{}`, "Cache-Control", "no-store")},
		{name: "skip cache", method: http.MethodGet, resp: jsonResponse(http.StatusOK, `{}`), options: RequestOptions{SkipCache: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cachetest.NewMockStore()
			transport := newScriptedTransport(func(int, *Request) (*Response, error) { return tt.resp, nil })
			c := newCachingClient(t, transport, store, newFakeClock())

			resp, err := c.Do(t.Context(), tt.method, &Request{Path: "/rides", Options: tt.options})
			require.NoError(t, err)
			assert.Empty(t, resp.CacheStatus())
			cachetest.AssertStoreEmpty(t, store)
		})
	}
}

func TestCacheLifetimePrecedence(t *testing.T) {
	tests := []struct {
		name         string
		cacheControl string
		options      RequestOptions
		maxAge       time.Duration
		maxStale     time.Duration
	}{
		{name: "defaults", maxAge: time.Minute, maxStale: 0},
		{name: "headers", cacheControl: "max-age=30, stale-while-revalidate=90", maxAge: 30 * time.Second, maxStale: 90 * time.Second},
		{
			name:         "request overrides win",
			cacheControl: "max-age=30, stale-while-revalidate=90",
			options:      RequestOptions{CacheMaxAge: Duration(5 * time.Minute), CacheMaxStale: Duration(time.Hour)},
			maxAge:       5 * time.Minute,
			maxStale:     time.Hour,
		},
		{name: "no-cache forces revalidation", cacheControl: "no-cache, stale-while-revalidate=60", maxAge: 0, maxStale: time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := cachetest.NewMockStore()
			transport := newScriptedTransport(func(int, *Request) (*Response, error) {
				return jsonResponse(http.StatusOK, `{}`, "Cache-Control", tt.cacheControl), nil
			})
			c := newCachingClient(t, transport, store, newFakeClock())

			_, err := c.Get(t.Context(), &Request{Path: "/rides", Options: tt.options})
			require.NoError(t, err)

			entry, ok := store.Peek(ridesKey)
			require.True(t, ok, store.Dump())
			assert.Equal(t, tt.maxAge, entry.MaxAge)
			assert.Equal(t, tt.maxStale, entry.MaxStale)
		})
	}
}

func TestCacheServesStaleOnNetworkError(t *testing.T) {
	clock := newFakeClock()
	store := cachetest.NewMockStore()
	store.Put(ridesKey, &cache.Entry{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"cached":true}`),
		CachedAt:   clock.Now(),
		MaxAge:     time.Minute,
		MaxStale:   time.Hour,
	})
	transport := newScriptedTransport(func(int, *Request) (*Response, error) {
		return nil, connectionError()
	})
	c, err := NewBuilder(nil).
		WithTransport(transport).
		WithCache(store, CacheOptions{DefaultTTL: time.Minute, Now: clock.Now}).
		WithRetry(fastRetry(2)).
		Build()
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	resp, err := c.Get(t.Context(), &Request{Path: "/rides"})

	require.NoError(t, err)
	assert.Equal(t, CacheStale, resp.CacheStatus())
	assert.JSONEq(t, `{"cached":true}`, string(resp.Body))
	assert.Equal(t, 1, resp.Stats.Attempts)
}

func TestCacheDoesNotMaskServerErrors(t *testing.T) {
	clock := newFakeClock()
	store := cachetest.NewMockStore()
	store.Put(ridesKey, &cache.Entry{
		StatusCode: http.StatusOK,
		Body:       []byte(`{}`),
		CachedAt:   clock.Now(),
		MaxAge:     time.Second,
		MaxStale:   time.Hour,
	})
	transport := newScriptedTransport(func(int, *Request) (*Response, error) {
		return jsonResponse(http.StatusInternalServerError, ``), nil
	})
	c := newCachingClient(t, transport, store, clock)

	clock.Advance(time.Minute)
	_, err := c.Get(t.Context(), &Request{Path: "/rides"})

	assert.True(t, IsKind(err, KindServer))
}

func TestCacheExpiredEntryNotServedOnNetworkError(t *testing.T) {
	clock := newFakeClock()
	store := cachetest.NewMockStore()
	store.Put(ridesKey, &cache.Entry{
		StatusCode: http.StatusOK,
		Body:       []byte(`{}`),
		CachedAt:   clock.Now(),
		MaxAge:     time.Second,
		MaxStale:   time.Second,
	})
	transport := newScriptedTransport(func(int, *Request) (*Response, error) {
		return nil, connectionError()
	})
	c := newCachingClient(t, transport, store, clock)

	clock.Advance(time.Minute)
	_, err := c.Get(t.Context(), &Request{Path: "/rides"})

	assert.True(t, IsKind(err, KindNetwork))
}

func TestCacheStoreFailuresDoNotFailCalls(t *testing.T) {
	store := cachetest.NewMockStore().
		WithGetFailure(errors.New("backend down")).
		WithSetFailure(errors.New("backend down"))
	log := &fakeLogger{}
	transport := newScriptedTransport(func(int, *Request) (*Response, error) {
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	c, err := NewBuilder(log).
		WithTransport(transport).
		WithCache(store, CacheOptions{DefaultTTL: time.Minute}).
		Build()
	require.NoError(t, err)

	resp, err := c.Get(t.Context(), &Request{Path: "/rides"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, log.eventsByMessage("Cache lookup failed"), 1)
	assert.Len(t, log.eventsByMessage("Failed to store cached response"), 1)
}

func TestCacheAsyncWrites(t *testing.T) {
	store := cachetest.NewMockStore().WithDelay(20 * time.Millisecond)
	transport := newScriptedTransport(func(int, *Request) (*Response, error) {
		return jsonResponse(http.StatusOK, `{"a":1}`), nil
	})
	c, err := NewBuilder(nil).
		WithTransport(transport).
		WithCache(store, CacheOptions{DefaultTTL: time.Minute, AsyncWrites: true}).
		Build()
	require.NoError(t, err)

	_, err = c.Get(t.Context(), &Request{Path: "/rides", Query: url.Values{"city": {"porto"}}})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	cachetest.AssertKeyExists(t, store, "GET /rides?city=porto")
}

func TestCacheInvalidation(t *testing.T) {
	store := cachetest.NewMockStore()
	transport := newScriptedTransport(func(int, *Request) (*Response, error) {
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	c := newCachingClient(t, transport, store, newFakeClock())
	ctx := t.Context()

	_, err := c.Get(ctx, &Request{Path: "/rides", Query: url.Values{"b": {"2"}, "a": {"1"}}})
	require.NoError(t, err)
	_, err = c.Get(ctx, &Request{Path: "/drivers"})
	require.NoError(t, err)

	require.NoError(t, c.InvalidateCache(ctx, "/rides", url.Values{"a": {"1"}, "b": {"2"}}))
	cachetest.AssertKeyNotExists(t, store, "GET /rides?a=1&b=2")
	cachetest.AssertKeyExists(t, store, "GET /drivers")

	require.NoError(t, c.ClearCache(ctx))
	cachetest.AssertStoreEmpty(t, store)

	store.WithClearFailure(errors.New("denied"))
	err = c.ClearCache(ctx)
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, KindUnknown, f.Kind)
}

func TestCacheWithoutStoreIgnoresInvalidation(t *testing.T) {
	c, err := NewBuilder(nil).WithTransport(newScriptedTransport(nil)).Build()
	require.NoError(t, err)

	assert.NoError(t, c.InvalidateCache(t.Context(), "/rides", nil))
	assert.NoError(t, c.ClearCache(t.Context()))
}
