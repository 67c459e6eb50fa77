package httpclient

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/ridewave/httppipe/cache"
	"github.com/ridewave/httppipe/httpclient/internal/tracking"
	"github.com/ridewave/httppipe/logger"
)

// DefaultCacheTTL is the freshness lifetime for responses without max-age.
const DefaultCacheTTL = 5 * time.Minute

// CacheOptions configure the cache stage.
type CacheOptions struct {
	DefaultTTL      time.Duration
	DefaultMaxStale time.Duration
	// AsyncWrites stores responses in the background. Call Wait (or
	// Client.Close) to flush.
	AsyncWrites bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// CacheStage serves GET responses from a cache.Store with
// stale-while-revalidate semantics.
type CacheStage struct {
	BaseStage
	store cache.Store
	log   logger.Logger
	opts  CacheOptions
	now   func() time.Time

	writes sync.WaitGroup
}

// NewCacheStage creates the cache stage over store.
func NewCacheStage(store cache.Store, log logger.Logger, opts CacheOptions) *CacheStage {
	if log == nil {
		log = logger.Nop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &CacheStage{store: store, log: log, opts: opts, now: now}
}

func (s *CacheStage) Name() string { return "cache" }

// Store returns the backing store.
func (s *CacheStage) Store() cache.Store { return s.store }

// Wait blocks until pending background writes finish.
func (s *CacheStage) Wait() { s.writes.Wait() }

func cacheable(call *Call) bool {
	return call.Request.Method == http.MethodGet && !call.Options().SkipCache
}

func (s *CacheStage) OnRequest(ctx context.Context, call *Call) Result {
	call.staleEntry = nil
	if call.conditional {
		call.Request.Headers.Del("If-None-Match")
		call.Request.Headers.Del("If-Modified-Since")
		call.conditional = false
	}
	if !cacheable(call) {
		return Continue()
	}

	call.cacheKey = cache.Key(http.MethodGet, call.Request.Path, call.Request.Query)
	entry, err := s.store.Get(ctx, call.cacheKey)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			s.log.Warn().Err(err).Str("cache_key", call.cacheKey).Msg("Cache lookup failed")
		}
		tracking.RecordCacheLookup(ctx, tracking.CacheMiss)
		return Continue()
	}

	switch entry.Freshness(s.now()) {
	case cache.Fresh:
		tracking.RecordCacheLookup(ctx, tracking.CacheHit)
		return ShortCircuit(responseFromEntry(entry, CacheHit))
	case cache.StaleUsable:
		call.staleEntry = entry
		if entry.HasValidators() && call.Request.Headers.Get("If-None-Match") == "" &&
			call.Request.Headers.Get("If-Modified-Since") == "" {
			if entry.ETag != "" {
				call.Request.Headers.Set("If-None-Match", entry.ETag)
			}
			if entry.LastModified != "" {
				call.Request.Headers.Set("If-Modified-Since", entry.LastModified)
			}
			call.conditional = true
		}
	default:
		tracking.RecordCacheLookup(ctx, tracking.CacheMiss)
	}
	return Continue()
}

func (s *CacheStage) OnResponse(ctx context.Context, call *Call, resp *Response) *Response {
	if !cacheable(call) || call.cacheKey == "" {
		return resp
	}

	switch resp.StatusCode {
	case http.StatusNotModified:
		return s.revalidated(ctx, call, resp)
	case http.StatusOK:
		return s.stored(ctx, call, resp)
	default:
		return resp
	}
}

func (s *CacheStage) revalidated(ctx context.Context, call *Call, resp *Response) *Response {
	stale := call.staleEntry
	if stale == nil {
		return resp
	}
	call.staleEntry = nil

	entry := stale.Clone()
	entry.CachedAt = s.now()
	cc := cache.ParseCacheControl(resp.Headers.Get("Cache-Control"))
	entry.MaxAge = s.maxAge(call, cc, entry.MaxAge)
	if etag := resp.Headers.Get("ETag"); etag != "" {
		entry.ETag = etag
	}
	if lm := resp.Headers.Get("Last-Modified"); lm != "" {
		entry.LastModified = lm
	}

	s.write(ctx, call.cacheKey, entry)
	tracking.RecordCacheLookup(ctx, tracking.CacheRevalidated)
	return responseFromEntry(entry, CacheRevalidated)
}

func (s *CacheStage) stored(ctx context.Context, call *Call, resp *Response) *Response {
	cc := cache.ParseCacheControl(resp.Headers.Get("Cache-Control"))
	if cc.NoStore {
		return resp
	}

	entry := &cache.Entry{
		StatusCode:   resp.StatusCode,
		Headers:      resp.Headers.Clone(),
		Body:         slices.Clone(resp.Body),
		CachedAt:     s.now(),
		MaxAge:       s.maxAge(call, cc, s.opts.DefaultTTL),
		MaxStale:     s.maxStale(call, cc),
		ETag:         resp.Headers.Get("ETag"),
		LastModified: resp.Headers.Get("Last-Modified"),
	}
	s.write(ctx, call.cacheKey, entry)

	out := *resp
	out.Headers = resp.Headers.Clone()
	if out.Headers == nil {
		out.Headers = make(http.Header)
	}
	out.Headers.Set(HeaderXCache, CacheMiss)
	return &out
}

// OnError serves a not yet expired entry when the server could not be
// reached. HTTP error statuses are never masked.
func (s *CacheStage) OnError(ctx context.Context, call *Call, err error) Result {
	if !cacheable(call) || call.cacheKey == "" {
		return Continue()
	}
	var te *TransportError
	if !errors.As(err, &te) || !te.IsNetworkClass() {
		return Continue()
	}

	entry := call.staleEntry
	if entry == nil {
		var getErr error
		if entry, getErr = s.store.Get(ctx, call.cacheKey); getErr != nil {
			return Continue()
		}
	}
	if entry.IsExpired(s.now()) {
		return Continue()
	}

	s.log.Warn().
		Err(err).
		Str("request_id", call.requestID).
		Str("cache_key", call.cacheKey).
		Dur("age", entry.Age(s.now())).
		Msg("Serving stale response after network failure")
	tracking.RecordCacheLookup(ctx, tracking.CacheStale)
	return ShortCircuit(responseFromEntry(entry, CacheStale))
}

// maxAge applies request override > no-cache > max-age > fallback.
func (s *CacheStage) maxAge(call *Call, cc cache.CacheControl, fallback time.Duration) time.Duration {
	switch {
	case call.Options().CacheMaxAge != nil:
		return *call.Options().CacheMaxAge
	case cc.NoCache:
		return 0
	case cc.HasMaxAge:
		return cc.MaxAge
	default:
		return fallback
	}
}

// maxStale applies request override > stale-while-revalidate > default.
func (s *CacheStage) maxStale(call *Call, cc cache.CacheControl) time.Duration {
	switch {
	case call.Options().CacheMaxStale != nil:
		return *call.Options().CacheMaxStale
	case cc.HasStaleWhileRevalidate:
		return cc.StaleWhileRevalidate
	default:
		return s.opts.DefaultMaxStale
	}
}

func (s *CacheStage) write(ctx context.Context, key string, entry *cache.Entry) {
	if !s.opts.AsyncWrites {
		s.set(ctx, key, entry)
		return
	}

	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		s.set(context.WithoutCancel(ctx), key, entry)
	}()
}

func (s *CacheStage) set(ctx context.Context, key string, entry *cache.Entry) {
	if err := s.store.Set(ctx, key, entry); err != nil {
		s.log.Warn().Err(err).Str("cache_key", key).Msg("Failed to store cached response")
	}
}

func responseFromEntry(entry *cache.Entry, status string) *Response {
	headers := entry.Headers.Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	headers.Set(HeaderXCache, status)
	return &Response{
		StatusCode: entry.StatusCode,
		Body:       slices.Clone(entry.Body),
		Headers:    headers,
	}
}
