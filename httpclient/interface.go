package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/ridewave/httppipe/trace"
)

// HeaderXRequestID is propagated on every attempt of a call.
const HeaderXRequestID = trace.HeaderXRequestID

// HeaderXCache reports how the cache stage produced a response.
const HeaderXCache = "X-Cache"

// X-Cache values.
const (
	CacheHit         = "HIT"
	CacheMiss        = "MISS"
	CacheStale       = "STALE"
	CacheRevalidated = "REVALIDATED"
)

// Client is a REST client whose calls pass through the resilience pipeline.
// Every error it returns is a *Failure.
type Client interface {
	Get(ctx context.Context, req *Request) (*Response, error)
	Post(ctx context.Context, req *Request) (*Response, error)
	Put(ctx context.Context, req *Request) (*Response, error)
	Patch(ctx context.Context, req *Request) (*Response, error)
	Delete(ctx context.Context, req *Request) (*Response, error)
	Do(ctx context.Context, method string, req *Request) (*Response, error)

	// InvalidateCache evicts the cached GET response for path and query.
	InvalidateCache(ctx context.Context, path string, query url.Values) error
	// ClearCache evicts every cached response.
	ClearCache(ctx context.Context) error

	// Close waits for background cache writes and releases resources the
	// Builder created.
	Close() error
}

// Request describes one logical call. Path is resolved against the base URL
// unless it is absolute.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    []byte
	Options RequestOptions
}

// RequestOptions are per-request overrides of pipeline behaviour. Nil
// pointers mean "use the client configuration".
type RequestOptions struct {
	SkipAuth       bool
	SkipRetry      bool
	SkipCache      bool
	OfflineAllowed bool

	CacheMaxAge   *time.Duration
	CacheMaxStale *time.Duration
	MaxRetries    *int
}

// Duration returns a pointer to d, for RequestOptions fields.
func Duration(d time.Duration) *time.Duration { return &d }

// Int returns a pointer to n, for RequestOptions fields.
func Int(n int) *int { return &n }

// Response is a completed call.
type Response struct {
	StatusCode int
	Body       []byte
	Headers    http.Header
	Stats      Stats
}

// Stats describes how a response was produced.
type Stats struct {
	ElapsedTime time.Duration
	CallCount   int64
	// Attempts is the number of transport sends, 0 for cache hits.
	Attempts int
}

// CacheStatus returns the X-Cache header, empty when the cache stage did
// not touch the response.
func (r *Response) CacheStatus() string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers.Get(HeaderXCache)
}

// IsSuccessStatus reports a 2xx status.
func IsSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func (r *Request) clone() *Request {
	c := *r
	c.Headers = r.Headers.Clone()
	if c.Headers == nil {
		c.Headers = make(http.Header)
	}
	if r.Query != nil {
		c.Query = make(url.Values, len(r.Query))
		for k, v := range r.Query {
			c.Query[k] = append([]string(nil), v...)
		}
	}
	return &c
}
