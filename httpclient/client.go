package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/ridewave/httppipe/cache"
	"github.com/ridewave/httppipe/httpclient/internal/tracking"
	"github.com/ridewave/httppipe/logger"
	"github.com/ridewave/httppipe/trace"
)

// client implements the Client interface
type client struct {
	transport Transport
	stages    []Stage
	cache     *CacheStage
	logger    logger.Logger

	logPayloads        bool
	maxPayloadLogBytes int

	closers   []func() error
	callCount int64
}

// Get performs a GET request
func (c *client) Get(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, http.MethodGet, req)
}

// Post performs a POST request
func (c *client) Post(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, http.MethodPost, req)
}

// Put performs a PUT request
func (c *client) Put(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, http.MethodPut, req)
}

// Patch performs a PATCH request
func (c *client) Patch(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, http.MethodPatch, req)
}

// Delete performs a DELETE request
func (c *client) Delete(ctx context.Context, req *Request) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, req)
}

// Do runs one logical call through the pipeline. The caller's request is
// not modified.
func (c *client) Do(ctx context.Context, method string, req *Request) (*Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	r := req.clone()
	r.Method = method

	requestID := r.Headers.Get(HeaderXRequestID)
	if requestID != "" {
		ctx = trace.WithRequestID(ctx, requestID)
	} else {
		ctx, requestID = trace.EnsureRequestID(ctx)
		r.Headers.Set(HeaderXRequestID, requestID)
	}

	callCount := atomic.AddInt64(&c.callCount, 1)
	ctx, span := tracking.StartCall(ctx, method, r.Path)
	call := newCall(r, requestID)
	c.logRequest(call)

	resp, err := c.execute(ctx, call)
	elapsed := time.Since(call.start)

	if err != nil {
		failure := Classify(err)
		tracking.RecordRequest(ctx, method, failure.StatusCode, elapsed)
		tracking.RecordFailure(ctx, string(failure.Kind))
		tracking.EndCall(span, failure.StatusCode, string(failure.Kind), failure)
		c.logFailure(call, failure, elapsed, callCount)
		return nil, failure
	}

	resp.Stats = Stats{
		ElapsedTime: elapsed,
		CallCount:   callCount,
		Attempts:    call.attempts,
	}
	tracking.RecordRequest(ctx, method, resp.StatusCode, elapsed)
	tracking.EndCall(span, resp.StatusCode, "", nil)
	c.logResponse(call, resp)
	return resp, nil
}

// send runs an internal request through the pipeline without the
// caller-facing bookkeeping. Errors are left unclassified.
func (c *client) send(ctx context.Context, req *Request) (*Response, error) {
	r := req.clone()
	ctx, requestID := trace.EnsureRequestID(ctx)
	if r.Headers.Get(HeaderXRequestID) == "" {
		r.Headers.Set(HeaderXRequestID, requestID)
	}
	return c.execute(ctx, newCall(r, requestID))
}

func (c *client) InvalidateCache(ctx context.Context, path string, query url.Values) error {
	if c.cache == nil {
		return nil
	}
	if err := c.cache.Store().Remove(ctx, cache.Key(http.MethodGet, path, query)); err != nil {
		return Classify(err)
	}
	return nil
}

func (c *client) ClearCache(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	if err := c.cache.Store().Clear(ctx); err != nil {
		return Classify(err)
	}
	return nil
}

// Close flushes pending cache writes and releases resources the builder
// created.
func (c *client) Close() error {
	if c.cache != nil {
		c.cache.Wait()
	}
	var errs []error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateRequest(req *Request) error {
	if req == nil {
		return &Failure{Kind: KindValidation, Message: "request cannot be nil"}
	}
	if req.Path == "" {
		return &Failure{Kind: KindValidation, Message: "path cannot be empty", FieldErrors: map[string][]string{"path": {"required"}}}
	}
	return nil
}
