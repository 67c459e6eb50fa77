// Package trace carries request identifiers through a context so that every
// attempt of a logical call (including retries and auth replays) reports the
// same X-Request-ID.
package trace

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"

	// HeaderXRequestID is the header used to propagate request IDs.
	HeaderXRequestID = "X-Request-ID"
)

// WithRequestID stores a request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID if one is present and non-empty.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}

// EnsureRequestID returns a context that carries a request ID, generating
// one when absent, together with the ID itself.
func EnsureRequestID(ctx context.Context) (context.Context, string) {
	if id, ok := RequestIDFromContext(ctx); ok {
		return ctx, id
	}
	id := NewRequestID()
	return WithRequestID(ctx, id), id
}

// NewRequestID generates a random request ID.
func NewRequestID() string {
	return uuid.NewString()
}
