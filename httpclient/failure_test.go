package httpclient

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridewave/httppipe/connectivity"
)

func statusErr(code int, body string, headers ...string) *StatusError {
	return newStatusError(jsonResponse(code, body, headers...))
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		kind    Kind
		status  int
		message string
	}{
		{name: "bad request", err: statusErr(400, `{"message":"invalid pickup"}`), kind: KindValidation, status: 400, message: "invalid pickup"},
		{name: "unprocessable", err: statusErr(422, `{}`), kind: KindValidation, status: 422, message: "Unprocessable Entity"},
		{name: "unauthorized", err: statusErr(401, ``), kind: KindAuthentication, status: 401, message: "Unauthorized"},
		{name: "forbidden", err: statusErr(403, `{"error":"driver only"}`), kind: KindAuthorization, status: 403, message: "driver only"},
		{name: "not found", err: statusErr(404, `{"error":{"message":"no such ride"}}`), kind: KindNotFound, status: 404, message: "no such ride"},
		{name: "request timeout", err: statusErr(408, ``), kind: KindTimeout, status: 408},
		{name: "rate limit", err: statusErr(429, ``), kind: KindRateLimit, status: 429},
		{name: "internal", err: statusErr(500, `{"detail":"db down"}`), kind: KindServer, status: 500, message: "db down"},
		{name: "bad gateway", err: statusErr(502, `not json`), kind: KindServer, status: 502, message: "Bad Gateway"},
		{name: "teapot", err: statusErr(418, ``), kind: KindUnknown, status: 418},
		{name: "wrapped status", err: fmt.Errorf("outer: %w", statusErr(404, ``)), kind: KindNotFound, status: 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.err)
			require.NotNil(t, f)
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.status, f.StatusCode)
			if tt.message != "" {
				assert.Equal(t, tt.message, f.Message)
			}
		})
	}
}

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{name: "timeout", err: &TransportError{Kind: TransportTimeout}, kind: KindTimeout},
		{name: "connection", err: connectionError(), kind: KindNetwork},
		{name: "tls", err: &TransportError{Kind: TransportTLS}, kind: KindNetwork},
		{name: "circuit open", err: &TransportError{Kind: TransportCircuitOpen}, kind: KindNetwork},
		{name: "cancelled", err: &TransportError{Kind: TransportCancelled, Err: context.Canceled}, kind: KindUnknown},
		{name: "other", err: &TransportError{Kind: TransportOther, Message: "weird"}, kind: KindUnknown},
		{name: "offline", err: connectivity.ErrOffline, kind: KindNetwork},
		{name: "bare deadline", err: context.DeadlineExceeded, kind: KindTimeout},
		{name: "bare cancel", err: context.Canceled, kind: KindUnknown},
		{name: "anything else", err: errors.New("boom"), kind: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.err)
			require.NotNil(t, f)
			assert.Equal(t, tt.kind, f.Kind)
			assert.ErrorIs(t, f, tt.err)
		})
	}
}

func TestClassifyPassesFailureThrough(t *testing.T) {
	orig := &Failure{Kind: KindAuthentication, Message: "session expired", StatusCode: 401}
	assert.Same(t, orig, Classify(orig))
	assert.Same(t, orig, Classify(fmt.Errorf("wrapped: %w", orig)))
	assert.Nil(t, Classify(nil))
}

func TestClassifyCancellationKeepsCause(t *testing.T) {
	f := Classify(NewTransportError("request execution failed", fmt.Errorf("send: %w", context.Canceled)))
	assert.Equal(t, KindUnknown, f.Kind)
	assert.True(t, errors.Is(f, context.Canceled))
}

func TestClassifyValidationFieldErrors(t *testing.T) {
	t.Run("object form", func(t *testing.T) {
		f := Classify(statusErr(422, `{"message":"invalid","errors":{"email":"taken","phone":["too short","not numeric"]}}`))
		assert.Equal(t, KindValidation, f.Kind)
		assert.Equal(t, map[string][]string{
			"email": {"taken"},
			"phone": {"too short", "not numeric"},
		}, f.FieldErrors)
	})

	t.Run("array form", func(t *testing.T) {
		f := Classify(statusErr(400, `{"errors":[{"field":"pickup","message":"required"},{"field":"","message":"ignored"}]}`))
		assert.Equal(t, map[string][]string{"pickup": {"required"}}, f.FieldErrors)
	})

	t.Run("no errors", func(t *testing.T) {
		f := Classify(statusErr(400, `{"message":"bad"}`))
		assert.Nil(t, f.FieldErrors)
	})
}

func TestClassifyRateLimitRetryAfter(t *testing.T) {
	f := Classify(statusErr(429, `{}`, "Retry-After", "7"))
	assert.Equal(t, KindRateLimit, f.Kind)
	assert.Equal(t, 7*time.Second, f.RetryAfter)
}

func TestFailureError(t *testing.T) {
	assert.Equal(t, "not_found: no such ride (status 404)", (&Failure{Kind: KindNotFound, Message: "no such ride", StatusCode: 404}).Error())
	assert.Equal(t, "network: no internet connection", NewFailure(KindNetwork, "no internet connection", nil).Error())
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("call: %w", &Failure{Kind: KindRateLimit})
	assert.True(t, IsKind(err, KindRateLimit))
	assert.False(t, IsKind(err, KindServer))
	assert.False(t, IsKind(errors.New("plain"), KindUnknown))
}

func TestTransportKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want TransportErrorKind
	}{
		{name: "nil", err: nil, want: TransportOther},
		{name: "canceled", err: context.Canceled, want: TransportCancelled},
		{name: "deadline", err: context.DeadlineExceeded, want: TransportTimeout},
		{name: "op error", err: connectionError(), want: TransportConnection},
		{name: "unknown authority", err: x509.UnknownAuthorityError{}, want: TransportTLS},
		{name: "plain", err: errors.New("boom"), want: TransportOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transportKind(tt.err))
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, 3*time.Second, parseRetryAfter("3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("-3", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
	assert.Equal(t, time.Duration(0), parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now))
}
