package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ridewave/httppipe/connectivity"
)

// Kind is the closed set of failure categories callers handle.
type Kind string

const (
	KindTimeout        Kind = "timeout"
	KindNetwork        Kind = "network"
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindRateLimit      Kind = "rate_limit"
	KindServer         Kind = "server"
	KindUnknown        Kind = "unknown"
)

// Failure is the only error type a Client returns.
type Failure struct {
	Kind       Kind
	Message    string
	StatusCode int

	// FieldErrors maps field names to messages for validation failures.
	FieldErrors map[string][]string
	// RetryAfter is the server's requested wait for rate-limit failures.
	RetryAfter time.Duration

	Err error
}

func (f *Failure) Error() string {
	if f.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d)", f.Kind, f.Message, f.StatusCode)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure creates a failure without a status code.
func NewFailure(kind Kind, message string, err error) *Failure {
	return &Failure{Kind: kind, Message: message, Err: err}
}

// IsKind reports whether err is a *Failure of the given kind.
func IsKind(err error, kind Kind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}

// Classify maps any pipeline error into a *Failure. A *Failure passes
// through unchanged; nil stays nil.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}

	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	if errors.Is(err, context.Canceled) {
		return NewFailure(KindUnknown, "request cancelled", err)
	}
	if errors.Is(err, connectivity.ErrOffline) {
		return NewFailure(KindNetwork, "no internet connection", err)
	}

	var se *StatusError
	if errors.As(err, &se) {
		return classifyStatus(se)
	}

	var te *TransportError
	if errors.As(err, &te) {
		return classifyTransport(te)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewFailure(KindTimeout, "request timed out", err)
	}
	return NewFailure(KindUnknown, err.Error(), err)
}

func classifyTransport(te *TransportError) *Failure {
	switch te.Kind {
	case TransportTimeout:
		return NewFailure(KindTimeout, "request timed out", te)
	case TransportConnection:
		return NewFailure(KindNetwork, "connection failed", te)
	case TransportTLS:
		return NewFailure(KindNetwork, "secure connection failed", te)
	case TransportCircuitOpen:
		return NewFailure(KindNetwork, "service temporarily unavailable", te)
	case TransportCancelled:
		return NewFailure(KindUnknown, "request cancelled", te)
	default:
		return NewFailure(KindUnknown, te.Message, te)
	}
}

func classifyStatus(se *StatusError) *Failure {
	f := &Failure{
		StatusCode: se.StatusCode,
		Message:    serverMessage(se.Body, se.StatusCode),
		Err:        se,
	}

	switch code := se.StatusCode; {
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		f.Kind = KindValidation
		f.FieldErrors = fieldErrors(se.Body)
	case code == http.StatusUnauthorized:
		f.Kind = KindAuthentication
	case code == http.StatusForbidden:
		f.Kind = KindAuthorization
	case code == http.StatusNotFound:
		f.Kind = KindNotFound
	case code == http.StatusRequestTimeout:
		f.Kind = KindTimeout
	case code == http.StatusTooManyRequests:
		f.Kind = KindRateLimit
		f.RetryAfter = se.RetryAfter(time.Now())
	case code >= 500 && code < 600:
		f.Kind = KindServer
	default:
		f.Kind = KindUnknown
	}
	return f
}

// serverMessage extracts a human message from a JSON error body, falling
// back to the status text.
func serverMessage(body []byte, status int) string {
	if len(body) > 0 && gjson.ValidBytes(body) {
		for _, path := range []string{"message", "error.message", "error", "detail"} {
			if r := gjson.GetBytes(body, path); r.Type == gjson.String && r.String() != "" {
				return r.String()
			}
		}
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("unexpected status %d", status)
}

// fieldErrors reads "errors" as either {"field": "msg" | ["msg", ...]} or
// [{"field": ..., "message": ...}].
func fieldErrors(body []byte) map[string][]string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil
	}

	out := make(map[string][]string)
	res := gjson.GetBytes(body, "errors")
	switch {
	case res.IsObject():
		res.ForEach(func(key, value gjson.Result) bool {
			if value.IsArray() {
				for _, m := range value.Array() {
					out[key.String()] = append(out[key.String()], m.String())
				}
			} else {
				out[key.String()] = append(out[key.String()], value.String())
			}
			return true
		})
	case res.IsArray():
		for _, item := range res.Array() {
			field := item.Get("field").String()
			msg := item.Get("message").String()
			if field == "" || msg == "" {
				continue
			}
			out[field] = append(out[field], msg)
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}
