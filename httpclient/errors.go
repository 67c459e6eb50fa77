package httpclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

// TransportErrorKind classifies why no response was received.
type TransportErrorKind string

const (
	TransportTimeout     TransportErrorKind = "timeout"
	TransportConnection  TransportErrorKind = "connection"
	TransportTLS         TransportErrorKind = "tls"
	TransportCancelled   TransportErrorKind = "cancelled"
	TransportCircuitOpen TransportErrorKind = "circuit_open"
	TransportOther       TransportErrorKind = "other"
)

// TransportError is raised when the transport produced no response. It is
// internal to the pipeline and converted into a *Failure before returning.
type TransportError struct {
	Kind    TransportErrorKind
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport error (%s): %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("transport error (%s): %s", e.Kind, e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError builds a TransportError, inferring the kind from err.
func NewTransportError(message string, err error) *TransportError {
	return &TransportError{Kind: transportKind(err), Message: message, Err: err}
}

// IsNetworkClass reports failures where the server was never reached or
// never answered: timeouts and connection errors.
func (e *TransportError) IsNetworkClass() bool {
	return e.Kind == TransportTimeout || e.Kind == TransportConnection
}

func transportKind(err error) TransportErrorKind {
	if err == nil {
		return TransportOther
	}
	if errors.Is(err, context.Canceled) {
		return TransportCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TransportTimeout
	}
	if isTLSError(err) {
		return TransportTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportTimeout
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.Is(err, net.ErrClosed) {
		return TransportConnection
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return TransportConnection
	}
	return TransportOther
}

func isTLSError(err error) bool {
	var (
		certVerify  *tls.CertificateVerificationError
		recordHdr   tls.RecordHeaderError
		unknownAuth x509.UnknownAuthorityError
		hostname    x509.HostnameError
		invalid     x509.CertificateInvalidError
	)
	return errors.As(err, &certVerify) ||
		errors.As(err, &recordHdr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid)
}

// StatusError is raised for any response that is neither 2xx nor 304. It
// is internal to the pipeline.
type StatusError struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error: status %d", e.StatusCode)
}

func newStatusError(resp *Response) *StatusError {
	return &StatusError{StatusCode: resp.StatusCode, Headers: resp.Headers, Body: resp.Body}
}

// RetryAfter parses the Retry-After header as delta seconds or an HTTP
// date. It returns 0 when absent or unparsable.
func (e *StatusError) RetryAfter(now time.Time) time.Duration {
	return parseRetryAfter(e.Headers.Get("Retry-After"), now)
}

func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func statusOf(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}
