package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// scriptedTransport answers from a handler and records a snapshot of every
// request it receives.
type scriptedTransport struct {
	mu      sync.Mutex
	calls   []*Request
	handler func(n int, req *Request) (*Response, error)
}

func newScriptedTransport(handler func(n int, req *Request) (*Response, error)) *scriptedTransport {
	return &scriptedTransport{handler: handler}
}

func (s *scriptedTransport) Send(_ context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, req.clone())
	s.mu.Unlock()
	return s.handler(n, req)
}

func (s *scriptedTransport) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedTransport) countPath(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.calls {
		if r.Path == path {
			n++
		}
	}
	return n
}

func (s *scriptedTransport) request(i int) *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

func jsonResponse(status int, body string, headers ...string) *Response {
	h := http.Header{"Content-Type": []string{"application/json"}}
	for i := 0; i+1 < len(headers); i += 2 {
		h.Set(headers[i], headers[i+1])
	}
	return &Response{StatusCode: status, Body: []byte(body), Headers: h}
}

func connectionError() error {
	return NewTransportError("request execution failed", &net.OpError{Op: "dial", Net: "tcp", Err: errConnRefused})
}

type refusedError struct{}

func (refusedError) Error() string { return "connection refused" }

var errConnRefused = refusedError{}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fastRetry keeps backoff waits in the millisecond range.
func fastRetry(maxRetries int) RetryPolicy {
	p := DefaultRetryPolicy()
	p.MaxRetries = maxRetries
	p.BaseDelay = time.Millisecond
	p.MaxBackoff = 4 * time.Millisecond
	return p
}

func stageOf[T Stage](t *testing.T, c Client) T {
	t.Helper()
	for _, s := range c.(*client).stages {
		if v, ok := s.(T); ok {
			return v
		}
	}
	var zero T
	t.Fatalf("stage %T not configured", zero)
	return zero
}

func stageNames(c Client) []string {
	var names []string
	for _, s := range c.(*client).stages {
		names = append(names, s.Name())
	}
	return names
}

// newIPv4TestServer creates an httptest server bound to IPv4 loopback so
// tests work in sandboxes without IPv6.
func newIPv4TestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: unable to bind IPv4 listener: %v", err)
		return &httptest.Server{}
	}

	server := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	server.Start()
	t.Cleanup(server.Close)
	return server
}
