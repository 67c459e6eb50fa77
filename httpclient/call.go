package httpclient

import (
	"time"

	"github.com/ridewave/httppipe/cache"
)

// Call is the state of one logical request while it moves through the
// pipeline. A replay re-enters the stages with the same Call, so headers
// set by earlier passes, the retry counter and the auth replay marker all
// survive. A Call is owned by a single goroutine.
type Call struct {
	Request *Request

	requestID string
	start     time.Time
	attempts  int
	retries   int

	authReplayed bool
	sentToken    string

	cacheKey    string
	staleEntry  *cache.Entry
	conditional bool
}

func newCall(req *Request, requestID string) *Call {
	return &Call{Request: req, requestID: requestID, start: time.Now()}
}

// Options returns the request overrides.
func (c *Call) Options() RequestOptions { return c.Request.Options }

// Attempts is the number of transport sends so far.
func (c *Call) Attempts() int { return c.attempts }

// Retries is the number of retries the retry stage has scheduled.
func (c *Call) Retries() int { return c.retries }

// RequestID is the X-Request-ID shared by every attempt.
func (c *Call) RequestID() string { return c.requestID }
