package httpclient

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerSettings configure BreakerTransport.
type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
	Interval         time.Duration
	MaxRequests      uint32
	OnStateChange    func(name string, from, to gobreaker.State)
}

// errServerStatus marks 5xx responses as breaker failures while still
// handing the response back to the pipeline.
var errServerStatus = errors.New("server error status")

// BreakerTransport trips after consecutive transport failures or 5xx
// responses. While open it fails immediately with a circuit_open
// TransportError, which the retry stage never retries.
type BreakerTransport struct {
	next Transport
	cb   *gobreaker.CircuitBreaker[*Response]
}

// NewBreakerTransport wraps next.
func NewBreakerTransport(next Transport, s BreakerSettings) *BreakerTransport {
	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	name := s.Name
	if name == "" {
		name = "httppipe"
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// A caller giving up says nothing about the server.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: s.OnStateChange,
	})
	return &BreakerTransport{next: next, cb: cb}
}

func (t *BreakerTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	resp, err := t.cb.Execute(func() (*Response, error) {
		resp, err := t.next.Send(ctx, req)
		if err == nil && resp != nil && resp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, err
	})

	switch {
	case errors.Is(err, errServerStatus):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, &TransportError{Kind: TransportCircuitOpen, Message: "circuit breaker open", Err: err}
	case err != nil:
		return nil, err
	}
	return resp, nil
}

// State reports the breaker state.
func (t *BreakerTransport) State() gobreaker.State {
	return t.cb.State()
}
