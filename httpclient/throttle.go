package httpclient

import (
	"context"

	"golang.org/x/time/rate"
)

// ThrottleStage spaces attempts with a token bucket. Every attempt,
// including retries and replays, takes a token.
type ThrottleStage struct {
	BaseStage
	limiter *rate.Limiter
}

// NewThrottleStage allows rps attempts per second with the given burst.
func NewThrottleStage(rps float64, burst int) *ThrottleStage {
	if burst < 1 {
		burst = 1
	}
	return &ThrottleStage{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (s *ThrottleStage) Name() string { return "throttle" }

func (s *ThrottleStage) OnRequest(ctx context.Context, _ *Call) Result {
	if err := s.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Fail(ctxErr)
		}
		// The wait would outlast the context deadline.
		return Fail(&TransportError{Kind: TransportTimeout, Message: "rate limit wait exceeds deadline", Err: err})
	}
	return Continue()
}
