package httpclient

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/ridewave/httppipe/httpclient/internal/tracking"
	"github.com/ridewave/httppipe/logger"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1 * time.Second
	DefaultMaxBackoff = 30 * time.Second

	// maxBackoffExponent keeps base*2^n from overflowing.
	maxBackoffExponent = 20
)

// DefaultRetryStatuses are the statuses retried unless configured otherwise.
var DefaultRetryStatuses = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryPolicy configures the retry stage.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxBackoff time.Duration
	Statuses   []int
	// RetryRateLimited controls whether 429 is retried when it is in
	// Statuses.
	RetryRateLimited bool
}

// DefaultRetryPolicy returns three retries starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:       DefaultMaxRetries,
		BaseDelay:        DefaultBaseDelay,
		MaxBackoff:       DefaultMaxBackoff,
		Statuses:         append([]int(nil), DefaultRetryStatuses...),
		RetryRateLimited: true,
	}
}

// RetryStage replays calls that failed transiently, waiting an exponential
// backoff with jitter between attempts.
type RetryStage struct {
	BaseStage
	policy   RetryPolicy
	statuses map[int]struct{}
	log      logger.Logger

	jitter func(limit time.Duration) time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
	now    func() time.Time
}

// NewRetryStage creates the retry stage. Zero delays fall back to the
// defaults.
func NewRetryStage(policy RetryPolicy, log logger.Logger) *RetryStage {
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = DefaultBaseDelay
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = DefaultMaxBackoff
	}
	if policy.MaxBackoff < policy.BaseDelay {
		policy.MaxBackoff = policy.BaseDelay
	}
	if policy.Statuses == nil {
		policy.Statuses = DefaultRetryStatuses
	}
	if log == nil {
		log = logger.Nop()
	}

	statuses := make(map[int]struct{}, len(policy.Statuses))
	for _, code := range policy.Statuses {
		statuses[code] = struct{}{}
	}

	return &RetryStage{
		policy:   policy,
		statuses: statuses,
		log:      log,
		jitter:   uniformJitter,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

func (s *RetryStage) Name() string { return "retry" }

func (s *RetryStage) OnError(ctx context.Context, call *Call, err error) Result {
	if call.Options().SkipRetry {
		return Continue()
	}

	reason, ok := s.retryReason(err)
	if !ok {
		return Continue()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Fail(ctxErr)
	}

	limit := s.policy.MaxRetries
	if override := call.Options().MaxRetries; override != nil {
		limit = *override
	}
	if call.retries >= limit {
		return Continue()
	}

	delay := s.Backoff(call.retries)
	var se *StatusError
	if errors.As(err, &se) {
		if ra := se.RetryAfter(s.now()); ra > delay {
			delay = min(ra, s.policy.MaxBackoff)
		}
	}

	s.log.Warn().
		Str("request_id", call.requestID).
		Str("reason", reason).
		Int("retry", call.retries+1).
		Int("max_retries", limit).
		Dur("delay", delay).
		Msg("Retrying request")
	tracking.RecordRetry(ctx, reason)

	if err := s.sleep(ctx, delay); err != nil {
		return Fail(err)
	}
	call.retries++
	return Replay()
}

// Backoff is min(base*2^retry, maxBackoff) plus up to a quarter of that as
// jitter.
func (s *RetryStage) Backoff(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	if retry > maxBackoffExponent {
		retry = maxBackoffExponent
	}

	d := s.policy.BaseDelay * time.Duration(1<<retry)
	if d > s.policy.MaxBackoff || d <= 0 {
		d = s.policy.MaxBackoff
	}
	return d + s.jitter(d/4)
}

func (s *RetryStage) retryReason(err error) (string, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		if te.IsNetworkClass() {
			return string(te.Kind), true
		}
		return "", false
	}

	code, ok := statusOf(err)
	if !ok {
		return "", false
	}
	if _, listed := s.statuses[code]; !listed {
		return "", false
	}
	if code == http.StatusTooManyRequests && !s.policy.RetryRateLimited {
		return "", false
	}
	return "status_" + strconv.Itoa(code), true
}

func uniformJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(limit) + 1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
