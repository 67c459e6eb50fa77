package httpclient

import (
	"context"
	"net/http"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ridewave/httppipe/httpclient/internal/tracking"
)

// maxPasses bounds replays of one call. Retry and auth each bound their own
// replays; this only stops a misbehaving custom stage from looping forever.
const maxPasses = 64

// execute runs call through the pipeline until no stage asks for a replay.
// The returned error is unclassified.
func (c *client) execute(ctx context.Context, call *Call) (*Response, error) {
	for pass := 0; pass < maxPasses; pass++ {
		resp, replay, err := c.runOnce(ctx, call)
		if !replay {
			return resp, err
		}
	}
	return nil, NewFailure(KindUnknown, "too many pipeline replays", nil)
}

func (c *client) runOnce(ctx context.Context, call *Call) (*Response, bool, error) {
	for _, stage := range c.stages {
		res := stage.OnRequest(ctx, call)
		switch res.action {
		case actionShortCircuit:
			return res.response, false, nil
		case actionFail:
			return nil, false, res.err
		}
	}

	call.attempts++
	tracking.AddAttempt(oteltrace.SpanFromContext(ctx), call.attempts)

	resp, err := c.transport.Send(ctx, call.Request)
	if err == nil && resp == nil {
		err = &TransportError{Kind: TransportOther, Message: "transport returned no response"}
	}
	if err == nil {
		if IsSuccessStatus(resp.StatusCode) || resp.StatusCode == http.StatusNotModified {
			for _, stage := range c.stages {
				resp = stage.OnResponse(ctx, call, resp)
			}
			return resp, false, nil
		}
		err = newStatusError(resp)
	}

	for _, stage := range c.stages {
		res := stage.OnError(ctx, call, err)
		switch res.action {
		case actionContinue:
			if res.err != nil {
				err = res.err
			}
		case actionShortCircuit:
			return res.response, false, nil
		case actionFail:
			return nil, false, res.err
		case actionReplay:
			return nil, true, nil
		}
	}
	return nil, false, err
}
