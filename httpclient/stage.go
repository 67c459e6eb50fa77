package httpclient

import "context"

type action int

const (
	actionContinue action = iota
	actionShortCircuit
	actionFail
	actionReplay
)

func (a action) String() string {
	switch a {
	case actionShortCircuit:
		return "short_circuit"
	case actionFail:
		return "fail"
	case actionReplay:
		return "replay"
	default:
		return "continue"
	}
}

// Result tells the pipeline what to do after a stage hook.
type Result struct {
	action   action
	response *Response
	err      error
}

// Continue moves on to the next stage.
func Continue() Result { return Result{action: actionContinue} }

// ContinueWith moves on in the error phase with err replacing the current
// error.
func ContinueWith(err error) Result { return Result{action: actionContinue, err: err} }

// ShortCircuit ends the call with resp. In the request phase the remaining
// stages, the transport and the response phase are skipped; in the error
// phase the error is considered recovered.
func ShortCircuit(resp *Response) Result { return Result{action: actionShortCircuit, response: resp} }

// Fail ends the call with err. No further hooks run; err goes straight to
// classification.
func Fail(err error) Result { return Result{action: actionFail, err: err} }

// Replay restarts the pipeline from the first stage with the same Call.
// Only meaningful in the error phase.
func Replay() Result { return Result{action: actionReplay} }

// Stage is one link of the pipeline. OnRequest runs in pipeline order before
// the transport; OnResponse runs for 2xx and 304 responses; OnError runs for
// transport errors and every other status.
type Stage interface {
	Name() string
	OnRequest(ctx context.Context, call *Call) Result
	OnResponse(ctx context.Context, call *Call, resp *Response) *Response
	OnError(ctx context.Context, call *Call, err error) Result
}

// BaseStage supplies pass-through hooks for stages that only need some.
type BaseStage struct{}

func (BaseStage) OnRequest(context.Context, *Call) Result { return Continue() }

func (BaseStage) OnResponse(_ context.Context, _ *Call, resp *Response) *Response { return resp }

func (BaseStage) OnError(context.Context, *Call, error) Result { return Continue() }
