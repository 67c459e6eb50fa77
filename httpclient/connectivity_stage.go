package httpclient

import (
	"context"

	"github.com/ridewave/httppipe/connectivity"
)

// ConnectivityChecker reports whether the device is online.
// *connectivity.Monitor implements it.
type ConnectivityChecker interface {
	IsOnline(ctx context.Context) bool
}

// ConnectivityStage fails calls immediately while offline, without
// contacting the transport. Requests marked OfflineAllowed pass through.
type ConnectivityStage struct {
	BaseStage
	checker ConnectivityChecker
}

// NewConnectivityStage creates the connectivity gate.
func NewConnectivityStage(checker ConnectivityChecker) *ConnectivityStage {
	return &ConnectivityStage{checker: checker}
}

func (s *ConnectivityStage) Name() string { return "connectivity" }

func (s *ConnectivityStage) OnRequest(ctx context.Context, call *Call) Result {
	if call.Options().OfflineAllowed {
		return Continue()
	}
	if !s.checker.IsOnline(ctx) {
		return Fail(NewFailure(KindNetwork, "no internet connection", connectivity.ErrOffline))
	}
	return Continue()
}
