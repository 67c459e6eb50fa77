package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ridewave/httppipe/connectivity"
)

// MockProbe is a testify mock of connectivity.Probe.
type MockProbe struct {
	mock.Mock
}

var _ connectivity.Probe = (*MockProbe)(nil)

// HasConnection implements connectivity.Probe
func (m *MockProbe) HasConnection(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}
