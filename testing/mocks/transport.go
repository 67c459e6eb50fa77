package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ridewave/httppipe/httpclient"
)

// MockTransport is a testify mock of httpclient.Transport.
//
//	transport := &mocks.MockTransport{}
//	transport.On("Send", mock.Anything, mock.MatchedBy(func(r *httpclient.Request) bool {
//		return r.Path == "/rides"
//	})).Return(&httpclient.Response{StatusCode: 200}, nil)
type MockTransport struct {
	mock.Mock
}

var _ httpclient.Transport = (*MockTransport)(nil)

// Send implements httpclient.Transport
func (m *MockTransport) Send(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*httpclient.Response)
	return resp, args.Error(1)
}
