package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ridewave/httppipe/auth"
)

// MockTokenStore is a testify mock of auth.TokenStore.
type MockTokenStore struct {
	mock.Mock
}

var _ auth.TokenStore = (*MockTokenStore)(nil)

// AccessToken implements auth.TokenStore
func (m *MockTokenStore) AccessToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// RefreshToken implements auth.TokenStore
func (m *MockTokenStore) RefreshToken(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// SaveTokens implements auth.TokenStore
func (m *MockTokenStore) SaveTokens(ctx context.Context, pair auth.TokenPair) error {
	return m.Called(ctx, pair).Error(0)
}

// ClearTokens implements auth.TokenStore
func (m *MockTokenStore) ClearTokens(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
