// Package auth holds the bearer token model used by the HTTP pipeline and
// the storage contract the token lifecycle stage persists through.
package auth

import (
	"context"
	"errors"
	"sync"
)

// ErrNoRefreshToken is returned when a refresh is attempted without a
// stored refresh token.
var ErrNoRefreshToken = errors.New("auth: no refresh token")

// TokenPair is an access token with the refresh token that renews it.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenStore persists the current token pair. An empty string means no
// token is stored.
type TokenStore interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	SaveTokens(ctx context.Context, pair TokenPair) error
	ClearTokens(ctx context.Context) error
}

// MemoryStore keeps tokens in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	pair TokenPair
}

var _ TokenStore = (*MemoryStore)(nil)

// NewMemoryStore returns a store seeded with pair.
func NewMemoryStore(pair TokenPair) *MemoryStore {
	return &MemoryStore{pair: pair}
}

func (s *MemoryStore) AccessToken(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.AccessToken, nil
}

func (s *MemoryStore) RefreshToken(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair.RefreshToken, nil
}

// SaveTokens replaces the stored pair. An empty refresh token keeps the
// previous one.
func (s *MemoryStore) SaveTokens(_ context.Context, pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pair.RefreshToken == "" {
		pair.RefreshToken = s.pair.RefreshToken
	}
	s.pair = pair
	return nil
}

func (s *MemoryStore) ClearTokens(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = TokenPair{}
	return nil
}

// Tokens returns a snapshot of the stored pair.
func (s *MemoryStore) Tokens() TokenPair {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair
}
