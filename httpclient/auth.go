package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ridewave/httppipe/auth"
	"github.com/ridewave/httppipe/httpclient/internal/tracking"
	"github.com/ridewave/httppipe/logger"
)

const (
	DefaultRefreshPath    = "/auth/refresh"
	DefaultRefreshTimeout = 15 * time.Second
)

var (
	errRefreshRejected     = errors.New("refresh rejected")
	errRefreshMissingToken = errors.New("refresh response has no access token")
	errRefreshUnbound      = errors.New("token manager is not attached to a client")
)

// AuthOptions configure the token lifecycle.
type AuthOptions struct {
	RefreshPath    string
	RefreshTimeout time.Duration
	// AuthPaths are substrings marking endpoints whose 401 never triggers a
	// refresh. Defaults to auth.DefaultAuthPathMarkers.
	AuthPaths []string
	// OnSessionExpired runs once per failed refresh that cleared stored
	// tokens. Refreshes failing against an already empty store skip it.
	OnSessionExpired func(err error)
}

type refreshFlight struct {
	done    chan struct{}
	token   string
	err     error
	cleared bool
}

// TokenManager owns the refresh state of one client: either idle or a
// single refresh in flight that every concurrent 401 joins.
type TokenManager struct {
	store auth.TokenStore
	opts  AuthOptions
	log   logger.Logger

	// send runs a request through the owning client's pipeline.
	send func(ctx context.Context, req *Request) (*Response, error)

	mu     sync.Mutex
	flight *refreshFlight
	// issued is the access token of the last successful refresh, empty
	// after a failed one.
	issued string
}

// NewTokenManager creates a token manager over store. It is attached to a
// client by the Builder.
func NewTokenManager(store auth.TokenStore, log logger.Logger, opts AuthOptions) *TokenManager {
	if opts.RefreshPath == "" {
		opts.RefreshPath = DefaultRefreshPath
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	if opts.AuthPaths == nil {
		opts.AuthPaths = auth.DefaultAuthPathMarkers
	}
	if log == nil {
		log = logger.Nop()
	}
	return &TokenManager{store: store, opts: opts, log: log}
}

// Store returns the token store.
func (m *TokenManager) Store() auth.TokenStore { return m.store }

// Refreshing reports whether a refresh is in flight.
func (m *TokenManager) Refreshing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flight != nil
}

// Refresh obtains an access token newer than stale, the token a rejected
// request was sent with. It joins a refresh already in flight, returns the
// token of a refresh that completed after stale was sent, and only
// otherwise starts a new refresh. The refresh itself is detached from ctx;
// ctx only bounds the wait.
func (m *TokenManager) Refresh(ctx context.Context, stale string) (string, error) {
	m.mu.Lock()
	f := m.flight
	if f == nil {
		if m.issued != "" && m.issued != stale {
			token := m.issued
			m.mu.Unlock()
			return token, nil
		}
		f = &refreshFlight{done: make(chan struct{})}
		m.flight = f
		go m.run(context.WithoutCancel(ctx), f)
	}
	m.mu.Unlock()

	return m.await(ctx, f)
}

// CurrentToken returns the token to attach to a request. While a refresh
// is in flight it waits for the outcome; a failed refresh yields no token.
func (m *TokenManager) CurrentToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	f := m.flight
	m.mu.Unlock()

	if f != nil {
		token, err := m.await(ctx, f)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			return "", nil
		}
		return token, nil
	}
	return m.store.AccessToken(ctx)
}

func (m *TokenManager) await(ctx context.Context, f *refreshFlight) (string, error) {
	select {
	case <-f.done:
		return f.token, f.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *TokenManager) run(ctx context.Context, f *refreshFlight) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.RefreshTimeout)
	defer cancel()

	m.log.Info().Str("path", m.opts.RefreshPath).Msg("Refreshing access token")
	f.token, f.err = m.refresh(ctx)

	if f.err != nil {
		tracking.RecordRefresh(ctx, tracking.RefreshFailure)
		m.log.Warn().Err(f.err).Msg("Token refresh failed, session expired")
		f.cleared = m.clearTokens(ctx)
	} else {
		tracking.RecordRefresh(ctx, tracking.RefreshSuccess)
		m.log.Info().Msg("Access token refreshed")
	}

	m.mu.Lock()
	m.issued = f.token
	m.flight = nil
	m.mu.Unlock()
	close(f.done)

	if f.cleared && m.opts.OnSessionExpired != nil {
		m.opts.OnSessionExpired(f.err)
	}
}

// clearTokens empties the store and reports whether it held any token.
func (m *TokenManager) clearTokens(ctx context.Context) bool {
	access, accessErr := m.store.AccessToken(ctx)
	refresh, refreshErr := m.store.RefreshToken(ctx)
	if accessErr == nil && refreshErr == nil && access == "" && refresh == "" {
		return false
	}
	if err := m.store.ClearTokens(ctx); err != nil {
		m.log.Error().Err(err).Msg("Failed to clear tokens")
		return false
	}
	return true
}

func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	if m.send == nil {
		return "", errRefreshUnbound
	}

	refreshToken, err := m.store.RefreshToken(ctx)
	if err != nil {
		return "", err
	}
	if refreshToken == "" {
		return "", auth.ErrNoRefreshToken
	}

	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", err
	}

	resp, err := m.send(ctx, &Request{
		Method:  http.MethodPost,
		Path:    m.opts.RefreshPath,
		Headers: http.Header{"Content-Type": []string{"application/json"}},
		Body:    body,
		Options: RequestOptions{SkipAuth: true, SkipRetry: true, SkipCache: true},
	})
	if err != nil {
		return "", fmt.Errorf("refresh request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", errRefreshRejected, resp.StatusCode)
	}

	pair := parseTokenPair(resp.Body)
	if pair.AccessToken == "" {
		return "", errRefreshMissingToken
	}
	if err := m.store.SaveTokens(ctx, pair); err != nil {
		return "", fmt.Errorf("save refreshed tokens: %w", err)
	}
	return pair.AccessToken, nil
}

// parseTokenPair reads accessToken and refreshToken from the top level of
// the body or from a "data" envelope.
func parseTokenPair(body []byte) auth.TokenPair {
	lookup := func(name string) string {
		if v := gjson.GetBytes(body, "data."+name); v.Type == gjson.String {
			return v.String()
		}
		return gjson.GetBytes(body, name).String()
	}
	return auth.TokenPair{
		AccessToken:  lookup("accessToken"),
		RefreshToken: lookup("refreshToken"),
	}
}

// AuthStage attaches bearer tokens and turns a 401 into one refresh and
// replay.
type AuthStage struct {
	BaseStage
	tokens *TokenManager
}

// NewAuthStage creates the auth stage.
func NewAuthStage(tokens *TokenManager) *AuthStage {
	return &AuthStage{tokens: tokens}
}

func (s *AuthStage) Name() string { return "auth" }

func (s *AuthStage) OnRequest(ctx context.Context, call *Call) Result {
	if call.Options().SkipAuth {
		return Continue()
	}

	token, err := s.tokens.CurrentToken(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Fail(ctxErr)
		}
		s.tokens.log.Warn().Err(err).Msg("Failed to read access token")
		token = ""
	}

	if token != "" {
		call.Request.Headers.Set("Authorization", "Bearer "+token)
	} else if call.sentToken != "" {
		call.Request.Headers.Del("Authorization")
	}
	call.sentToken = token
	return Continue()
}

func (s *AuthStage) OnError(ctx context.Context, call *Call, err error) Result {
	if code, ok := statusOf(err); !ok || code != http.StatusUnauthorized {
		return Continue()
	}
	if call.Options().SkipAuth || call.authReplayed || auth.IsAuthPath(call.Request.Path, s.tokens.opts.AuthPaths) {
		return Continue()
	}
	call.authReplayed = true

	// Another call already refreshed since this one was sent.
	if current, err := s.tokens.store.AccessToken(ctx); err == nil && current != "" && current != call.sentToken {
		return Replay()
	}

	if _, err := s.tokens.Refresh(ctx, call.sentToken); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Fail(ctxErr)
		}
		return Fail(&Failure{
			Kind:       KindAuthentication,
			Message:    "session expired",
			StatusCode: http.StatusUnauthorized,
			Err:        err,
		})
	}
	return Replay()
}
