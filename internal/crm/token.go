package crm

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenExchanger performs the OAuth refresh-token grant against the
// provider's accounts endpoint. Implementations must not retry; retry
// policy lives with the callers of the CRM client.
type TokenExchanger interface {
	Exchange(ctx context.Context) (accessToken string, expiresIn time.Duration, err error)
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// TokenManager owns the single cached CRM access token.
//
// Invariants:
// - At most one refresh exchange is in flight at a time; concurrent
//   callers share the in-flight result (some OAuth providers rotate the
//   refresh token, so duplicate exchanges can invalidate each other).
// - Callers never observe a token within the expiry buffer.
// - A failed refresh clears the cache (fail closed).
type TokenManager struct {
	exchanger TokenExchanger
	buffer    time.Duration
	log       *slog.Logger

	mu     sync.Mutex
	cached *cachedToken

	group singleflight.Group

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

const minTokenBuffer = time.Minute

func NewTokenManager(exchanger TokenExchanger, buffer time.Duration, log *slog.Logger) *TokenManager {
	if buffer < minTokenBuffer {
		buffer = minTokenBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &TokenManager{
		exchanger: exchanger,
		buffer:    buffer,
		log:       log,
		clock:     time.Now,
	}
}

// AccessToken returns a valid token, refreshing if necessary.
// Validity requires expiresAt - buffer to be in the future.
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	if tok, ok := m.validCached(); ok {
		return tok, nil
	}
	return m.refresh(ctx)
}

// Refresh forces a refresh exchange. If one is already in flight the
// caller joins it instead of triggering a second exchange.
func (m *TokenManager) Refresh(ctx context.Context) (string, error) {
	return m.refresh(ctx)
}

// Clear drops the cached token; the next AccessToken call refreshes.
func (m *TokenManager) Clear() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

// Info describes the cache state for the ops endpoint. The token value
// itself is never exposed.
type Info struct {
	HasToken  bool      `json:"has_token"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Valid     bool      `json:"valid"`
}

func (m *TokenManager) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return Info{}
	}
	return Info{
		HasToken:  true,
		ExpiresAt: m.cached.expiresAt,
		Valid:     m.cached.expiresAt.Add(-m.buffer).After(m.clock()),
	}
}

func (m *TokenManager) validCached() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return "", false
	}
	if !m.cached.expiresAt.Add(-m.buffer).After(m.clock()) {
		return "", false
	}
	return m.cached.value, true
}

func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	// The flight is detached from the winning caller's context so that
	// one canceled caller does not abort the refresh for everyone else.
	ch := m.group.DoChan("refresh", func() (any, error) {
		tok, ttl, err := m.exchanger.Exchange(context.WithoutCancel(ctx))
		if err != nil {
			m.Clear()
			m.log.Error("crm token refresh failed", "err", err)
			return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		}

		expiresAt := m.clock().Add(ttl)
		m.mu.Lock()
		m.cached = &cachedToken{value: tok, expiresAt: expiresAt}
		m.mu.Unlock()

		m.log.Debug("crm token refreshed", "expires_at", expiresAt)
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}
