package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// RefreshWindow is how long before expiry a token is refreshed.
const RefreshWindow = 2 * time.Minute

var ErrNoRefreshToken = errors.New("token expired and no refresh token available")

// RefreshFunc exchanges a refresh token for a new access token.
type RefreshFunc func(ctx context.Context, refreshToken string) (string, error)

type TokenManager struct {
	Store TokenStore
	// Now defaults to time.Now.
	Now func() time.Time
}

func NewTokenManager(storage, cachePath string) (*TokenManager, error) {
	store, err := NewTokenStore(storage, cachePath)
	if err != nil {
		return nil, err
	}
	return &TokenManager{Store: store}, nil
}

func (m *TokenManager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *TokenManager) GetToken(key string) (StoredToken, bool, error) {
	return m.Store.Get(key)
}

func (m *TokenManager) SaveToken(key string, token StoredToken) error {
	return m.Store.Save(key, token)
}

func (m *TokenManager) DeleteToken(key string) error {
	return m.Store.Delete(key)
}

// RefreshIfNeeded refreshes an OIDC token through the provider's token
// endpoint once it is inside RefreshWindow. The bool reports a refresh.
func (m *TokenManager) RefreshIfNeeded(ctx context.Context, key string, oauthCfg oauth2.Config) (StoredToken, bool, error) {
	token, ok, err := m.GetToken(key)
	if err != nil || !ok {
		return token, false, err
	}
	if !token.ExpiresWithin(m.now(), RefreshWindow) {
		return token, false, nil
	}
	if token.RefreshToken == "" {
		return token, false, ErrNoRefreshToken
	}
	// Expiry in the past forces the token source to hit the endpoint.
	stale := token.OAuth2()
	stale.Expiry = m.now().Add(-time.Second)
	refreshed, err := oauthCfg.TokenSource(ctx, stale).Token()
	if err != nil {
		return token, false, fmt.Errorf("failed to refresh token: %w", err)
	}
	stored := FromOAuth2(refreshed, token.IDToken)
	stored.Username = token.Username
	if stored.RefreshToken == "" {
		stored.RefreshToken = token.RefreshToken
	}
	if err := m.SaveToken(key, stored); err != nil {
		return stored, true, err
	}
	return stored, true, nil
}

// RefreshWith refreshes a backend-issued token through fn. The backend does
// not rotate refresh tokens, so the stored one is kept.
func (m *TokenManager) RefreshWith(ctx context.Context, key string, fn RefreshFunc) (StoredToken, bool, error) {
	token, ok, err := m.GetToken(key)
	if err != nil || !ok {
		return token, false, err
	}
	if !token.ExpiresWithin(m.now(), RefreshWindow) {
		return token, false, nil
	}
	if token.RefreshToken == "" {
		return token, false, ErrNoRefreshToken
	}
	access, err := fn(ctx, token.RefreshToken)
	if err != nil {
		return token, false, fmt.Errorf("failed to refresh token: %w", err)
	}
	token.AccessToken = access
	token.Expiry = TokenExpiry(access)
	if err := m.SaveToken(key, token); err != nil {
		return token, true, err
	}
	return token, true, nil
}

// Refresher adapts the manager to a client refresher that forces a refresh
// regardless of the cached expiry, as it is called after a 401.
func (m *TokenManager) Refresher(key string, fn RefreshFunc) func(ctx context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		token, ok, err := m.GetToken(key)
		if err != nil {
			return "", err
		}
		if !ok || token.RefreshToken == "" {
			return "", ErrNoRefreshToken
		}
		access, err := fn(ctx, token.RefreshToken)
		if err != nil {
			return "", err
		}
		token.AccessToken = access
		token.Expiry = TokenExpiry(access)
		if err := m.SaveToken(key, token); err != nil {
			return "", err
		}
		return access, nil
	}
}
