package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

func TestStoredTokenExpiresWithin(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, StoredToken{}.ExpiresWithin(now, time.Hour), "no expiry never expires")
	assert.False(t, StoredToken{Expiry: now.Add(10 * time.Minute)}.ExpiresWithin(now, RefreshWindow))
	assert.True(t, StoredToken{Expiry: now.Add(time.Minute)}.ExpiresWithin(now, RefreshWindow))
	assert.True(t, StoredToken{Expiry: now.Add(-time.Minute)}.ExpiresWithin(now, 0))
}

func TestFromOAuth2(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	tok := (&oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: expiry}).
		WithExtra(map[string]interface{}{"id_token": "new-id"})

	stored := FromOAuth2(tok, "old-id")
	assert.Equal(t, "a", stored.AccessToken)
	assert.Equal(t, "r", stored.RefreshToken)
	assert.Equal(t, "new-id", stored.IDToken)
	assert.Equal(t, SourceOIDC, stored.Source)

	kept := FromOAuth2(&oauth2.Token{AccessToken: "b"}, "old-id")
	assert.Equal(t, "old-id", kept.IDToken)
	assert.Equal(t, "b", kept.OAuth2().AccessToken)
}

func TestParseClaims(t *testing.T) {
	exp := time.Date(2026, 10, 1, 13, 0, 0, 0, time.UTC)
	raw := signedToken(t, jwt.MapClaims{
		"sub":       "42",
		"username":  "jdoe",
		"email":     "jdoe@example.com",
		"role":      "agent",
		"tenant_id": 7,
		"iat":       exp.Add(-time.Hour).Unix(),
		"exp":       exp.Unix(),
	})

	claims, err := ParseClaims(raw)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, "jdoe", claims.Username)
	assert.Equal(t, "jdoe@example.com", claims.Email)
	assert.Equal(t, "agent", claims.Role)
	assert.Equal(t, 7, claims.TenantID)
	assert.Equal(t, exp, claims.ExpiresAt)
	assert.Equal(t, exp.Add(-time.Hour), claims.IssuedAt)
	assert.Equal(t, exp, TokenExpiry(raw))
}

func TestParseClaimsPreferredUsername(t *testing.T) {
	claims, err := ParseClaims(signedToken(t, jwt.MapClaims{"preferred_username": "oidc-user"}))
	require.NoError(t, err)
	assert.Equal(t, "oidc-user", claims.Username)
	assert.True(t, claims.ExpiresAt.IsZero())
}

func TestTokenExpiryOpaque(t *testing.T) {
	assert.True(t, TokenExpiry("not-a-jwt").IsZero())
	_, err := ParseClaims("not-a-jwt")
	require.Error(t, err)
}

func TestTokenCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")
	cache := &TokenCache{Tokens: map[string]StoredToken{
		"prod": {AccessToken: "a", Source: SourcePassword, Username: "jdoe"},
	}}
	require.NoError(t, SaveTokenCache(path, cache))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadTokenCache(path)
	require.NoError(t, err)
	assert.Equal(t, cache.Tokens, loaded.Tokens)
}

func TestTokenCacheErrors(t *testing.T) {
	require.Error(t, SaveTokenCache(filepath.Join(t.TempDir(), "t.json"), nil))

	_, err := LoadTokenCache(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, os.IsNotExist(err))

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = LoadTokenCache(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse token cache")

	empty := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{}`), 0o600))
	loaded, err := LoadTokenCache(empty)
	require.NoError(t, err)
	assert.NotNil(t, loaded.Tokens)
}
