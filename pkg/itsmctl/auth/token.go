package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/oauth2"
)

// Token sources recorded next to a stored token so refresh picks the right path.
const (
	SourcePassword = "password"
	SourceOIDC     = "oidc"
)

type StoredToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Source       string    `json:"source,omitempty"`
	Username     string    `json:"username,omitempty"`
}

// ExpiresWithin reports whether the token expires inside the window. Tokens
// without a known expiry never expire.
func (t StoredToken) ExpiresWithin(now time.Time, window time.Duration) bool {
	if t.Expiry.IsZero() {
		return false
	}
	return !now.Add(window).Before(t.Expiry)
}

func (t StoredToken) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
	}
}

// FromOAuth2 converts an oauth2 token, keeping prevIDToken when the provider
// did not issue a new id_token.
func FromOAuth2(tok *oauth2.Token, prevIDToken string) StoredToken {
	stored := StoredToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		IDToken:      prevIDToken,
		Source:       SourceOIDC,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		stored.IDToken = idToken
	}
	return stored
}

// Claims is the subset of access token claims itsmctl displays.
type Claims struct {
	Subject   string
	Username  string
	Email     string
	TenantID  int
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ParseClaims decodes a JWT without verifying its signature. The backend is
// the only party that validates tokens.
func ParseClaims(raw string) (*Claims, error) {
	parser := jwt.Parser{}
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	out := &Claims{}
	out.Subject, _ = claims["sub"].(string)
	out.Username, _ = claims["username"].(string)
	if out.Username == "" {
		out.Username, _ = claims["preferred_username"].(string)
	}
	out.Email, _ = claims["email"].(string)
	out.Role, _ = claims["role"].(string)
	if v, ok := claims["tenant_id"].(float64); ok {
		out.TenantID = int(v)
	}
	out.ExpiresAt = unixClaim(claims, "exp")
	out.IssuedAt = unixClaim(claims, "iat")
	return out, nil
}

func unixClaim(claims jwt.MapClaims, key string) time.Time {
	switch v := claims[key].(type) {
	case float64:
		return time.Unix(int64(v), 0).UTC()
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.Unix(n, 0).UTC()
		}
	}
	return time.Time{}
}

// TokenExpiry returns the exp claim of a JWT, or the zero time when the token
// is opaque or carries no expiry.
func TokenExpiry(raw string) time.Time {
	claims, err := ParseClaims(raw)
	if err != nil {
		return time.Time{}
	}
	return claims.ExpiresAt
}

type TokenCache struct {
	Tokens map[string]StoredToken `json:"tokens"`
}

func LoadTokenCache(path string) (*TokenCache, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cache TokenCache
	if err := json.Unmarshal(content, &cache); err != nil {
		return nil, fmt.Errorf("failed to parse token cache: %w", err)
	}
	if cache.Tokens == nil {
		cache.Tokens = map[string]StoredToken{}
	}
	return &cache, nil
}

func SaveTokenCache(path string, cache *TokenCache) error {
	if cache == nil {
		return errors.New("token cache is nil")
	}
	if cache.Tokens == nil {
		cache.Tokens = map[string]StoredToken{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	content, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}
