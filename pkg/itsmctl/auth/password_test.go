package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/itsmctl/pkg/itsmctl/client"
)

func TestPasswordLogin(t *testing.T) {
	exp := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
	access := signedToken(t, jwt.MapClaims{"sub": "3", "exp": exp.Unix()})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/login":
			var req client.LoginRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "jdoe", req.Username)
			assert.Equal(t, "ACME", req.TenantCode)
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "message": "success", "data": map[string]any{
				"access_token":  access,
				"refresh_token": "refresh-1",
				"user":          map[string]any{"id": 3, "username": "jdoe", "tenant_id": 1},
			}})
		case "/api/v1/refresh-token":
			_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "message": "success", "data": map[string]any{"access_token": "new-access"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c, err := client.New(client.WithServer(server.URL))
	require.NoError(t, err)

	stored, resp, err := PasswordLogin(context.Background(), c, client.LoginRequest{Username: "jdoe", Password: "secret", TenantCode: "ACME"})
	require.NoError(t, err)
	assert.Equal(t, access, stored.AccessToken)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
	assert.Equal(t, exp, stored.Expiry)
	assert.Equal(t, SourcePassword, stored.Source)
	assert.Equal(t, "jdoe", stored.Username)
	require.NotNil(t, resp.User)
	assert.Equal(t, 3, resp.User.ID)
	assert.Equal(t, access, c.Token())

	refreshed, err := BackendRefresher(c)(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "new-access", refreshed)
}

func TestPasswordLoginRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 401, "message": "invalid credentials"})
	}))
	defer server.Close()

	c, err := client.New(client.WithServer(server.URL))
	require.NoError(t, err)

	_, _, err = PasswordLogin(context.Background(), c, client.LoginRequest{Username: "jdoe", Password: "wrong"})
	require.Error(t, err)
	assert.True(t, client.IsUnauthorized(err))
}
