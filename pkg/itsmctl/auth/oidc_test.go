package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newProvider serves discovery plus the endpoints the flows need.
func newProvider(t *testing.T, token http.HandlerFunc) *httptest.Server {
	t.Helper()
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"issuer":                        server.URL,
			"authorization_endpoint":        server.URL + "/auth",
			"token_endpoint":                server.URL + "/token",
			"device_authorization_endpoint": server.URL + "/device",
			"jwks_uri":                      server.URL + "/keys",
		})
	})
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.NotEmpty(t, q.Get("code_challenge"))
		target := q.Get("redirect_uri") + "?code=auth-code&state=" + url.QueryEscape(q.Get("state"))
		http.Redirect(w, r, target, http.StatusFound)
	})
	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "itsmctl", r.PostForm.Get("client_id"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dev-123",
			"user_code":        "ABCD-EFGH",
			"verification_uri": server.URL + "/activate",
			"expires_in":       60,
			"interval":         1,
		})
	})
	if token == nil {
		token = http.NotFound
	}
	mux.HandleFunc("/token", token)
	server = httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func tokenReply(w http.ResponseWriter, access string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  access,
		"refresh_token": "refresh",
		"token_type":    "Bearer",
		"expires_in":    300,
		"id_token":      "id-" + access,
	})
}

func noBrowser(t *testing.T, fn func(string) error) {
	t.Helper()
	prev := browse
	browse = fn
	t.Cleanup(func() { browse = prev })
}

func errorReply(w http.ResponseWriter, code, description string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "error_description": description})
}

func TestDiscover(t *testing.T) {
	provider := newProvider(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := Discover(ctx, OIDCConfig{Authority: provider.URL, ClientID: "itsmctl"})
	require.NoError(t, err)
	cfg := p.Config()
	assert.Equal(t, "itsmctl", cfg.ClientID)
	assert.Equal(t, provider.URL+"/token", cfg.Endpoint.TokenURL)
	assert.Equal(t, provider.URL+"/device", cfg.Endpoint.DeviceAuthURL)
	assert.Equal(t, oauth2.AuthStyleInParams, cfg.Endpoint.AuthStyle)
	assert.Equal(t, []string{"openid", "email", "profile"}, cfg.Scopes)

	p, err = Discover(ctx, OIDCConfig{Authority: provider.URL, ClientID: "sla-bot", ClientSecret: "s3cret", Scopes: []string{"openid"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"openid"}, p.Config().Scopes)
	assert.NotEqual(t, oauth2.AuthStyleInParams, p.Config().Endpoint.AuthStyle)

	_, err = Discover(ctx, OIDCConfig{ClientID: "itsmctl"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authority and client-id are required")
}

func TestLoginUnsupportedGrant(t *testing.T) {
	_, err := Login(context.Background(), OIDCConfig{Authority: "https://idp.invalid", ClientID: "itsmctl", GrantType: "implicit"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported grant type: implicit")

	_, err = Login(context.Background(), OIDCConfig{ClientID: "itsmctl"})
	require.Error(t, err)
}

func TestAuthorizationCodeLogin(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "auth-code", r.PostForm.Get("code"))
		assert.Equal(t, "itsmctl", r.PostForm.Get("client_id"))
		assert.NotEmpty(t, r.PostForm.Get("code_verifier"))
		tokenReply(w, "pkce-access")
	})
	noBrowser(t, func(u string) error {
		go func() {
			resp, err := http.Get(u) //nolint:noctx // follows the redirect to the loopback listener
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var out bytes.Buffer
	token, err := Login(ctx, OIDCConfig{Authority: provider.URL, ClientID: "itsmctl", Out: &out})
	require.NoError(t, err)
	assert.Equal(t, "pkce-access", token.AccessToken)
	assert.Equal(t, "refresh", token.RefreshToken)
	assert.Equal(t, "id-pkce-access", token.IDToken)
	assert.Equal(t, SourceOIDC, token.Source)
	assert.Contains(t, out.String(), provider.URL+"/auth?")
}

func TestAuthorizationCodeLoginCancelled(t *testing.T) {
	provider := newProvider(t, nil)
	opened := false
	noBrowser(t, func(string) error {
		opened = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	_, err := Login(ctx, OIDCConfig{Authority: provider.URL, ClientID: "itsmctl", Out: &bytes.Buffer{}, NoBrowser: true})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, opened, "NoBrowser must not launch a browser")
}

func TestDeviceCodeLogin(t *testing.T) {
	var polls atomic.Int32
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "dev-123", r.PostForm.Get("device_code"))
		assert.Equal(t, "itsmctl", r.PostForm.Get("client_id"))
		if polls.Add(1) == 1 {
			errorReply(w, "authorization_pending", "")
			return
		}
		tokenReply(w, "device-access")
	})
	noBrowser(t, func(string) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	var out bytes.Buffer
	token, err := Login(ctx, OIDCConfig{Authority: provider.URL, ClientID: "itsmctl", GrantType: GrantDeviceCode, Out: &out})
	require.NoError(t, err)
	assert.Equal(t, "device-access", token.AccessToken)
	assert.Equal(t, "id-device-access", token.IDToken)
	assert.False(t, token.Expiry.IsZero())
	assert.Equal(t, int32(2), polls.Load())
	assert.Contains(t, out.String(), "ABCD-EFGH")
}

func TestDeviceCodeLoginDenied(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		errorReply(w, "access_denied", "user declined")
	})
	noBrowser(t, func(string) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_, err := Login(ctx, OIDCConfig{Authority: provider.URL, ClientID: "itsmctl", GrantType: GrantDeviceCode, Out: &bytes.Buffer{}})
	require.Error(t, err)
	var retrieveErr *oauth2.RetrieveError
	require.ErrorAs(t, err, &retrieveErr)
	assert.Equal(t, "access_denied", retrieveErr.ErrorCode)
	assert.Equal(t, "user declined", retrieveErr.ErrorDescription)
}

func TestClientCredentialsLogin(t *testing.T) {
	provider := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		tokenReply(w, "machine-access")
	})

	_, err := Login(context.Background(), OIDCConfig{Authority: provider.URL, ClientID: "sla-bot", GrantType: GrantClientCredentials})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client secret is required")

	token, err := Login(context.Background(), OIDCConfig{
		Authority:    provider.URL,
		ClientID:     "sla-bot",
		ClientSecret: "s3cret",
		GrantType:    GrantClientCredentials,
	})
	require.NoError(t, err)
	assert.Equal(t, "machine-access", token.AccessToken)
}

func TestLoginTakesUsernameFromClaims(t *testing.T) {
	access := signedToken(t, jwt.MapClaims{"username": "alice", "tenant_id": 3, "exp": time.Now().Add(time.Hour).Unix()})
	provider := newProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		tokenReply(w, access)
	})

	token, err := Login(context.Background(), OIDCConfig{
		Authority:    provider.URL,
		ClientID:     "sla-bot",
		ClientSecret: "s3cret",
		GrantType:    GrantClientCredentials,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", token.Username)
}

func TestResolveClientSecret(t *testing.T) {
	secret, err := ResolveClientSecret("inline", "IGNORED", "")
	require.NoError(t, err)
	assert.Equal(t, "inline", secret)

	t.Setenv("ITSMCTL_TEST_SECRET", "  from-env ")
	secret, err = ResolveClientSecret("", "ITSMCTL_TEST_SECRET", "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", secret)

	_, err = ResolveClientSecret("", "ITSMCTL_TEST_UNSET_SECRET", "")
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))
	secret, err = ResolveClientSecret("", "", path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", secret)

	_, err = ResolveClientSecret("", "", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	secret, err = ResolveClientSecret("", "", "")
	require.NoError(t, err)
	assert.Empty(t, secret)
}

func TestLoadTLSConfig(t *testing.T) {
	cfg, err := loadTLSConfig("", false)
	require.NoError(t, err)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Nil(t, cfg.RootCAs)

	cfg, err = loadTLSConfig("", true)
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)

	_, err = loadTLSConfig(filepath.Join(t.TempDir(), "missing.pem"), false)
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not pem"), 0o600))
	_, err = loadTLSConfig(bad, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse CA file")
}
