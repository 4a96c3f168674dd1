package auth

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Grant types accepted in an oidc provider entry of the config.
const (
	GrantAuthorizationCode = "authorization-code"
	GrantDeviceCode        = "device-code"
	GrantClientCredentials = "client-credentials"
)

type OIDCConfig struct {
	Authority       string
	ClientID        string
	ClientSecret    string
	Scopes          []string
	GrantType       string
	CAFile          string
	InsecureSkipTLS bool
	ExtraAuthParams map[string]string
	// Out receives the login prompts; defaults to stdout.
	Out io.Writer
	// NoBrowser only prints the URL instead of launching a browser.
	NoBrowser bool
}

func (c OIDCConfig) prompt(format string, args ...any) {
	out := c.Out
	if out == nil {
		out = os.Stdout
	}
	_, _ = fmt.Fprintf(out, format, args...)
}

// browse opens a URL; replaced in tests.
var browse = openBrowser

func (c OIDCConfig) open(url string) {
	if !c.NoBrowser && url != "" {
		_ = browse(url)
	}
}

// Provider is a discovered identity provider. It runs the grant configured
// for the context and turns the result into a token ready for the store.
type Provider struct {
	cfg    OIDCConfig
	oauth  oauth2.Config
	client *http.Client
}

// Discover reads the provider metadata of cfg.Authority.
func Discover(ctx context.Context, cfg OIDCConfig) (*Provider, error) {
	if cfg.Authority == "" || cfg.ClientID == "" {
		return nil, errors.New("authority and client-id are required")
	}
	tlsConfig, err := loadTLSConfig(cfg.CAFile, cfg.InsecureSkipTLS)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig, Proxy: http.ProxyFromEnvironment},
		Timeout:   30 * time.Second,
	}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, httpClient), cfg.Authority)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	endpoint := provider.Endpoint()
	if cfg.ClientSecret == "" {
		// Public clients authenticate with client_id in the form body.
		endpoint.AuthStyle = oauth2.AuthStyleInParams
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}
	return &Provider{
		cfg:    cfg,
		client: httpClient,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
		},
	}, nil
}

// Config returns the oauth2 configuration, e.g. for refreshing a stored token.
func (p *Provider) Config() oauth2.Config {
	return p.oauth
}

// Context carries the provider's http client for x/oauth2 calls.
func (p *Provider) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

// Login runs the configured grant. Authorization code with PKCE on a loopback
// listener is the default.
func (p *Provider) Login(ctx context.Context) (StoredToken, error) {
	var (
		tok *oauth2.Token
		err error
	)
	switch p.cfg.GrantType {
	case "", GrantAuthorizationCode:
		tok, err = p.browserLogin(ctx)
	case GrantDeviceCode:
		tok, err = p.deviceLogin(ctx)
	case GrantClientCredentials:
		tok, err = p.machineLogin(ctx)
	default:
		return StoredToken{}, fmt.Errorf("unsupported grant type: %s", p.cfg.GrantType)
	}
	if err != nil {
		return StoredToken{}, err
	}
	return p.stored(tok), nil
}

// Login discovers cfg.Authority and runs its grant.
func Login(ctx context.Context, cfg OIDCConfig) (StoredToken, error) {
	switch cfg.GrantType {
	case "", GrantAuthorizationCode, GrantDeviceCode, GrantClientCredentials:
	default:
		return StoredToken{}, fmt.Errorf("unsupported grant type: %s", cfg.GrantType)
	}
	p, err := Discover(ctx, cfg)
	if err != nil {
		return StoredToken{}, err
	}
	return p.Login(ctx)
}

// machineLogin is the non-interactive grant of automation accounts such as
// the SLA monitor. A client secret is mandatory.
func (p *Provider) machineLogin(ctx context.Context) (*oauth2.Token, error) {
	if p.cfg.ClientSecret == "" {
		return nil, errors.New("client secret is required for the client-credentials grant")
	}
	cc := clientcredentials.Config{
		ClientID:     p.oauth.ClientID,
		ClientSecret: p.oauth.ClientSecret,
		TokenURL:     p.oauth.Endpoint.TokenURL,
		Scopes:       p.cfg.Scopes,
		AuthStyle:    p.oauth.Endpoint.AuthStyle,
	}
	tok, err := cc.Token(p.Context(ctx))
	if err != nil {
		return nil, fmt.Errorf("client credentials token failed: %w", err)
	}
	return tok, nil
}

// stored converts tok and takes the ITSM username from whichever token
// carries it.
func (p *Provider) stored(tok *oauth2.Token) StoredToken {
	s := FromOAuth2(tok, "")
	for _, raw := range []string{s.AccessToken, s.IDToken} {
		if claims, err := ParseClaims(raw); err == nil && claims.Username != "" {
			s.Username = claims.Username
			break
		}
	}
	return s
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

func loadTLSConfig(caFile string, insecure bool) (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: insecure} //nolint:gosec // opt-in per provider
	if caFile == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("failed to parse CA file")
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// ResolveClientSecret picks the inline secret, then the env var, then the
// file named in the provider entry.
func ResolveClientSecret(secret, secretEnv, secretFile string) (string, error) {
	switch {
	case secret != "":
		return secret, nil
	case secretEnv != "":
		if value := strings.TrimSpace(os.Getenv(secretEnv)); value != "" {
			return value, nil
		}
		return "", fmt.Errorf("client secret env var not set: %s", secretEnv)
	case secretFile != "":
		content, err := os.ReadFile(secretFile)
		if err != nil {
			return "", fmt.Errorf("failed to read client secret file: %w", err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return "", nil
}
