package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"

	"golang.org/x/oauth2"
)

// deviceLogin prints the user code and waits while the user approves it on
// another device. Polling, slow_down and expiry are handled by x/oauth2.
func (p *Provider) deviceLogin(ctx context.Context) (*oauth2.Token, error) {
	if p.oauth.Endpoint.DeviceAuthURL == "" {
		return nil, errors.New("provider does not advertise a device authorization endpoint")
	}
	ctx = p.Context(ctx)
	da, err := p.oauth.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("device authorization failed: %w", err)
	}
	p.cfg.prompt("Visit %s and enter code: %s\n", da.VerificationURI, da.UserCode)
	if da.VerificationURIComplete != "" {
		p.cfg.open(da.VerificationURIComplete)
	} else {
		p.cfg.open(da.VerificationURI)
	}

	tok, err := p.oauth.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("device login failed: %w", err)
	}
	return tok, nil
}

type callback struct {
	code string
	err  error
}

// browserLogin runs the authorization code grant with PKCE. The provider
// redirects to a one-shot listener on 127.0.0.1.
func (p *Provider) browserLogin(ctx context.Context) (*oauth2.Token, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener: %w", err)
	}
	defer func() { _ = listener.Close() }()

	cfg := p.oauth
	cfg.RedirectURL = fmt.Sprintf("http://%s/callback", listener.Addr())
	verifier := oauth2.GenerateVerifier()
	state := rand.Text()

	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	for k, v := range p.cfg.ExtraAuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	authURL := cfg.AuthCodeURL(state, opts...)

	results := make(chan callback, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callback
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("login rejected: %s %s", q.Get("error"), q.Get("error_description"))
		case q.Get("state") != state:
			res.err = errors.New("invalid state in callback")
		case q.Get("code") == "":
			res.err = errors.New("missing code in callback")
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			_, _ = fmt.Fprintln(w, "itsmctl login complete. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})
	server := &http.Server{Handler: mux}
	go func() { _ = server.Serve(listener) }()
	defer func() { _ = server.Close() }()

	p.cfg.prompt("Open the following URL in your browser:\n%s\n", authURL)
	p.cfg.open(authURL)

	var res callback
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-results:
	}
	if res.err != nil {
		return nil, res.err
	}
	tok, err := cfg.Exchange(p.Context(ctx), res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	return tok, nil
}
