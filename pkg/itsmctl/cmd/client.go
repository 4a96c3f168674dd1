package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telekom/itsmctl/pkg/itsmctl/auth"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
	"github.com/telekom/itsmctl/pkg/itsmctl/config"
	"github.com/telekom/itsmctl/pkg/version"
)

var errNotAuthenticated = errors.New("not authenticated; run 'itsmctl auth login'")

func buildClient(cmdCtx context.Context, rt *runtimeState) (*client.Client, error) {
	// Server and token from flags or env vars bypass config and context resolution.
	if rt.serverOverride != "" && rt.tokenOverride != "" {
		options := rt.baseOptions(rt.serverOverride, nil)
		options = append(options, client.WithToken(rt.tokenOverride))
		return client.New(options...)
	}

	if err := rt.EnsureConfigLoaded(); err != nil {
		return nil, err
	}
	ctxCfg, err := rt.ResolveContext()
	if err != nil {
		return nil, err
	}
	server := rt.resolveServer(ctxCfg)
	if server == "" {
		return nil, errors.New("server is required")
	}

	options := rt.baseOptions(server, ctxCfg)
	if rt.tokenOverride != "" {
		return client.New(append(options, client.WithToken(rt.tokenOverride))...)
	}

	manager, err := auth.NewTokenManager(rt.TokenStorage(), rt.tokenPath)
	if err != nil {
		return nil, err
	}
	key := ctxCfg.CacheKey()
	stored, ok, err := manager.GetToken(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotAuthenticated
	}

	if stored.Source == auth.SourceOIDC {
		token, err := refreshOIDCToken(cmdCtx, rt, ctxCfg, manager, stored)
		if err != nil {
			return nil, err
		}
		return client.New(append(options, client.WithToken(token))...)
	}

	// Backend issued tokens are refreshed through an unauthenticated client
	// against the same server.
	bootstrap, err := client.New(options...)
	if err != nil {
		return nil, err
	}
	refresh := auth.BackendRefresher(bootstrap)
	stored, _, err = manager.RefreshWith(cmdCtx, key, refresh)
	if err != nil && !errors.Is(err, auth.ErrNoRefreshToken) {
		return nil, err
	}
	options = append(options,
		client.WithToken(stored.AccessToken),
		client.WithRefresher(manager.Refresher(key, refresh)),
	)
	return client.New(options...)
}

// baseOptions carries everything but the credentials. ctxCfg may be nil.
func (rt *runtimeState) baseOptions(server string, ctxCfg *config.Context) []client.Option {
	tenantID, tenantCode := rt.resolveTenant(ctxCfg)
	options := []client.Option{
		client.WithServer(server),
		client.WithUserAgent(version.UserAgent("itsmctl")),
		client.WithTenant(tenantID, tenantCode),
	}
	if rt.cfg != nil {
		if timeout := rt.cfg.Settings.TimeoutDuration(); timeout > 0 {
			options = append(options, client.WithTimeout(timeout))
		}
		if rt.cfg.Settings.RateLimit > 0 {
			options = append(options, client.WithRateLimit(rt.cfg.Settings.RateLimit, rt.cfg.Settings.Burst))
		}
	}
	caFile, insecure := "", false
	if ctxCfg != nil {
		caFile, insecure = resolveCAFile(ctxCfg, rt), ctxCfg.InsecureSkipTLSVerify
	}
	// TLS replaces the http client, the timeout is applied to it in client.New.
	options = append(options, client.WithTLSConfig(caFile, insecure))
	if rt.verbose {
		w := rt.ErrWriter()
		options = append(options, client.WithVerbose(func(format string, args ...any) {
			_, _ = fmt.Fprintf(w, "[DEBUG] "+format+"\n", args...)
		}))
	}
	return options
}

func resolveCAFile(ctxCfg *config.Context, rt *runtimeState) string {
	if ctxCfg == nil {
		return ""
	}
	if ctxCfg.CAFile != "" {
		return ctxCfg.CAFile
	}
	if rt.cfg == nil || (ctxCfg.OIDC == nil && ctxCfg.OIDCProvider == "") {
		return ""
	}
	resolved, err := rt.cfg.ResolveOIDC(ctxCfg)
	if err == nil && resolved.CAFile != "" {
		return resolved.CAFile
	}
	return ""
}

func oidcConfigFor(rt *runtimeState, ctxCfg *config.Context) (auth.OIDCConfig, error) {
	resolved, err := rt.cfg.ResolveOIDC(ctxCfg)
	if err != nil {
		return auth.OIDCConfig{}, err
	}
	grantType := resolved.GrantType
	if resolved.DeviceCodeFlow && grantType == "" {
		grantType = auth.GrantDeviceCode
	}
	secret, err := auth.ResolveClientSecret(resolved.ClientSecret, resolved.ClientSecretEnv, resolved.ClientSecretFile)
	if err != nil {
		return auth.OIDCConfig{}, err
	}
	return auth.OIDCConfig{
		Authority:       resolved.Authority,
		ClientID:        resolved.ClientID,
		ClientSecret:    secret,
		Scopes:          resolved.Scopes,
		GrantType:       grantType,
		CAFile:          resolved.CAFile,
		InsecureSkipTLS: resolved.InsecureSkipTLS,
		ExtraAuthParams: resolved.ExtraAuthParams,
		Out:             rt.ErrWriter(),
		NoBrowser:       rt.nonInteractive,
	}, nil
}

// refreshOIDCToken returns a usable access token, refreshing it through the
// provider when it is about to expire. Client credentials simply log in again.
func refreshOIDCToken(ctx context.Context, rt *runtimeState, ctxCfg *config.Context, manager *auth.TokenManager, stored auth.StoredToken) (string, error) {
	if !stored.ExpiresWithin(time.Now(), auth.RefreshWindow) {
		return stored.AccessToken, nil
	}
	oidcCfg, err := oidcConfigFor(rt, ctxCfg)
	if err != nil {
		return "", err
	}
	key := ctxCfg.CacheKey()
	provider, err := auth.Discover(ctx, oidcCfg)
	if err != nil {
		return "", err
	}
	if oidcCfg.GrantType == auth.GrantClientCredentials {
		fresh, err := provider.Login(ctx)
		if err != nil {
			return "", err
		}
		if err := manager.SaveToken(key, fresh); err != nil {
			return "", err
		}
		return fresh.AccessToken, nil
	}
	refreshed, _, err := manager.RefreshIfNeeded(provider.Context(ctx), key, provider.Config())
	if errors.Is(err, auth.ErrNoRefreshToken) {
		return "", fmt.Errorf("%w: %v", errNotAuthenticated, err)
	}
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}
