package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleConfig() Config {
	cfg := DefaultConfig()
	cfg.CurrentContext = "prod"
	cfg.Contexts = []Context{
		{Name: "prod", Server: "https://itsm.example.com", TenantID: "7", TenantCode: "acme", OIDCProvider: "corp"},
		{Name: "lab", Server: "http://localhost:8000", Username: "admin"},
	}
	cfg.OIDCProviders = []OIDCProvider{
		{Name: "corp", Authority: "https://idp.example.com/realms/itsm", ClientID: "itsmctl", Scopes: []string{"openid"}},
	}
	return cfg
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := sampleConfig()

	require.NoError(t, Save(path, &cfg))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	require.EqualError(t, err, "config path is required")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("contexts: [oops"), 0o600))
	_, err = Load(path)
	require.ErrorContains(t, err, "failed to parse config")
}

func TestLoadDefaultsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("current-context: a\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, VersionV1, cfg.Version)
}

func TestSaveNilConfig(t *testing.T) {
	require.EqualError(t, Save(filepath.Join(t.TempDir(), "c.yaml"), nil), "config is nil")
}

func TestFindAndCurrentContext(t *testing.T) {
	cfg := sampleConfig()
	ctx, err := cfg.FindContext("lab")
	require.NoError(t, err)
	assert.Equal(t, "admin", ctx.Username)

	_, err = cfg.FindContext("nope")
	require.EqualError(t, err, "context not found: nope")

	assert.Equal(t, "prod", cfg.CurrentContextOrDefault())
	cfg.CurrentContext = ""
	assert.Equal(t, "prod", cfg.CurrentContextOrDefault(), "first context is the default")
	assert.Equal(t, "", (&Config{}).CurrentContextOrDefault())
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "prod", Context{Name: "prod"}.CacheKey())
	assert.Equal(t, "shared", Context{Name: "prod", TokenKey: "shared"}.CacheKey())
}

func TestUpsertAndDeleteContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UpsertContext(Context{Name: "a", Server: "https://a"})
	cfg.UpsertContext(Context{Name: "b", Server: "https://b"})
	assert.Equal(t, "a", cfg.CurrentContext)

	cfg.UpsertContext(Context{Name: "a", Server: "https://a2"})
	require.Len(t, cfg.Contexts, 2)
	assert.Equal(t, "https://a2", cfg.Contexts[0].Server)

	require.NoError(t, cfg.DeleteContext("a"))
	assert.Empty(t, cfg.CurrentContext)
	assert.Len(t, cfg.Contexts, 1)
	assert.Error(t, cfg.DeleteContext("a"))
}

func TestSet(t *testing.T) {
	tests := []struct {
		key, value string
		wantErr    bool
		check      func(t *testing.T, s Settings)
	}{
		{"output-format", "wide", false, func(t *testing.T, s Settings) { assert.Equal(t, "wide", s.OutputFormat) }},
		{"output-format", "xml", true, nil},
		{"page-size", "100", false, func(t *testing.T, s Settings) { assert.Equal(t, 100, s.PageSize) }},
		{"page-size", "101", true, nil},
		{"page-size", "0", true, nil},
		{"timeout", "45s", false, func(t *testing.T, s Settings) { assert.Equal(t, 45*time.Second, s.TimeoutDuration()) }},
		{"timeout", "soon", true, nil},
		{"rate-limit", "2.5", false, func(t *testing.T, s Settings) { assert.InDelta(t, 2.5, s.RateLimit, 1e-9) }},
		{"rate-limit", "-1", true, nil},
		{"burst", "5", false, func(t *testing.T, s Settings) { assert.Equal(t, 5, s.Burst) }},
		{"token-storage", "keychain", false, func(t *testing.T, s Settings) { assert.Equal(t, "keychain", s.TokenStorage) }},
		{"token-storage", "vault", true, nil},
		{"rules-file", "/tmp/rules.yaml", false, func(t *testing.T, s Settings) { assert.Equal(t, "/tmp/rules.yaml", s.RulesFile) }},
		{"colour", "on", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			cfg := DefaultConfig()
			err := cfg.Set(tt.key, tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg.Settings)
		})
	}
}

func TestTimeoutDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, DefaultConfig().Settings.TimeoutDuration())
	assert.Zero(t, Settings{}.TimeoutDuration())
	assert.Zero(t, Settings{Timeout: "-1s"}.TimeoutDuration())
}

func TestResolveOIDC(t *testing.T) {
	cfg := sampleConfig()

	resolved, err := cfg.ResolveOIDC(&cfg.Contexts[0])
	require.NoError(t, err)
	assert.Equal(t, "corp", resolved.ProviderName)
	assert.Equal(t, "itsmctl", resolved.ClientID)
	assert.Equal(t, []string{"openid"}, resolved.Scopes)

	inline := Context{Name: "x", Server: "https://x", OIDCProvider: "corp", OIDC: &InlineOIDC{Authority: "https://other", ClientID: "inline", DeviceCodeFlow: true}}
	resolved, err = cfg.ResolveOIDC(&inline)
	require.NoError(t, err)
	assert.Equal(t, "inline", resolved.ClientID, "inline oidc wins over the provider reference")
	assert.True(t, resolved.DeviceCodeFlow)

	_, err = cfg.ResolveOIDC(nil)
	require.EqualError(t, err, "context is nil")
	_, err = cfg.ResolveOIDC(&cfg.Contexts[1])
	require.EqualError(t, err, "no oidc provider configured")
	_, err = cfg.ResolveOIDC(&Context{OIDCProvider: "ghost"})
	require.EqualError(t, err, "oidc provider not found: ghost")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"version", func(c *Config) { c.Version = "" }, "config version missing"},
		{"empty name", func(c *Config) { c.Contexts[1].Name = " " }, "context name cannot be empty"},
		{"duplicate", func(c *Config) { c.Contexts[1].Name = "prod" }, "duplicate context prod"},
		{"server", func(c *Config) { c.Contexts[1].Server = "" }, "context lab server is required"},
		{"provider ref", func(c *Config) { c.Contexts[0].OIDCProvider = "ghost" }, "oidc provider not found: ghost"},
		{"current", func(c *Config) { c.CurrentContext = "gone" }, "current context gone does not exist"},
		{"output", func(c *Config) { c.Settings.OutputFormat = "xml" }, `invalid output format "xml"`},
		{"page size", func(c *Config) { c.Settings.PageSize = 500 }, "page size must be within 1..100"},
		{"timeout", func(c *Config) { c.Settings.Timeout = "eventually" }, `invalid timeout "eventually"`},
		{"rate", func(c *Config) { c.Settings.RateLimit = -1 }, "rate limit cannot be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := sampleConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
