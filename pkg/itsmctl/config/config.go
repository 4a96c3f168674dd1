// Package config reads and writes the itsmctl configuration file: named
// contexts (backend, tenant, login), shared OIDC providers and CLI settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	VersionV1 = "v1"

	DefaultPageSize = 20
	MaxPageSize     = 100
)

var OutputFormats = []string{"table", "wide", "json", "yaml"}

type Config struct {
	Version        string         `yaml:"version"`
	CurrentContext string         `yaml:"current-context,omitempty"`
	OIDCProviders  []OIDCProvider `yaml:"oidc-providers,omitempty"`
	Contexts       []Context      `yaml:"contexts,omitempty"`
	Settings       Settings       `yaml:"settings,omitempty"`
}

type Settings struct {
	OutputFormat string `yaml:"output-format,omitempty"`
	PageSize     int    `yaml:"page-size,omitempty"`
	// Timeout is a Go duration, e.g. "30s".
	Timeout string `yaml:"timeout,omitempty"`
	// RateLimit is the client side request rate in queries per second; 0 is unlimited.
	RateLimit    float64 `yaml:"rate-limit,omitempty"`
	Burst        int     `yaml:"burst,omitempty"`
	TokenStorage string  `yaml:"token-storage,omitempty"`
	RulesFile    string  `yaml:"rules-file,omitempty"`
}

type OIDCProvider struct {
	Name             string            `yaml:"name"`
	Authority        string            `yaml:"authority"`
	ClientID         string            `yaml:"client-id"`
	ClientSecret     string            `yaml:"client-secret,omitempty"`
	ClientSecretEnv  string            `yaml:"client-secret-env,omitempty"`
	ClientSecretFile string            `yaml:"client-secret-file,omitempty"`
	GrantType        string            `yaml:"grant-type,omitempty"`
	CAFile           string            `yaml:"ca-file,omitempty"`
	Scopes           []string          `yaml:"scopes,omitempty"`
	DeviceCodeFlow   bool              `yaml:"device-code-flow,omitempty"`
	InsecureSkipTLS  bool              `yaml:"insecure-skip-tls-verify,omitempty"`
	ExtraAuthParams  map[string]string `yaml:"extra-auth-params,omitempty"`
}

type Context struct {
	Name       string `yaml:"name"`
	Server     string `yaml:"server"`
	TenantID   string `yaml:"tenant-id,omitempty"`
	TenantCode string `yaml:"tenant-code,omitempty"`
	// Username is used by password login when no OIDC provider is set.
	Username              string      `yaml:"username,omitempty"`
	OIDCProvider          string      `yaml:"oidc-provider,omitempty"`
	OIDC                  *InlineOIDC `yaml:"oidc,omitempty"`
	CAFile                string      `yaml:"ca-file,omitempty"`
	InsecureSkipTLSVerify bool        `yaml:"insecure-skip-tls-verify,omitempty"`
	// TokenKey overrides the token cache key; defaults to the context name.
	TokenKey string `yaml:"token-key,omitempty"`
}

func (c Context) CacheKey() string {
	if c.TokenKey != "" {
		return c.TokenKey
	}
	return c.Name
}

type InlineOIDC struct {
	Authority       string   `yaml:"authority"`
	ClientID        string   `yaml:"client-id"`
	ClientSecret    string   `yaml:"client-secret,omitempty"`
	GrantType       string   `yaml:"grant-type,omitempty"`
	Scopes          []string `yaml:"scopes,omitempty"`
	DeviceCodeFlow  bool     `yaml:"device-code-flow,omitempty"`
	CAFile          string   `yaml:"ca-file,omitempty"`
	InsecureSkipTLS bool     `yaml:"insecure-skip-tls-verify,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Version: VersionV1,
		Settings: Settings{
			OutputFormat: "table",
			PageSize:     DefaultPageSize,
			Timeout:      "30s",
		},
	}
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	return &cfg, nil
}

// Save writes the config with 0600 permissions, creating its directory with 0700.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Version == "" {
		cfg.Version = VersionV1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	content, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, content, 0o600)
}

func (c *Config) FindContext(name string) (*Context, error) {
	for i := range c.Contexts {
		if c.Contexts[i].Name == name {
			return &c.Contexts[i], nil
		}
	}
	return nil, fmt.Errorf("context not found: %s", name)
}

func (c *Config) FindOIDCProvider(name string) (*OIDCProvider, error) {
	for i := range c.OIDCProviders {
		if c.OIDCProviders[i].Name == name {
			return &c.OIDCProviders[i], nil
		}
	}
	return nil, fmt.Errorf("oidc provider not found: %s", name)
}

func (c *Config) CurrentContextOrDefault() string {
	if c.CurrentContext != "" {
		return c.CurrentContext
	}
	if len(c.Contexts) > 0 {
		return c.Contexts[0].Name
	}
	return ""
}

// UpsertContext replaces the context with the same name or appends it.
// The first context added becomes current.
func (c *Config) UpsertContext(ctx Context) {
	if existing, err := c.FindContext(ctx.Name); err == nil {
		*existing = ctx
		return
	}
	c.Contexts = append(c.Contexts, ctx)
	if c.CurrentContext == "" {
		c.CurrentContext = ctx.Name
	}
}

// DeleteContext removes a context and clears current-context when it pointed at it.
func (c *Config) DeleteContext(name string) error {
	i := slices.IndexFunc(c.Contexts, func(ctx Context) bool { return ctx.Name == name })
	if i < 0 {
		return fmt.Errorf("context not found: %s", name)
	}
	c.Contexts = slices.Delete(c.Contexts, i, i+1)
	if c.CurrentContext == name {
		c.CurrentContext = ""
	}
	return nil
}

// Set assigns a settings value by its yaml key, as used by "itsmctl config set".
func (c *Config) Set(key, value string) error {
	s := &c.Settings
	switch key {
	case "output-format":
		if !slices.Contains(OutputFormats, value) {
			return fmt.Errorf("invalid output format %q: expected one of %s", value, strings.Join(OutputFormats, ", "))
		}
		s.OutputFormat = value
	case "page-size":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > MaxPageSize {
			return fmt.Errorf("invalid page size %q: expected 1..%d", value, MaxPageSize)
		}
		s.PageSize = n
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", value, err)
		}
		s.Timeout = value
	case "rate-limit":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("invalid rate limit %q", value)
		}
		s.RateLimit = f
	case "burst":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid burst %q", value)
		}
		s.Burst = n
	case "token-storage":
		if value != "file" && value != "keychain" {
			return fmt.Errorf("invalid token storage %q: expected file or keychain", value)
		}
		s.TokenStorage = value
	case "rules-file":
		s.RulesFile = value
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// TimeoutDuration returns the configured request timeout, or zero for the client default.
func (s Settings) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

type ResolvedOIDC struct {
	ProviderName     string
	Authority        string
	ClientID         string
	ClientSecret     string
	ClientSecretEnv  string
	ClientSecretFile string
	GrantType        string
	Scopes           []string
	CAFile           string
	DeviceCodeFlow   bool
	InsecureSkipTLS  bool
	ExtraAuthParams  map[string]string
}

// ResolveOIDC prefers the inline block over the provider reference.
func (c *Config) ResolveOIDC(ctx *Context) (*ResolvedOIDC, error) {
	if ctx == nil {
		return nil, errors.New("context is nil")
	}
	if o := ctx.OIDC; o != nil {
		return &ResolvedOIDC{
			Authority:       o.Authority,
			ClientID:        o.ClientID,
			ClientSecret:    o.ClientSecret,
			GrantType:       o.GrantType,
			Scopes:          o.Scopes,
			CAFile:          o.CAFile,
			DeviceCodeFlow:  o.DeviceCodeFlow,
			InsecureSkipTLS: o.InsecureSkipTLS,
		}, nil
	}
	if ctx.OIDCProvider == "" {
		return nil, errors.New("no oidc provider configured")
	}
	p, err := c.FindOIDCProvider(ctx.OIDCProvider)
	if err != nil {
		return nil, err
	}
	return &ResolvedOIDC{
		ProviderName:     p.Name,
		Authority:        p.Authority,
		ClientID:         p.ClientID,
		ClientSecret:     p.ClientSecret,
		ClientSecretEnv:  p.ClientSecretEnv,
		ClientSecretFile: p.ClientSecretFile,
		GrantType:        p.GrantType,
		Scopes:           p.Scopes,
		CAFile:           p.CAFile,
		DeviceCodeFlow:   p.DeviceCodeFlow,
		InsecureSkipTLS:  p.InsecureSkipTLS,
		ExtraAuthParams:  p.ExtraAuthParams,
	}, nil
}

func (c *Config) Validate() error {
	if c.Version == "" {
		return errors.New("config version missing")
	}
	seen := map[string]bool{}
	for _, ctx := range c.Contexts {
		if strings.TrimSpace(ctx.Name) == "" {
			return errors.New("context name cannot be empty")
		}
		if seen[ctx.Name] {
			return fmt.Errorf("duplicate context %s", ctx.Name)
		}
		seen[ctx.Name] = true
		if strings.TrimSpace(ctx.Server) == "" {
			return fmt.Errorf("context %s server is required", ctx.Name)
		}
		if ctx.OIDCProvider != "" {
			if _, err := c.FindOIDCProvider(ctx.OIDCProvider); err != nil {
				return fmt.Errorf("context %s: %w", ctx.Name, err)
			}
		}
	}
	if c.CurrentContext != "" && !seen[c.CurrentContext] {
		return fmt.Errorf("current context %s does not exist", c.CurrentContext)
	}
	s := c.Settings
	if s.OutputFormat != "" && !slices.Contains(OutputFormats, s.OutputFormat) {
		return fmt.Errorf("invalid output format %q", s.OutputFormat)
	}
	if s.PageSize < 0 || s.PageSize > MaxPageSize {
		return fmt.Errorf("page size must be within 1..%d", MaxPageSize)
	}
	if s.Timeout != "" {
		if _, err := time.ParseDuration(s.Timeout); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", s.Timeout, err)
		}
	}
	if s.RateLimit < 0 {
		return errors.New("rate limit cannot be negative")
	}
	return nil
}
