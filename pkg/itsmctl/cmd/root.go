package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/telekom/itsmctl/pkg/itsmctl/config"
	"github.com/telekom/itsmctl/pkg/itsmctl/output"
)

type Config struct {
	ConfigPath string
	// TokenPath is the file token cache; defaults to config.DefaultTokenPath().
	TokenPath      string
	OutputWriter   io.Writer
	ErrorWriter    io.Writer
	DefaultContext string
	// Context is the parent of every command context; cancelling it stops
	// polling commands and the board.
	Context context.Context
}

type runtimeState struct {
	configPath           string
	tokenPath            string
	cfg                  *config.Config
	contextOverride      string
	outputFormat         string
	serverOverride       string
	tokenOverride        string
	tenantIDOverride     string
	tenantCodeOverride   string
	tokenStorageOverride string
	nonInteractive       bool
	verbose              bool
	writer               io.Writer
	errWriter            io.Writer
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   config.DefaultConfigPath(),
		TokenPath:    config.DefaultTokenPath(),
		OutputWriter: os.Stdout,
		ErrorWriter:  os.Stderr,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath:      cfg.ConfigPath,
		tokenPath:       cfg.TokenPath,
		contextOverride: cfg.DefaultContext,
		writer:          cfg.OutputWriter,
		errWriter:       cfg.ErrorWriter,
	}

	root := &cobra.Command{
		Use:           "itsmctl",
		Short:         "Operate an ITSM backend from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rt.applyEnv()
			if rt.outputFormat != "" {
				if _, err := output.ParseFormat(rt.outputFormat); err != nil {
					return err
				}
			}

			if cmd.Name() == "init" && cmd.Parent() != nil && cmd.Parent().Name() == "config" {
				return nil
			}
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			// Escalation rules are local and do not need a context.
			if cmd.Parent() != nil && cmd.Parent().Name() == "escalation-rule" {
				return rt.loadConfigIfPresent()
			}
			// Flags or env vars alone are enough to reach a backend.
			if rt.serverOverride != "" && rt.tokenOverride != "" {
				rt.cfg = &config.Config{Version: config.VersionV1}
				return nil
			}

			loaded, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			rt.cfg = loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().StringVarP(&rt.contextOverride, "context", "c", rt.contextOverride, "Context name override")
	root.PersistentFlags().StringVarP(&rt.outputFormat, "output", "o", "", "Output format: table, wide, json, yaml")
	root.PersistentFlags().StringVar(&rt.serverOverride, "server", "", "Server override (bypass config)")
	root.PersistentFlags().StringVar(&rt.tokenOverride, "token", "", "Bearer token override")
	root.PersistentFlags().StringVar(&rt.tenantIDOverride, "tenant-id", "", "Tenant id sent as X-Tenant-ID")
	root.PersistentFlags().StringVar(&rt.tenantCodeOverride, "tenant-code", "", "Tenant code sent as X-Tenant-Code")
	root.PersistentFlags().StringVar(&rt.tokenStorageOverride, "token-storage", "", "Token storage backend: file or keychain")
	root.PersistentFlags().BoolVar(&rt.nonInteractive, "non-interactive", false, "Fail instead of prompting")
	root.PersistentFlags().BoolVarP(&rt.verbose, "verbose", "v", false, "Print requests with their request ids to stderr")

	parent := cfg.Context
	if parent == nil {
		parent = context.Background()
	}
	root.SetContext(context.WithValue(parent, runtimeKey{}, rt))

	root.AddCommand(
		NewConfigCommand(),
		NewAuthCommand(),
		NewCatalogCommand(),
		NewSLACommand(),
		NewCMDBCommand(),
		NewTicketCommand(),
		NewIncidentCommand(),
		NewRequestCommand(),
		NewEscalationRuleCommand(),
		NewDashboardCommand(),
		NewCompletionCommand(),
		NewVersionCommand(),
	)

	return root
}

func (rt *runtimeState) applyEnv() {
	if rt.writer == nil {
		rt.writer = os.Stdout
	}
	if rt.errWriter == nil {
		rt.errWriter = os.Stderr
	}
	if rt.configPath == "" {
		rt.configPath = config.DefaultConfigPath()
	}
	if rt.tokenPath == "" {
		rt.tokenPath = config.DefaultTokenPath()
	}
	envString(&rt.contextOverride, "ITSMCTL_CONTEXT")
	envString(&rt.outputFormat, "ITSMCTL_OUTPUT")
	envString(&rt.serverOverride, "ITSMCTL_SERVER")
	envString(&rt.tokenOverride, "ITSMCTL_TOKEN")
	envString(&rt.tenantIDOverride, "ITSMCTL_TENANT_ID")
	envString(&rt.tenantCodeOverride, "ITSMCTL_TENANT_CODE")
	envString(&rt.tokenStorageOverride, "ITSMCTL_TOKEN_STORAGE")
	if !rt.nonInteractive {
		rt.nonInteractive = strings.EqualFold(os.Getenv("ITSMCTL_NON_INTERACTIVE"), "true")
	}
	if !rt.verbose {
		rt.verbose = strings.EqualFold(os.Getenv("ITSMCTL_VERBOSE"), "true")
	}
}

func envString(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) ResolveContextName() string {
	if rt.contextOverride != "" {
		return rt.contextOverride
	}
	if rt.cfg != nil {
		return rt.cfg.CurrentContextOrDefault()
	}
	return ""
}

func (rt *runtimeState) OutputFormat() output.Format {
	value := rt.outputFormat
	if value == "" && rt.cfg != nil {
		value = rt.cfg.Settings.OutputFormat
	}
	format, err := output.ParseFormat(value)
	if err != nil {
		return output.FormatTable
	}
	return format
}

// PageSize is the client side page size used when --page-size is not set.
func (rt *runtimeState) PageSize() int {
	if rt.cfg != nil && rt.cfg.Settings.PageSize > 0 {
		return rt.cfg.Settings.PageSize
	}
	return config.DefaultPageSize
}

func (rt *runtimeState) TokenStorage() string {
	if rt.tokenStorageOverride != "" {
		return rt.tokenStorageOverride
	}
	if rt.cfg != nil && rt.cfg.Settings.TokenStorage != "" {
		return rt.cfg.Settings.TokenStorage
	}
	return ""
}

func (rt *runtimeState) RulesPath(override string) string {
	if override != "" {
		return override
	}
	if rt.cfg != nil && rt.cfg.Settings.RulesFile != "" {
		return rt.cfg.Settings.RulesFile
	}
	return config.DefaultRulesPath()
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) ErrWriter() io.Writer {
	if rt.errWriter != nil {
		return rt.errWriter
	}
	return os.Stderr
}

func (rt *runtimeState) EnsureConfigLoaded() error {
	if rt.cfg != nil {
		return nil
	}
	cfg, err := config.Load(rt.configPathValue())
	if err != nil {
		return err
	}
	rt.cfg = cfg
	return nil
}

func (rt *runtimeState) loadConfigIfPresent() error {
	cfg, err := config.Load(rt.configPathValue())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	rt.cfg = cfg
	return nil
}

func (rt *runtimeState) ResolveContext() (*config.Context, error) {
	if rt.cfg == nil {
		return nil, errors.New("config not loaded")
	}
	name := rt.ResolveContextName()
	if name == "" {
		return nil, errors.New("no context configured; run 'itsmctl config init'")
	}
	return rt.cfg.FindContext(name)
}

func (rt *runtimeState) resolveServer(ctx *config.Context) string {
	if rt.serverOverride != "" {
		return rt.serverOverride
	}
	if ctx != nil {
		return ctx.Server
	}
	return ""
}

func (rt *runtimeState) resolveTenant(ctx *config.Context) (string, string) {
	id, code := rt.tenantIDOverride, rt.tenantCodeOverride
	if ctx != nil {
		if id == "" {
			id = ctx.TenantID
		}
		if code == "" {
			code = ctx.TenantCode
		}
	}
	return id, code
}

func (rt *runtimeState) configPathValue() string {
	if rt.configPath == "" {
		return config.DefaultConfigPath()
	}
	return rt.configPath
}
