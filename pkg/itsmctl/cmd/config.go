package cmd

import (
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/telekom/itsmctl/pkg/itsmctl/config"
	"github.com/telekom/itsmctl/pkg/itsmctl/output"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage itsmctl configuration",
	}

	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigViewCommand(),
		newConfigContextsCommand(),
		newConfigCurrentContextCommand(),
		newConfigUseContextCommand(),
		newConfigSetContextCommand(),
		newConfigDeleteContextCommand(),
		newConfigSetValueCommand(),
		newConfigAddOIDCProviderCommand(),
		newConfigGetOIDCProvidersCommand(),
		newConfigDeleteOIDCProviderCommand(),
	)

	return cmd
}

// contextFlags are shared by init and set-context.
type contextFlags struct {
	server        string
	tenantID      string
	tenantCode    string
	username      string
	oidcProvider  string
	oidcAuthority string
	oidcClientID  string
	caFile        string
	insecure      bool
}

func (f *contextFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.server, "server", "", "ITSM backend URL")
	cmd.Flags().StringVar(&f.tenantID, "tenant-id", "", "Tenant id")
	cmd.Flags().StringVar(&f.tenantCode, "tenant-code", "", "Tenant code")
	cmd.Flags().StringVar(&f.username, "username", "", "Username for password login")
	cmd.Flags().StringVar(&f.oidcProvider, "oidc-provider", "", "OIDC provider name to reference")
	cmd.Flags().StringVar(&f.oidcAuthority, "oidc-authority", "", "Inline OIDC authority URL")
	cmd.Flags().StringVar(&f.oidcClientID, "oidc-client-id", "", "Inline OIDC client ID")
	cmd.Flags().StringVar(&f.caFile, "ca-file", "", "CA bundle for the backend")
	cmd.Flags().BoolVar(&f.insecure, "insecure-skip-tls-verify", false, "Skip TLS verification")
}

// apply overlays the flags that were set on ctx.
func (f *contextFlags) apply(cmd *cobra.Command, ctx *config.Context) error {
	set := cmd.Flags().Changed
	if set("server") {
		ctx.Server = f.server
	}
	if set("tenant-id") {
		ctx.TenantID = f.tenantID
	}
	if set("tenant-code") {
		ctx.TenantCode = f.tenantCode
	}
	if set("username") {
		ctx.Username = f.username
	}
	if set("ca-file") {
		ctx.CAFile = f.caFile
	}
	if set("insecure-skip-tls-verify") {
		ctx.InsecureSkipTLSVerify = f.insecure
	}
	if set("oidc-provider") {
		ctx.OIDCProvider = f.oidcProvider
		ctx.OIDC = nil
	}
	if set("oidc-authority") || set("oidc-client-id") {
		if f.oidcAuthority == "" || f.oidcClientID == "" {
			return fmt.Errorf("oidc-authority and oidc-client-id must be set together")
		}
		ctx.OIDC = &config.InlineOIDC{Authority: f.oidcAuthority, ClientID: f.oidcClientID}
		ctx.OIDCProvider = ""
	}
	return nil
}

func newConfigInitCommand() *cobra.Command {
	var (
		contextName string
		flags       contextFlags
		force       bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize an itsmctl config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			path := rt.configPathValue()
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config already exists: %s", path)
				}
			}
			if contextName == "" {
				contextName = "default"
			}
			cfg := config.DefaultConfig()
			ctx := config.Context{Name: contextName}
			if err := flags.apply(cmd, &ctx); err != nil {
				return err
			}
			cfg.UpsertContext(ctx)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			printf(rt, "Initialized config at %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&contextName, "context-name", "default", "Name of the first context")
	flags.register(cmd)
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")

	_ = cmd.MarkFlagRequired("server")
	return cmd
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			format := output.FormatYAML
			if rt.OutputFormat() == output.FormatJSON {
				format = output.FormatJSON
			}
			return output.WriteObject(rt.Writer(), format, rt.cfg)
		},
	}
}

func newConfigContextsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-contexts",
		Short: "List configured contexts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			current := rt.ResolveContextName()
			return renderObject(rt, rt.cfg.Contexts, func(out io.Writer) {
				w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
				defer func() {
					_ = w.Flush()
				}()
				_, _ = fmt.Fprintln(w, "CURRENT\tNAME\tSERVER\tTENANT\tAUTH")
				for _, ctx := range rt.cfg.Contexts {
					marker := ""
					if ctx.Name == current {
						marker = "*"
					}
					login := "password"
					if usesOIDC(&ctx) {
						login = "oidc"
					}
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, ctx.Name, ctx.Server, dashIfEmpty(ctx.TenantCode), login)
				}
			})
		},
	}
}

func newConfigUseContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "use-context NAME",
		Aliases: []string{"use"},
		Short:   "Switch the current context",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			if _, err := rt.cfg.FindContext(name); err != nil {
				return err
			}
			rt.cfg.CurrentContext = name
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			printf(rt, "Switched to context %s\n", name)
			return nil
		},
	}
}

func newConfigSetContextCommand() *cobra.Command {
	var flags contextFlags
	cmd := &cobra.Command{
		Use:   "set-context NAME",
		Short: "Create a context or update the given fields of an existing one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			ctx := config.Context{Name: name}
			verb := "Created"
			if existing, err := rt.cfg.FindContext(name); err == nil {
				ctx = *existing
				verb = "Updated"
			}
			if err := flags.apply(cmd, &ctx); err != nil {
				return err
			}
			rt.cfg.UpsertContext(ctx)
			if err := rt.cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			printf(rt, "%s context %s\n", verb, name)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newConfigCurrentContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current-context",
		Short: "Show the current context",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			printf(rt, "%s\n", rt.ResolveContextName())
			return nil
		},
	}
}

func newConfigSetValueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a setting: output-format, page-size, timeout, rate-limit, burst, token-storage, rules-file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			if err := rt.cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			printf(rt, "Set %s to %s\n", args[0], args[1])
			return nil
		},
	}
}

func newConfigDeleteContextCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-context NAME",
		Short: "Delete a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			if err := rt.cfg.DeleteContext(args[0]); err != nil {
				return err
			}
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			printf(rt, "Deleted context %s\n", args[0])
			return nil
		},
	}
}

func newConfigAddOIDCProviderCommand() *cobra.Command {
	var (
		authority        string
		clientID         string
		clientSecretEnv  string
		clientSecretFile string
		grantType        string
		caFile           string
		scopes           []string
	)
	cmd := &cobra.Command{
		Use:   "add-oidc-provider NAME",
		Short: "Add a reusable OIDC provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			if _, err := rt.cfg.FindOIDCProvider(name); err == nil {
				return fmt.Errorf("oidc provider already exists: %s", name)
			}
			rt.cfg.OIDCProviders = append(rt.cfg.OIDCProviders, config.OIDCProvider{
				Name:             name,
				Authority:        authority,
				ClientID:         clientID,
				ClientSecretEnv:  clientSecretEnv,
				ClientSecretFile: clientSecretFile,
				GrantType:        grantType,
				CAFile:           caFile,
				Scopes:           scopes,
			})
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			printf(rt, "Added OIDC provider %s\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&authority, "authority", "", "OIDC authority URL")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OIDC client ID")
	cmd.Flags().StringVar(&clientSecretEnv, "client-secret-env", "", "Env var holding the client secret")
	cmd.Flags().StringVar(&clientSecretFile, "client-secret-file", "", "File holding the client secret")
	cmd.Flags().StringVar(&grantType, "grant-type", "authorization-code", "authorization-code, device-code or client-credentials")
	cmd.Flags().StringVar(&caFile, "ca-file", "", "CA file")
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "Scopes to request (repeatable)")
	_ = cmd.MarkFlagRequired("authority")
	_ = cmd.MarkFlagRequired("client-id")
	return cmd
}

func newConfigGetOIDCProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get-oidc-providers",
		Short: "List configured OIDC providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			for _, p := range rt.cfg.OIDCProviders {
				printf(rt, "%s\t%s\t%s\t%s\n", p.Name, p.Authority, p.ClientID, dashIfEmpty(p.GrantType))
			}
			return nil
		},
	}
}

func newConfigDeleteOIDCProviderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-oidc-provider NAME",
		Short: "Delete an OIDC provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			for _, ctx := range rt.cfg.Contexts {
				if ctx.OIDCProvider == name {
					return fmt.Errorf("oidc provider %s still referenced by context %s", name, ctx.Name)
				}
			}
			i := slices.IndexFunc(rt.cfg.OIDCProviders, func(p config.OIDCProvider) bool { return p.Name == name })
			if i < 0 {
				return fmt.Errorf("oidc provider not found: %s", name)
			}
			rt.cfg.OIDCProviders = slices.Delete(rt.cfg.OIDCProviders, i, i+1)
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			printf(rt, "Deleted OIDC provider %s\n", name)
			return nil
		},
	}
}
