package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telekom/itsmctl/pkg/itsmctl/auth"
	"github.com/telekom/itsmctl/pkg/itsmctl/client"
	"github.com/telekom/itsmctl/pkg/itsmctl/config"
	"github.com/telekom/itsmctl/pkg/itsmctl/output"
)

func NewAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with the ITSM backend",
	}
	cmd.AddCommand(
		newAuthLoginCommand(),
		newAuthStatusCommand(),
		newAuthLogoutCommand(),
	)
	return cmd
}

func usesOIDC(ctx *config.Context) bool {
	return ctx.OIDC != nil || ctx.OIDCProvider != ""
}

func newAuthLoginCommand() *cobra.Command {
	var (
		username      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login with username and password, or via OIDC when the context has a provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			ctxCfg, err := rt.ResolveContext()
			if err != nil {
				return err
			}
			manager, err := auth.NewTokenManager(rt.TokenStorage(), rt.tokenPath)
			if err != nil {
				return err
			}

			var stored auth.StoredToken
			if usesOIDC(ctxCfg) {
				loginCfg, err := oidcConfigFor(rt, ctxCfg)
				if err != nil {
					return err
				}
				stored, err = auth.Login(cmd.Context(), loginCfg)
				if err != nil {
					return err
				}
			} else {
				stored, err = passwordLogin(cmd, rt, ctxCfg, username, passwordStdin)
				if err != nil {
					return err
				}
			}

			if err := manager.SaveToken(ctxCfg.CacheKey(), stored); err != nil {
				return err
			}
			if stored.Expiry.IsZero() {
				printf(rt, "Authenticated as %s.\n", dashIfEmpty(stored.Username))
				return nil
			}
			printf(rt, "Authenticated as %s. Token expires at %s\n", dashIfEmpty(stored.Username), stored.Expiry.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username for password login (defaults to the context username)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func passwordLogin(cmd *cobra.Command, rt *runtimeState, ctxCfg *config.Context, username string, passwordStdin bool) (auth.StoredToken, error) {
	if username == "" {
		username = ctxCfg.Username
	}
	if username == "" {
		return auth.StoredToken{}, errors.New("username is required: pass --username or set it on the context")
	}
	password, err := readPassword(cmd, rt, passwordStdin)
	if err != nil {
		return auth.StoredToken{}, err
	}
	server := rt.resolveServer(ctxCfg)
	if server == "" {
		return auth.StoredToken{}, errors.New("server is required")
	}
	c, err := client.New(rt.baseOptions(server, ctxCfg)...)
	if err != nil {
		return auth.StoredToken{}, err
	}
	_, tenantCode := rt.resolveTenant(ctxCfg)
	stored, _, err := auth.PasswordLogin(cmd.Context(), c, client.LoginRequest{
		Username:   username,
		Password:   password,
		TenantCode: tenantCode,
	})
	return stored, err
}

func readPassword(cmd *cobra.Command, rt *runtimeState, fromStdin bool) (string, error) {
	if env := os.Getenv("ITSMCTL_PASSWORD"); env != "" && !fromStdin {
		return env, nil
	}
	if !fromStdin && rt.nonInteractive {
		return "", errors.New("password required: use --password-stdin or ITSMCTL_PASSWORD in non-interactive mode")
	}
	if !fromStdin {
		_, _ = fmt.Fprint(rt.ErrWriter(), "Password: ")
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is empty")
	}
	return password, nil
}

type authStatus struct {
	Context       string    `json:"context"`
	Authenticated bool      `json:"authenticated"`
	Source        string    `json:"source,omitempty"`
	Username      string    `json:"username,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	Email         string    `json:"email,omitempty"`
	TenantID      int       `json:"tenantId,omitempty"`
	Role          string    `json:"role,omitempty"`
	ExpiresAt     time.Time `json:"expiresAt,omitempty"`
	Expired       bool      `json:"expired"`
	Refreshable   bool      `json:"refreshable"`
}

func newAuthStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cached login of the current context",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			ctxCfg, err := rt.ResolveContext()
			if err != nil {
				return err
			}
			manager, err := auth.NewTokenManager(rt.TokenStorage(), rt.tokenPath)
			if err != nil {
				return err
			}
			token, ok, err := manager.GetToken(ctxCfg.CacheKey())
			if err != nil {
				return err
			}
			status := authStatus{Context: ctxCfg.Name, Authenticated: ok}
			if ok {
				status.Source = token.Source
				status.Username = token.Username
				status.ExpiresAt = token.Expiry
				status.Refreshable = token.RefreshToken != ""
				if claims, err := auth.ParseClaims(token.AccessToken); err == nil {
					status.Subject = claims.Subject
					status.Email = claims.Email
					status.TenantID = claims.TenantID
					status.Role = claims.Role
					if status.Username == "" {
						status.Username = claims.Username
					}
					if status.ExpiresAt.IsZero() {
						status.ExpiresAt = claims.ExpiresAt
					}
				}
				status.Expired = !status.ExpiresAt.IsZero() && !time.Now().Before(status.ExpiresAt)
			}
			return renderObject(rt, status, func(w io.Writer) {
				if !status.Authenticated {
					_, _ = fmt.Fprintf(w, "Not authenticated (context %s)\n", status.Context)
					return
				}
				rows := []output.KV{
					{Key: "Context", Value: status.Context},
					{Key: "Source", Value: dashIfEmpty(status.Source)},
					{Key: "User", Value: dashIfEmpty(status.Username)},
					{Key: "Subject", Value: dashIfEmpty(status.Subject)},
					{Key: "Email", Value: dashIfEmpty(status.Email)},
					{Key: "Role", Value: dashIfEmpty(status.Role)},
				}
				if status.TenantID > 0 {
					rows = append(rows, output.KV{Key: "Tenant", Value: strconv.Itoa(status.TenantID)})
				}
				expires := "never"
				if !status.ExpiresAt.IsZero() {
					expires = fmt.Sprintf("%s (%s)", status.ExpiresAt.UTC().Format(time.RFC3339), output.Age(status.ExpiresAt))
				}
				rows = append(rows,
					output.KV{Key: "Expires", Value: expires},
					output.KV{Key: "Refreshable", Value: strconv.FormatBool(status.Refreshable)},
				)
				output.WriteKeyValues(w, rows)
			})
		},
	}
}

func newAuthLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the cached token of the current context",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			ctxCfg, err := rt.ResolveContext()
			if err != nil {
				return err
			}
			manager, err := auth.NewTokenManager(rt.TokenStorage(), rt.tokenPath)
			if err != nil {
				return err
			}
			if err := manager.DeleteToken(ctxCfg.CacheKey()); err != nil {
				return err
			}
			printf(rt, "Logged out\n")
			return nil
		},
	}
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
