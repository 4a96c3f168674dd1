package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/itsmctl/pkg/itsmctl/config"
)

func TestConfigInitAndContexts(t *testing.T) {
	cli := newTestCLI(t)

	out, _, err := cli.run("config", "init", "--server", "https://itsm.example.com", "--tenant-code", "acme")
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized config at "+cli.configPath)

	info, err := os.Stat(cli.configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cfg, err := config.Load(cli.configPath)
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.CurrentContext)
	require.Len(t, cfg.Contexts, 1)
	assert.Equal(t, "acme", cfg.Contexts[0].TenantCode)

	_, _, err = cli.run("config", "init", "--server", "https://other.example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config already exists")

	out, _, err = cli.run("config", "get-contexts")
	require.NoError(t, err)
	assert.Contains(t, out, "CURRENT")
	assert.Contains(t, out, "https://itsm.example.com")
	assert.Contains(t, out, "password")
}

func TestConfigInitRequiresServer(t *testing.T) {
	cli := newTestCLI(t)
	_, _, err := cli.run("config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server")
}

func TestConfigSetContextAndUse(t *testing.T) {
	cli := newTestCLI(t)
	_, _, err := cli.run("config", "init", "--server", "https://a.example.com")
	require.NoError(t, err)

	_, _, err = cli.run("config", "set-context", "staging", "--server", "https://b.example.com")
	require.NoError(t, err)
	_, _, err = cli.run("config", "use-context", "staging")
	require.NoError(t, err)

	out, _, err := cli.run("config", "current-context")
	require.NoError(t, err)
	assert.Contains(t, out, "staging")

	_, _, err = cli.run("config", "use-context", "missing")
	require.Error(t, err)
}

func TestConfigView(t *testing.T) {
	cli := newTestCLI(t)
	_, _, err := cli.run("config", "init", "--server", "https://a.example.com")
	require.NoError(t, err)

	out, _, err := cli.run("config", "view")
	require.NoError(t, err)
	assert.Contains(t, out, "server: https://a.example.com")
	assert.Contains(t, out, "current-context: default")
}

func TestConfigCommandsFailWithoutConfig(t *testing.T) {
	cli := newTestCLI(t)
	_, _, err := cli.run("config", "get-contexts")
	require.Error(t, err)
}
