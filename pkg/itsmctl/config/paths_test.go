package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("ITSMCTL_CONFIG", "/custom/path/config.yaml")
	assert.Equal(t, "/custom/path/config.yaml", DefaultConfigPath())

	t.Setenv("ITSMCTL_CONFIG", "")
	assert.True(t, strings.HasSuffix(DefaultConfigPath(), filepath.Join("itsmctl", "config.yaml")))
}

func TestDefaultDataPaths(t *testing.T) {
	for _, tt := range []struct{ path, suffix string }{
		{DefaultTokenPath(), "tokens.json"},
		{DefaultRulesPath(), "escalation-rules.yaml"},
	} {
		assert.True(t, filepath.IsAbs(tt.path) || strings.HasPrefix(tt.path, "."), tt.path)
		assert.Equal(t, tt.suffix, filepath.Base(tt.path))
		assert.Equal(t, Dir(), filepath.Dir(tt.path))
	}
}
