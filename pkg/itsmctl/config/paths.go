package config

import (
	"os"
	"path/filepath"
)

const (
	defaultConfigDirName = "itsmctl"
	defaultConfigFile    = "config.yaml"
	defaultTokenFile     = "tokens.json"
	defaultRulesFile     = "escalation-rules.yaml"
)

// Dir is UserConfigDir()/itsmctl, or ~/.itsmctl when no config dir is known.
func Dir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, defaultConfigDirName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+defaultConfigDirName)
}

// DefaultConfigPath honours $ITSMCTL_CONFIG.
func DefaultConfigPath() string {
	if env := os.Getenv("ITSMCTL_CONFIG"); env != "" {
		return env
	}
	return filepath.Join(Dir(), defaultConfigFile)
}

func DefaultTokenPath() string {
	return filepath.Join(Dir(), defaultTokenFile)
}

func DefaultRulesPath() string {
	return filepath.Join(Dir(), defaultRulesFile)
}
