// ABOUTME: Default locations for the config file and data directory
// ABOUTME: Honors COVEN_RELAY_CONFIG and the XDG base directory variables

package config

import (
	"os"
	"path/filepath"
)

// Path returns the config file location.
// Priority: COVEN_RELAY_CONFIG > $XDG_CONFIG_HOME/coven/relay.toml > ~/.config/coven/relay.toml
func Path() string {
	if envPath := os.Getenv("COVEN_RELAY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "relay.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven", "relay.toml")
}

// DataDir returns the directory for the token cache and crypto store.
// Priority: $XDG_DATA_HOME/coven > ~/.local/share/coven
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven")
}
