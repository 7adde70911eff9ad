package util

import (
	"fmt"
	"os"
	"path/filepath"
)

const appDir = "elabgate"

// DataDir returns where the local registry lives by default:
// $XDG_DATA_HOME/elabgate or ~/.local/share/elabgate.
func DataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// ConfigDir returns $XDG_CONFIG_HOME/elabgate or ~/.config/elabgate.
func ConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

func xdgDir(envKey string, fallback ...string) (string, error) {
	if base := os.Getenv(envKey); base != "" && filepath.IsAbs(base) {
		return filepath.Join(base, appDir), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	parts := append([]string{homeDir}, fallback...)
	return filepath.Join(append(parts, appDir)...), nil
}
