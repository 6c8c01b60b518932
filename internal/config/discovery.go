package config

import (
	"errors"
	"os"
	"path/filepath"
)

// ErrNoConfig is returned by DiscoverConfigDir when no candidate exists.
// Callers fall back to Defaults().
var ErrNoConfig = errors.New("no config found (checked: $POINTZERVER_CONFIG_DIR, ~/.config/pointzerver, /etc/pointzerver, ./config.yaml)")

// DiscoverConfigDir finds the config location by checking standard locations.
// Priority order: $POINTZERVER_CONFIG_DIR, ~/.config/pointzerver, /etc/pointzerver, ./config.yaml
func DiscoverConfigDir() (string, error) {
	if dir := os.Getenv("POINTZERVER_CONFIG_DIR"); dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfigDir := filepath.Join(homeDir, ".config", "pointzerver")
		if fileExists(filepath.Join(userConfigDir, ConfigFileName)) {
			return userConfigDir, nil
		}
	}

	systemConfigDir := "/etc/pointzerver"
	if fileExists(filepath.Join(systemConfigDir, ConfigFileName)) {
		return systemConfigDir, nil
	}

	if fileExists("./" + ConfigFileName) {
		return "./" + ConfigFileName, nil
	}

	return "", ErrNoConfig
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
