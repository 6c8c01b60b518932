package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ConfigFileName is the file looked up inside a config directory.
const ConfigFileName = "config.yaml"

// Load reads and parses configuration from a file or a directory holding
// config.yaml. Missing keys take their default values. When the directory
// carries a .checksums manifest the file must match it.
func Load(configPath string) (*Config, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}

	if err := verifyConfigHash(absPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	// Apply environment variable interpolation
	interpolated := interpolateEnv(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ResolvePath turns a file or directory argument into the absolute path of
// the config file.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, ConfigFileName)
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but %s not found: %s", ConfigFileName, absPath)
		}
	}
	return absPath, nil
}

func verifyConfigHash(path string) error {
	dir := filepath.Dir(path)
	checksums, err := LoadChecksums(dir)
	if err != nil {
		// No .checksums: the config was never locked.
		return nil
	}

	basename := filepath.Base(path)
	expectedHash, ok := checksums.Hashes[basename]
	if !ok {
		return fmt.Errorf("config file %s has no hash in checksums at %s\n"+
			"Run: pointzerver config lock --config %s", basename, dir, dir)
	}

	if err := VerifyFileHash(path, expectedHash); err != nil {
		return fmt.Errorf("config verification failed for %s: %w\n"+
			"If you edited this file intentionally, run: pointzerver config lock --config %s", path, err, dir)
	}
	return nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

func validatePort(field string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535 (got %d)", field, port)
	}
	return nil
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Service.LogLevel] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.LogFormat != "json" && cfg.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", cfg.Service.LogFormat)
	}

	if err := validatePort("command.port", cfg.Command.Port); err != nil {
		return err
	}
	if cfg.Command.BufferSize < 64 || cfg.Command.BufferSize > 65507 {
		return fmt.Errorf("command.buffer_size must be between 64 and 65507 (got %d)", cfg.Command.BufferSize)
	}
	if cfg.Command.SlowThreshold <= 0 {
		return fmt.Errorf("command.slow_threshold must be positive")
	}
	if cfg.Command.BatchSize <= 0 {
		return fmt.Errorf("command.batch_size must be positive")
	}
	if cfg.Command.DispatchTimeout < 0 {
		return fmt.Errorf("command.dispatch_timeout must not be negative")
	}

	if cfg.Discovery.Enabled {
		if err := validatePort("discovery.port", cfg.Discovery.Port); err != nil {
			return err
		}
		if cfg.Discovery.Port == cfg.Command.Port {
			return fmt.Errorf("discovery.port and command.port must differ (both %d)", cfg.Command.Port)
		}
		if cfg.Discovery.Interval < 0 {
			return fmt.Errorf("discovery.interval must not be negative")
		}
		if net.ParseIP(cfg.Discovery.BroadcastAddress) == nil {
			return fmt.Errorf("discovery.broadcast_address is not an IP address (got %q)", cfg.Discovery.BroadcastAddress)
		}
	}

	if cfg.Status.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Status.Listen); err != nil {
			return fmt.Errorf("status.listen: %w", err)
		}
		if envVarPattern.MatchString(cfg.Status.AppDownloadURL) {
			matches := envVarPattern.FindStringSubmatch(cfg.Status.AppDownloadURL)
			return fmt.Errorf("status.app_download_url: environment variable ${%s} is not set", matches[1])
		}
	}

	switch cfg.Input.Backend {
	case "log":
	case "xdotool":
		if cfg.Input.XdotoolPath == "" {
			return fmt.Errorf("input.xdotool_path is required for the xdotool backend")
		}
	default:
		return fmt.Errorf("input.backend must be log or xdotool (got %q)", cfg.Input.Backend)
	}

	return nil
}
