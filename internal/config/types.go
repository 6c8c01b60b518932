package config

import "time"

// Well-known ports shared with clients.
const (
	DefaultCommandPort   = 45455
	DefaultDiscoveryPort = 45454
	DefaultStatusListen  = "127.0.0.1:45460"

	// DefaultCommandBufferSize bounds a single command datagram.
	DefaultCommandBufferSize = 1024
)

// Config represents the complete pointzerver configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Command   CommandConfig   `yaml:"command"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Status    StatusConfig    `yaml:"status"`
	Input     InputConfig     `yaml:"input"`
	State     StateConfig     `yaml:"state"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name       string `yaml:"name"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`
	LogFile    string `yaml:"log_file,omitempty"`
	LogMaxSize int    `yaml:"log_max_size_mb,omitempty"`
	LogBackups int    `yaml:"log_max_backups,omitempty"`
	LogMaxAge  int    `yaml:"log_max_age_days,omitempty"`
}

// CommandConfig defines the UDP command listener.
type CommandConfig struct {
	Port            int           `yaml:"port"`
	BufferSize      int           `yaml:"buffer_size"`
	SlowThreshold   time.Duration `yaml:"slow_threshold"`
	BatchSize       int           `yaml:"batch_size"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"` // 0 disables the bound
	LogDecodeErrors bool          `yaml:"log_decode_errors"`
}

// DiscoveryConfig defines the discovery beacon.
type DiscoveryConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Port             int           `yaml:"port"`
	Interval         time.Duration `yaml:"interval"` // 0 disables periodic announcements
	BroadcastAddress string        `yaml:"broadcast_address"`
}

// StatusConfig defines the loopback status endpoint.
type StatusConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Listen         string `yaml:"listen"`
	AppDownloadURL string `yaml:"app_download_url"`
}

// InputConfig selects the input-injection backend.
type InputConfig struct {
	Backend     string `yaml:"backend"` // log | xdotool
	XdotoolPath string `yaml:"xdotool_path,omitempty"`
}

// StateConfig defines where batch reports are stored. Empty disables storage.
type StateConfig struct {
	Path string `yaml:"path"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:       "pointzerver",
			LogLevel:   "info",
			LogFormat:  "json",
			LogMaxSize: 10,
			LogBackups: 3,
			LogMaxAge:  28,
		},
		Command: CommandConfig{
			Port:            DefaultCommandPort,
			BufferSize:      DefaultCommandBufferSize,
			SlowThreshold:   10 * time.Millisecond,
			BatchSize:       100,
			DispatchTimeout: 2 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Enabled:          true,
			Port:             DefaultDiscoveryPort,
			Interval:         5 * time.Second,
			BroadcastAddress: "255.255.255.255",
		},
		Status: StatusConfig{
			Enabled:        true,
			Listen:         DefaultStatusListen,
			AppDownloadURL: "https://github.com/mattjoyce/pointzerver/releases/latest",
		},
		Input: InputConfig{
			Backend:     "log",
			XdotoolPath: "xdotool",
		},
		State: StateConfig{
			Path: "./data/pointzerver.db",
		},
	}
}
