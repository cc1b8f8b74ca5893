// Package config handles configuration file parsing for fastcp.
//
// fastcp's CLI argument surface is the primary way users set transfer
// options; this package only supplies the defaults layer beneath it
// (spec.md §3's TransferConfig fields) plus logging settings. The Transfer
// Engine and Service Orchestrator never read config files directly — they
// consume an already-resolved transfer.Config record built by cmd/fastcp
// from flags overriding this package's defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/acolita/fastcp/internal/ports"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath returns the default config file path:
// $XDG_CONFIG_HOME/fastcp/config.yaml or ~/.config/fastcp/config.yaml
func DefaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "fastcp", "config.yaml")
}

// Config is the top-level on-disk configuration.
type Config struct {
	Defaults TransferDefaults `yaml:"defaults"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// TransferDefaults mirrors transfer.Config's tunable fields (spec.md §3) so
// they can be set once in a config file instead of on every invocation. CLI
// flags always win over these.
type TransferDefaults struct {
	Parallel            int     `yaml:"parallel"`
	Aria2               bool    `yaml:"aria2"`
	ChunkSize           int64   `yaml:"chunk_size"`
	Resume              bool    `yaml:"resume"`
	PreservePermissions bool    `yaml:"preserve_permissions"`
	LimitRate           int64   `yaml:"limit_rate"`
	SSHPort             int     `yaml:"ssh_port"`
	Timeout             float64 `yaml:"timeout"`
	MaxRetries          int     `yaml:"max_retries"`
	RetryDelay          float64 `yaml:"retry_delay"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level    string `yaml:"level"`    // "debug", "info", "warn", "error"
	Sanitize bool   `yaml:"sanitize"` // sanitize sensitive data from logs
}

// DefaultConfig returns the built-in defaults (spec.md §3's default column).
func DefaultConfig() *Config {
	return &Config{
		Defaults: TransferDefaults{
			Parallel:   4,
			ChunkSize:  4 << 20,
			Resume:     true,
			SSHPort:    22,
			Timeout:    30,
			MaxRetries: 3,
			RetryDelay: 1.0,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Sanitize: true,
		},
	}
}

// Load loads configuration from a YAML file.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Load(path string, fsys ...ports.FileSystem) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	var data []byte
	var err error
	if len(fsys) > 0 && fsys[0] != nil {
		data, err = fsys[0].ReadFile(path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration, clamping out-of-range values to defaults.
func (c *Config) Validate() error {
	if c.Defaults.Parallel <= 0 {
		c.Defaults.Parallel = 4
	}
	if c.Defaults.ChunkSize <= 0 {
		c.Defaults.ChunkSize = 4 << 20
	}
	if c.Defaults.SSHPort <= 0 {
		c.Defaults.SSHPort = 22
	}
	if c.Defaults.MaxRetries < 0 {
		c.Defaults.MaxRetries = 3
	}
	return nil
}

// Save writes the configuration to a YAML file.
// An optional FileSystem can be passed for testing; if omitted, the real OS is used.
func Save(cfg *Config, path string, fsys ...ports.FileSystem) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if len(fsys) > 0 && fsys[0] != nil {
		return fsys[0].WriteFile(path, data, 0644)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
