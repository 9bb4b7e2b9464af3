// ABOUTME: Configuration loading and parsing for the openagents network
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete network configuration
type Config struct {
	Network Network `yaml:"network"`
	Server  Server  `yaml:"server"`
	Auth    Auth    `yaml:"auth"`
	Events  Events  `yaml:"events"`
	Logging Logging `yaml:"logging"`
	Metrics Metrics `yaml:"metrics"`
}

// Network identifies this network instance
type Network struct {
	Name string `yaml:"name"`
	ID   string `yaml:"id"`
}

// Server holds listener address configuration
type Server struct {
	HTTPAddr string `yaml:"http_addr"`
}

// Auth holds agent credential configuration
type Auth struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	CredentialTTL time.Duration `yaml:"-"`

	CredentialTTLRaw string `yaml:"credential_ttl"`
}

// Events holds event-routing tunables
type Events struct {
	HistorySize int `yaml:"history_size"`
	QueueSize   int `yaml:"queue_size"`
	DedupeSize  int `yaml:"dedupe_size"`

	DedupeTTL       time.Duration `yaml:"-"`
	ResponseTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	DedupeTTLRaw       string `yaml:"dedupe_ttl"`
	ResponseTimeoutRaw string `yaml:"response_timeout"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics holds metrics endpoint configuration
type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Network: Network{Name: "openagents"},
		Server:  Server{HTTPAddr: ":8700"},
		Events: Events{
			HistorySize:     10000,
			QueueSize:       1000,
			DedupeTTL:       5 * time.Minute,
			ResponseTimeout: 30 * time.Second,
		},
		Logging: Logging{Level: "info", Format: "text"},
		Metrics: Metrics{Enabled: true, Path: "/metrics"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// ResolvePath picks the config file location: the OPENAGENTS_CONFIG
// environment variable wins, then $XDG_CONFIG_HOME/openagents/config.yaml,
// then ~/.config/openagents/config.yaml. Returns "" when none exists.
func ResolvePath() string {
	if p := os.Getenv("OPENAGENTS_CONFIG"); p != "" {
		return p
	}

	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}

	p := filepath.Join(base, "openagents", "config.yaml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment
// variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Network.Name == "" {
		return fmt.Errorf("network.name is required")
	}
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Events.QueueSize < 0 {
		return fmt.Errorf("events.queue_size must not be negative")
	}
	if c.Events.HistorySize < 0 {
		return fmt.Errorf("events.history_size must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Auth.CredentialTTLRaw != "" {
		cfg.Auth.CredentialTTL, err = time.ParseDuration(cfg.Auth.CredentialTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing credential_ttl %q: %w", cfg.Auth.CredentialTTLRaw, err)
		}
	}

	if cfg.Events.DedupeTTLRaw != "" {
		cfg.Events.DedupeTTL, err = time.ParseDuration(cfg.Events.DedupeTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Events.DedupeTTLRaw, err)
		}
	}

	if cfg.Events.ResponseTimeoutRaw != "" {
		cfg.Events.ResponseTimeout, err = time.ParseDuration(cfg.Events.ResponseTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing response_timeout %q: %w", cfg.Events.ResponseTimeoutRaw, err)
		}
	}

	return nil
}
