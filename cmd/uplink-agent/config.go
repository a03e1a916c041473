package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the agent configuration. Values come from the YAML
// config file; command-line flags override file values.
type Config struct {
	// Server is the ws:// or wss:// endpoint to connect to.
	Server string `yaml:"server"`

	// PublicKey identifies this agent to the endpoint.
	PublicKey string `yaml:"public_key"`

	// SecretKey is the pre-shared secret for the auth token.
	SecretKey string `yaml:"secret_key"`

	// ServerName is the machine name reported on connect. Defaults to
	// the OS hostname.
	ServerName string `yaml:"server_name"`

	// Compression enables per-message compression.
	Compression bool `yaml:"compression"`

	// Subscribe lists channel patterns to print inbound messages for.
	Subscribe []string `yaml:"subscribe"`

	// StatusInterval is the period between status envelopes
	// (0 disables the status loop).
	StatusInterval time.Duration `yaml:"status_interval"`

	KeepAlive KeepAliveSettings `yaml:"keepalive"`
	Reconnect ReconnectSettings `yaml:"reconnect"`

	// LogFile appends structured CBOR events to a file when set.
	LogFile string `yaml:"log_file"`

	// LogLevel controls console verbosity: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// KeepAliveSettings configures the liveness monitor.
type KeepAliveSettings struct {
	Disabled       bool          `yaml:"disabled"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	MaxMissedPongs int           `yaml:"max_missed_pongs"`
}

// ReconnectSettings configures automatic redialing.
type ReconnectSettings struct {
	Disabled     bool          `yaml:"disabled"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// loadConfigFile reads and parses a YAML config file.
func loadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return parseConfig(data)
}

// parseConfig parses a config from YAML bytes.
func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return &cfg, nil
}

// validate checks the fields a connection cannot be made without.
func (c *Config) validate() error {
	if c.Server == "" {
		return fmt.Errorf("server address is required")
	}
	if c.PublicKey == "" {
		return fmt.Errorf("public key is required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret key is required")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.LogLevel)
	}
	return nil
}

// applyDefaults fills in the values the flags and file left unset.
func (c *Config) applyDefaults() {
	if c.ServerName == "" {
		if hostname, err := os.Hostname(); err == nil {
			c.ServerName = hostname
		}
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = 60 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
