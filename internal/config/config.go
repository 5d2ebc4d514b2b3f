// Package config loads and validates the proxy configuration.
//
// DESIGN: All configuration MUST come from YAML files. No defaults.
// This ensures explicit, auditable configuration for production deployments.
//
// FILES:
//   - config.go:    Root Config struct, Load(), Validate()
//   - providers.go: Per-provider endpoint and key settings
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prism-gw/prism/internal/monitoring"
)

// Config is the root configuration for the proxy.
// All fields are required - no defaults are applied.
type Config struct {
	Server      ServerConfig      `yaml:"server"`      // HTTP server settings
	Providers   ProvidersConfig   `yaml:"providers"`   // LLM provider configurations
	Compression CompressionConfig `yaml:"compression"` // Tool-result compression
	Monitoring  MonitoringConfig  `yaml:"monitoring"`  // Telemetry and logging
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int      `yaml:"port"`          // Port to listen on
	ReadTimeout  Duration `yaml:"read_timeout"`  // Max time to read request
	WriteTimeout Duration `yaml:"write_timeout"` // Max time to write response
}

// Duration parses Go duration strings ("30s", "5m") from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration '%s': %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// CompressionConfig controls the tool-result compression pass.
type CompressionConfig struct {
	Enabled     bool   `yaml:"enabled"`
	PriceDBPath string `yaml:"price_db_path"` // ":memory:" for ephemeral
}

// MonitoringConfig groups logging and telemetry settings.
type MonitoringConfig struct {
	Logging   monitoring.LoggerConfig    `yaml:"logging"`
	Telemetry monitoring.TelemetryConfig `yaml:"telemetry"`
}

// expandEnvWithDefaults expands environment variables with support for
// default values. Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides lets external systems redirect log paths without
// modifying the base config files.
func (c *Config) applyEnvOverrides() {
	if envPath := os.Getenv("PRISM_TELEMETRY_LOG"); envPath != "" {
		c.Monitoring.Telemetry.LogPath = envPath
		c.Monitoring.Telemetry.Enabled = true
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}

	if c.Compression.Enabled && c.Compression.PriceDBPath == "" {
		return fmt.Errorf("compression.price_db_path is required when compression is enabled")
	}

	if c.Providers != nil {
		if err := c.Providers.Validate(); err != nil {
			return err
		}
	}

	return nil
}
