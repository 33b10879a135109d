// Package config loads process level cmdkit settings from CMDKIT_*
// environment variables.
package config

import (
	"fmt"
	"io"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hupe1980/cmdkit/logging"
)

// Config holds the settings shared by the CLI and embedding programs.
type Config struct {
	Workers         int           `env:"CMDKIT_WORKERS" envDefault:"4"`
	LogLevel        string        `env:"CMDKIT_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"CMDKIT_LOG_FORMAT" envDefault:"json"`
	ServiceName     string        `env:"CMDKIT_SERVICE_NAME" envDefault:"cmdkit"`
	OtelEndpoint    string        `env:"CMDKIT_OTEL_ENDPOINT"`
	OtelEnabled     bool          `env:"CMDKIT_OTEL_ENABLED" envDefault:"true"`
	ShutdownTimeout time.Duration `env:"CMDKIT_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses and validates a Config.
func Load() (*Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that the env tags cannot express.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("config: CMDKIT_WORKERS must be positive, got %d", c.Workers)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: CMDKIT_LOG_LEVEL: %w", err)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("config: CMDKIT_LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("config: CMDKIT_SHUTDOWN_TIMEOUT must not be negative")
	}
	return nil
}

// TracingEnabled reports whether spans should be exported.
func (c *Config) TracingEnabled() bool {
	return c.OtelEnabled && c.OtelEndpoint != ""
}

// NewLogger builds the logger described by the config, writing to out.
func (c *Config) NewLogger(out io.Writer) *logging.CmdKitLogger {
	level, _ := logging.ParseLevel(c.LogLevel)
	return logging.NewLogger(&logging.LoggerConfig{
		Level:       level,
		Format:      c.LogFormat,
		Output:      out,
		Component:   c.ServiceName,
		CustomAttrs: map[string]any{},
	})
}
