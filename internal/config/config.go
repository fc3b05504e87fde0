// Package config loads and validates the engine configuration.
package config

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tradeforge/signalcore/internal/fusion"
	"github.com/tradeforge/signalcore/internal/gates"
	"github.com/tradeforge/signalcore/internal/learning"
	"github.com/tradeforge/signalcore/internal/regime"
)

// Config is the full application configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`

	Regime   regime.Config   `yaml:"regime"`
	Fusion   fusion.Config   `yaml:"fusion"`
	Gates    gates.Config    `yaml:"gates"`
	Learning learning.Config `yaml:"learning"`
}

// LoggingConfig controls zerolog output.
type LoggingConfig struct {
	Level string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
}

// ServerConfig controls the diagnostics HTTP server.
type ServerConfig struct {
	Addr          string  `yaml:"addr" default:":8087"`
	RatePerSecond float64 `yaml:"rate_per_second" default:"10" validate:"gt=0"`
	RateBurst     int     `yaml:"rate_burst" default:"20" validate:"gt=0"`
}

// RedisConfig controls the optional threshold snapshot store.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled" default:"false"`
	Addr    string `yaml:"addr" default:"localhost:6379"`
	DB      int    `yaml:"db" default:"0"`
}

// PostgresConfig controls the optional outcome archive.
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled" default:"false"`
	DSN     string `yaml:"dsn" default:""`
}

// Default returns the full default configuration. A failure to apply the
// struct-tag defaults is a programming error in the tags themselves, so it
// panics rather than returning a half-initialized configuration.
func Default() Config {
	cfg := Config{
		Regime:   regime.DefaultConfig(),
		Fusion:   fusion.DefaultConfig(),
		Gates:    gates.DefaultConfig(),
		Learning: learning.DefaultConfig(),
	}
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load reads a YAML config file, fills defaults, and validates. A missing
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := defaults.Set(&cfg); err != nil {
		return cfg, fmt.Errorf("apply defaults: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks struct-level bounds on the configuration.
func Validate(cfg Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
