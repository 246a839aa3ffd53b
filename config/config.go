// Package config loads the server configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/compliance-engine/compliance"
)

// Database drivers accepted in database.driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Compliance ComplianceConfig `yaml:"compliance"`
	Warmer     WarmerConfig     `yaml:"warmer"`
	Logging    LoggingConfig    `yaml:"logging"`
	// Seed loads the reference routes on startup when the store is empty.
	Seed bool `yaml:"seed"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ComplianceConfig struct {
	TargetIntensity        decimal.Decimal `yaml:"target_intensity"`
	FallbackEnergyPerTonne decimal.Decimal `yaml:"fallback_energy_per_tonne"`
}

type WarmerConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	settings := compliance.DefaultSettings()
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{Driver: DriverSQLite, DSN: "compliance.db"},
		Compliance: ComplianceConfig{
			TargetIntensity:        settings.TargetIntensity,
			FallbackEnergyPerTonne: settings.FallbackEnergyPerTonne,
		},
		Warmer:  WarmerConfig{Enabled: true, Interval: time.Hour},
		Logging: LoggingConfig{Level: "info", Pretty: true},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked reads path over the defaults without validating.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes YAML over the defaults. Keys absent from raw keep their
// default value.
func Parse(raw []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres or memory (got %q)", c.Database.Driver)
	}
	if !c.Compliance.TargetIntensity.IsPositive() {
		return fmt.Errorf("compliance.target_intensity must be positive (got %s)", c.Compliance.TargetIntensity)
	}
	if !c.Compliance.FallbackEnergyPerTonne.IsPositive() {
		return fmt.Errorf("compliance.fallback_energy_per_tonne must be positive (got %s)", c.Compliance.FallbackEnergyPerTonne)
	}
	if c.Warmer.Enabled && c.Warmer.Interval <= 0 {
		return errors.New("warmer.interval must be positive when the warmer is enabled")
	}
	return nil
}

// Settings converts the compliance section for the engine.
func (c *Config) Settings() compliance.Settings {
	return compliance.Settings{
		TargetIntensity:        c.Compliance.TargetIntensity,
		FallbackEnergyPerTonne: c.Compliance.FallbackEnergyPerTonne,
	}
}
