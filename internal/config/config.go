// Package config loads the service configuration from a YAML file with
// sensible defaults; CLI flags override file values.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	// DataDir holds the sqlite truth database.
	DataDir string `yaml:"data_dir"`
	// Transport is the MCP transport: stdio or http.
	Transport string `yaml:"transport"`
	// Port is the HTTP port (http transport only).
	Port string `yaml:"port"`
	// LogMode selects the log encoder: dev or prod.
	LogMode string `yaml:"log_mode"`
	// StrictTypeEnforcement makes an unconvertible merge winner fatal to
	// the snapshot computation instead of passing the raw value through
	// with a provenance warning.
	StrictTypeEnforcement bool `yaml:"strict_type_enforcement"`
	// OrphanEntityPolicy decides how zero-observation, zero-relationship
	// entities are treated by the integrity checker: error, warn, or ignore.
	OrphanEntityPolicy string `yaml:"orphan_entity_policy"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		DataDir:            "./data",
		Transport:          "stdio",
		Port:               "8081",
		LogMode:            "dev",
		OrphanEntityPolicy: "warn",
	}
}

// Load reads a YAML config file, applying defaults for absent fields. An
// empty path means no file was requested and defaults apply; an explicit
// path that cannot be read is an error, so a typoed --config does not
// silently run on defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated fields.
func (c Config) Validate() error {
	switch c.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("transport %q: use stdio or http", c.Transport)
	}
	switch c.OrphanEntityPolicy {
	case "error", "warn", "ignore":
	default:
		return fmt.Errorf("orphan_entity_policy %q: use error, warn, or ignore", c.OrphanEntityPolicy)
	}
	return nil
}
