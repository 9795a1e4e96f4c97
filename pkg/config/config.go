// Package config provides configuration loading and management for sinusct.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"sinusct/pkg/analysis"
	"sinusct/pkg/slicestack"
)

// Output formats for the report.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input describes how a slice directory becomes a volume
	Input slicestack.Params `yaml:"input"`

	// Analysis holds the settings of every pipeline stage
	Analysis analysis.Params `yaml:"analysis"`

	// Output parameters
	Output struct {
		// Format is json or yaml
		Format string `yaml:"format"`

		// LogLevel is a zerolog level name
		LogLevel string `yaml:"logLevel"`

		// Verbose switches to human-readable console logging
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Input:    slicestack.DefaultParams(),
		Analysis: analysis.DefaultParams(),
	}
	cfg.Analysis.NumWorkers = runtime.NumCPU()

	cfg.Output.Format = FormatJSON
	cfg.Output.LogLevel = "info"
	cfg.Output.Verbose = true
	return cfg
}

// Validate rejects settings that cannot produce a report.
func (c *Config) Validate() error {
	switch c.Output.Format {
	case FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}
	if c.Input.PixelSpacing <= 0 || c.Input.SliceThickness <= 0 {
		return fmt.Errorf("spacing must be positive: pixel %g, slice %g", c.Input.PixelSpacing, c.Input.SliceThickness)
	}
	if c.Analysis.NumWorkers < 1 {
		return fmt.Errorf("numWorkers must be at least 1, got %d", c.Analysis.NumWorkers)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file.
// Keys missing from the file keep their defaults; a missing file yields
// the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
