package config

import (
	"fmt"
	"os"

	"indoor-positioning/internal/logging"
	"indoor-positioning/internal/robust"
	"indoor-positioning/internal/simulation"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure of a simulation YAML file.
type Config struct {
	LogLevel string `yaml:"log_level"`
	Seed     uint64 `yaml:"seed"` // zero picks a random seed
	Steps    int    `yaml:"steps"`

	Simulation simulation.Config       `yaml:"simulation"`
	Estimator  robust.SequentialConfig `yaml:"estimator"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		Steps:      50,
		Simulation: simulation.DefaultConfig(),
		Estimator:  robust.DefaultSequentialConfig(),
	}
}

// Load reads path and overlays it on Default, so a file only needs the
// keys it changes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Steps < 0 {
		return fmt.Errorf("negative step count %d", c.Steps)
	}
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if err := c.Estimator.Validate(c.Simulation.Dimension); err != nil {
		return fmt.Errorf("estimator: %w", err)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (logging.Level, error) {
	return logging.ParseLevel(c.LogLevel)
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
