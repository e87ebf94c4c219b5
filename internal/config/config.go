// Package config holds the settings for the gaddag command: where the
// word list and leave table come from, where the artifacts go, and how the
// build logs its progress.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full set of settings, as read from a YAML file.
type Config struct {
	// Build: the GADDAG build from a word list
	Build BuildConfig `yaml:"build"`

	// Leaves: the leave table conversion from CSV
	Leaves LeavesConfig `yaml:"leaves"`

	Logging LoggingConfig `yaml:"logging"`
}

// BuildConfig controls `gaddag build`.
type BuildConfig struct {
	Input         string `yaml:"input" validate:"required"`
	Output        string `yaml:"output" validate:"required"`
	MinWordLength int    `yaml:"min_word_length" validate:"min=1"`
	Workers       int    `yaml:"workers" validate:"min=1,max=27"`
	ProgressEvery int    `yaml:"progress_every" validate:"min=0"` // 0 disables progress lines
	MetricsFile   string `yaml:"metrics_file,omitempty"`          // Prometheus textfile, optional
}

// LeavesConfig controls `gaddag leaves build` and is the default table
// for `gaddag leaves get`.
type LeavesConfig struct {
	Input         string `yaml:"input" validate:"required"`
	Output        string `yaml:"output" validate:"required"`
	ProgressEvery int    `yaml:"progress_every" validate:"min=0"`
}

// LoggingConfig selects the level and handler of the command's logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=auto text json"` // auto: text on a terminal, JSON otherwise
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() Config {
	return Config{
		Build: BuildConfig{
			Input:         "All Words 2023.txt",
			Output:        "gaddag.bin",
			MinWordLength: 2,
			Workers:       1,
			ProgressEvery: 10000,
		},
		Leaves: LeavesConfig{
			Input:         "NWL23-leaves.csv",
			Output:        "NWL23-leaves.bin",
			ProgressEvery: 100000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

var validate = validator.New()

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("invalid config: %s fails %q (value %v)", e.Namespace(), e.Tag(), e.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads the YAML file at path over the defaults and validates the
// result. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read the config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Marshal renders the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
