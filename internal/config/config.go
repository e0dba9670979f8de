// Package config loads the prover CLI configuration.
//
// The file is named by the --config flag or, failing that, the
// POSPROVER_CONFIG environment variable. Plot paths may use ${HOME} and
// ${VAR:-default} patterns.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable consulted by Load.
const EnvVar = "POSPROVER_CONFIG"

// Config is the prover CLI configuration.
type Config struct {
	// Plots lists the plot files to open.
	Plots []string `yaml:"plots"`

	// Parallel fetches the top levels of a full proof concurrently.
	// Default: true
	Parallel bool `yaml:"parallel"`

	// Workers bounds how many plots are queried at once.
	// Default: number of CPUs
	Workers int `yaml:"workers"`

	// LogLevel is one of debug, info, warn, error.
	// Default: info
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used for fields the file leaves out.
func Default() *Config {
	return &Config{
		Parallel: true,
		Workers:  runtime.NumCPU(),
		LogLevel: "info",
	}
}

// Load reads the file named by POSPROVER_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; set it to the path of a config file, or use --config", EnvVar)
	}
	return LoadFile(path)
}

// LoadFile reads, expands and validates the file at path.
func LoadFile(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ReadFile reads and expands the file at path over the defaults without
// validating it, so callers can override fields first.
func ReadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, p := range cfg.Plots {
		cfg.Plots[i] = expandVars(p)
	}
	return cfg, nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Plots) == 0 {
		errs = append(errs, errors.New("plots is required"))
	}
	for i, p := range c.Plots {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("plots[%d] is empty", i))
		}
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
