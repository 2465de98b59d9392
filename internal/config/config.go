// Package config loads the CLI configuration from the environment.
package config

import (
	"fmt"
	"maps"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
)

// Config is the environment configuration of the formations CLI.
type Config struct {
	// Store selects the event store backend.
	Store string `env:"FORMATIONS_STORE" envDefault:"sqlite"`

	// Path is the SQLite database file or the directory of the file store.
	Path string `env:"FORMATIONS_PATH" envDefault:"formations.db"`

	LogLevel  string `env:"FORMATIONS_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"FORMATIONS_LOG_FORMAT" envDefault:"text"`

	// RaceDelay is the base delay of the tasks in the race command.
	RaceDelay time.Duration `env:"FORMATIONS_RACE_DELAY" envDefault:"100ms"`
}

// Load parses the process environment and validates the result. Values in
// overrides, keyed by variable name, replace the environment before parsing.
func Load(overrides map[string]string) (Config, error) {
	environ := env.ToMap(os.Environ())
	maps.Copy(environ, overrides)

	cfg, err := env.ParseAsWithOptions[Config](env.Options{Environment: environ})
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be expressed as env tags.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreFile, StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q: want %s, %s or %s", c.Store, StoreMemory, StoreFile, StoreSQLite)
	}
	if c.Store != StoreMemory && c.Path == "" {
		return fmt.Errorf("store %q requires a path", c.Store)
	}
	if c.RaceDelay < 0 {
		return fmt.Errorf("race delay must not be negative")
	}
	return nil
}
