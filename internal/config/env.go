// Package config loads runtime settings from the environment and the static
// economy tables from an optional YAML document.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Env holds process-level settings.
type Env struct {
	Addr          string        `env:"ADDR" envDefault:":8080"`
	StoragePath   string        `env:"STORAGE_PATH" envDefault:"rust-and-ruin.db"`
	TablesPath    string        `env:"TABLES_PATH"`
	CyclePeriod   time.Duration `env:"RESOURCE_CYCLE_PERIOD" envDefault:"10m"`
	PrunePeriod   time.Duration `env:"SESSION_PRUNE_PERIOD" envDefault:"30s"`
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"90s"`
	WorldSeed     int64         `env:"WORLD_SEED"`
	LogJSONPath   string        `env:"LOG_JSON_PATH"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv() (Env, error) {
	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
