// Package config holds the process environment configuration and the runtime
// settings store backing all tunable behavior.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the static process configuration, resolved once at startup from
// the environment (optionally seeded from a .env file).
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":9876"`
	DBPath      string `envconfig:"DB_PATH" default:"data/sublingo.db"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	WorkerCount int    `envconfig:"WORKER_COUNT" default:"2"`
	MediaDirs   string `envconfig:"MEDIA_DIRS" default:""`
	ScanCron    string `envconfig:"SCAN_CRON" default:"@every 6h"`
}

// Load reads the process configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("sublingo", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	return &cfg, nil
}
