package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// DefaultEnvFile is the dotenv file LoadFile reads when no path is given.
const DefaultEnvFile = ".env"

// Load parses environment variables into the provided struct.
// The struct should use `env` tags to define mappings.
//
// Example:
//
//	type Config struct {
//	    Port     int    `env:"HTTP_PORT" envDefault:"8080"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadFile preloads variables from a dotenv file and then parses the
// environment into cfg. Variables already present in the process environment
// take precedence over the file. A missing file is not an error.
func LoadFile(path string, cfg any) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return Load(cfg)
}
