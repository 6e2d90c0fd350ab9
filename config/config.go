/*
Package config loads server configuration from the environment.

SOURCES (later wins):
  1. Defaults below
  2. .env in the working directory, if present (godotenv)
  3. Process environment
  4. cmd/server flags, applied by the caller

VARIABLES:
  PORT          HTTP port                       (8080)
  DB_DRIVER     sqlite | postgres               (sqlite)
  DB_PATH       SQLite file, or :memory:        (dues.db)
  DATABASE_URL  PostgreSQL DSN, required for postgres
  LOG_LEVEL     debug | info | warn | error     (info, read by logging/)
  CORS_ORIGINS  Comma-separated allowed origins (api defaults)
*/
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Port        string
	DBDriver    string
	DBPath      string
	DatabaseURL string
	LogLevel    string
	CORSOrigins []string
}

// Load reads .env (when present) and the environment. A missing .env is
// not an error; a malformed one is.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the process environment only.
func FromEnv() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:      getEnv("DB_PATH", "dues.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "")),
	}
}

// Validate checks the combination of settings once flags have been applied.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q (want %s or %s)", c.DBDriver, DriverSQLite, DriverPostgres)
	}
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	return nil
}

// LogValue keeps the DSN out of logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("port", c.Port),
		slog.String("db_driver", c.DBDriver),
		slog.String("db_path", c.DBPath),
		slog.Bool("database_url_set", c.DatabaseURL != ""),
		slog.String("log_level", c.LogLevel),
		slog.Any("cors_origins", c.CORSOrigins),
	)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
