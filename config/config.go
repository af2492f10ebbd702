/*
Package config loads runtime configuration for the emissions server and CLI.

SOURCES (later wins):
  1. Defaults (DefaultConfig)
  2. YAML file (Load)
  3. Environment variables (EMISSIONS_*)
  4. Command-line flags (applied by cmd/emissions)

EXAMPLE FILE:
  server:
    port: 8080
    cors_origins: ["http://localhost:5173"]
  database:
    driver: sqlite
    path: ./data/emissions.db
  logging:
    level: debug
    format: json

ENVIRONMENT:
  EMISSIONS_PORT, EMISSIONS_DB_DRIVER, EMISSIONS_DB_PATH, EMISSIONS_DB_DSN,
  EMISSIONS_LOG_LEVEL
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	CORSOrigins     []string `yaml:"cors_origins"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects and configures the store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	// Path is the SQLite file. ":memory:" keeps everything in RAM.
	Path string `yaml:"path"`
	// DSN is the PostgreSQL connection string.
	DSN            string `yaml:"dsn"`
	ConnectRetries uint64 `yaml:"connect_retries"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:5173", "http://localhost:8080"},
			ShutdownTimeout: "30s",
		},
		Database: DatabaseConfig{
			Driver:         DriverSQLite,
			Path:           "emissions.db",
			ConnectRetries: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML file over the defaults and applies environment
// overrides. An empty path or a missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies EMISSIONS_* variables.
func (c *Config) applyEnvOverrides(lookupEnv func(string) (string, bool)) error {
	if v, ok := lookupEnv("EMISSIONS_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid EMISSIONS_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v, ok := lookupEnv("EMISSIONS_DB_DRIVER"); ok && v != "" {
		c.Database.Driver = strings.ToLower(v)
	}
	if v, ok := lookupEnv("EMISSIONS_DB_PATH"); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookupEnv("EMISSIONS_DB_DSN"); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := lookupEnv("EMISSIONS_LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	return nil
}

// ValidDrivers lists the supported database drivers.
var ValidDrivers = []string{DriverSQLite, DriverPostgres, DriverMemory}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validDriver := false
	for _, d := range ValidDrivers {
		if c.Database.Driver == d {
			validDriver = true
			break
		}
	}
	if !validDriver {
		return fmt.Errorf("invalid database driver: %s (valid: %v)", c.Database.Driver, ValidDrivers)
	}
	if c.Database.Driver == DriverPostgres && c.Database.DSN == "" {
		return errors.New("postgres driver requires a dsn (set EMISSIONS_DB_DSN)")
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		return errors.New("sqlite driver requires a path")
	}

	if _, err := c.ShutdownTimeout(); err != nil {
		return err
	}
	return nil
}

// ShutdownTimeout parses the server shutdown timeout.
func (c *Config) ShutdownTimeout() (time.Duration, error) {
	if c.Server.ShutdownTimeout == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Server.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdown_timeout %q: %w", c.Server.ShutdownTimeout, err)
	}
	return d, nil
}
