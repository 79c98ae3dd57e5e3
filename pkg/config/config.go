// Package config loads the service configuration from environment
// variables, with defaults that make a local run work out of the box.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config aggregates all service settings.
type Config struct {
	HTTP    HTTPConfig
	Mongo   MongoConfig
	Logging LoggingConfig
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the host:port listen address.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MongoConfig configures the document store. An empty URI selects the
// in-memory store.
type MongoConfig struct {
	URI      string
	Database string
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Host:            getEnv("HTTP_HOST", "0.0.0.0"),
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", ""),
			Database: getEnv("MONGO_DATABASE", "fincore"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	var err error
	if cfg.HTTP.Port, err = getEnvInt("HTTP_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.HTTP.ReadTimeout, err = getEnvDuration("HTTP_READ_TIMEOUT", cfg.HTTP.ReadTimeout); err != nil {
		return nil, err
	}
	if cfg.HTTP.WriteTimeout, err = getEnvDuration("HTTP_WRITE_TIMEOUT", cfg.HTTP.WriteTimeout); err != nil {
		return nil, err
	}
	if cfg.HTTP.ShutdownTimeout, err = getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", cfg.HTTP.ShutdownTimeout); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
