// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Auth backends.
const (
	BackendMock     = "mock"
	BackendDatabase = "database"
)

// Session storage media.
const (
	StorageMemory = "memory"
	StorageValkey = "valkey"
)

// minSigningKeyLength mirrors auth.MinSigningKeyLength.
const minSigningKeyLength = 32

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host    string
	Port    string
	Env     string // "development", "production", "testing"
	BaseURL string // public storefront URL used in mailed links

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache)
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string

	// Auth settings
	AuthBackend    string        // "mock" or "database"
	MockDelay      time.Duration // artificial latency of the mock backend
	SessionStorage string        // "memory" or "valkey"
	SigningKey     string        // enables signed session tokens when set
	SessionIdleTTL time.Duration // idle time before a client's store is evicted
	LoginRateLimit int           // credential attempts per minute per address and per account
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if critical values
// are missing in production mode.
func Load() (*Config, error) {
	cfg := &Config{
		Host:    envOrDefault("APP_HOST", "0.0.0.0"),
		Port:    envOrDefault("APP_PORT", "8080"),
		Env:     envOrDefault("APP_ENV", "development"),
		BaseURL: envOrDefault("APP_BASE_URL", "http://localhost:8080"),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "storefront"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "storefront"),

		ValkeyHost:     envOrDefault("VALKEY_HOST", "localhost"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		AuthBackend:    envOrDefault("AUTH_BACKEND", BackendMock),
		SessionStorage: envOrDefault("SESSION_STORAGE", StorageValkey),
		SigningKey:     os.Getenv("SESSION_SIGNING_KEY"),
	}

	var err error
	if cfg.MockDelay, err = durationOrDefault("AUTH_MOCK_DELAY", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTTL, err = durationOrDefault("SESSION_IDLE_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.LoginRateLimit, err = intOrDefault("LOGIN_RATE_LIMIT", 10); err != nil {
		return nil, err
	}

	switch cfg.AuthBackend {
	case BackendMock, BackendDatabase:
	default:
		return nil, fmt.Errorf("AUTH_BACKEND must be %q or %q, got %q", BackendMock, BackendDatabase, cfg.AuthBackend)
	}
	switch cfg.SessionStorage {
	case StorageMemory, StorageValkey:
	default:
		return nil, fmt.Errorf("SESSION_STORAGE must be %q or %q, got %q", StorageMemory, StorageValkey, cfg.SessionStorage)
	}
	if cfg.MockDelay < 0 {
		return nil, fmt.Errorf("AUTH_MOCK_DELAY must not be negative")
	}
	if cfg.SessionIdleTTL <= 0 {
		return nil, fmt.Errorf("SESSION_IDLE_TTL must be positive")
	}
	if cfg.LoginRateLimit < 0 {
		return nil, fmt.Errorf("LOGIN_RATE_LIMIT must not be negative")
	}
	if cfg.SigningKey != "" && len(cfg.SigningKey) < minSigningKeyLength {
		return nil, fmt.Errorf("SESSION_SIGNING_KEY must be at least %d bytes", minSigningKeyLength)
	}

	if cfg.IsProduction() {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
		if cfg.SigningKey == "" {
			return nil, fmt.Errorf("SESSION_SIGNING_KEY must be set in production")
		}
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// ValkeyAddr returns the Valkey address (host:port).
func (c *Config) ValkeyAddr() string {
	return fmt.Sprintf("%s:%s", c.ValkeyHost, c.ValkeyPort)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true in production mode. Cookies are marked Secure
// there.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// NeedsDatabase reports whether any configured component uses PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.AuthBackend == BackendDatabase
}

// NeedsValkey reports whether any configured component uses Valkey.
func (c *Config) NeedsValkey() bool {
	return c.SessionStorage == StorageValkey
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// durationOrDefault parses a Go duration ("500ms", "30m") from key.
func durationOrDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// intOrDefault parses an integer from key.
func intOrDefault(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
