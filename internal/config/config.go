// Package config loads runtime settings from the environment (optionally
// seeded from a .env file).
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the server and CLI need.
type Config struct {
	DatabaseURL    string
	ServerPort     string
	AllowedOrigins string
	JWTSecret      string
	LockTimeout    time.Duration // bounded wait for row locks inside engine transactions
	LogLevel       string
	LogFormat      string // "json" or "console"
}

const (
	defaultServerPort  = "8080"
	defaultLockTimeout = 5 * time.Second
	defaultLogLevel    = "info"
	defaultLogFormat   = "json"
)

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config using lookup for every key, applying defaults
// for absent values.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		DatabaseURL:    get("DATABASE_URL", ""),
		ServerPort:     get("SERVER_PORT", defaultServerPort),
		AllowedOrigins: get("ALLOWED_ORIGINS", ""),
		JWTSecret:      get("JWT_SECRET", ""),
		LockTimeout:    defaultLockTimeout,
		LogLevel:       get("LOG_LEVEL", defaultLogLevel),
		LogFormat:      get("LOG_FORMAT", defaultLogFormat),
	}

	if raw := get("LOCK_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid LOCK_TIMEOUT %q: %w", raw, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("LOCK_TIMEOUT must be positive, got %s", d)
		}
		cfg.LockTimeout = d
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return nil, fmt.Errorf("invalid LOG_FORMAT %q (want json or console)", cfg.LogFormat)
	}

	return cfg, nil
}
