// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the collaboration server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string for trip authorization
	// and persistence. Required.
	DatabaseURL string

	// RedisAddr is the host:port of the Redis instance backing presence,
	// activity, the read cache, and the cross-instance bridge. Required.
	RedisAddr string

	// RedisPassword is the Redis AUTH password. Optional.
	RedisPassword string

	// LogLevel controls the minimum log level. Defaults to "info".
	// Valid values: debug, info, warn, error.
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	// Defaults to ["http://localhost:3000"] (Next.js dev server).
	// Set CORS_ORIGINS to a comma-separated list to override.
	CORSOrigins []string

	// ActivityLimit bounds the per-trip activity feed. Applied at write
	// time: appending beyond the limit drops the oldest entries.
	// Defaults to 20.
	ActivityLimit int

	// CallTimeout bounds every authorization, persistence, and store call
	// made while handling a collaboration message. Defaults to 5s.
	CallTimeout time.Duration
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set.
func Load() (Config, error) {
	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		CORSOrigins:   splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000")),
	}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	if cfg.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	limit, err := strconv.Atoi(getEnv("ACTIVITY_LIMIT", "20"))
	if err != nil || limit <= 0 {
		return Config{}, fmt.Errorf("ACTIVITY_LIMIT must be a positive integer, got %q", os.Getenv("ACTIVITY_LIMIT"))
	}
	cfg.ActivityLimit = limit

	timeout, err := time.ParseDuration(getEnv("COLLAB_CALL_TIMEOUT", "5s"))
	if err != nil || timeout <= 0 {
		return Config{}, fmt.Errorf("COLLAB_CALL_TIMEOUT must be a positive duration, got %q", os.Getenv("COLLAB_CALL_TIMEOUT"))
	}
	cfg.CallTimeout = timeout

	return cfg, nil
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
