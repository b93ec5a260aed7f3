// Package config reads process settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port            string
	DBPath          string
	LogLevel        string
	LogFormat       string
	SessionTTL      time.Duration
	SubmitRateLimit int
	ShutdownTimeout time.Duration
}

// Load reads ROLLCALL_* variables. Unset or malformed values fall back to
// their defaults.
func Load() Config {
	return Config{
		Port:            EnvString("ROLLCALL_PORT", "8080"),
		DBPath:          EnvString("ROLLCALL_DB_PATH", "rollcall.db"),
		LogLevel:        EnvString("ROLLCALL_LOG_LEVEL", "info"),
		LogFormat:       EnvString("ROLLCALL_LOG_FORMAT", "text"),
		SessionTTL:      EnvDuration("ROLLCALL_SESSION_TTL", 30*24*time.Hour),
		SubmitRateLimit: EnvInt("ROLLCALL_SUBMIT_RATE_LIMIT", 10),
		ShutdownTimeout: EnvDuration("ROLLCALL_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// EnvString reads a string env var with a default.
func EnvString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// EnvInt reads a positive int env var with a default.
func EnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// EnvDuration reads a positive duration env var with a default.
func EnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
