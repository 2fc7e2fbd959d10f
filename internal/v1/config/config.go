// Package config validates the environment and exposes it as a typed Config.
// Validation accumulates every problem before failing so an operator sees the
// full list in one run.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Defaults for the optional variables.
const (
	DefaultPort             = "8080"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultEventBuffer      = 256
	DefaultCommandBuffer    = 1024
)

// Config holds validated environment configuration
type Config struct {
	// MARAIN_PORT — listener port (defaults to 8080)
	Port string

	// MARAIN_HANDSHAKE_TIMEOUT — read deadline on the login frame
	HandshakeTimeout time.Duration

	// MARAIN_EVENT_BUFFER — per-session event sink capacity
	EventBuffer int

	// MARAIN_COMMAND_BUFFER — gateway/app channel capacity
	CommandBuffer int

	// ALLOWED_ORIGINS — comma-separated origin allowlist; empty allows all
	AllowedOrigins []string

	// OTEL_COLLECTOR_ADDR — enables tracing when set
	OTelCollectorAddr string

	// DEVELOPMENT_MODE — colored console logging + gin debug mode
	DevelopmentMode bool
}

// ValidateEnv validates all environment variables and returns a Config object.
// Returns an error listing every invalid variable.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Optional: MARAIN_PORT (valid port number, defaults to 8080)
	cfg.Port = getEnvOrDefault("MARAIN_PORT", DefaultPort)
	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("MARAIN_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	// Optional: MARAIN_HANDSHAKE_TIMEOUT (Go duration, defaults to 10s)
	cfg.HandshakeTimeout = DefaultHandshakeTimeout
	if raw := os.Getenv("MARAIN_HANDSHAKE_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errors = append(errors, fmt.Sprintf("MARAIN_HANDSHAKE_TIMEOUT must be a positive duration like '10s' (got '%s')", raw))
		} else {
			cfg.HandshakeTimeout = d
		}
	}

	// Optional: MARAIN_EVENT_BUFFER (positive int, defaults to 256)
	cfg.EventBuffer = DefaultEventBuffer
	if raw := os.Getenv("MARAIN_EVENT_BUFFER"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			errors = append(errors, fmt.Sprintf("MARAIN_EVENT_BUFFER must be a positive integer (got '%s')", raw))
		} else {
			cfg.EventBuffer = n
		}
	}

	// Optional: MARAIN_COMMAND_BUFFER (positive int, defaults to 1024)
	cfg.CommandBuffer = DefaultCommandBuffer
	if raw := os.Getenv("MARAIN_COMMAND_BUFFER"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			errors = append(errors, fmt.Sprintf("MARAIN_COMMAND_BUFFER must be a positive integer (got '%s')", raw))
		} else {
			cfg.CommandBuffer = n
		}
	}

	// Optional: ALLOWED_ORIGINS (comma-separated; empty list allows any origin)
	cfg.AllowedOrigins = ParseAllowedOrigins(os.Getenv("ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 {
		slog.Warn("ALLOWED_ORIGINS not set, accepting WebSocket upgrades from any origin")
	}

	cfg.OTelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// ParseAllowedOrigins splits a comma-separated origin list, trimming blanks.
// A lone "*" means allow-all and yields an empty list.
func ParseAllowedOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" && part != "*" {
			origins = append(origins, part)
		}
	}
	return origins
}

// logValidatedConfig logs the validated configuration
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"port", cfg.Port,
		"handshake_timeout", cfg.HandshakeTimeout.String(),
		"event_buffer", cfg.EventBuffer,
		"command_buffer", cfg.CommandBuffer,
		"allowed_origins", cfg.AllowedOrigins,
		"otel_collector_addr", cfg.OTelCollectorAddr,
		"development_mode", cfg.DevelopmentMode,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}
