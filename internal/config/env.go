package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	xlog "github.com/vincentbai/lynk-embed/internal/log"
)

func envLogger() zerolog.Logger {
	return xlog.WithComponent("config")
}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "key") || strings.Contains(k, "secret") || strings.Contains(k, "token")
}

// ParseString reads a string from the environment or returns defaultValue.
// Values of secret-looking keys are never logged.
func ParseString(key, defaultValue string) string {
	logger := envLogger()
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	e := logger.Debug().Str("key", key).Str("source", "environment")
	if sensitive(key) {
		e = e.Bool("sensitive", true)
	} else {
		e = e.Str("value", v)
	}
	e.Msg("using environment variable")
	return v
}

// ParseInt reads an integer from the environment. Invalid values fall back to
// defaultValue with a warning.
func ParseInt(key string, defaultValue int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		logger := envLogger()
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
		return defaultValue
	}
	return i
}

// ParseDuration reads a Go duration ("5s") from the environment.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger := envLogger()
		logger.Warn().
			Str("key", key).
			Str("value", v).
			Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
		return defaultValue
	}
	return d
}

// ParseBool accepts true/false, 1/0 and yes/no, case-insensitively.
func ParseBool(key string, defaultValue bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	logger := envLogger()
	logger.Warn().
		Str("key", key).
		Str("value", v).
		Bool("default", defaultValue).
		Msg("invalid boolean in environment variable, using default")
	return defaultValue
}

// parseOptionalBool is ParseBool for tri-state settings.
func parseOptionalBool(key string, current *bool) *bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return current
	}
	fallback := current != nil && *current
	b := ParseBool(key, fallback)
	return &b
}
