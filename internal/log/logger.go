// Package log provides structured logging utilities.
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config captures options for configuring the global logger.
type Config struct {
	Level   string    // optional log level ("debug", "info", etc.)
	Output  io.Writer // optional writer (defaults to os.Stderr)
	Service string    // optional service name attached to every log entry
}

var (
	mu   sync.Mutex
	set  bool
	base zerolog.Logger
)

// Configure initialises the base zerolog logger. Only the first call wins,
// later calls are ignored so libraries cannot override the host's choice.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if set {
		return
	}
	set = true

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	} else if env := os.Getenv("LYNK_LOG_LEVEL"); env != "" {
		if parsed, err := zerolog.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	zerolog.TimeFieldFormat = time.RFC3339

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}

	service := cfg.Service
	if service == "" {
		service = "lynk-embed"
	}

	base = zerolog.New(writer).Level(level).With().
		Timestamp().
		Str(FieldService, service).
		Logger()
}

func logger() zerolog.Logger {
	Configure(Config{})
	mu.Lock()
	defer mu.Unlock()
	return base
}

// Base returns the configured base logger instance.
func Base() zerolog.Logger {
	return logger()
}

// WithComponent returns a child logger annotated with the given component name.
func WithComponent(component string) zerolog.Logger {
	return logger().With().Str(FieldComponent, component).Logger()
}

// Component returns a component logger for an SDK instance. Debug output is
// only emitted when the instance was configured with debug enabled.
func Component(component string, debug bool) zerolog.Logger {
	l := WithComponent(component)
	if debug {
		return l.Level(zerolog.DebugLevel)
	}
	if l.GetLevel() < zerolog.InfoLevel {
		return l.Level(zerolog.InfoLevel)
	}
	return l
}
