// Package logging configures the structured logger shared by the server,
// the CLI and the engine.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format is the log output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Field keys used across packages.
const (
	ComponentKey = "component"
	SessionKey   = "session_id"
	FieldKey     = "field"
	StateKey     = "state"
	RequestIDKey = "request_id"
)

// Config holds the logging configuration.
type Config struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string
	// Format is json or text. Default: json.
	Format Format
	// Output defaults to os.Stderr.
	Output io.Writer
	// AddSource adds file and line to each record.
	AddSource bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// FromEnv creates a Config from environment variables:
//   - FIELDSTATE_DEBUG: true/1 enables debug level and source info (takes precedence)
//   - FIELDSTATE_LOG_LEVEL: takes precedence over LOG_LEVEL
//   - LOG_LEVEL: debug, info, warn, error
//   - LOG_FORMAT: json, text
//   - LOG_SOURCE: 1 adds source file/line
func FromEnv() *Config {
	cfg := DefaultConfig()

	debug := os.Getenv("FIELDSTATE_DEBUG")
	if debug == "true" || debug == "1" {
		cfg.Level = "debug"
		cfg.AddSource = true
	}

	if debug == "" {
		if level := os.Getenv("FIELDSTATE_LOG_LEVEL"); level != "" {
			cfg.Level = strings.ToLower(level)
		} else if level := os.Getenv("LOG_LEVEL"); level != "" {
			cfg.Level = strings.ToLower(level)
		}
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}

	if os.Getenv("LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}

	return cfg
}

// New creates a logger from cfg. A nil cfg uses DefaultConfig.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler)
}

// ParseLevel converts a level name, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent tags logger with a component name. A nil logger uses
// slog.Default.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(ComponentKey, component)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}
