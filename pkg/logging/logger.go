// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output. Commands default to
	// pretty output; --log-json turns it off.
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: true,
		Output: os.Stderr,
	}
}

// ForCLI returns DefaultConfig adjusted for the --verbose and --log-json flags.
func ForCLI(verbose, jsonOutput bool) Config {
	cfg := DefaultConfig()
	if verbose {
		cfg.Level = LevelDebug
	}
	cfg.Pretty = !jsonOutput
	return cfg
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-page and per-entity detail
//   - Page fetched (resource, page, items, total)
//   - Nested task started/completed
//   - Retry backoff, cache hit/miss
//
// Info: command milestones
//   - Top-level phase started/completed
//   - Discovery complete (resource, items, duration)
//
// Warn: recoverable problems
//   - Task failed (entity rejected by the API)
//   - Rate limited, waiting for Retry-After
//   - Cache errors (request falls through to the API)
//
// Error: the command cannot continue
//   - Discovery failed
//   - Invalid configuration
//
// Context Fields:
//   - component: package emitting the event
//   - resource: Admin API collection (posts, tags, members, ...)
//   - task: task title
//   - depth: runner nesting level
//   - status: HTTP status code
//   - error_class: client, server, rate_limit, network
