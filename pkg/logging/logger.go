// Package logging configures zerolog for the Pure API client and its CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"

	// LevelDisabled turns logging off.
	LevelDisabled LogLevel = "disabled"
)

// Component names used as the "component" field of child loggers.
const (
	ComponentClient     = "pure-client"
	ComponentPagination = "pure-pagination"
	ComponentChanges    = "pure-changes"
	ComponentCheckpoint = "pure-checkpoint"
	ComponentAPI        = "pureapi"
	ComponentCLI        = "pure-api-cli"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// ParseLevel validates a level name such as "debug" or "WARN".
func ParseLevel(s string) (LogLevel, error) {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug, nil
	case LevelInfo, "":
		return LevelInfo, nil
	case LevelWarn, "warning":
		return LevelWarn, nil
	case LevelError:
		return LevelError, nil
	case LevelDisabled, "off", "none":
		return LevelDisabled, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(zerologLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

func zerologLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger derives a child of the global logger tagged with component.
// Call it after Setup; the child keeps the writer it was created with.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: per-request flow
//   - Request sent / response status
//   - Probe results (count, window_count)
//   - Skipped empty change pages
//
// Info: completed units of work
//   - Pagination and batch fetch runs finished
//   - Change feed resumed from a checkpoint
//
// Warn: degraded but recoverable
//   - Retry attempts
//   - Server Retry-After throttling
//   - Circuit breaker state changes
//
// Error: failures surfaced to the caller
//   - Retries exhausted
//   - Checkpoint store failures
//
// Context Fields:
//   - resource_path: collection path relative to the versioned base URL
//   - method, status: HTTP method and status code
//   - attempt, backoff, error_class: retry state
//   - offset, size, window, window_count, count: pagination state
//   - cursor, key: change feed state
