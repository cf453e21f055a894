// Package logging configures the zerolog logger shared by the CLI, the proxy
// and the library packages.
package logging

import (
	"fmt"
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

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ValidateLevel reports whether level is one of the known names.
func ValidateLevel(level LogLevel) error {
	switch strings.ToLower(string(level)) {
	case "", "debug", "info", "warn", "warning", "error", "disabled":
		return nil
	}
	return fmt.Errorf("unknown log level %q", level)
}

// parseLevel converts LogLevel to zerolog.Level. Unknown names fall back to info.
func parseLevel(level LogLevel) zerolog.Level {
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

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// RedactToken masks a bearer token for log output, keeping only the last
// four characters.
func RedactToken(token string) string {
	token = strings.TrimSpace(token)
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", 8) + token[len(token)-4:]
}

// Log Level Guidelines:
//
// Debug: page and batch flow
//   - Each page or batch request (offset, count, list_ids)
//   - Selection changes and buffer resets
//   - Proxy forwarding decisions
//
// Info: normal operation events
//   - Session opened, catalog size
//   - Drain finished, export written
//   - Server startup/shutdown
//
// Warn: conditions that don't stop the tool
//   - Upstream non-2xx responses
//   - Stale page results discarded
//   - Upstream rate limit running low
//
// Error: failures the user sees
//   - Drain aborted, export failed
//   - Proxy upstream unreachable
//   - Configuration errors
//
// Context Fields:
//   - component: package emitting the event
//   - endpoint: lists or strings
//   - list_ids: selected exclude-list ids
//   - offset, count: page window
//   - drain_id: correlates the batches of one drain
//   - error_class: auth, client, rate_limit, server, network, decode
//
// The bearer token is never logged; use RedactToken when a hint is needed.
