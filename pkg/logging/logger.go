// Package logging configures the zerolog global logger for the audit and
// hands out component loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a configured level name.
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

	// Pretty enables console output instead of JSON lines.
	Pretty bool

	// Output defaults to os.Stderr so that stdout stays free for results.
	Output io.Writer

	// Service, when set, is added to every line as "service".
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it. Loggers built
// with NewLogger afterwards inherit its output and fields.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(toZerolog(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	log.Logger = ctx.Logger()

	return log.Logger
}

// toZerolog maps a level name onto zerolog. Unknown names log at info.
func toZerolog(level LogLevel) zerolog.Level {
	name, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(string(name))
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// ParseLevel validates a level name from flags or config files.
func ParseLevel(s string) (LogLevel, error) {
	switch l := LogLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return l, nil
	case "warning":
		return LevelWarn, nil
	default:
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn or error)", s)
	}
}

// What goes where:
//
// Debug: per-enrollment fetch results, cache hits, outgoing CPS requests.
//
// Info: audit start and completion with counts, contract and batch
// completion, pass timings, metrics server lifecycle.
//
// Warn: inline retries, batches finishing with failures, rate limit
// penalties, Redis errors (the audit continues without Redis), dropped
// progress events.
//
// Error: unusable CPS client, batches failed as a whole.
//
// Common fields: run_id, contract, batch, enrollment_id, pass, status,
// error_class, retry_after.
