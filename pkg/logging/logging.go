package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Environment variables consulted when no explicit level is given. The
// prefixed name wins, matching the CLI flag sources.
const (
	envLogLevel         = "GPUDOCTOR_LOG_LEVEL"
	envLogLevelFallback = "LOG_LEVEL"
)

// ParseLevel converts a log level string to a slog.Level.
// Recognized values (case-insensitive): debug, info, warn, warning, error.
// Unrecognized or empty values default to slog.LevelInfo.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewStructuredLogger creates a JSON slog.Logger writing to stderr with
// app and version attributes attached to every record. Debug level
// enables source location tracking.
func NewStructuredLogger(app, version, level string) *slog.Logger {
	lvl := ParseLevel(level)

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})

	return slog.New(handler).With(
		slog.String("app", app),
		slog.String("version", version),
	)
}

// SetDefaultStructuredLoggerWithLevel configures the process-wide default
// logger. An empty level falls back to GPUDOCTOR_LOG_LEVEL, then LOG_LEVEL,
// then INFO.
func SetDefaultStructuredLoggerWithLevel(app, version, level string) {
	if level == "" {
		level = os.Getenv(envLogLevel)
	}
	if level == "" {
		level = os.Getenv(envLogLevelFallback)
	}
	slog.SetDefault(NewStructuredLogger(app, version, level))
}
