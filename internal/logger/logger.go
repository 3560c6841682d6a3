package logger

import (
	"fmt"
	"log/slog"
	"os"
)

// Supported logging levels
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Supported environments
const (
	EnvDev        = "dev"
	EnvProduction = "production"
)

// Logger interface defines the logging contract
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

// New creates a logger appropriate for the environment:
// human readable text for dev, JSON for production
func New(environment string, level string) (Logger, error) {
	switch environment {
	case EnvDev:
		return NewLogger(level), nil
	case EnvProduction:
		return NewJSONLogger(level), nil
	default:
		return nil, fmt.Errorf("unknown environment: %q", environment)
	}
}

// NewLogger creates a new text logger with the specified level
func NewLogger(level string) Logger {
	return newSlog(level, func(opts *slog.HandlerOptions) slog.Handler {
		return slog.NewTextHandler(os.Stdout, opts)
	})
}

// NewJSONLogger creates a new JSON logger with the specified level
func NewJSONLogger(level string) Logger {
	return newSlog(level, func(opts *slog.HandlerOptions) slog.Handler {
		return slog.NewJSONHandler(os.Stdout, opts)
	})
}

// NewNoOpLogger creates a logger that discards all log messages
func NewNoOpLogger() Logger {
	return &slogAdapter{logger: slog.New(slog.DiscardHandler)}
}

func newSlog(level string, newHandler func(*slog.HandlerOptions) slog.Handler) Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevelString(level),
		AddSource:   true,
		ReplaceAttr: trimSourceDir,
	}

	return &slogAdapter{logger: slog.New(newHandler(opts))}
}
