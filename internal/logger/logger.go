// Package logger wraps log/slog behind a small interface so components
// can take child loggers and tests can discard output.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// AppLogger is the logging surface components depend on. Args follow
// slog key-value convention.
type AppLogger interface {
	With(args ...any) AppLogger
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, err error, args ...any)
	Fatal(msg string, err error, args ...any)
}

type appLogger struct {
	log *slog.Logger
}

// NewAppSLogger creates a text slog logger on stderr. Verbose enables
// debug-level output from dependencies that honor the default level.
func NewAppSLogger(verbose bool) AppLogger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &appLogger{log: slog.New(handler)}
}

// NewDiscardLogger creates a logger that drops everything; for tests.
func NewDiscardLogger() AppLogger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return &appLogger{log: slog.New(handler)}
}

func (l *appLogger) With(args ...any) AppLogger {
	return &appLogger{log: l.log.With(args...)}
}

func (l *appLogger) Info(msg string, args ...any) {
	l.log.Info(msg, args...)
}

func (l *appLogger) Warn(msg string, args ...any) {
	l.log.Warn(msg, args...)
}

func (l *appLogger) Error(msg string, err error, args ...any) {
	l.log.Error(msg, append([]any{slog.Any("error", err)}, args...)...)
}

func (l *appLogger) Fatal(msg string, err error, args ...any) {
	l.Error(msg, err, args...)
	os.Exit(1)
}
