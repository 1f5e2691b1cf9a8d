package logging

import (
	"context"
	"log/slog"

	"github.com/sufield/certifier/internal/core/ports"
)

// SecureLogger implements ports.Logger on top of slog with redaction.
type SecureLogger struct {
	logger *slog.Logger
	attrs  []ports.LogAttribute
	group  string
}

// NewSecureLogger creates a logger that redacts sensitive attributes before
// they reach handler.
func NewSecureLogger(handler slog.Handler) *SecureLogger {
	return &SecureLogger{
		logger: slog.New(NewRedactorHandler(handler)),
	}
}

// Debug logs a debug level message.
func (l *SecureLogger) Debug(ctx context.Context, message string, attrs ...ports.LogAttribute) {
	l.log(ctx, slog.LevelDebug, message, attrs...)
}

// Info logs an info level message.
func (l *SecureLogger) Info(ctx context.Context, message string, attrs ...ports.LogAttribute) {
	l.log(ctx, slog.LevelInfo, message, attrs...)
}

// Warn logs a warning level message.
func (l *SecureLogger) Warn(ctx context.Context, message string, attrs ...ports.LogAttribute) {
	l.log(ctx, slog.LevelWarn, message, attrs...)
}

// Error logs an error level message.
func (l *SecureLogger) Error(ctx context.Context, message string, attrs ...ports.LogAttribute) {
	l.log(ctx, slog.LevelError, message, attrs...)
}

// WithAttrs returns a new logger with the given attributes added.
func (l *SecureLogger) WithAttrs(attrs ...ports.LogAttribute) ports.Logger {
	newAttrs := make([]ports.LogAttribute, len(l.attrs)+len(attrs))
	copy(newAttrs, l.attrs)
	copy(newAttrs[len(l.attrs):], attrs)

	return &SecureLogger{
		logger: l.logger,
		attrs:  newAttrs,
		group:  l.group,
	}
}

// WithGroup returns a new logger with the given group name. Nested groups are
// joined with a dot.
func (l *SecureLogger) WithGroup(name string) ports.Logger {
	groupName := name
	if l.group != "" {
		groupName = l.group + "." + name
	}

	return &SecureLogger{
		logger: l.logger,
		attrs:  l.attrs,
		group:  groupName,
	}
}

func (l *SecureLogger) log(ctx context.Context, level slog.Level, message string, attrs ...ports.LogAttribute) {
	if !l.logger.Enabled(ctx, level) {
		return
	}
	slogAttrs := make([]slog.Attr, 0, len(l.attrs)+len(attrs))
	for _, attr := range l.attrs {
		slogAttrs = append(slogAttrs, slog.Any(attr.Key, attr.Value))
	}
	for _, attr := range attrs {
		slogAttrs = append(slogAttrs, slog.Any(attr.Key, attr.Value))
	}

	logger := l.logger
	if l.group != "" {
		logger = logger.WithGroup(l.group)
	}
	logger.LogAttrs(ctx, level, message, slogAttrs...)
}
