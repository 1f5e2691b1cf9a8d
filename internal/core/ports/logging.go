// Package ports defines the interfaces between the certifier core and the
// collaborators it drives: enclaves, certifier services, storage and logging.
package ports

import (
	"context"
)

// LogAttribute represents a key-value pair for structured logging.
type LogAttribute struct {
	Key   string
	Value interface{}
}

// Attr is shorthand for constructing a LogAttribute.
func Attr(key string, value interface{}) LogAttribute {
	return LogAttribute{Key: key, Value: value}
}

// Logger provides structured logging with redaction of sensitive values.
type Logger interface {
	// Debug logs a debug level message.
	Debug(ctx context.Context, message string, attrs ...LogAttribute)
	// Info logs an info level message.
	Info(ctx context.Context, message string, attrs ...LogAttribute)
	// Warn logs a warning level message.
	Warn(ctx context.Context, message string, attrs ...LogAttribute)
	// Error logs an error level message.
	Error(ctx context.Context, message string, attrs ...LogAttribute)
	// WithAttrs returns a new logger with the given attributes added.
	WithAttrs(attrs ...LogAttribute) Logger
	// WithGroup returns a new logger with the given group name.
	WithGroup(name string) Logger
}
