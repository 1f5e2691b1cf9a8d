// Package logging provides the slog-backed logger used by the certifier, with
// redaction of key material, sealed blobs and certificates.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder for redacted sensitive data.
const RedactedValue = "[REDACTED]"

// defaultSensitiveFields are matched as substrings of lower-cased attribute keys.
var defaultSensitiveFields = []string{
	"password",
	"secret",
	"token",
	"private",
	"platform_key",
	"symmetric",
	"sealed",
	"evidence",
	"admission_cert",
	"policy_cert",
	"certificate",
	"credentials",
	"authorization",
}

// RedactorHandler wraps an slog.Handler to redact sensitive attributes.
type RedactorHandler struct {
	handler         slog.Handler
	sensitiveFields []string
}

// NewRedactorHandler creates a handler that redacts the default sensitive
// fields plus any extra field names given.
func NewRedactorHandler(handler slog.Handler, extra ...string) *RedactorHandler {
	fields := make([]string, 0, len(defaultSensitiveFields)+len(extra))
	fields = append(fields, defaultSensitiveFields...)
	for _, f := range extra {
		fields = append(fields, strings.ToLower(f))
	}
	return &RedactorHandler{handler: handler, sensitiveFields: fields}
}

// Enabled implements slog.Handler.
func (h *RedactorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle implements slog.Handler.
//
//nolint:gocritic // Required by slog.Handler interface
func (h *RedactorHandler) Handle(ctx context.Context, record slog.Record) error {
	redacted := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		redacted.AddAttrs(h.redactAttr(attr))
		return true
	})

	if err := h.handler.Handle(ctx, redacted); err != nil {
		return fmt.Errorf("redactor handle failed: %w", err)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *RedactorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		redacted[i] = h.redactAttr(attr)
	}
	return &RedactorHandler{handler: h.handler.WithAttrs(redacted), sensitiveFields: h.sensitiveFields}
}

// WithGroup implements slog.Handler.
func (h *RedactorHandler) WithGroup(name string) slog.Handler {
	return &RedactorHandler{handler: h.handler.WithGroup(name), sensitiveFields: h.sensitiveFields}
}

func (h *RedactorHandler) redactAttr(attr slog.Attr) slog.Attr {
	if h.isSensitiveField(attr.Key) {
		return slog.String(attr.Key, RedactedValue)
	}

	switch attr.Value.Kind() {
	case slog.KindGroup:
		group := attr.Value.Group()
		redacted := make([]slog.Attr, len(group))
		for i, a := range group {
			redacted[i] = h.redactAttr(a)
		}
		return slog.Attr{Key: attr.Key, Value: slog.GroupValue(redacted...)}
	case slog.KindString:
		return slog.String(attr.Key, redactSensitiveString(attr.Value.String()))
	case slog.KindAny:
		// Raw bytes are key material or sealed data far more often than not.
		if _, ok := attr.Value.Any().([]byte); ok {
			return slog.String(attr.Key, RedactedValue)
		}
	}
	return attr
}

func (h *RedactorHandler) isSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range h.sensitiveFields {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func redactSensitiveString(value string) string {
	if strings.Contains(value, "-----BEGIN ") {
		return RedactedValue
	}
	return value
}

// NewHandler builds the base handler for the configured format and level.
// Unknown formats fall back to text.
func NewHandler(w io.Writer, format, level string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a level name to an slog.Level, defaulting to info.
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

// NewSecureSlogLogger creates an *slog.Logger with redaction.
func NewSecureSlogLogger(handler slog.Handler) *slog.Logger {
	return slog.New(NewRedactorHandler(handler))
}
