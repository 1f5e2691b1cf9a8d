// Package interceptors provides the gRPC interceptors of the certifier
// service: audit logging, request metrics and request ID propagation.
package interceptors

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/sufield/certifier/internal/adapters/logging"
	"github.com/sufield/certifier/internal/core/ports"
)

const (
	// Default thresholds for logging configuration.
	defaultSlowThreshold = 500 * time.Millisecond
	debugSlowThreshold   = 100 * time.Millisecond
)

// LoggingConfig configures audit logging behavior.
type LoggingConfig struct {
	// Logger instance; nil selects a redacting wrapper around slog.Default.
	Logger *slog.Logger

	// LogRequests enables a log line when a request arrives.
	LogRequests bool

	// SlowRequestThreshold raises completed requests slower than this to warn.
	SlowRequestThreshold time.Duration

	// ExcludeMethods are full method names that are not logged.
	ExcludeMethods []string
}

// LoggingInterceptor provides structured audit logging for the certifier service.
type LoggingInterceptor struct {
	config *LoggingConfig
	logger *slog.Logger
}

// NewLoggingInterceptor creates a logging interceptor.
func NewLoggingInterceptor(config *LoggingConfig) *LoggingInterceptor {
	if config == nil {
		config = DefaultLoggingConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(logging.NewRedactorHandler(slog.Default().Handler()))
	}
	if config.SlowRequestThreshold == 0 {
		config.SlowRequestThreshold = defaultSlowThreshold
	}

	return &LoggingInterceptor{
		config: config,
		logger: logger,
	}
}

// UnaryServerInterceptor returns a gRPC unary server interceptor for logging.
func (l *LoggingInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if slices.Contains(l.config.ExcludeMethods, info.FullMethod) {
			return handler(ctx, req)
		}

		start := time.Now()
		entry := l.baseLogEntry(ctx, info.FullMethod, req)
		if l.config.LogRequests {
			entry.DebugContext(ctx, "certification request received")
		}

		resp, err := handler(ctx, req)
		duration := time.Since(start)

		level := slog.LevelInfo
		switch {
		case err != nil:
			level = slog.LevelError
		case duration > l.config.SlowRequestThreshold:
			level = slog.LevelWarn
		}

		entry = entry.With(
			"duration_ms", duration.Milliseconds(),
			"success", err == nil,
		)
		if r, ok := resp.(*ports.CertificationResponse); ok && r != nil {
			entry = entry.With("status", r.Status)
			if r.Reason != "" {
				entry = entry.With("reason", r.Reason)
			}
		}
		if err != nil {
			st := status.Convert(err)
			entry = entry.With(
				"error_code", st.Code().String(),
				"error_message", st.Message(),
			)
		}
		entry.Log(ctx, level, "certification request completed")

		return resp, err
	}
}

func (l *LoggingInterceptor) baseLogEntry(ctx context.Context, method string, req interface{}) *slog.Logger {
	entry := l.logger.With("method", method)
	if id, ok := RequestIDFromContext(ctx); ok {
		entry = entry.With("request_id", id)
	}
	if r, ok := req.(*ports.CertificationRequest); ok && r != nil {
		entry = entry.With(
			"domain", r.Domain,
			"purpose", r.Purpose,
			"enclave_type", r.EnclaveType,
		)
	}
	return entry
}

// DefaultLoggingConfig returns the production logging configuration.
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		LogRequests:          true,
		SlowRequestThreshold: defaultSlowThreshold,
		ExcludeMethods: []string{
			"/grpc.health.v1.Health/Check",
			"/grpc.health.v1.Health/Watch",
		},
	}
}

// NewDebugLoggingConfig creates a logging config suitable for development.
func NewDebugLoggingConfig() *LoggingConfig {
	config := DefaultLoggingConfig()
	config.SlowRequestThreshold = debugSlowThreshold
	config.ExcludeMethods = nil
	return config
}
