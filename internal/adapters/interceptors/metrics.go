package interceptors

import (
	"context"

	"google.golang.org/grpc"

	"github.com/sufield/certifier/internal/core/ports"
)

const statusError = "error"

// RequestRecorder receives one event per handled certification request.
type RequestRecorder interface {
	// RecordRequest records the domain asked for and the outcome: the
	// response status, or "error" when no response was produced.
	RecordRequest(domain, status string)
}

// NoopRequestRecorder discards request events.
type NoopRequestRecorder struct{}

// RecordRequest is a no-op implementation.
func (NoopRequestRecorder) RecordRequest(_, _ string) {}

// MetricsInterceptor records certification request outcomes.
type MetricsInterceptor struct {
	recorder RequestRecorder
}

// NewMetricsInterceptor creates a metrics interceptor. A nil recorder discards events.
func NewMetricsInterceptor(recorder RequestRecorder) *MetricsInterceptor {
	if recorder == nil {
		recorder = NoopRequestRecorder{}
	}
	return &MetricsInterceptor{recorder: recorder}
}

// UnaryServerInterceptor returns a gRPC unary server interceptor for request metrics.
func (m *MetricsInterceptor) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		resp, err := handler(ctx, req)

		domain := "unknown"
		if r, ok := req.(*ports.CertificationRequest); ok && r != nil && r.Domain != "" {
			domain = r.Domain
		}
		outcome := statusError
		if r, ok := resp.(*ports.CertificationResponse); ok && r != nil && err == nil {
			outcome = r.Status
		}
		m.recorder.RecordRequest(domain, outcome)

		return resp, err
	}
}
