package interceptors

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/sufield/certifier/internal/core/ports"
)

// RequestIDHeader carries the request ID in gRPC metadata.
const RequestIDHeader = "x-request-id"

type requestIDKey struct{}

// WithRequestID returns ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID stored by the request ID
// interceptor.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// RequestIDServerInterceptor stores the caller's request ID in the handler
// context. The ID comes from metadata, then from the request body, and is
// generated when neither has one.
func RequestIDServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		var id string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(RequestIDHeader); len(vals) > 0 {
				id = vals[0]
			}
		}
		if r, ok := req.(*ports.CertificationRequest); ok && r != nil {
			if id == "" {
				id = r.RequestID
			}
			if r.RequestID == "" {
				r.RequestID = id
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		return handler(WithRequestID(ctx, id), req)
	}
}

// RequestIDClientInterceptor copies the request ID of outgoing certification
// requests into metadata.
func RequestIDClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply interface{},
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		if r, ok := req.(*ports.CertificationRequest); ok && r != nil && r.RequestID != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, RequestIDHeader, r.RequestID)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}
