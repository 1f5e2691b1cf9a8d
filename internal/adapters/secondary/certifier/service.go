// Package certifier carries certification requests between nodes and domain
// certifier services over gRPC, and provides the simulated certifier
// authority.
package certifier

import (
	"context"

	"google.golang.org/grpc"

	"github.com/sufield/certifier/internal/core/ports"
)

// Service and method names on the wire.
const (
	ServiceName     = "certifier.v1.Certifier"
	certifyMethod   = "Certify"
	CertifyFullName = "/" + ServiceName + "/" + certifyMethod
)

// Authority decides certification requests for one domain. A refusal is a
// response with StatusFailed; an error means the request could not be judged.
type Authority interface {
	Certify(ctx context.Context, req *ports.CertificationRequest) (*ports.CertificationResponse, error)
}

// serviceDesc registers an Authority with a grpc.Server without generated
// stubs; messages travel through the protobuf wire codec.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Authority)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: certifyMethod,
			Handler:    certifyHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "certifier/v1/certifier.proto",
}

func certifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ports.CertificationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Authority).Certify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: CertifyFullName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Authority).Certify(ctx, req.(*ports.CertificationRequest))
	}
	return interceptor(ctx, in, info, handler)
}
