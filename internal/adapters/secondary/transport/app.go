package transport

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/sufield/certifier/internal/core/ports"
)

// Application service names on the wire.
const (
	AppServiceName = "certifier.v1.App"
	helloMethod    = "Hello"
	HelloFullName  = "/" + AppServiceName + "/" + helloMethod
)

// Greetings exchanged by the sample application.
const (
	ClientGreeting = "Hi from your secret client"
	ServerGreeting = "Hi from your secret server"
)

// HelloRequest is sent by the client application.
//
//	message HelloRequest { string message = 1; }
type HelloRequest struct {
	Message string
}

func (m *HelloRequest) AppendWire(b []byte) []byte {
	return ports.AppendWireBytes(b, 1, []byte(m.Message))
}

func (m *HelloRequest) ConsumeWire(b []byte) error {
	*m = HelloRequest{}
	return ports.ConsumeWireBytes(b, func(num protowire.Number, v []byte) {
		if num == 1 {
			m.Message = string(v)
		}
	})
}

// HelloReply answers a HelloRequest. Peer is the caller's SPIFFE ID as the
// server authenticated it.
//
//	message HelloReply { string message = 1; string peer = 2; }
type HelloReply struct {
	Message string
	Peer    string
}

func (m *HelloReply) AppendWire(b []byte) []byte {
	b = ports.AppendWireBytes(b, 1, []byte(m.Message))
	return ports.AppendWireBytes(b, 2, []byte(m.Peer))
}

func (m *HelloReply) ConsumeWire(b []byte) error {
	*m = HelloReply{}
	return ports.ConsumeWireBytes(b, func(num protowire.Number, v []byte) {
		switch num {
		case 1:
			m.Message = string(v)
		case 2:
			m.Peer = string(v)
		}
	})
}

// AppHandler runs the application on an authenticated channel.
type AppHandler interface {
	Hello(ctx context.Context, req *HelloRequest) (*HelloReply, error)
}

// GreetingApp answers every hello with a fixed greeting and records what the
// clients said.
type GreetingApp struct {
	Greeting string
	// OnHello, when set, observes each request with the caller's identity.
	OnHello func(peerID, message string)
}

// Hello implements AppHandler.
func (a *GreetingApp) Hello(ctx context.Context, req *HelloRequest) (*HelloReply, error) {
	var caller string
	if id, ok := PeerID(ctx); ok {
		caller = id.String()
	}
	if a.OnHello != nil {
		a.OnHello(caller, req.Message)
	}
	return &HelloReply{Message: a.Greeting, Peer: caller}, nil
}

var appServiceDesc = grpc.ServiceDesc{
	ServiceName: AppServiceName,
	HandlerType: (*AppHandler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: helloMethod,
			Handler:    helloHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "certifier/v1/app.proto",
}

func helloHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HelloRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AppHandler).Hello(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: HelloFullName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AppHandler).Hello(ctx, req.(*HelloRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Hello sends message to the application served on conn.
func Hello(ctx context.Context, conn grpc.ClientConnInterface, message string) (*HelloReply, error) {
	out := new(HelloReply)
	if err := conn.Invoke(ctx, HelloFullName, &HelloRequest{Message: message}, out); err != nil {
		return nil, fmt.Errorf("hello: %w", err)
	}
	return out, nil
}
