package transport

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/sufield/certifier/internal/adapters/interceptors"
)

// SecureServer serves an application over mutually authenticated TLS. Only
// clients admitted into the server's domain can connect.
type SecureServer struct {
	grpc *grpc.Server
}

// NewSecureServer creates a server presenting id and answering with app.
// logger may be nil; extra options are appended after the defaults.
func NewSecureServer(id Identity, app AppHandler, logger *slog.Logger, opts ...grpc.ServerOption) (*SecureServer, error) {
	if app == nil {
		return nil, fmt.Errorf("application handler cannot be nil")
	}
	tlsConfig, err := ServerTLSConfig(id)
	if err != nil {
		return nil, fmt.Errorf("server credentials: %w", err)
	}

	logCfg := interceptors.DefaultLoggingConfig()
	logCfg.Logger = logger
	all := append(ServerOptions(credentials.NewTLS(tlsConfig)),
		grpc.ChainUnaryInterceptor(
			interceptors.RequestIDServerInterceptor(),
			interceptors.NewLoggingInterceptor(logCfg).UnaryServerInterceptor(),
		))
	all = append(all, opts...)

	s := grpc.NewServer(all...)
	s.RegisterService(&appServiceDesc, app)
	return &SecureServer{grpc: s}, nil
}

// Serve accepts connections on lis until Stop or GracefulStop.
func (s *SecureServer) Serve(lis net.Listener) error {
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("secure server: %w", err)
	}
	return nil
}

// GracefulStop stops accepting connections and waits for pending calls.
func (s *SecureServer) GracefulStop() {
	s.grpc.GracefulStop()
}

// Stop closes all connections immediately.
func (s *SecureServer) Stop() {
	s.grpc.Stop()
}

// DialSecure creates a client connection to target presenting id. Like
// grpc.NewClient it connects lazily; the handshake happens on the first call.
func DialSecure(target string, id Identity, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	if target == "" {
		return nil, fmt.Errorf("target cannot be empty")
	}
	tlsConfig, err := ClientTLSConfig(id)
	if err != nil {
		return nil, fmt.Errorf("client credentials: %w", err)
	}
	conn, err := grpc.NewClient(target, append(DialOptions(credentials.NewTLS(tlsConfig)), opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", target, err)
	}
	return conn, nil
}
