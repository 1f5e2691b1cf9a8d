package certifier

import (
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"

	"github.com/sufield/certifier/internal/adapters/interceptors"
	"github.com/sufield/certifier/internal/adapters/secondary/transport"
)

// ServerConfig configures a certifier Server.
type ServerConfig struct {
	// Logger for the audit log; nil uses a redacting default.
	Logger *slog.Logger
	// Recorder receives per-request outcomes; nil discards them.
	Recorder interceptors.RequestRecorder
	// Options are appended to the grpc.Server options.
	Options []grpc.ServerOption
}

// Server hosts an Authority as the certifier.v1.Certifier gRPC service.
type Server struct {
	grpc *grpc.Server
}

// NewServer creates a server answering requests with authority.
func NewServer(authority Authority, config ServerConfig) *Server {
	logCfg := interceptors.DefaultLoggingConfig()
	logCfg.Logger = config.Logger

	opts := append(transport.ServerOptions(nil),
		grpc.ChainUnaryInterceptor(
			interceptors.RequestIDServerInterceptor(),
			interceptors.NewLoggingInterceptor(logCfg).UnaryServerInterceptor(),
			interceptors.NewMetricsInterceptor(config.Recorder).UnaryServerInterceptor(),
		))
	opts = append(opts, config.Options...)

	s := grpc.NewServer(opts...)
	s.RegisterService(&serviceDesc, authority)
	return &Server{grpc: s}
}

// Serve accepts connections on lis until Stop or GracefulStop.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.grpc.Serve(lis); err != nil {
		return fmt.Errorf("certifier server: %w", err)
	}
	return nil
}

// GracefulStop stops accepting connections and waits for pending requests.
func (s *Server) GracefulStop() {
	s.grpc.GracefulStop()
}

// Stop closes all connections immediately.
func (s *Server) Stop() {
	s.grpc.Stop()
}
