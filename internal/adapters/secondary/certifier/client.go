package certifier

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/sufield/certifier/internal/adapters/interceptors"
	"github.com/sufield/certifier/internal/adapters/secondary/transport"
	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

// GRPCClient implements ports.CertifierClient over gRPC. Connections are
// created on first use per endpoint and reused. The channel carries no
// transport security: the request is authenticated by its evidence and the
// response by the admission certificate's signature.
type GRPCClient struct {
	dialOptions []grpc.DialOption

	mu     sync.Mutex
	conns  map[string]*grpc.ClientConn
	closed bool
}

var _ ports.CertifierClient = (*GRPCClient)(nil)

// NewGRPCClient creates a client. Extra dial options are appended after the
// defaults, so callers can replace the transport credentials or dialer.
func NewGRPCClient(opts ...grpc.DialOption) *GRPCClient {
	defaults := append(transport.DialOptions(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(interceptors.RequestIDClientInterceptor()))
	return &GRPCClient{
		dialOptions: append(defaults, opts...),
		conns:       make(map[string]*grpc.ClientConn),
	}
}

// Certify sends req to the certifier service at endpoint.
func (c *GRPCClient) Certify(ctx context.Context, endpoint domain.Endpoint, req *ports.CertificationRequest) (*ports.CertificationResponse, error) {
	conn, err := c.conn(endpoint)
	if err != nil {
		return nil, err
	}

	resp := new(ports.CertificationResponse)
	if err := conn.Invoke(ctx, CertifyFullName, req, resp); err != nil {
		return nil, mapStatusError(endpoint, err)
	}
	if resp.RequestID != "" && resp.RequestID != req.RequestID {
		return nil, errors.NewDomainError(errors.ErrCertificationFailed,
			fmt.Errorf("%s answered request %s with %s", endpoint, req.RequestID, resp.RequestID))
	}
	return resp, nil
}

func (c *GRPCClient) conn(endpoint domain.Endpoint) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.NewDomainError(errors.ErrInvalidArgument, fmt.Errorf("certifier client is closed"))
	}

	target := endpoint.String()
	if conn, ok := c.conns[target]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(target, c.dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("create client for %s: %w", target, err)
	}
	c.conns[target] = conn
	return conn, nil
}

// mapStatusError keeps context errors recognizable and classifies the rest
// as certification failures.
func mapStatusError(endpoint domain.Endpoint, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("certify via %s: %w", endpoint, err)
	}
	switch st.Code() {
	case codes.Canceled:
		return fmt.Errorf("certify via %s: %w", endpoint, context.Canceled)
	case codes.DeadlineExceeded:
		return fmt.Errorf("certify via %s: %w", endpoint, context.DeadlineExceeded)
	default:
		return errors.NewDomainError(errors.ErrCertificationFailed,
			fmt.Errorf("certify via %s: %s: %s", endpoint, st.Code(), st.Message()))
	}
}

// Close closes every cached connection. The client cannot be used afterwards.
func (c *GRPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for target, conn := range c.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close connection to %s: %w", target, err)
		}
		delete(c.conns, target)
	}
	c.closed = true
	return firstErr
}
