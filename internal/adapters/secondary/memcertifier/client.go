// Package memcertifier provides an in-memory CertifierClient that routes
// requests to certifier authorities without a network.
package memcertifier

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/sufield/certifier/internal/adapters/secondary/certifier"
	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

// Client delivers requests to the Authority registered for the endpoint.
// Requests and responses are copied on the way through, as they would be on
// the wire.
type Client struct {
	mu          sync.RWMutex
	routes      map[string]certifier.Authority
	unreachable map[string]bool
	calls       map[string]int
}

var _ ports.CertifierClient = (*Client)(nil)

// New creates a client with no routes.
func New() *Client {
	return &Client{
		routes:      make(map[string]certifier.Authority),
		unreachable: make(map[string]bool),
		calls:       make(map[string]int),
	}
}

// Register routes requests sent to endpoint to authority.
func (c *Client) Register(endpoint domain.Endpoint, authority certifier.Authority) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[endpoint.String()] = authority
	return c
}

// SetUnreachable makes calls to endpoint fail at the transport.
func (c *Client) SetUnreachable(endpoint domain.Endpoint, unreachable bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unreachable[endpoint.String()] = unreachable
}

// Calls returns how many requests were sent to endpoint.
func (c *Client) Calls(endpoint domain.Endpoint) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls[endpoint.String()]
}

// Certify implements ports.CertifierClient.
func (c *Client) Certify(ctx context.Context, endpoint domain.Endpoint, req *ports.CertificationRequest) (*ports.CertificationResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := endpoint.String()
	c.mu.Lock()
	c.calls[target]++
	authority, ok := c.routes[target]
	down := c.unreachable[target]
	c.mu.Unlock()

	if !ok || down {
		return nil, errors.NewDomainError(errors.ErrCertificationFailed,
			fmt.Errorf("certify via %s: connection refused", target))
	}

	resp, err := authority.Certify(ctx, cloneRequest(req))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.NewDomainError(errors.ErrCertificationFailed, fmt.Errorf("certify via %s: %w", target, err))
	}
	out := *resp
	out.AdmissionCert = bytes.Clone(resp.AdmissionCert)
	return &out, nil
}

func cloneRequest(req *ports.CertificationRequest) *ports.CertificationRequest {
	c := *req
	c.Evidence = bytes.Clone(req.Evidence)
	c.PublicKey = bytes.Clone(req.PublicKey)
	c.PolicyCert = bytes.Clone(req.PolicyCert)
	return &c
}
