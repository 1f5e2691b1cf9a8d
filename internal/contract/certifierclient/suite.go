// Package certifierclient provides the contract test suite for
// CertifierClient implementations.
package certifierclient

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

// Harness is a client wired to a certifier service for one domain.
type Harness struct {
	Client ports.CertifierClient
	// Endpoint reaches the service.
	Endpoint domain.Endpoint
	// Domain is the domain the service admits nodes into.
	Domain string
	// Enclave is trusted by the service.
	Enclave ports.Enclave
}

// Factory creates a fresh harness for one subtest.
type Factory func(t *testing.T) Harness

// Run executes the complete contract test suite against any CertifierClient
// implementation.
func Run(t *testing.T, newImpl Factory) {
	t.Helper()
	t.Run("admits attested request", func(t *testing.T) {
		testAdmits(t, newImpl)
	})

	t.Run("refusal yields no certificate", func(t *testing.T) {
		testRefusal(t, newImpl)
	})

	t.Run("canceled context", func(t *testing.T) {
		testCanceled(t, newImpl)
	})

	t.Run("concurrent requests", func(t *testing.T) {
		testConcurrent(t, newImpl)
	})
}

// NewRequest builds a request for name attested by e.
func NewRequest(t *testing.T, e ports.Enclave, name, requestID string) *ports.CertificationRequest {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	req := &ports.CertificationRequest{
		RequestID:   requestID,
		Domain:      name,
		Purpose:     string(domain.PurposeAuthentication),
		EnclaveType: e.Type(),
		PublicKey:   pub,
	}
	req.Evidence, err = e.Attest(context.Background(), req.Claims())
	require.NoError(t, err)
	return req
}

func testAdmits(t *testing.T, newImpl Factory) {
	t.Helper()
	h := newImpl(t)
	req := NewRequest(t, h.Enclave, h.Domain, "contract-admit")

	resp, err := h.Client.Certify(context.Background(), h.Endpoint, req)
	require.NoError(t, err)
	assert.Equal(t, ports.StatusSucceeded, resp.Status, resp.Reason)
	assert.Equal(t, req.RequestID, resp.RequestID)
	assert.NotEmpty(t, resp.AdmissionCert)
}

func testRefusal(t *testing.T, newImpl Factory) {
	t.Helper()
	h := newImpl(t)
	req := NewRequest(t, h.Enclave, "not-"+h.Domain, "contract-refuse")

	resp, err := h.Client.Certify(context.Background(), h.Endpoint, req)
	// Contract: a refusal is either a failed response or a certification error.
	if err != nil {
		assert.ErrorIs(t, err, errors.ErrCertificationFailed)
		return
	}
	assert.Equal(t, ports.StatusFailed, resp.Status)
	assert.Empty(t, resp.AdmissionCert)
	assert.NotEmpty(t, resp.Reason)
}

func testCanceled(t *testing.T, newImpl Factory) {
	t.Helper()
	h := newImpl(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := h.Client.Certify(ctx, h.Endpoint, NewRequest(t, h.Enclave, h.Domain, "contract-cancel"))
	assert.Error(t, err)
	assert.Nil(t, resp)
}

func testConcurrent(t *testing.T, newImpl Factory) {
	t.Helper()
	h := newImpl(t)

	const n = 8
	reqs := make([]*ports.CertificationRequest, n)
	for i := range reqs {
		reqs[i] = NewRequest(t, h.Enclave, h.Domain, fmt.Sprintf("contract-%d", i))
	}

	var wg sync.WaitGroup
	for _, req := range reqs {
		wg.Add(1)
		go func(req *ports.CertificationRequest) {
			defer wg.Done()
			resp, err := h.Client.Certify(context.Background(), h.Endpoint, req)
			if assert.NoError(t, err) {
				assert.Equal(t, req.RequestID, resp.RequestID)
				assert.Equal(t, ports.StatusSucceeded, resp.Status)
			}
		}(req)
	}
	wg.Wait()
}
