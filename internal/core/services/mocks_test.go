package services

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

// MockEnclave for testing. Seal and attestation are reversible markers.
type MockEnclave struct {
	failKeys   bool
	failAttest bool
	keys       int
}

func (m *MockEnclave) Type() string        { return "simulated-enclave" }
func (m *MockEnclave) Measurement() []byte { return []byte{0xaa, 0xbb} }

func (m *MockEnclave) Attest(_ context.Context, claims []byte) ([]byte, error) {
	if m.failAttest {
		return nil, fmt.Errorf("attestation unavailable")
	}
	return append([]byte("evidence:"), claims...), nil
}

func (m *MockEnclave) GenerateKey(name, keyType string) (*ports.GeneratedKey, error) {
	if m.failKeys {
		return nil, fmt.Errorf("key generation failed")
	}
	m.keys++
	k := &ports.GeneratedKey{Name: name, Private: []byte(fmt.Sprintf("%s-private-%d", name, m.keys))}
	if keyType == ports.KeyTypeSigning {
		k.Public = []byte(fmt.Sprintf("%s-public-%d", name, m.keys))
	}
	return k, nil
}

func (m *MockEnclave) Seal(data []byte) ([]byte, error) {
	return append([]byte("sealed:"), data...), nil
}

func (m *MockEnclave) Unseal(sealed []byte) ([]byte, error) {
	rest, ok := bytes.CutPrefix(sealed, []byte("sealed:"))
	if !ok {
		return nil, fmt.Errorf("not sealed")
	}
	return rest, nil
}

// MockCertifierClient for testing. Domains in reject are refused; domains in
// unreachable fail at the transport.
type MockCertifierClient struct {
	mu          sync.Mutex
	reject      map[string]bool
	unreachable map[string]bool
	calls       map[string]int
	// onCall runs before the response is produced.
	onCall func(req *ports.CertificationRequest)
}

func NewMockCertifierClient() *MockCertifierClient {
	return &MockCertifierClient{
		reject:      make(map[string]bool),
		unreachable: make(map[string]bool),
		calls:       make(map[string]int),
	}
}

func (m *MockCertifierClient) Certify(_ context.Context, endpoint domain.Endpoint, req *ports.CertificationRequest) (*ports.CertificationResponse, error) {
	m.mu.Lock()
	m.calls[req.Domain]++
	reject, unreachable, onCall := m.reject[req.Domain], m.unreachable[req.Domain], m.onCall
	m.mu.Unlock()

	if onCall != nil {
		onCall(req)
	}
	if unreachable {
		return nil, fmt.Errorf("dial %s: connection refused", endpoint)
	}
	if reject {
		return &ports.CertificationResponse{RequestID: req.RequestID, Status: ports.StatusFailed, Reason: "untrusted measurement"}, nil
	}
	return &ports.CertificationResponse{
		RequestID:     req.RequestID,
		Status:        ports.StatusSucceeded,
		AdmissionCert: []byte("admission-cert-for-" + req.Domain),
	}, nil
}

func (m *MockCertifierClient) Calls(domain string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[domain]
}

// MockRepository for testing
type MockRepository struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

func (m *MockRepository) Save(_ context.Context, serialized []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = bytes.Clone(serialized)
	m.saves++
	return nil
}

func (m *MockRepository) Load(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, errors.NewDomainError(errors.ErrEntryNotFound, fmt.Errorf("no saved store"))
	}
	return bytes.Clone(m.data), nil
}

// MockMetrics for testing
type MockMetrics struct {
	mu             sync.Mutex
	certifications map[string]int
	failures       int
	entries        int
	initialized    bool
}

func (m *MockMetrics) RecordCertification(domain, _ string, success bool, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.certifications == nil {
		m.certifications = make(map[string]int)
	}
	m.certifications[domain]++
	if !success {
		m.failures++
	}
}

func (m *MockMetrics) RecordStoreOperation(string, bool) {}

func (m *MockMetrics) SetStoreEntries(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = n
}

func (m *MockMetrics) SetAllInitialized(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = v
}
