package certifier

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/sufield/certifier/internal/adapters/secondary/enclave"
	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
	"github.com/sufield/certifier/internal/core/services"
)

const bufSize = 1024 * 1024

var (
	testPlatformKey = make([]byte, enclave.PlatformKeySize)
	testMeasurement = []byte{0x01, 0x02, 0x03, 0x04}
)

func newTestAuthority(t *testing.T, name string, trusted ...[]byte) *SimulatedAuthority {
	t.Helper()
	if len(trusted) == 0 {
		trusted = [][]byte{testMeasurement}
	}
	a, err := NewSimulatedAuthority(AuthorityConfig{
		Domain:              name,
		PlatformKey:         testPlatformKey,
		TrustedMeasurements: trusted,
	})
	require.NoError(t, err)
	return a
}

func newTestEnclave(t *testing.T, measurement []byte) *enclave.Simulated {
	t.Helper()
	e, err := enclave.NewSimulated(testPlatformKey, measurement)
	require.NoError(t, err)
	return e
}

// signedRequest builds a request attested by e.
func signedRequest(t *testing.T, e *enclave.Simulated, name string) *ports.CertificationRequest {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	req := &ports.CertificationRequest{
		RequestID:   "req-" + name,
		Domain:      name,
		Purpose:     string(domain.PurposeAuthentication),
		EnclaveType: ports.EnclaveSimulated,
		PublicKey:   pub,
	}
	req.Evidence, err = e.Attest(context.Background(), req.Claims())
	require.NoError(t, err)
	return req
}

// startServer serves a over bufconn and returns a client dialing it for any
// endpoint.
func startServer(t *testing.T, a Authority, config ServerConfig) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	srv := NewServer(a, config)
	go func() { _ = srv.Serve(lis) }()

	client := NewGRPCClient(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	t.Cleanup(func() {
		_ = client.Close()
		srv.Stop()
	})
	return client
}

func testEndpoint(t *testing.T) domain.Endpoint {
	t.Helper()
	ep, err := domain.NewEndpoint("127.0.0.1", 8123)
	require.NoError(t, err)
	return ep
}

func TestNewSimulatedAuthority_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  AuthorityConfig
	}{
		{"bad domain", AuthorityConfig{Domain: "Not A Domain", PlatformKey: testPlatformKey, TrustedMeasurements: [][]byte{testMeasurement}}},
		{"short platform key", AuthorityConfig{Domain: "a.test", PlatformKey: []byte("short"), TrustedMeasurements: [][]byte{testMeasurement}}},
		{"no measurements", AuthorityConfig{Domain: "a.test", PlatformKey: testPlatformKey}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSimulatedAuthority(tt.cfg)
			assert.ErrorIs(t, err, errors.ErrInvalidArgument)
		})
	}
}

func TestSimulatedAuthority_Certify(t *testing.T) {
	a := newTestAuthority(t, "datica-test")
	req := signedRequest(t, newTestEnclave(t, testMeasurement), "datica-test")

	resp, err := a.Certify(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ports.StatusSucceeded, resp.Status, resp.Reason)
	assert.Equal(t, req.RequestID, resp.RequestID)

	cert, err := x509.ParseCertificate(resp.AdmissionCert)
	require.NoError(t, err)
	assert.Equal(t, ed25519.PublicKey(req.PublicKey), cert.PublicKey)

	policy, err := x509.ParseCertificate(a.PolicyCertificate())
	require.NoError(t, err)
	assert.True(t, policy.IsCA)
	require.NoError(t, cert.CheckSignatureFrom(policy))
	assert.ElementsMatch(t, []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}, cert.ExtKeyUsage)

	id, err := AdmissionIdentity(resp.AdmissionCert)
	require.NoError(t, err)
	assert.Equal(t, "spiffe://datica-test/enclave/"+hex.EncodeToString(testMeasurement), id.String())
}

func TestSimulatedAuthority_MixedCaseDomain(t *testing.T) {
	a := newTestAuthority(t, "Datica")
	client := startServer(t, a, ServerConfig{})

	td := services.NewTrustData(services.TrustDataConfig{EnclaveType: ports.EnclaveSimulated},
		services.WithEnclave(newTestEnclave(t, testMeasurement)),
		services.WithCertifierClient(client))
	ctx := context.Background()
	require.NoError(t, td.ColdInit(ctx))
	require.True(t, td.AddOrUpdateNewDomain("Datica", a.PolicyCertificate(), "127.0.0.1", 8121, "127.0.0.1", 8123))

	require.True(t, td.CertifySecondaryDomain(ctx, "Datica"))

	d, _ := td.Domain("Datica")
	id, err := AdmissionIdentity(d.AdmissionCert)
	require.NoError(t, err)
	assert.Equal(t, "spiffe://datica/enclave/"+hex.EncodeToString(testMeasurement), id.String())
	assert.NotEqual(t, domain.NotFound, td.PolicyStore().FindEntry(domain.AdmissionCertTag("Datica"), domain.EntryTypeCert))

	// The authority answers for its exact name only.
	resp, err := a.Certify(ctx, signedRequest(t, newTestEnclave(t, testMeasurement), "datica"))
	require.NoError(t, err)
	assert.Equal(t, ports.StatusFailed, resp.Status)
}

func TestSimulatedAuthority_Refusals(t *testing.T) {
	good := newTestEnclave(t, testMeasurement)

	tests := []struct {
		name   string
		mutate func(*ports.CertificationRequest)
		want   string
	}{
		{"other domain", func(r *ports.CertificationRequest) { r.Domain = "other.test" }, "not an authority"},
		{"enclave type", func(r *ports.CertificationRequest) { r.EnclaveType = "sgx" }, "unsupported enclave type"},
		{"public key", func(r *ports.CertificationRequest) { r.PublicKey = []byte("short") }, "not an ed25519 key"},
		{"tampered claims", func(r *ports.CertificationRequest) { r.Purpose = "attestation" }, "does not cover"},
		{"garbage evidence", func(r *ports.CertificationRequest) { r.Evidence = []byte("{") }, "decode evidence"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAuthority(t, "datica-test")
			req := signedRequest(t, good, "datica-test")
			tt.mutate(req)

			resp, err := a.Certify(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, ports.StatusFailed, resp.Status)
			assert.Contains(t, resp.Reason, tt.want)
			assert.Empty(t, resp.AdmissionCert)
		})
	}

	t.Run("untrusted measurement", func(t *testing.T) {
		a := newTestAuthority(t, "datica-test")
		req := signedRequest(t, newTestEnclave(t, []byte{0xff}), "datica-test")
		resp, err := a.Certify(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, ports.StatusFailed, resp.Status)
		assert.Contains(t, resp.Reason, "not trusted")
	})

	t.Run("other platform", func(t *testing.T) {
		other := make([]byte, enclave.PlatformKeySize)
		other[0] = 1
		e, err := enclave.NewSimulated(other, testMeasurement)
		require.NoError(t, err)

		a := newTestAuthority(t, "datica-test")
		resp, err := a.Certify(context.Background(), signedRequest(t, e, "datica-test"))
		require.NoError(t, err)
		assert.Contains(t, resp.Reason, "MAC mismatch")
	})

	t.Run("untrusted policy", func(t *testing.T) {
		a, err := NewSimulatedAuthority(AuthorityConfig{
			Domain:              "datica-test",
			PlatformKey:         testPlatformKey,
			TrustedMeasurements: [][]byte{testMeasurement},
			TrustedPolicyCerts:  [][]byte{[]byte("policy-a")},
		})
		require.NoError(t, err)
		req := signedRequest(t, good, "datica-test")
		req.PolicyCert = []byte("policy-b")

		resp, err := a.Certify(context.Background(), req)
		require.NoError(t, err)
		assert.Contains(t, resp.Reason, "policy certificate is not trusted")
	})
}

func TestSimulatedAuthority_Validity(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a, err := NewSimulatedAuthority(AuthorityConfig{
		Domain:              "datica-test",
		PlatformKey:         testPlatformKey,
		TrustedMeasurements: [][]byte{testMeasurement},
		Validity:            time.Hour,
		now:                 func() time.Time { return now },
	})
	require.NoError(t, err)

	resp, err := a.Certify(context.Background(), signedRequest(t, newTestEnclave(t, testMeasurement), "datica-test"))
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(resp.AdmissionCert)
	require.NoError(t, err)
	assert.True(t, now.Add(time.Hour).Equal(cert.NotAfter), cert.NotAfter)
}

func TestAdmissionIdentity_Invalid(t *testing.T) {
	_, err := AdmissionIdentity([]byte("not a certificate"))
	assert.ErrorIs(t, err, errors.ErrDecode)

	a := newTestAuthority(t, "datica-test")
	// The policy certificate names the trust domain only, which is a valid
	// SPIFFE ID.
	id, err := AdmissionIdentity(a.PolicyCertificate())
	require.NoError(t, err)
	assert.Equal(t, "spiffe://datica-test", id.String())
}

func TestGRPCClient_RoundTrip(t *testing.T) {
	rec := &countingRecorder{}
	client := startServer(t, newTestAuthority(t, "datica-test"), ServerConfig{Recorder: rec})
	req := signedRequest(t, newTestEnclave(t, testMeasurement), "datica-test")

	resp, err := client.Certify(context.Background(), testEndpoint(t), req)
	require.NoError(t, err)
	assert.Equal(t, ports.StatusSucceeded, resp.Status)
	assert.Equal(t, req.RequestID, resp.RequestID)
	assert.NotEmpty(t, resp.AdmissionCert)

	refused := signedRequest(t, newTestEnclave(t, []byte{0xff}), "datica-test")
	resp, err = client.Certify(context.Background(), testEndpoint(t), refused)
	require.NoError(t, err)
	assert.Equal(t, ports.StatusFailed, resp.Status)

	assert.Equal(t, map[string]int{
		"datica-test/" + ports.StatusSucceeded: 1,
		"datica-test/" + ports.StatusFailed:    1,
	}, rec.snapshot())
}

func TestGRPCClient_Errors(t *testing.T) {
	t.Run("authority error", func(t *testing.T) {
		client := startServer(t, failingAuthority{}, ServerConfig{})
		_, err := client.Certify(context.Background(), testEndpoint(t), &ports.CertificationRequest{RequestID: "x"})
		assert.ErrorIs(t, err, errors.ErrCertificationFailed)
	})

	t.Run("deadline", func(t *testing.T) {
		client := startServer(t, blockingAuthority{}, ServerConfig{})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := client.Certify(ctx, testEndpoint(t), &ports.CertificationRequest{RequestID: "x"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("closed", func(t *testing.T) {
		client := NewGRPCClient()
		require.NoError(t, client.Close())
		_, err := client.Certify(context.Background(), testEndpoint(t), &ports.CertificationRequest{})
		assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	})
}

// TestTrustData_CertifyOverGRPC runs the node workflow against two domain
// services, one of which does not trust the node's measurement.
func TestTrustData_CertifyOverGRPC(t *testing.T) {
	primaryAuth := newTestAuthority(t, "primary.test")
	secondaryAuth := newTestAuthority(t, "datica-test", []byte{0xee})
	client := startServer(t, routingAuthority{"primary.test": primaryAuth, "datica-test": secondaryAuth}, ServerConfig{})

	td := services.NewTrustData(services.TrustDataConfig{EnclaveType: ports.EnclaveSimulated},
		services.WithEnclave(newTestEnclave(t, testMeasurement)),
		services.WithCertifierClient(client))
	ctx := context.Background()
	require.NoError(t, td.ColdInit(ctx))

	ep := testEndpoint(t)
	primary, err := domain.NewCertifiedDomain("primary.test", primaryAuth.PolicyCertificate(), ep, ep)
	require.NoError(t, err)
	require.NoError(t, td.SetPrimaryDomain(primary))
	require.True(t, td.AddOrUpdateNewDomain("datica-test", secondaryAuth.PolicyCertificate(), "127.0.0.1", 8121, "127.0.0.1", 8123))

	require.NoError(t, td.CertifyMe(ctx))
	assert.True(t, td.AllInitialized())

	got := td.PrimaryDomain()
	require.True(t, got.IsCertified())
	id, err := AdmissionIdentity(got.AdmissionCert)
	require.NoError(t, err)
	assert.Equal(t, "primary.test", id.TrustDomain().String())

	assert.False(t, td.CertifySecondaryDomain(ctx, "datica-test"))
	secondary, kind := td.Domain("datica-test")
	assert.Equal(t, domain.DomainSecondary, kind)
	assert.False(t, secondary.IsCertified())
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordRequest(domain, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[domain+"/"+status]++
}

func (r *countingRecorder) snapshot() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

type failingAuthority struct{}

func (failingAuthority) Certify(context.Context, *ports.CertificationRequest) (*ports.CertificationResponse, error) {
	return nil, assert.AnError
}

type blockingAuthority struct{}

func (blockingAuthority) Certify(ctx context.Context, _ *ports.CertificationRequest) (*ports.CertificationResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// routingAuthority lets one server answer for several domains.
type routingAuthority map[string]Authority

func (r routingAuthority) Certify(ctx context.Context, req *ports.CertificationRequest) (*ports.CertificationResponse, error) {
	a, ok := r[req.Domain]
	if !ok {
		return &ports.CertificationResponse{RequestID: req.RequestID, Status: ports.StatusFailed, Reason: "unknown domain"}, nil
	}
	return a.Certify(ctx, req)
}
