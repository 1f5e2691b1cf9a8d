package certifier

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spiffe/go-spiffe/v2/spiffeid"

	"github.com/sufield/certifier/internal/adapters/secondary/enclave"
	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

// DefaultAdmissionValidity is the lifetime of issued admission certificates.
const DefaultAdmissionValidity = 24 * time.Hour

// AuthorityConfig configures a SimulatedAuthority.
type AuthorityConfig struct {
	// Domain is the only domain name the authority admits for.
	Domain string
	// PlatformKey verifies simulated evidence.
	PlatformKey []byte
	// TrustedMeasurements lists the enclave measurements that may be admitted.
	TrustedMeasurements [][]byte
	// TrustedPolicyCerts, when set, restricts admission to nodes governed by
	// one of these policy certificates.
	TrustedPolicyCerts [][]byte
	// Validity of issued certificates; zero selects DefaultAdmissionValidity.
	Validity time.Duration

	now func() time.Time
}

// SimulatedAuthority admits simulated enclaves into one domain. It verifies
// the evidence against the platform key, checks the measurement against the
// trusted set and issues an X.509 certificate for the node's public key. The
// issuing key is self-signed and its certificate is the domain's policy
// certificate.
type SimulatedAuthority struct {
	cfg         AuthorityConfig
	trustDomain spiffeid.TrustDomain
	caKey       ed25519.PrivateKey
	caCert      *x509.Certificate

	mu     sync.Mutex
	serial *big.Int
}

var _ Authority = (*SimulatedAuthority)(nil)

// NewSimulatedAuthority creates an authority with a fresh issuing key.
func NewSimulatedAuthority(cfg AuthorityConfig) (*SimulatedAuthority, error) {
	td, err := TrustDomainFor(cfg.Domain)
	if err != nil {
		return nil, err
	}
	if len(cfg.PlatformKey) < enclave.PlatformKeySize {
		return nil, errors.NewDomainError(errors.ErrInvalidArgument, fmt.Errorf("platform key too short"))
	}
	if len(cfg.TrustedMeasurements) == 0 {
		return nil, errors.NewDomainError(errors.ErrInvalidArgument, fmt.Errorf("no trusted measurements"))
	}
	if cfg.Validity <= 0 {
		cfg.Validity = DefaultAdmissionValidity
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate issuing key: %w", err)
	}
	notBefore := cfg.now().Add(-time.Minute)
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cfg.Domain + " policy key", Organization: []string{cfg.Domain}},
		NotBefore:             notBefore,
		NotAfter:              notBefore.AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		URIs:                  []*url.URL{td.ID().URL()},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return nil, fmt.Errorf("create policy certificate: %w", err)
	}
	caCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse policy certificate: %w", err)
	}

	return &SimulatedAuthority{
		cfg:         cfg,
		trustDomain: td,
		caKey:       priv,
		caCert:      caCert,
		serial:      big.NewInt(1),
	}, nil
}

// TrustDomainFor derives the SPIFFE trust domain of the identities issued
// for a domain. Domain names are case-insensitive there, so the name is
// lowercased; names that still are not valid trust domains are rejected.
func TrustDomainFor(name string) (spiffeid.TrustDomain, error) {
	td, err := spiffeid.TrustDomainFromString(strings.ToLower(name))
	if err != nil {
		return spiffeid.TrustDomain{}, errors.NewDomainError(errors.ErrInvalidArgument,
			fmt.Errorf("domain %q has no SPIFFE trust domain: %w", name, err))
	}
	return td, nil
}

// PolicyCertificate returns the DER certificate of the issuing key. Nodes
// register it as the domain certificate.
func (a *SimulatedAuthority) PolicyCertificate() []byte {
	return bytes.Clone(a.caCert.Raw)
}

// Certify implements Authority.
func (a *SimulatedAuthority) Certify(ctx context.Context, req *ports.CertificationRequest) (*ports.CertificationResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	measurement, reason := a.check(req)
	if reason != "" {
		return &ports.CertificationResponse{RequestID: req.RequestID, Status: ports.StatusFailed, Reason: reason}, nil
	}

	der, err := a.issue(req, measurement)
	if err != nil {
		return nil, err
	}
	return &ports.CertificationResponse{
		RequestID:     req.RequestID,
		Status:        ports.StatusSucceeded,
		AdmissionCert: der,
	}, nil
}

// check returns the attested measurement, or the reason for refusing.
func (a *SimulatedAuthority) check(req *ports.CertificationRequest) ([]byte, string) {
	if req.Domain != a.cfg.Domain {
		return nil, fmt.Sprintf("not an authority for domain %q", req.Domain)
	}
	if req.EnclaveType != ports.EnclaveSimulated {
		return nil, fmt.Sprintf("unsupported enclave type %q", req.EnclaveType)
	}
	if len(req.PublicKey) != ed25519.PublicKeySize {
		return nil, "public key is not an ed25519 key"
	}
	if len(a.cfg.TrustedPolicyCerts) > 0 && !containsBytes(a.cfg.TrustedPolicyCerts, req.PolicyCert) {
		return nil, "node policy certificate is not trusted"
	}
	measurement, err := enclave.VerifyEvidence(a.cfg.PlatformKey, req.Evidence, req.Claims())
	if err != nil {
		return nil, err.Error()
	}
	if !containsBytes(a.cfg.TrustedMeasurements, measurement) {
		return nil, fmt.Sprintf("measurement %x is not trusted", measurement)
	}
	return measurement, ""
}

func containsBytes(set [][]byte, b []byte) bool {
	for _, v := range set {
		if bytes.Equal(v, b) {
			return true
		}
	}
	return false
}

func (a *SimulatedAuthority) issue(req *ports.CertificationRequest, measurement []byte) ([]byte, error) {
	id, err := spiffeid.FromSegments(a.trustDomain, "enclave", hex.EncodeToString(measurement))
	if err != nil {
		return nil, fmt.Errorf("build admission identity: %w", err)
	}

	a.mu.Lock()
	serial := new(big.Int).Add(a.serial, big.NewInt(1))
	a.serial = serial
	a.mu.Unlock()

	now := a.cfg.now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: req.Purpose, Organization: []string{a.cfg.Domain}},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(a.cfg.Validity),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		URIs:         []*url.URL{id.URL()},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, a.caCert, ed25519.PublicKey(req.PublicKey), a.caKey)
	if err != nil {
		return nil, fmt.Errorf("issue admission certificate: %w", err)
	}
	return der, nil
}

// AdmissionIdentity returns the SPIFFE ID carried by an admission certificate.
func AdmissionIdentity(der []byte) (spiffeid.ID, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return spiffeid.ID{}, errors.NewDomainError(errors.ErrDecode, err)
	}
	if len(cert.URIs) != 1 {
		return spiffeid.ID{}, errors.NewDomainError(errors.ErrDecode,
			fmt.Errorf("admission certificate has %d URI SANs, want 1", len(cert.URIs)))
	}
	id, err := spiffeid.FromURI(cert.URIs[0])
	if err != nil {
		return spiffeid.ID{}, errors.NewDomainError(errors.ErrDecode, err)
	}
	return id, nil
}
