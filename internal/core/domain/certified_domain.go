package domain

import (
	"bytes"
	"fmt"
	"time"
	"unicode"
)

// CertifiedDomain records one administrative domain: its policy certificate,
// the admission certificate it issued to this node, and the two endpoints it
// exposes.
type CertifiedDomain struct {
	Name string
	// Certificate is the domain's policy certificate. It is a placeholder
	// until the operator provisions the real one.
	Certificate []byte
	// Admission is the attestation/admission service endpoint.
	Admission Endpoint
	// Service is the certifier service endpoint.
	Service Endpoint

	// AdmissionCert is issued by the domain when certification succeeds.
	AdmissionCert []byte
	CertifiedAt   time.Time
}

// NewCertifiedDomain validates its arguments and returns an uncertified domain.
func NewCertifiedDomain(name string, certificate []byte, admission, service Endpoint) (*CertifiedDomain, error) {
	if err := ValidateDomainName(name); err != nil {
		return nil, err
	}
	if err := admission.Validate(); err != nil {
		return nil, fmt.Errorf("admission endpoint: %w", err)
	}
	if err := service.Validate(); err != nil {
		return nil, fmt.Errorf("service endpoint: %w", err)
	}
	return &CertifiedDomain{
		Name:        name,
		Certificate: bytes.Clone(certificate),
		Admission:   admission,
		Service:     service,
	}, nil
}

// IsCertified reports whether the domain has issued an admission certificate.
func (d *CertifiedDomain) IsCertified() bool {
	return len(d.AdmissionCert) > 0
}

// Clone returns a deep copy of the domain.
func (d *CertifiedDomain) Clone() *CertifiedDomain {
	if d == nil {
		return nil
	}
	c := *d
	c.Certificate = bytes.Clone(d.Certificate)
	c.AdmissionCert = bytes.Clone(d.AdmissionCert)
	return &c
}

// ValidateDomainName checks that name is usable as a registry key and as the
// suffix of a policy store tag. Names are opaque and case-sensitive; only
// empty names, whitespace, control characters and '/' are rejected.
func ValidateDomainName(name string) error {
	if name == "" {
		return fmt.Errorf("domain name cannot be empty")
	}
	for _, r := range name {
		if r == '/' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("domain name %q contains %q", name, r)
		}
	}
	return nil
}
