package services

import (
	"bytes"
	"fmt"

	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
)

// ChannelCredentials is what a certified node presents to peers of one
// domain: the admission certificate, the identity private key it was issued
// for, and the domain's policy certificate, which anchors the peers' chains.
type ChannelCredentials struct {
	Domain        string
	AdmissionCert []byte
	PrivateKey    []byte
	PolicyCert    []byte
}

// Credentials returns the channel credentials of the named domain. The domain
// must be certified and the purpose's identity key present in the store.
func (td *TrustData) Credentials(name string) (*ChannelCredentials, error) {
	td.mu.RLock()
	defer td.mu.RUnlock()

	l := td.registry.Lookup(name)
	if !l.Found() {
		return nil, errors.NewDomainError(errors.ErrDomainNotFound, fmt.Errorf("no registered domain named %q", name))
	}
	if !l.Domain.IsCertified() {
		return nil, errors.NewDomainError(errors.ErrNotInitialized, fmt.Errorf("domain %s is not certified", name))
	}
	key, ok := td.store.Get(td.cfg.Purpose.KeyTag(), domain.EntryTypeKey)
	if !ok {
		return nil, errors.NewDomainError(errors.ErrNotInitialized, fmt.Errorf("no %s", td.cfg.Purpose.KeyTag()))
	}
	policy := l.Domain.Certificate
	if len(policy) == 0 && l.Kind == domain.DomainPrimary {
		policy, _ = td.store.Get(domain.TagPolicyCert, domain.EntryTypeCert)
	}
	if len(policy) == 0 {
		return nil, errors.NewDomainError(errors.ErrNotInitialized, fmt.Errorf("domain %s has no policy certificate", name))
	}

	return &ChannelCredentials{
		Domain:        name,
		AdmissionCert: bytes.Clone(l.Domain.AdmissionCert),
		PrivateKey:    key,
		PolicyCert:    bytes.Clone(policy),
	}, nil
}
