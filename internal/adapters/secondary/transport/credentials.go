package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/spiffe/go-spiffe/v2/bundle/x509bundle"
	"github.com/spiffe/go-spiffe/v2/spiffeid"
	"github.com/spiffe/go-spiffe/v2/spiffetls/tlsconfig"
	"github.com/spiffe/go-spiffe/v2/svid/x509svid"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"

	"github.com/sufield/certifier/internal/core/errors"
)

// Identity is what a certified node presents on a secure channel: the
// admission certificate a domain issued for its identity key, that key, and
// the domain's policy certificate, which anchors the peer's chain.
type Identity struct {
	AdmissionCert []byte
	PrivateKey    []byte
	PolicyCert    []byte
}

// material is an Identity parsed into go-spiffe types.
type material struct {
	svid   *x509svid.SVID
	bundle *x509bundle.Bundle
}

func (id Identity) parse() (*material, error) {
	if len(id.PrivateKey) != ed25519.PrivateKeySize {
		return nil, errors.NewDomainError(errors.ErrInvalidArgument,
			fmt.Errorf("identity key is %d bytes, want an ed25519 private key", len(id.PrivateKey)))
	}
	leaf, err := x509.ParseCertificate(id.AdmissionCert)
	if err != nil {
		return nil, errors.NewDomainError(errors.ErrDecode, fmt.Errorf("admission certificate: %w", err))
	}
	sid, err := x509svid.IDFromCert(leaf)
	if err != nil {
		return nil, errors.NewDomainError(errors.ErrDecode, fmt.Errorf("admission identity: %w", err))
	}
	key := ed25519.PrivateKey(id.PrivateKey)
	pub, ok := leaf.PublicKey.(ed25519.PublicKey)
	if !ok || !pub.Equal(key.Public()) {
		return nil, errors.NewDomainError(errors.ErrInvalidArgument,
			fmt.Errorf("admission certificate for %s was not issued for this identity key", sid))
	}
	root, err := x509.ParseCertificate(id.PolicyCert)
	if err != nil {
		return nil, errors.NewDomainError(errors.ErrDecode, fmt.Errorf("policy certificate: %w", err))
	}

	return &material{
		svid: &x509svid.SVID{
			ID:           sid,
			Certificates: []*x509.Certificate{leaf},
			PrivateKey:   key,
		},
		bundle: x509bundle.FromX509Authorities(sid.TrustDomain(), []*x509.Certificate{root}),
	}, nil
}

// ServerTLSConfig returns a TLS 1.3 server configuration that presents id
// and requires clients admitted into the same domain.
func ServerTLSConfig(id Identity) (*tls.Config, error) {
	m, err := id.parse()
	if err != nil {
		return nil, err
	}
	cfg := tlsconfig.MTLSServerConfig(m.svid, m.bundle, tlsconfig.AuthorizeMemberOf(m.svid.ID.TrustDomain()))
	cfg.MinVersion = tls.VersionTLS13
	return cfg, nil
}

// ClientTLSConfig returns a TLS 1.3 client configuration that presents id
// and accepts servers admitted into the same domain.
func ClientTLSConfig(id Identity) (*tls.Config, error) {
	m, err := id.parse()
	if err != nil {
		return nil, err
	}
	cfg := tlsconfig.MTLSClientConfig(m.svid, m.bundle, tlsconfig.AuthorizeMemberOf(m.svid.ID.TrustDomain()))
	cfg.MinVersion = tls.VersionTLS13
	return cfg, nil
}

// SelfID returns the SPIFFE ID id presents.
func (id Identity) SelfID() (spiffeid.ID, error) {
	m, err := id.parse()
	if err != nil {
		return spiffeid.ID{}, err
	}
	return m.svid.ID, nil
}

// PeerID returns the SPIFFE ID the remote side of an authenticated call
// presented.
func PeerID(ctx context.Context) (spiffeid.ID, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return spiffeid.ID{}, false
	}
	info, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok || len(info.State.PeerCertificates) == 0 {
		return spiffeid.ID{}, false
	}
	id, err := x509svid.IDFromCert(info.State.PeerCertificates[0])
	if err != nil {
		return spiffeid.ID{}, false
	}
	return id, true
}
