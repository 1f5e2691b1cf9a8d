// Package certifier is the public API of the confidential computing certifier.
//
// A TrustData tracks the trust-establishment state of one enclave node: its
// policy store, the domains it belongs to, and which initialization stages
// have completed. The zero-configuration constructor gives an uninitialized
// node; options attach the enclave, the certifier transport and persistence:
//
//	encl, _ := certifier.NewSimulatedEnclave(platformKey, measurement)
//	repo, _ := certifier.NewFileRepository("/var/lib/node/policy_store", encl)
//	client := certifier.NewGRPCClient()
//	defer client.Close()
//
//	td := certifier.NewTrustData(
//		certifier.WithEnclave(encl),
//		certifier.WithRepository(repo),
//		certifier.WithCertifierClient(client),
//	)
//	if !td.AddOrUpdateNewDomain("datica.example", policyCert, "10.0.0.1", 8123, "10.0.0.1", 8124) {
//		return errors.New("bad domain")
//	}
//	err := td.ColdInit(ctx)
//	...
//	err = td.CertifyMe(ctx)
//	ready := td.AllInitialized()
package certifier

import (
	"log/slog"
	"time"

	"github.com/sufield/certifier/internal/adapters/logging"
	certadapter "github.com/sufield/certifier/internal/adapters/secondary/certifier"
	"github.com/sufield/certifier/internal/adapters/secondary/enclave"
	"github.com/sufield/certifier/internal/adapters/secondary/storage"
	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/ports"
	"github.com/sufield/certifier/internal/core/services"
)

// Core types.
type (
	TrustData        = services.TrustData
	PolicyStore      = domain.PolicyStore
	PolicyStoreEntry = domain.PolicyStoreEntry
	CertifiedDomain  = domain.CertifiedDomain
	Endpoint         = domain.Endpoint
	DomainKind       = domain.DomainKind
	Purpose          = domain.Purpose
	InitStage        = domain.InitStage
	InitStages       = domain.InitStages
)

// Collaborators a TrustData can be wired to.
type (
	Enclave               = ports.Enclave
	Sealer                = ports.Sealer
	CertifierClient       = ports.CertifierClient
	PolicyStoreRepository = ports.PolicyStoreRepository
	CertificationRequest  = ports.CertificationRequest
	CertificationResponse = ports.CertificationResponse
	MetricsReporter       = services.MetricsReporter
)

// Policy store limits.
const (
	DefaultMaxEntries = domain.DefaultMaxEntries
	NotFound          = domain.NotFound
)

// Purposes.
const (
	PurposeAuthentication = domain.PurposeAuthentication
	PurposeAttestation    = domain.PurposeAttestation
)

// Domain lookup results.
const (
	DomainAbsent    = domain.DomainAbsent
	DomainPrimary   = domain.DomainPrimary
	DomainSecondary = domain.DomainSecondary
)

// Option configures a TrustData built by NewTrustData.
type Option func(*trustDataOptions)

type trustDataOptions struct {
	cfg  services.TrustDataConfig
	opts []services.Option
}

// WithEnclaveType records the enclave type hint, e.g. "simulated-enclave".
func WithEnclaveType(t string) Option {
	return func(o *trustDataOptions) { o.cfg.EnclaveType = t }
}

// WithPurpose selects authentication or attestation.
func WithPurpose(p Purpose) Option {
	return func(o *trustDataOptions) { o.cfg.Purpose = p }
}

// WithStorePath records where the policy store lives.
func WithStorePath(path string) Option {
	return func(o *trustDataOptions) { o.cfg.StorePath = path }
}

// WithMaxEntries sets the policy store capacity.
func WithMaxEntries(n int) Option {
	return func(o *trustDataOptions) { o.cfg.MaxEntries = n }
}

// WithRequiredStages overrides the stages AllInitialized requires.
func WithRequiredStages(stages InitStages) Option {
	return func(o *trustDataOptions) { o.cfg.RequiredStages = stages }
}

// WithRequireSecondary makes secondary certification a required stage.
func WithRequireSecondary(require bool) Option {
	return func(o *trustDataOptions) { o.cfg.RequireSecondary = require }
}

// WithCertifyTimeout bounds each certification call.
func WithCertifyTimeout(d time.Duration) Option {
	return func(o *trustDataOptions) { o.cfg.CertifyTimeout = d }
}

// WithRetries sets how often a failed certification call is retried.
func WithRetries(n int) Option {
	return func(o *trustDataOptions) { o.cfg.Retries = n }
}

// WithEnclave attaches the enclave used for keys, evidence and sealing.
func WithEnclave(e Enclave) Option {
	return func(o *trustDataOptions) { o.opts = append(o.opts, services.WithEnclave(e)) }
}

// WithCertifierClient attaches the transport to certifier services.
func WithCertifierClient(c CertifierClient) Option {
	return func(o *trustDataOptions) { o.opts = append(o.opts, services.WithCertifierClient(c)) }
}

// WithRepository attaches persistence for the policy store.
func WithRepository(r PolicyStoreRepository) Option {
	return func(o *trustDataOptions) { o.opts = append(o.opts, services.WithRepository(r)) }
}

// WithMetrics attaches a metrics reporter.
func WithMetrics(m MetricsReporter) Option {
	return func(o *trustDataOptions) { o.opts = append(o.opts, services.WithMetrics(m)) }
}

// WithLogger routes TrustData logs to handler with sensitive values redacted.
func WithLogger(handler slog.Handler) Option {
	return func(o *trustDataOptions) {
		o.opts = append(o.opts, services.WithLogger(logging.NewSecureLogger(handler)))
	}
}

// NewTrustData returns a TrustData with no domains and no completed stages.
// AllInitialized is false until the required stages complete.
func NewTrustData(opts ...Option) *TrustData {
	var o trustDataOptions
	for _, opt := range opts {
		opt(&o)
	}
	return services.NewTrustData(o.cfg, o.opts...)
}

// NewPolicyStore returns an empty store holding at most maxEntries entries.
// Zero selects DefaultMaxEntries.
func NewPolicyStore(maxEntries int) *PolicyStore {
	return domain.NewPolicyStore(maxEntries)
}

// DeserializePolicyStore decodes a store written by PolicyStore.Serialize.
func DeserializePolicyStore(data []byte) (*PolicyStore, error) {
	return domain.DeserializePolicyStore(data)
}

// NewCertifiedDomain validates and returns an uncertified domain record.
func NewCertifiedDomain(name string, policyCert []byte, admission, service Endpoint) (*CertifiedDomain, error) {
	return domain.NewCertifiedDomain(name, policyCert, admission, service)
}

// NewEndpoint validates and returns a host/port endpoint.
func NewEndpoint(host string, port int) (Endpoint, error) {
	return domain.NewEndpoint(host, port)
}

// NewSimulatedEnclave returns a development enclave bound to platformKey that
// reports measurement.
func NewSimulatedEnclave(platformKey, measurement []byte) (Enclave, error) {
	e, err := enclave.NewSimulated(platformKey, measurement)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// NewFileRepository stores the policy store at path, sealed with sealer when
// it is non-nil.
func NewFileRepository(path string, sealer Sealer) (PolicyStoreRepository, error) {
	r, err := storage.NewFileRepository(path, sealer)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// GRPCClient is the gRPC transport to certifier services.
type GRPCClient = certadapter.GRPCClient

// NewGRPCClient returns a CertifierClient that dials each domain's service
// endpoint on first use.
func NewGRPCClient() *GRPCClient {
	return certadapter.NewGRPCClient()
}
