package services

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

// DefaultCertifyTimeout bounds one call to a certifier service when the
// configuration leaves it unset.
const DefaultCertifyTimeout = 10 * time.Second

// TrustDataConfig holds the construction-time hints of a TrustData. The zero
// value is usable: authentication purpose, default capacity, no enclave type.
type TrustDataConfig struct {
	EnclaveType string
	Purpose     domain.Purpose
	// StorePath is informational; persistence goes through the repository.
	StorePath  string
	MaxEntries int
	// RequiredStages overrides the purpose default when non-zero.
	RequiredStages   domain.InitStages
	RequireSecondary bool
	CertifyTimeout   time.Duration
	Retries          int
}

// Option configures a TrustData.
type Option func(*TrustData)

// WithEnclave sets the enclave used for attestation, sealing and key generation.
func WithEnclave(e ports.Enclave) Option {
	return func(td *TrustData) { td.enclave = e }
}

// WithCertifierClient sets the transport to domain certifier services.
func WithCertifierClient(c ports.CertifierClient) Option {
	return func(td *TrustData) { td.client = c }
}

// WithRepository sets where the policy store is persisted.
func WithRepository(r ports.PolicyStoreRepository) Option {
	return func(td *TrustData) { td.repo = r }
}

// WithLogger sets the logger.
func WithLogger(l ports.Logger) Option {
	return func(td *TrustData) {
		if l != nil {
			td.logger = l
		}
	}
}

// WithMetrics sets the metrics reporter.
func WithMetrics(m MetricsReporter) Option {
	return func(td *TrustData) {
		if m != nil {
			td.metrics = m
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(td *TrustData) { td.now = now }
}

// TrustData tracks the certification material of one node: its primary and
// secondary domains, the policy store it owns, and the initialization stages
// completed so far. All methods are safe for concurrent use; mutations are
// serialized.
type TrustData struct {
	mu       sync.RWMutex
	cfg      TrustDataConfig
	required domain.InitStages
	registry *domain.DomainRegistry
	store    *domain.PolicyStore
	stages   domain.InitStages

	// certifyMu serializes the long-running workflows so that state derived
	// from a snapshot is never committed over a concurrent workflow's result.
	certifyMu sync.Mutex

	enclave ports.Enclave
	client  ports.CertifierClient
	repo    ports.PolicyStoreRepository
	logger  ports.Logger
	metrics MetricsReporter
	now     func() time.Time
	newID   func() string
}

// NewTrustData creates a TrustData with no domains and no completed stages.
func NewTrustData(cfg TrustDataConfig, opts ...Option) *TrustData {
	if cfg.Purpose == "" {
		cfg.Purpose = domain.PurposeAuthentication
	}
	if cfg.CertifyTimeout <= 0 {
		cfg.CertifyTimeout = DefaultCertifyTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	td := &TrustData{
		cfg:      cfg,
		registry: domain.NewDomainRegistry(),
		store:    domain.NewPolicyStore(cfg.MaxEntries),
		logger:   NoopLogger{},
		metrics:  NoopMetrics{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	td.required = cfg.RequiredStages
	if td.required == 0 {
		td.required = cfg.Purpose.RequiredStages(cfg.RequireSecondary)
	}
	for _, opt := range opts {
		opt(td)
	}
	td.logger = td.logger.WithGroup("trust_data")
	return td
}

// AllInitialized reports whether every required stage has completed.
func (td *TrustData) AllInitialized() bool {
	td.mu.RLock()
	defer td.mu.RUnlock()
	return td.allInitializedLocked()
}

func (td *TrustData) allInitializedLocked() bool {
	return td.effectiveStagesLocked().Has(td.required)
}

// A node with no secondary domains has trivially certified all of them.
func (td *TrustData) effectiveStagesLocked() domain.InitStages {
	s := td.stages
	if len(td.registry.Secondaries()) == 0 && s != 0 {
		s = s.With(domain.StageSecondaryCertified)
	}
	return s
}

// Stages returns the completed stages.
func (td *TrustData) Stages() domain.InitStages {
	td.mu.RLock()
	defer td.mu.RUnlock()
	return td.stages
}

// RequiredStages returns the stages AllInitialized checks.
func (td *TrustData) RequiredStages() domain.InitStages {
	return td.required
}

// MissingStages returns the required stages not yet completed.
func (td *TrustData) MissingStages() domain.InitStages {
	td.mu.RLock()
	defer td.mu.RUnlock()
	return td.effectiveStagesLocked().Missing(td.required)
}

// Purpose returns what the node is certified for.
func (td *TrustData) Purpose() domain.Purpose {
	return td.cfg.Purpose
}

// EnclaveType returns the configured enclave type.
func (td *TrustData) EnclaveType() string {
	return td.cfg.EnclaveType
}

// StorePath returns the store path hint given at construction.
func (td *TrustData) StorePath() string {
	return td.cfg.StorePath
}

// PolicyStore returns the store owned by this TrustData.
func (td *TrustData) PolicyStore() *domain.PolicyStore {
	td.mu.RLock()
	defer td.mu.RUnlock()
	return td.store
}

// Domain returns a copy of the domain registered under name.
func (td *TrustData) Domain(name string) (*domain.CertifiedDomain, domain.DomainKind) {
	td.mu.RLock()
	defer td.mu.RUnlock()
	l := td.registry.Lookup(name)
	if !l.Found() {
		return nil, domain.DomainAbsent
	}
	return l.Domain.Clone(), l.Kind
}

// PrimaryDomain returns a copy of the primary domain, or nil.
func (td *TrustData) PrimaryDomain() *domain.CertifiedDomain {
	td.mu.RLock()
	defer td.mu.RUnlock()
	return td.registry.Primary().Clone()
}

// SecondaryDomains returns copies of the secondary domains sorted by name.
func (td *TrustData) SecondaryDomains() []*domain.CertifiedDomain {
	td.mu.RLock()
	defer td.mu.RUnlock()
	secs := td.registry.Secondaries()
	out := make([]*domain.CertifiedDomain, len(secs))
	for i, d := range secs {
		out[i] = d.Clone()
	}
	return out
}

// SetPrimaryDomain registers d as the primary domain. Registering a domain
// does not load its policy key; see InitPolicyKey.
func (td *TrustData) SetPrimaryDomain(d *domain.CertifiedDomain) error {
	if d == nil {
		return errors.NewDomainError(errors.ErrInvalidArgument, fmt.Errorf("nil primary domain"))
	}
	td.mu.Lock()
	defer td.mu.Unlock()

	if err := td.insertLocked(domain.TagPrimaryDomain, domain.EntryTypeString, []byte(d.Name)); err != nil {
		return err
	}
	prev := td.registry.Primary()
	nd := d.Clone()
	if prev != nil && prev.Name == nd.Name && sameDomainIdentity(prev, nd) {
		nd.AdmissionCert, nd.CertifiedAt = prev.AdmissionCert, prev.CertifiedAt
	} else {
		td.stages = td.stages.Without(domain.StagePrimaryCertified)
		if prev != nil {
			td.forgetAdmissionLocked(prev.Name)
		}
		if !nd.IsCertified() {
			td.forgetAdmissionLocked(nd.Name)
		}
	}
	td.registry.SetPrimary(nd)
	if nd.IsCertified() {
		td.stages = td.stages.With(domain.StagePrimaryCertified)
	}
	td.refreshSecondaryStageLocked()
	td.reportLocked()
	return nil
}

// AddOrUpdateDomain registers d, replacing any domain with the same name.
// The certification of an existing record survives only if its certificate
// and endpoints are unchanged. No network access is performed.
func (td *TrustData) AddOrUpdateDomain(ctx context.Context, d *domain.CertifiedDomain) error {
	if d == nil {
		return errors.NewDomainError(errors.ErrInvalidArgument, fmt.Errorf("nil domain"))
	}
	td.mu.Lock()
	defer td.mu.Unlock()

	nd := d.Clone()
	l := td.registry.Lookup(nd.Name)
	if l.Found() && sameDomainIdentity(l.Domain, nd) {
		nd.AdmissionCert, nd.CertifiedAt = l.Domain.AdmissionCert, l.Domain.CertifiedAt
	} else if l.Found() {
		td.forgetAdmissionLocked(nd.Name)
		if l.Kind == domain.DomainPrimary {
			td.stages = td.stages.Without(domain.StagePrimaryCertified)
		}
	}
	existed := td.registry.AddOrUpdate(nd)
	td.refreshSecondaryStageLocked()
	td.reportLocked()

	td.logger.Info(ctx, "domain registered",
		ports.Attr("domain", nd.Name),
		ports.Attr("updated", existed),
		ports.Attr("admission", nd.Admission.String()),
		ports.Attr("service", nd.Service.String()))
	return nil
}

// AddOrUpdateNewDomain is the boolean form of AddOrUpdateDomain taking the
// domain fields directly: name, certificate, admission host and port,
// certifier service host and port.
func (td *TrustData) AddOrUpdateNewDomain(name string, certificate []byte, host1 string, port1 int, host2 string, port2 int) bool {
	admission, err := domain.NewEndpoint(host1, port1)
	if err != nil {
		return false
	}
	service, err := domain.NewEndpoint(host2, port2)
	if err != nil {
		return false
	}
	d, err := domain.NewCertifiedDomain(name, certificate, admission, service)
	if err != nil {
		return false
	}
	return td.AddOrUpdateDomain(context.Background(), d) == nil
}

func sameDomainIdentity(a, b *domain.CertifiedDomain) bool {
	return a.Admission == b.Admission && a.Service == b.Service && bytes.Equal(a.Certificate, b.Certificate)
}

// forgetAdmissionLocked drops a stored admission certificate for name.
func (td *TrustData) forgetAdmissionLocked(name string) {
	if i := td.store.FindEntry(domain.AdmissionCertTag(name), domain.EntryTypeCert); i != domain.NotFound {
		err := td.store.Delete(i)
		td.metrics.RecordStoreOperation("delete", err == nil)
	}
}

func (td *TrustData) refreshSecondaryStageLocked() {
	secs := td.registry.Secondaries()
	all := len(secs) > 0
	for _, d := range secs {
		if !d.IsCertified() {
			all = false
			break
		}
	}
	if all {
		td.stages = td.stages.With(domain.StageSecondaryCertified)
	} else {
		td.stages = td.stages.Without(domain.StageSecondaryCertified)
	}
}

func (td *TrustData) insertLocked(tag, typ string, data []byte) error {
	err := td.store.Insert(tag, typ, data)
	td.metrics.RecordStoreOperation("insert", err == nil)
	if err != nil {
		return fmt.Errorf("store %s/%s: %w", tag, typ, err)
	}
	return nil
}

func (td *TrustData) reportLocked() {
	td.metrics.SetStoreEntries(td.store.NumEntries())
	td.metrics.SetAllInitialized(td.allInitializedLocked())
}
