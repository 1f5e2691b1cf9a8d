package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

// InitPolicyKey loads the policy certificate every domain certification is
// checked against.
func (td *TrustData) InitPolicyKey(policyCert []byte) error {
	if len(policyCert) == 0 {
		return errors.NewDomainError(errors.ErrInvalidArgument, fmt.Errorf("empty policy certificate"))
	}
	td.mu.Lock()
	defer td.mu.Unlock()

	if err := td.insertLocked(domain.TagPolicyCert, domain.EntryTypeCert, policyCert); err != nil {
		return err
	}
	td.stages = td.stages.With(domain.StagePolicyKey)
	td.reportLocked()
	return nil
}

// ColdInit provisions fresh keys from the enclave: the purpose's identity key
// pair and the symmetric protection key. Existing admission certificates were
// issued for the old key and are dropped. The store is saved if a repository
// is configured.
func (td *TrustData) ColdInit(ctx context.Context) error {
	td.certifyMu.Lock()
	defer td.certifyMu.Unlock()

	if td.enclave == nil {
		return errors.NewDomainError(errors.ErrNotInitialized, fmt.Errorf("cold init: no enclave configured"))
	}
	purpose := td.cfg.Purpose

	identity, err := td.enclave.GenerateKey(purpose.KeyTag(), ports.KeyTypeSigning)
	if err != nil {
		return fmt.Errorf("generate %s: %w", purpose.KeyTag(), err)
	}
	symmetric, err := td.enclave.GenerateKey(domain.TagSymmetricKey, ports.KeyTypeSymmetric)
	if err != nil {
		return fmt.Errorf("generate %s: %w", domain.TagSymmetricKey, err)
	}

	if err := td.applyColdInit(purpose, identity, symmetric); err != nil {
		return err
	}
	td.logger.Info(ctx, "cold init complete",
		ports.Attr("enclave_type", td.enclave.Type()),
		ports.Attr("purpose", string(purpose)),
		ports.Attr("identity", purpose.KeyTag()))

	if td.repo == nil {
		return nil
	}
	return td.Save(ctx)
}

func (td *TrustData) applyColdInit(purpose domain.Purpose, identity, symmetric *ports.GeneratedKey) error {
	td.mu.Lock()
	defer td.mu.Unlock()

	entries := []domain.PolicyStoreEntry{
		{Tag: domain.TagEnclaveType, Type: domain.EntryTypeString, Data: []byte(td.enclave.Type())},
		{Tag: domain.TagPurpose, Type: domain.EntryTypeString, Data: []byte(purpose)},
		{Tag: purpose.KeyTag(), Type: domain.EntryTypeKey, Data: identity.Private},
		{Tag: purpose.KeyTag(), Type: domain.EntryTypePublicKey, Data: identity.Public},
		{Tag: domain.TagSymmetricKey, Type: domain.EntryTypeKey, Data: symmetric.Private},
	}
	if err := td.reserveLocked(entries); err != nil {
		return err
	}
	for _, e := range entries {
		if err := td.insertLocked(e.Tag, e.Type, e.Data); err != nil {
			return err
		}
	}

	for _, d := range td.allDomainsLocked() {
		if d.IsCertified() {
			td.forgetAdmissionLocked(d.Name)
			d.AdmissionCert = nil
			d.CertifiedAt = time.Time{}
		}
	}
	td.stages = td.stages.
		With(domain.StageBasicData).
		With(purpose.KeyStage()).
		With(domain.StageSymmetricKey).
		Without(domain.StagePrimaryCertified)
	td.refreshSecondaryStageLocked()
	td.reportLocked()
	return nil
}

// reserveLocked fails with ErrStoreFull unless every entry not already in
// the store fits, so that a batch is inserted whole or not at all.
func (td *TrustData) reserveLocked(entries []domain.PolicyStoreEntry) error {
	fresh := 0
	for _, e := range entries {
		if td.store.FindEntry(e.Tag, e.Type) == domain.NotFound {
			fresh++
		}
	}
	if free := td.store.MaxEntries() - td.store.NumEntries(); fresh > free {
		return errors.NewDomainError(errors.ErrStoreFull,
			fmt.Errorf("need %d new entries, %d free", fresh, free))
	}
	return nil
}

// WarmRestart replaces the policy store with the saved one and re-derives the
// completed stages from its entries. Registered domains pick up the admission
// certificates found in the store.
func (td *TrustData) WarmRestart(ctx context.Context) error {
	td.certifyMu.Lock()
	defer td.certifyMu.Unlock()

	if td.repo == nil {
		return errors.NewDomainError(errors.ErrNotInitialized, fmt.Errorf("warm restart: no repository configured"))
	}
	data, err := td.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("warm restart: %w", err)
	}
	store, err := domain.DeserializePolicyStore(data)
	if err != nil {
		return fmt.Errorf("warm restart: %w", err)
	}
	if err := td.checkRestoredIdentity(store); err != nil {
		return err
	}

	td.mu.Lock()
	td.store = store
	td.stages = deriveStages(store)
	for _, d := range td.allDomainsLocked() {
		d.AdmissionCert, _ = store.Get(domain.AdmissionCertTag(d.Name), domain.EntryTypeCert)
		if d.AdmissionCert == nil {
			d.CertifiedAt = time.Time{}
		}
	}
	if p := td.registry.Primary(); p != nil && p.IsCertified() {
		td.stages = td.stages.With(domain.StagePrimaryCertified)
	}
	td.refreshSecondaryStageLocked()
	td.reportLocked()
	stages := td.stages
	td.mu.Unlock()

	if name, ok := store.Get(domain.TagPrimaryDomain, domain.EntryTypeString); ok {
		if _, kind := td.Domain(string(name)); kind != domain.DomainPrimary {
			td.logger.Warn(ctx, "saved primary domain is not registered as primary",
				ports.Attr("domain", string(name)))
		}
	}
	td.logger.Info(ctx, "warm restart complete",
		ports.Attr("entries", store.NumEntries()),
		ports.Attr("stages", stages.String()))
	return nil
}

// checkRestoredIdentity rejects a store written for another purpose or
// enclave type.
func (td *TrustData) checkRestoredIdentity(store *domain.PolicyStore) error {
	if p, ok := store.Get(domain.TagPurpose, domain.EntryTypeString); ok && domain.Purpose(p) != td.cfg.Purpose {
		return errors.NewDomainError(errors.ErrInvalidArgument,
			fmt.Errorf("saved store was provisioned for purpose %q, node is configured for %q", p, td.cfg.Purpose))
	}
	if t, ok := store.Get(domain.TagEnclaveType, domain.EntryTypeString); ok && td.cfg.EnclaveType != "" && string(t) != td.cfg.EnclaveType {
		return errors.NewDomainError(errors.ErrInvalidArgument,
			fmt.Errorf("saved store was provisioned for enclave %q, node is configured for %q", t, td.cfg.EnclaveType))
	}
	return nil
}

func deriveStages(store *domain.PolicyStore) domain.InitStages {
	var s domain.InitStages
	checks := []struct {
		tag, typ string
		stage    domain.InitStage
	}{
		{domain.TagEnclaveType, domain.EntryTypeString, domain.StageBasicData},
		{domain.TagPolicyCert, domain.EntryTypeCert, domain.StagePolicyKey},
		{domain.TagAuthKey, domain.EntryTypeKey, domain.StageAuthKey},
		{domain.TagServiceKey, domain.EntryTypeKey, domain.StageServiceKey},
		{domain.TagSymmetricKey, domain.EntryTypeKey, domain.StageSymmetricKey},
	}
	for _, c := range checks {
		if store.FindEntry(c.tag, c.typ) != domain.NotFound {
			s = s.With(c.stage)
		}
	}
	return s
}

// Save persists the serialized policy store through the repository.
func (td *TrustData) Save(ctx context.Context) error {
	if td.repo == nil {
		return errors.NewDomainError(errors.ErrNotInitialized, fmt.Errorf("save: no repository configured"))
	}
	data, err := td.PolicyStore().Serialize()
	if err != nil {
		return fmt.Errorf("serialize policy store: %w", err)
	}
	err = td.repo.Save(ctx, data)
	td.metrics.RecordStoreOperation("save", err == nil)
	if err != nil {
		return fmt.Errorf("save policy store: %w", err)
	}
	td.logger.Debug(ctx, "policy store saved", ports.Attr("bytes", len(data)))
	return nil
}

// allDomainsLocked returns the live registry records, primary first.
func (td *TrustData) allDomainsLocked() []*domain.CertifiedDomain {
	var out []*domain.CertifiedDomain
	if p := td.registry.Primary(); p != nil {
		out = append(out, p)
	}
	return append(out, td.registry.Secondaries()...)
}
