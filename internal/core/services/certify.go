package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

// CertifyMe drives the node through policy key initialization, primary domain
// certification and secondary domain certification, in that order. It stops
// at the first required stage that cannot complete. Secondary failures are
// fatal only when secondary certification is required. The store is saved on
// success if a repository is configured.
func (td *TrustData) CertifyMe(ctx context.Context) error {
	td.certifyMu.Lock()
	defer td.certifyMu.Unlock()

	if err := td.ensurePolicyKey(); err != nil {
		return err
	}

	primary := td.PrimaryDomain()
	if primary == nil {
		return errors.NewDomainError(errors.ErrNotInitialized,
			fmt.Errorf("%s: no primary domain registered", domain.StagePrimaryCertified))
	}
	if err := td.certify(ctx, primary.Name, domain.DomainPrimary); err != nil {
		return fmt.Errorf("%s: %w", domain.StagePrimaryCertified, err)
	}

	var failed []error
	for _, d := range td.SecondaryDomains() {
		if err := ctx.Err(); err != nil {
			return errors.NewDomainError(errors.ErrCertificationFailed,
				fmt.Errorf("%s: %w", domain.StageSecondaryCertified, err))
		}
		if err := td.certify(ctx, d.Name, domain.DomainSecondary); err != nil {
			td.logger.Warn(ctx, "secondary domain not certified",
				ports.Attr("domain", d.Name),
				ports.Attr("error", err.Error()))
			failed = append(failed, fmt.Errorf("domain %s: %w", d.Name, err))
		}
	}
	if len(failed) > 0 && td.cfg.RequireSecondary {
		return fmt.Errorf("%s: %w", domain.StageSecondaryCertified, stderrors.Join(failed...))
	}

	if td.repo != nil {
		if err := td.Save(ctx); err != nil {
			return err
		}
	}
	td.logger.Info(ctx, "node certified",
		ports.Attr("primary", primary.Name),
		ports.Attr("secondary_failures", len(failed)),
		ports.Attr("all_initialized", td.AllInitialized()))
	return nil
}

// ensurePolicyKey loads the primary domain's certificate as the policy key
// when none has been loaded, and checks the identity key exists.
func (td *TrustData) ensurePolicyKey() error {
	td.mu.RLock()
	stages := td.stages
	primary := td.registry.Primary().Clone()
	td.mu.RUnlock()

	if !stages.Has(domain.InitStages(domain.StagePolicyKey)) {
		if primary == nil || len(primary.Certificate) == 0 {
			return errors.NewDomainError(errors.ErrNotInitialized,
				fmt.Errorf("%s: no policy certificate available", domain.StagePolicyKey))
		}
		if err := td.InitPolicyKey(primary.Certificate); err != nil {
			return fmt.Errorf("%s: %w", domain.StagePolicyKey, err)
		}
	}
	if key := td.cfg.Purpose.KeyStage(); !stages.Has(domain.InitStages(key)) {
		return errors.NewDomainError(errors.ErrNotInitialized,
			fmt.Errorf("%s: run cold init first", key))
	}
	return nil
}

// CertifyDomain certifies the named domain, primary or secondary. An
// unregistered name yields ErrDomainNotFound and changes nothing.
func (td *TrustData) CertifyDomain(ctx context.Context, name string) error {
	td.certifyMu.Lock()
	defer td.certifyMu.Unlock()
	return td.certify(ctx, name, domain.DomainAbsent)
}

// CertifySecondaryDomain certifies a registered secondary domain. It returns
// false, with no side effects, when name is not a registered secondary domain,
// and false when certification fails. On failure the domain stays uncertified.
func (td *TrustData) CertifySecondaryDomain(ctx context.Context, name string) bool {
	td.certifyMu.Lock()
	defer td.certifyMu.Unlock()
	return td.certify(ctx, name, domain.DomainSecondary) == nil
}

// certify runs one certification. want restricts the lookup to one kind of
// domain; DomainAbsent accepts either. The caller holds certifyMu.
func (td *TrustData) certify(ctx context.Context, name string, want domain.DomainKind) error {
	snap, kind, req, err := td.prepareCertification(name, want)
	if err != nil {
		return err
	}

	start := td.now()
	admission, err := td.requestAdmission(ctx, snap, req)
	td.metrics.RecordCertification(name, kind.String(), err == nil, td.now().Sub(start).Seconds())
	if err != nil {
		td.logger.Warn(ctx, "certification failed",
			ports.Attr("domain", name),
			ports.Attr("kind", kind.String()),
			ports.Attr("request_id", req.RequestID),
			ports.Attr("error", err.Error()))
		return err
	}

	if err := td.commitCertification(snap, admission); err != nil {
		return err
	}
	td.logger.Info(ctx, "domain certified",
		ports.Attr("domain", name),
		ports.Attr("kind", kind.String()),
		ports.Attr("request_id", req.RequestID))
	return nil
}

func (td *TrustData) prepareCertification(name string, want domain.DomainKind) (*domain.CertifiedDomain, domain.DomainKind, *ports.CertificationRequest, error) {
	td.mu.RLock()
	defer td.mu.RUnlock()

	l := td.registry.Lookup(name)
	if !l.Found() || (want != domain.DomainAbsent && l.Kind != want) {
		return nil, domain.DomainAbsent, nil, errors.NewDomainError(errors.ErrDomainNotFound,
			fmt.Errorf("no %s domain named %q", kindLabel(want), name))
	}
	if td.client == nil || td.enclave == nil {
		return nil, l.Kind, nil, errors.NewDomainError(errors.ErrNotInitialized,
			fmt.Errorf("certify %s: enclave and certifier client are required", name))
	}
	publicKey, ok := td.store.Get(td.cfg.Purpose.KeyTag(), domain.EntryTypePublicKey)
	if !ok {
		return nil, l.Kind, nil, errors.NewDomainError(errors.ErrNotInitialized,
			fmt.Errorf("certify %s: no %s", name, td.cfg.Purpose.KeyTag()))
	}
	policyCert, _ := td.store.Get(domain.TagPolicyCert, domain.EntryTypeCert)

	req := &ports.CertificationRequest{
		RequestID:   td.newID(),
		Domain:      name,
		Purpose:     string(td.cfg.Purpose),
		EnclaveType: td.enclave.Type(),
		PublicKey:   publicKey,
		PolicyCert:  policyCert,
	}
	return l.Domain.Clone(), l.Kind, req, nil
}

func kindLabel(k domain.DomainKind) string {
	if k == domain.DomainAbsent {
		return "registered"
	}
	return k.String()
}

// requestAdmission attests to the request and sends it to the domain's
// certifier service, retrying transport failures. A rejection is final.
func (td *TrustData) requestAdmission(ctx context.Context, d *domain.CertifiedDomain, req *ports.CertificationRequest) ([]byte, error) {
	evidence, err := td.enclave.Attest(ctx, req.Claims())
	if err != nil {
		return nil, errors.NewDomainError(errors.ErrCertificationFailed, fmt.Errorf("attest: %w", err))
	}
	req.Evidence = evidence

	var lastErr error
	for attempt := 0; attempt <= td.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewDomainError(errors.ErrCertificationFailed,
				fmt.Errorf("domain %s: %w", d.Name, err))
		}
		callCtx, cancel := context.WithTimeout(ctx, td.cfg.CertifyTimeout)
		resp, err := td.client.Certify(callCtx, d.Service, req)
		cancel()
		if err != nil {
			lastErr = err
			td.logger.Debug(ctx, "certifier call failed",
				ports.Attr("domain", d.Name),
				ports.Attr("attempt", attempt+1),
				ports.Attr("error", err.Error()))
			continue
		}
		if resp.Status != ports.StatusSucceeded || len(resp.AdmissionCert) == 0 {
			return nil, errors.NewDomainError(errors.ErrCertificationFailed,
				fmt.Errorf("domain %s rejected request %s: %s", d.Name, req.RequestID, resp.Reason))
		}
		return resp.AdmissionCert, nil
	}
	return nil, errors.NewDomainError(errors.ErrCertificationFailed,
		fmt.Errorf("domain %s unreachable at %s after %d attempt(s): %w", d.Name, d.Service, td.cfg.Retries+1, lastErr))
}

// commitCertification records the admission certificate if the domain is
// still registered with the endpoints and certificate it was certified with.
func (td *TrustData) commitCertification(snap *domain.CertifiedDomain, admission []byte) error {
	td.mu.Lock()
	defer td.mu.Unlock()

	l := td.registry.Lookup(snap.Name)
	if !l.Found() || !sameDomainIdentity(l.Domain, snap) {
		return errors.NewDomainError(errors.ErrCertificationFailed,
			fmt.Errorf("domain %s changed during certification", snap.Name))
	}
	if err := td.insertLocked(domain.AdmissionCertTag(snap.Name), domain.EntryTypeCert, admission); err != nil {
		return err
	}

	updated := l.Domain.Clone()
	updated.AdmissionCert = admission
	updated.CertifiedAt = td.now().UTC().Truncate(time.Second)
	td.registry.AddOrUpdate(updated)

	if l.Kind == domain.DomainPrimary {
		td.stages = td.stages.With(domain.StagePrimaryCertified)
	}
	td.refreshSecondaryStageLocked()
	td.reportLocked()
	return nil
}
