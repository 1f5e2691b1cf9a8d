package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

func TestTrustData_CertifySecondaryDomain_Unknown(t *testing.T) {
	td := NewTrustData(TrustDataConfig{})
	require.True(t, td.AddOrUpdateNewDomain("datica-test", []byte("test-dummy-certificate"), "localhost", 8121, "localhost", 8123))
	before, _ := td.Domain("datica-test")
	entries := td.PolicyStore().NumEntries()

	assert.False(t, td.CertifySecondaryDomain(context.Background(), "never-registered"))

	after, kind := td.Domain("datica-test")
	assert.Equal(t, domain.DomainSecondary, kind)
	assert.Equal(t, before, after)
	assert.Equal(t, entries, td.PolicyStore().NumEntries())
	assert.False(t, td.AllInitialized())
}

func TestTrustData_CertifySecondaryDomain_UnknownWithCollaborators(t *testing.T) {
	td, client := newReadyTrustData(t, TrustDataConfig{})

	assert.False(t, td.CertifySecondaryDomain(context.Background(), "never-registered"))
	assert.Equal(t, 0, client.Calls("never-registered"))

	// The primary is not a secondary domain.
	assert.False(t, td.CertifySecondaryDomain(context.Background(), "primary.test"))
	assert.Equal(t, 0, client.Calls("primary.test"))
}

func TestTrustData_CertifyDomain(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	td, client := newReadyTrustData(t, TrustDataConfig{}, WithClock(func() time.Time { return now }))

	require.NoError(t, td.CertifyDomain(ctx, "primary.test"))

	d, kind := td.Domain("primary.test")
	assert.Equal(t, domain.DomainPrimary, kind)
	assert.Equal(t, []byte("admission-cert-for-primary.test"), d.AdmissionCert)
	assert.Equal(t, now, d.CertifiedAt)
	assert.Equal(t, 1, client.Calls("primary.test"))

	stored, ok := td.PolicyStore().Get(domain.AdmissionCertTag("primary.test"), domain.EntryTypeCert)
	require.True(t, ok)
	assert.Equal(t, d.AdmissionCert, stored)
	assert.True(t, td.Stages().Has(domain.InitStages(domain.StagePrimaryCertified)))

	err := td.CertifyDomain(ctx, "missing.test")
	assert.ErrorIs(t, err, errors.ErrDomainNotFound)
}

func TestTrustData_CertifyDomain_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(client *MockCertifierClient)
		opts    []Option
		wantErr error
		calls   int
	}{
		{
			name:    "rejected",
			setup:   func(c *MockCertifierClient) { c.reject["second.test"] = true },
			wantErr: errors.ErrCertificationFailed,
			calls:   1,
		},
		{
			name:    "unreachable with retries",
			setup:   func(c *MockCertifierClient) { c.unreachable["second.test"] = true },
			wantErr: errors.ErrCertificationFailed,
			calls:   3,
		},
		{
			name:    "attestation fails",
			setup:   func(*MockCertifierClient) {},
			opts:    []Option{WithEnclave(&MockEnclave{failAttest: true})},
			wantErr: errors.ErrCertificationFailed,
			calls:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			td, client := newReadyTrustData(t, TrustDataConfig{Retries: 2}, tt.opts...)
			require.NoError(t, td.AddOrUpdateDomain(ctx, newDomain(t, "second.test")))
			tt.setup(client)
			entries := td.PolicyStore().NumEntries()

			err := td.CertifyDomain(ctx, "second.test")
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, td.CertifySecondaryDomain(ctx, "second.test"))

			d, kind := td.Domain("second.test")
			assert.Equal(t, domain.DomainSecondary, kind)
			assert.False(t, d.IsCertified())
			assert.Equal(t, entries, td.PolicyStore().NumEntries())
			assert.Equal(t, 2*tt.calls, client.Calls("second.test"))
		})
	}
}

func TestTrustData_CertifyDomain_NotProvisioned(t *testing.T) {
	td := NewTrustData(TrustDataConfig{}, WithEnclave(&MockEnclave{}), WithCertifierClient(NewMockCertifierClient()))
	require.True(t, td.AddOrUpdateNewDomain("second.test", nil, "localhost", 8121, "localhost", 8123))

	err := td.CertifyDomain(context.Background(), "second.test")
	assert.ErrorIs(t, err, errors.ErrNotInitialized)

	bare := NewTrustData(TrustDataConfig{})
	require.True(t, bare.AddOrUpdateNewDomain("second.test", nil, "localhost", 8121, "localhost", 8123))
	assert.False(t, bare.CertifySecondaryDomain(context.Background(), "second.test"))
}

func TestTrustData_CertifyDomain_ChangedDuringCertification(t *testing.T) {
	ctx := context.Background()
	td, client := newReadyTrustData(t, TrustDataConfig{})
	require.NoError(t, td.AddOrUpdateDomain(ctx, newDomain(t, "second.test")))

	client.onCall = func(*ports.CertificationRequest) {
		moved := newDomain(t, "second.test")
		moved.Admission.Port = 7000
		require.NoError(t, td.AddOrUpdateDomain(ctx, moved))
	}

	err := td.CertifyDomain(ctx, "second.test")
	assert.ErrorIs(t, err, errors.ErrCertificationFailed)

	d, _ := td.Domain("second.test")
	assert.Equal(t, 7000, d.Admission.Port)
	assert.False(t, d.IsCertified())
}

func TestTrustData_CertifyRequestContents(t *testing.T) {
	ctx := context.Background()
	var got *ports.CertificationRequest
	td, client := newReadyTrustData(t, TrustDataConfig{})
	client.onCall = func(req *ports.CertificationRequest) { got = req }

	require.NoError(t, td.CertifyDomain(ctx, "primary.test"))
	require.NotNil(t, got)

	pub, ok := td.PolicyStore().Get(domain.TagAuthKey, domain.EntryTypePublicKey)
	require.True(t, ok)
	assert.Equal(t, "primary.test", got.Domain)
	assert.Equal(t, "authentication", got.Purpose)
	assert.Equal(t, "simulated-enclave", got.EnclaveType)
	assert.Equal(t, pub, got.PublicKey)
	assert.Equal(t, []byte("policy-cert"), got.PolicyCert)
	assert.NotEmpty(t, got.RequestID)
	assert.Equal(t, append([]byte("evidence:"), got.Claims()...), got.Evidence)
}

func TestTrustData_CertifyMe(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepository{}
	client := NewMockCertifierClient()
	td := NewTrustData(TrustDataConfig{},
		WithEnclave(&MockEnclave{}), WithCertifierClient(client), WithRepository(repo))
	require.NoError(t, td.ColdInit(ctx))
	require.NoError(t, td.SetPrimaryDomain(newDomain(t, "primary.test")))
	require.NoError(t, td.AddOrUpdateDomain(ctx, newDomain(t, "a.test")))
	require.NoError(t, td.AddOrUpdateDomain(ctx, newDomain(t, "b.test")))
	client.reject["b.test"] = true

	// The policy key comes from the primary domain's certificate.
	require.NoError(t, td.CertifyMe(ctx))

	assert.True(t, td.AllInitialized())
	cert, ok := td.PolicyStore().Get(domain.TagPolicyCert, domain.EntryTypeCert)
	require.True(t, ok)
	assert.Equal(t, []byte("test-dummy-certificate"), cert)

	a, _ := td.Domain("a.test")
	b, _ := td.Domain("b.test")
	assert.True(t, a.IsCertified())
	assert.False(t, b.IsCertified())
	assert.Equal(t, 2, repo.saves)
}

func TestTrustData_CertifyMe_ShortCircuits(t *testing.T) {
	ctx := context.Background()

	t.Run("no policy certificate", func(t *testing.T) {
		client := NewMockCertifierClient()
		td := NewTrustData(TrustDataConfig{}, WithEnclave(&MockEnclave{}), WithCertifierClient(client))
		require.NoError(t, td.ColdInit(ctx))

		err := td.CertifyMe(ctx)
		assert.ErrorIs(t, err, errors.ErrNotInitialized)
		assert.Contains(t, err.Error(), "policy-key")
	})

	t.Run("no identity key", func(t *testing.T) {
		td := NewTrustData(TrustDataConfig{}, WithEnclave(&MockEnclave{}), WithCertifierClient(NewMockCertifierClient()))
		require.NoError(t, td.SetPrimaryDomain(newDomain(t, "primary.test")))

		err := td.CertifyMe(ctx)
		assert.ErrorIs(t, err, errors.ErrNotInitialized)
		assert.Contains(t, err.Error(), "auth-key")
	})

	t.Run("primary rejected", func(t *testing.T) {
		td, client := newReadyTrustData(t, TrustDataConfig{})
		require.NoError(t, td.AddOrUpdateDomain(ctx, newDomain(t, "a.test")))
		client.reject["primary.test"] = true

		err := td.CertifyMe(ctx)
		assert.ErrorIs(t, err, errors.ErrCertificationFailed)
		assert.Contains(t, err.Error(), "primary-certified")
		assert.Equal(t, 0, client.Calls("a.test"))
		assert.False(t, td.AllInitialized())
	})

	t.Run("required secondary rejected", func(t *testing.T) {
		repo := &MockRepository{}
		td, client := newReadyTrustData(t, TrustDataConfig{RequireSecondary: true}, WithRepository(repo))
		require.NoError(t, td.AddOrUpdateDomain(ctx, newDomain(t, "a.test")))
		require.NoError(t, td.AddOrUpdateDomain(ctx, newDomain(t, "b.test")))
		client.reject["a.test"] = true
		client.reject["b.test"] = true
		saves := repo.saves

		err := td.CertifyMe(ctx)
		assert.ErrorIs(t, err, errors.ErrCertificationFailed)
		assert.Contains(t, err.Error(), "a.test")
		assert.Contains(t, err.Error(), "b.test")
		assert.Equal(t, saves, repo.saves)
		assert.False(t, td.AllInitialized())
	})
}

func TestTrustData_CertifyCancelled(t *testing.T) {
	t.Run("between retries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		td, client := newReadyTrustData(t, TrustDataConfig{Retries: 2})
		client.unreachable["primary.test"] = true
		client.onCall = func(*ports.CertificationRequest) { cancel() }

		err := td.CertifyDomain(ctx, "primary.test")
		assert.ErrorIs(t, err, errors.ErrCertificationFailed)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, client.Calls("primary.test"))
		assert.False(t, td.PrimaryDomain().IsCertified())
	})

	t.Run("before certify me", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		td, client := newReadyTrustData(t, TrustDataConfig{})

		err := td.CertifyMe(ctx)
		assert.ErrorIs(t, err, errors.ErrCertificationFailed)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, client.Calls("primary.test"))
		assert.False(t, td.AllInitialized())
	})

	t.Run("between secondaries", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		td, client := newReadyTrustData(t, TrustDataConfig{})
		require.NoError(t, td.AddOrUpdateDomain(ctx, newDomain(t, "a.test")))
		client.onCall = func(req *ports.CertificationRequest) {
			if req.Domain == "primary.test" {
				cancel()
			}
		}

		err := td.CertifyMe(ctx)
		assert.ErrorIs(t, err, errors.ErrCertificationFailed)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, client.Calls("a.test"))
	})
}

func TestTrustData_ConcurrentCertification(t *testing.T) {
	ctx := context.Background()
	td, _ := newReadyTrustData(t, TrustDataConfig{})
	names := []string{"a.test", "b.test", "c.test", "d.test"}
	for _, n := range names {
		require.NoError(t, td.AddOrUpdateDomain(ctx, newDomain(t, n)))
	}

	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.True(t, td.CertifySecondaryDomain(ctx, n))
		}()
		go func() {
			defer wg.Done()
			td.AllInitialized()
			td.SecondaryDomains()
		}()
	}
	wg.Wait()

	assert.True(t, td.Stages().Has(domain.InitStages(domain.StageSecondaryCertified)))
	for _, d := range td.SecondaryDomains() {
		assert.True(t, d.IsCertified(), d.Name)
	}
}
