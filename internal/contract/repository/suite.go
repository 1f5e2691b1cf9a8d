// Package repository provides the contract test suite for
// PolicyStoreRepository implementations.
package repository

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sufield/certifier/internal/core/domain"
	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

// Factory creates an empty repository for one subtest.
type Factory func(t *testing.T) ports.PolicyStoreRepository

// Run executes the complete contract test suite against any
// PolicyStoreRepository implementation.
func Run(t *testing.T, newImpl Factory) {
	t.Helper()
	t.Run("load before save", func(t *testing.T) {
		testLoadBeforeSave(t, newImpl)
	})

	t.Run("save then load", func(t *testing.T) {
		testSaveLoad(t, newImpl)
	})

	t.Run("save overwrites", func(t *testing.T) {
		testOverwrite(t, newImpl)
	})

	t.Run("saved copy is isolated", func(t *testing.T) {
		testIsolation(t, newImpl)
	})

	t.Run("serialized policy store survives", func(t *testing.T) {
		testPolicyStoreRoundTrip(t, newImpl)
	})

	t.Run("concurrent saves", func(t *testing.T) {
		testConcurrentSaves(t, newImpl)
	})
}

func testLoadBeforeSave(t *testing.T, newImpl Factory) {
	t.Helper()
	repo := newImpl(t)

	data, err := repo.Load(context.Background())
	require.ErrorIs(t, err, errors.ErrEntryNotFound)
	assert.Nil(t, data)
}

func testSaveLoad(t *testing.T, newImpl Factory) {
	t.Helper()
	repo := newImpl(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, []byte("serialized-store")))
	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("serialized-store"), got)
}

func testOverwrite(t *testing.T, newImpl Factory) {
	t.Helper()
	repo := newImpl(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, []byte("first")))
	require.NoError(t, repo.Save(ctx, []byte("second")))
	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func testIsolation(t *testing.T, newImpl Factory) {
	t.Helper()
	repo := newImpl(t)
	ctx := context.Background()

	in := []byte("original")
	require.NoError(t, repo.Save(ctx, in))
	copy(in, "mutated!")

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)

	got[0] = 'X'
	again, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func testPolicyStoreRoundTrip(t *testing.T, newImpl Factory) {
	t.Helper()
	repo := newImpl(t)
	ctx := context.Background()

	store := domain.NewPolicyStore(0)
	require.NoError(t, store.Insert(domain.TagPolicyCert, domain.EntryTypeCert, []byte("policy-cert")))
	require.NoError(t, store.Insert(domain.TagSymmetricKey, domain.EntryTypeKey, bytes.Repeat([]byte{0x5a}, 32)))

	serialized, err := store.Serialize()
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, serialized))

	data, err := repo.Load(ctx)
	require.NoError(t, err)
	restored, err := domain.DeserializePolicyStore(data)
	require.NoError(t, err)
	assert.Equal(t, store.Entries(), restored.Entries())
}

func testConcurrentSaves(t *testing.T, newImpl Factory) {
	t.Helper()
	repo := newImpl(t)
	ctx := context.Background()

	payloads := [][]byte{[]byte("alpha"), []byte("bravo"), []byte("charlie"), []byte("delta")}
	var wg sync.WaitGroup
	for _, p := range payloads {
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			assert.NoError(t, repo.Save(ctx, p))
		}(p)
	}
	wg.Wait()

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Contains(t, payloads, got)
}
