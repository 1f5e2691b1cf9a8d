package storage

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

// MemoryRepository keeps the serialized store in memory. It backs nodes that
// must not touch the filesystem and tests.
type MemoryRepository struct {
	mu    sync.RWMutex
	data  []byte
	saved bool
}

var _ ports.PolicyStoreRepository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Save replaces the stored copy.
func (r *MemoryRepository) Save(ctx context.Context, serialized []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = bytes.Clone(serialized)
	r.saved = true
	return nil
}

// Load returns a copy of the last saved store.
func (r *MemoryRepository) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.saved {
		return nil, errors.NewDomainError(errors.ErrEntryNotFound, fmt.Errorf("no saved store"))
	}
	return bytes.Clone(r.data), nil
}
