// Package storage persists the serialized policy store on the local
// filesystem, sealed to the enclave.
package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/sufield/certifier/internal/core/errors"
	"github.com/sufield/certifier/internal/core/ports"
)

const lockRetryDelay = 25 * time.Millisecond

// FileRepository stores one sealed policy store per file. Writers take an
// exclusive lock on a sibling ".lock" file and replace the store atomically;
// readers take a shared lock. Every call opens its own lock handle, so calls
// on one repository exclude each other like calls from other processes.
type FileRepository struct {
	path     string
	lockPath string
	sealer   ports.Sealer

	// beforeWrite runs while Save holds the exclusive lock.
	beforeWrite func()
}

var _ ports.PolicyStoreRepository = (*FileRepository)(nil)

// NewFileRepository returns a repository for path. A nil sealer stores the
// serialized store in the clear.
func NewFileRepository(path string, sealer ports.Sealer) (*FileRepository, error) {
	if path == "" {
		return nil, &errors.ValidationError{
			Field:   "path",
			Value:   path,
			Message: "store path cannot be empty",
		}
	}
	clean := filepath.Clean(path)
	return &FileRepository{
		path:     clean,
		lockPath: clean + ".lock",
		sealer:   sealer,
	}, nil
}

// Path returns the store file path.
func (r *FileRepository) Path() string {
	return r.path
}

// Save seals serialized and atomically replaces the store file.
func (r *FileRepository) Save(ctx context.Context, serialized []byte) error {
	data := serialized
	if r.sealer != nil {
		sealed, err := r.sealer.Seal(serialized)
		if err != nil {
			return fmt.Errorf("seal policy store: %w", err)
		}
		data = sealed
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	lock := flock.New(r.lockPath)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("lock %s: %w", r.path, err)
	}
	if !locked {
		return fmt.Errorf("lock %s: not acquired", r.path)
	}
	defer lock.Unlock()

	if r.beforeWrite != nil {
		r.beforeWrite()
	}
	return writeFileAtomic(r.path, data, 0o600)
}

// Load reads and unseals the store file. A missing file yields an error
// matching errors.ErrEntryNotFound.
func (r *FileRepository) Load(ctx context.Context) ([]byte, error) {
	if _, err := os.Stat(r.path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewDomainError(errors.ErrEntryNotFound, fmt.Errorf("no saved store at %s", r.path))
		}
		return nil, fmt.Errorf("stat %s: %w", r.path, err)
	}

	lock := flock.New(r.lockPath)
	locked, err := lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", r.path, err)
	}
	if !locked {
		return nil, fmt.Errorf("lock %s: not acquired", r.path)
	}
	data, err := os.ReadFile(r.path)
	lock.Unlock()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}

	if r.sealer == nil {
		return data, nil
	}
	plain, err := r.sealer.Unseal(data)
	if err != nil {
		return nil, fmt.Errorf("unseal %s: %w", r.path, err)
	}
	return plain, nil
}

// writeFileAtomic writes data to a temporary file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte, mode fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
