package ports

import "context"

// PolicyStoreRepository persists a serialized policy store. Load returns an
// error matching errors.ErrEntryNotFound when nothing has been saved yet.
type PolicyStoreRepository interface {
	Save(ctx context.Context, serialized []byte) error
	Load(ctx context.Context) ([]byte, error)
}
