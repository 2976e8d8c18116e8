package storage

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("blob not found")

// BlobStore persists opaque ciphertext blobs keyed by item id. Path exposes
// the backing file so the secure eraser can overwrite it in place; stores
// that cannot honor an in-place overwrite cannot back a vault.
type BlobStore interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Path(id string) string
}
