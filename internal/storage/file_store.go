package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const blobExt = ".blob"

// ErrInvalidID rejects ids that would name a path outside the store
// directory. Ids are UUIDs in normal operation; anything with a separator
// or a dot-dot segment is hostile or corrupt.
var ErrInvalidID = errors.New("storage: invalid blob id")

func validID(id string) bool {
	return id != "" && !strings.Contains(id, "..") && !strings.ContainsAny(id, `/\`)
}

type FileBlobStore struct{ dir string }

func NewFileBlobStore(dir string) *FileBlobStore {
	_ = os.MkdirAll(dir, 0700)
	return &FileBlobStore{dir: dir}
}

func (f *FileBlobStore) Dir() string { return f.dir }

// Path maps id to its on-disk location. Invalid ids map to the empty
// string, which every file operation refuses loudly.
func (f *FileBlobStore) Path(id string) string {
	if !validID(id) {
		return ""
	}
	return filepath.Join(f.dir, id+blobExt)
}

func (f *FileBlobStore) Put(_ context.Context, id string, data []byte) error {
	if !validID(id) {
		return ErrInvalidID
	}
	return os.WriteFile(f.Path(id), data, 0600)
}

func (f *FileBlobStore) Get(_ context.Context, id string) ([]byte, error) {
	if !validID(id) {
		return nil, ErrInvalidID
	}
	b, err := os.ReadFile(f.Path(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return b, err
}

func (f *FileBlobStore) Delete(_ context.Context, id string) error {
	if !validID(id) {
		return ErrInvalidID
	}
	err := os.Remove(f.Path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FileBlobStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && strings.HasSuffix(name, blobExt) {
			ids = append(ids, strings.TrimSuffix(name, blobExt))
		}
	}
	return ids, nil
}
