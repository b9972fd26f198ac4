package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore implements Store using one JSON snapshot file per cache
// name under a fixed directory
type FileStore struct {
	dir string
}

// NewFileStore creates a file-based snapshot store, creating the
// directory if needed
func NewFileStore(dir string) (Store, error) {
	return newFileStore(dir)
}

// newFileStore creates the concrete implementation
func newFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Load reads the snapshot for the given cache name
func (s *FileStore) Load(ctx context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache snapshot: %w", err)
	}
	return data, nil
}

// Save writes the snapshot atomically via a temp file rename, so a
// crash mid-write never leaves a truncated snapshot behind
func (s *FileStore) Save(ctx context.Context, name string, data []byte) error {
	path := s.path(name)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace cache snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}
