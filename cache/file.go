package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore keeps one JSON file per entry under <root>/<domain>/<key>.json.
type FileStore struct {
	root string
}

// NewFileStore creates the root and every domain directory.
func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("cache: resolve root: %w", err)
	}
	for _, d := range Domains {
		if err := os.MkdirAll(filepath.Join(abs, string(d)), 0o750); err != nil {
			return nil, fmt.Errorf("cache: create %s directory: %w", d, err)
		}
	}
	return &FileStore{root: abs}, nil
}

// Root returns the absolute cache directory.
func (s *FileStore) Root() string { return s.root }

// Dir returns the directory that holds domain's entries.
func (s *FileStore) Dir(domain Domain) string {
	return filepath.Join(s.root, string(domain))
}

// Path returns the file backing (domain, key).
func (s *FileStore) Path(domain Domain, key string) string {
	return filepath.Join(s.root, string(domain), key+".json")
}

// Read implements Store.
func (s *FileStore) Read(_ context.Context, domain Domain, key string) ([]byte, error) {
	if err := validate(domain, key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(domain, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cache: read %s/%s: %w", domain, key, err)
	}
	return data, nil
}

// Write implements Store. The document is written to a temp file in the
// same directory and renamed over the target, so readers observe either the
// old or the new content.
func (s *FileStore) Write(_ context.Context, domain Domain, key string, data []byte) error {
	if err := validate(domain, key); err != nil {
		return err
	}
	dir := s.Dir(domain)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("cache: create %s directory: %w", domain, err)
	}

	tmp, err := os.CreateTemp(dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("cache: write %s/%s: %w", domain, key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("cache: close %s/%s: %w", domain, key, err)
	}
	if err := os.Rename(tmpName, s.Path(domain, key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("cache: commit %s/%s: %w", domain, key, err)
	}
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, domain Domain, key string) error {
	if err := validate(domain, key); err != nil {
		return err
	}
	if err := os.Remove(s.Path(domain, key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cache: delete %s/%s: %w", domain, key, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
