// Package filestore keeps scheme artifacts as files in a directory, one
// <name>.vpc file per scheme.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/storm-vp-classifier/internal/scheme"
)

const ext = ".vpc"

// Store is a directory-backed scheme.Store.
type Store struct {
	dir string
}

// New returns a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scheme dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Put writes data to a temporary file and renames it over the target, so
// readers never observe a partial artifact.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("write scheme %s: %w", name, err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("write scheme %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write scheme %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write scheme %s: %w", name, err)
	}
	return nil
}

// Get reads the artifact stored under name.
func (s *Store) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", scheme.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read scheme %s: %w", name, err)
	}
	return data, nil
}

// List returns the names of all stored schemes.
func (s *Store) List() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+ext))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = strings.TrimSuffix(filepath.Base(m), ext)
	}
	return names, nil
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid scheme name %q", name)
	}
	return filepath.Join(s.dir, name+ext), nil
}
