// Package filestore provides the flat blob store behind file transfer.
//
// Blobs live directly under a single storage root, one file per name,
// no subdirectories. Writes overwrite an existing blob of the same
// name. Names are sanitized before they touch the filesystem so a
// hostile "../../etc/passwd" upload cannot escape the root.
package filestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const MaxNameLength = 128

var (
	ErrNotFound    = errors.New("filestore: file not found")
	ErrInvalidName = errors.New("filestore: invalid file name")
)

// Store is a flat blob store rooted at a directory.
type Store struct {
	root string
}

// New creates the storage root if needed and returns a Store over it.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("filestore: create root: %w", err)
	}
	return &Store{root: root}, nil
}

// ValidateName rejects empty, oversized, or path-escaping names.
func ValidateName(name string) error {
	if name == "" || len(name) > MaxNameLength {
		return ErrInvalidName
	}
	if name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "/\\") || strings.ContainsRune(name, 0) {
		return ErrInvalidName
	}
	return nil
}

// Write stores a blob under name, overwriting any existing blob.
func (s *Store) Write(name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	// Write through a temp file and rename so a crashed upload never
	// leaves a truncated blob under the final name.
	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("filestore: write %q: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: write %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: write %q: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.root, name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: write %q: %w", name, err)
	}
	return nil
}

// Read returns the blob stored under name, or ErrNotFound.
func (s *Store) Read(name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: read %q: %w", name, err)
	}
	return data, nil
}
