// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps objects in a directory served by the application.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("media directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &LocalStore{root: root, baseURL: baseURL}, nil
}

// Root returns the directory objects are written to.
func (s *LocalStore) Root() string {
	return s.root
}

// path maps key to a file below the root and returns the cleaned key too.
func (s *LocalStore) path(key string) (string, string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", "", fmt.Errorf("invalid media key %q", key)
	}
	return filepath.ToSlash(clean), filepath.Join(s.root, clean), nil
}

// Save writes data atomically below the root directory.
func (s *LocalStore) Save(_ context.Context, key, _ string, data []byte) (string, error) {
	clean, path, err := s.path(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create media directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write media file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("write media file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store media file: %w", err)
	}

	return publicURL(s.baseURL, clean), nil
}

// Delete removes the file behind ref. A missing file is not an error.
func (s *LocalStore) Delete(_ context.Context, ref string) error {
	key, err := keyFromRef(s.baseURL, ref)
	if err != nil {
		return err
	}
	_, path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete media file: %w", err)
	}
	return nil
}
