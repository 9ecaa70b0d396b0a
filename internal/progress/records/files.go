// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package records

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/renameio/v2"
)

// Files stores one file per key under a root directory. Each file is
// replaced atomically; PutAll writes in key order and a crash can leave the
// earlier files updated, which the progress loader tolerates.
type Files struct {
	mu   sync.Mutex
	root string
}

// NewFiles creates the root directory if needed.
func NewFiles(root string) (*Files, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("records: create dir: %w", err)
	}
	return &Files{root: root}, nil
}

func (f *Files) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(key)+".json"), nil
}

func (f *Files) Get(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is confined to root by ValidateKey
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (f *Files) PutAll(_ context.Context, values map[string][]byte) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		if _, err := f.path(k); err != nil {
			return err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		p, _ := f.path(k)
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return fmt.Errorf("records: create dir: %w", err)
		}
		if err := renameio.WriteFile(p, values[k], 0o600); err != nil {
			return fmt.Errorf("records: write %s: %w", k, err)
		}
	}
	return nil
}

func (f *Files) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		p, err := f.path(k)
		if err != nil {
			return err
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (f *Files) Close() error { return nil }
