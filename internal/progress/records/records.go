// SPDX-License-Identifier: MIT

// Package records stores the keyed progress records. Backends are
// interchangeable: memory for tests, SQLite for the daemon, and plain files
// for the CLI.
package records

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrClosed is returned by a closed backend.
	ErrClosed = errors.New("records: backend closed")
	// ErrInvalidKey is returned for keys that are empty or escape the namespace.
	ErrInvalidKey = errors.New("records: invalid key")
)

// Backend is a small key/value store. Get returns nil without error for
// an absent key. PutAll writes every pair or none.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	PutAll(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// ValidateKey rejects keys that could not be used as relative file paths.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// Memory is an in-memory Backend.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) PutAll(_ context.Context, values map[string][]byte) error {
	for k := range values {
		if err := ValidateKey(k); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for k, v := range values {
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Keys lists stored keys in order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for k := range m.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// ErrNoDir is returned by Open when a persistent backend has no directory.
// Use the "memory" backend explicitly for progress that is not kept.
var ErrNoDir = errors.New("records: persistent backend requires a directory")

// Options selects a backend.
type Options struct {
	// Backend is "sqlite" (default), "file" or "memory".
	Backend string
	// Dir holds the backend's files.
	Dir string
}

// Open returns the configured backend.
func Open(opts Options) (Backend, error) {
	switch opts.Backend {
	case "", "sqlite":
		if opts.Dir == "" {
			return nil, ErrNoDir
		}
		return OpenSqlite(filepath.Join(opts.Dir, "progress.db"))
	case "file":
		if opts.Dir == "" {
			return nil, ErrNoDir
		}
		return NewFiles(filepath.Join(opts.Dir, "progress"))
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown progress backend: %s", opts.Backend)
	}
}
