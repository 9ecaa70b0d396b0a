// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package manifest describes the versioned set of resources that must be
// available offline, and derives the cache generation that holds them.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// DefaultPrefix names generations when no prefix is configured.
const DefaultPrefix = "offlinekit-cache"

var (
	// ErrEmpty is returned for a manifest without assets.
	ErrEmpty = errors.New("manifest: no assets")
	// ErrInvalidPath is returned for asset paths that are not absolute.
	ErrInvalidPath = errors.New("manifest: asset path must be absolute")
	// ErrDuplicatePath is returned when an asset is listed twice.
	ErrDuplicatePath = errors.New("manifest: duplicate asset path")
	// ErrMissingDocument is returned when the shell or offline document is not an asset.
	ErrMissingDocument = errors.New("manifest: document not listed in assets")
	// ErrMissingStamp is returned when the build stamp is zero.
	ErrMissingStamp = errors.New("manifest: build stamp is required")
)

// Generation identifies one versioned snapshot of the precached resource set.
type Generation string

// String implements fmt.Stringer.
func (g Generation) String() string { return string(g) }

// Manifest is the ordered, immutable list of resources a generation precaches.
type Manifest struct {
	build   string
	stamp   time.Time
	shell   string
	offline string
	assets  []string
	index   map[string]struct{}
}

// New validates the inputs and returns an immutable manifest.
func New(build string, stamp time.Time, shell, offline string, assets []string) (*Manifest, error) {
	m := &Manifest{
		build:   strings.TrimSpace(build),
		stamp:   stamp.UTC(),
		shell:   shell,
		offline: offline,
		assets:  append([]string(nil), assets...),
		index:   make(map[string]struct{}, len(assets)),
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) validate() error {
	var errs []error
	if len(m.assets) == 0 {
		errs = append(errs, ErrEmpty)
	}
	if m.stamp.IsZero() {
		errs = append(errs, ErrMissingStamp)
	}
	for _, p := range m.assets {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidPath, p))
			continue
		}
		if _, dup := m.index[p]; dup {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicatePath, p))
			continue
		}
		m.index[p] = struct{}{}
	}
	for name, doc := range map[string]string{"shell": m.shell, "offline": m.offline} {
		if doc == "" {
			continue
		}
		if _, ok := m.index[doc]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s %q", ErrMissingDocument, name, doc))
		}
	}
	return errors.Join(errs...)
}

// Build returns the build fingerprint (commit id), or "dev" when unset.
func (m *Manifest) Build() string {
	if m.build == "" {
		return "dev"
	}
	return m.build
}

// Stamp returns the build timestamp.
func (m *Manifest) Stamp() time.Time { return m.stamp }

// Shell returns the application shell document path, which may be empty.
func (m *Manifest) Shell() string { return m.shell }

// Offline returns the dedicated offline document path, which may be empty.
func (m *Manifest) Offline() string { return m.offline }

// Assets returns a copy of the ordered asset paths.
func (m *Manifest) Assets() []string { return append([]string(nil), m.assets...) }

// Len returns the number of assets.
func (m *Manifest) Len() int { return len(m.assets) }

// Contains reports whether path is a precached asset.
func (m *Manifest) Contains(path string) bool {
	_, ok := m.index[path]
	return ok
}

// Generation derives the generation name: <prefix>-<build>-<stamp>-<members>,
// with the separators of the RFC3339 stamp stripped so the name is a safe
// store key. members fingerprints the documents and the asset set, so a
// changed asset list under the same build stamp still yields a new generation.
func (m *Manifest) Generation(prefix string) Generation {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	stamp := m.stamp.Format("2006-01-02T15:04:05.999999999Z07:00")
	stamp = strings.NewReplacer(":", "", ".", "").Replace(stamp)
	return Generation(fmt.Sprintf("%s-%s-%s-%s", prefix, m.Build(), stamp, m.Fingerprint()))
}

// Fingerprint hashes the shell, the offline document and the sorted asset
// paths. Asset order does not affect it.
func (m *Manifest) Fingerprint() string {
	sorted := slices.Sorted(slices.Values(m.assets))
	h := sha256.New()
	fmt.Fprintf(h, "shell=%s\noffline=%s\n", m.shell, m.offline)
	for _, p := range sorted {
		h.Write([]byte(p))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)[:4])
}
