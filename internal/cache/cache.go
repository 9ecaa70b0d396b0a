// SPDX-License-Identifier: MIT

// Package cache provides generation-scoped storage of resource responses.
// Every entry belongs to exactly one generation; retiring a generation
// removes all of its entries at once.
package cache

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/offlinekit/internal/manifest"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cache: store closed")

// Store holds resource responses keyed by generation and request key.
type Store interface {
	// Get returns the entry, or nil without error when it is absent.
	Get(ctx context.Context, gen manifest.Generation, key string) (*Entry, error)
	// Put writes a single entry into gen, overwriting any previous one.
	Put(ctx context.Context, gen manifest.Generation, e *Entry) error
	// PutAll writes entries into gen atomically: either all become visible or none.
	PutAll(ctx context.Context, gen manifest.Generation, entries []*Entry) error
	// Generations lists every generation holding at least one entry, sorted.
	Generations(ctx context.Context) ([]manifest.Generation, error)
	// DeleteGeneration removes gen and all its entries.
	DeleteGeneration(ctx context.Context, gen manifest.Generation) error
	// Active returns the persisted controlling generation, or "" if none.
	Active(ctx context.Context) (manifest.Generation, error)
	// SetActive persists the controlling generation.
	SetActive(ctx context.Context, gen manifest.Generation) error
	// Stats returns cache statistics.
	Stats() Stats
	// Close releases the backend.
	Close() error
}

// HealthChecker is implemented by backends that can probe their connection.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Stats holds cache performance counters.
type Stats struct {
	Hits   int64 // Get calls that found an entry
	Misses int64 // Get calls that found nothing
	Sets   int64 // entries written
}

// Entry is a stored response.
type Entry struct {
	Key      string      `json:"key"`
	Status   int         `json:"status"`
	Header   http.Header `json:"header,omitempty"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// OK reports whether the stored status is 2xx.
func (e *Entry) OK() bool {
	return e != nil && e.Status >= 200 && e.Status < 300
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Header = e.Header.Clone()
	c.Body = append([]byte(nil), e.Body...)
	return &c
}

// counters is shared by all backends.
type counters struct {
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
}

func (c *counters) observe(found bool) {
	if found {
		c.hits.Add(1)
		return
	}
	c.misses.Add(1)
}

func (c *counters) snapshot() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Sets: c.sets.Load()}
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	mu          sync.RWMutex
	generations map[manifest.Generation]map[string]*Entry
	active      manifest.Generation
	closed      bool
	stats       counters
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		generations: make(map[manifest.Generation]map[string]*Entry),
	}
}

func (s *MemoryStore) Get(_ context.Context, gen manifest.Generation, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	e, ok := s.generations[gen][key]
	s.stats.observe(ok)
	if !ok {
		return nil, nil
	}
	return e.Clone(), nil
}

func (s *MemoryStore) Put(ctx context.Context, gen manifest.Generation, e *Entry) error {
	return s.PutAll(ctx, gen, []*Entry{e})
}

func (s *MemoryStore) PutAll(_ context.Context, gen manifest.Generation, entries []*Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	bucket, ok := s.generations[gen]
	if !ok {
		bucket = make(map[string]*Entry, len(entries))
		s.generations[gen] = bucket
	}
	for _, e := range entries {
		bucket[e.Key] = e.Clone()
	}
	s.stats.sets.Add(int64(len(entries)))
	return nil
}

func (s *MemoryStore) Generations(_ context.Context) ([]manifest.Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]manifest.Generation, 0, len(s.generations))
	for g := range s.generations {
		out = append(out, g)
	}
	sortGenerations(out)
	return out, nil
}

func (s *MemoryStore) DeleteGeneration(_ context.Context, gen manifest.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.generations, gen)
	if s.active == gen {
		s.active = ""
	}
	return nil
}

func (s *MemoryStore) Active(_ context.Context) (manifest.Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}
	return s.active, nil
}

func (s *MemoryStore) SetActive(_ context.Context, gen manifest.Generation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.active = gen
	return nil
}

func (s *MemoryStore) Stats() Stats { return s.stats.snapshot() }

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.generations = nil
	s.mu.Unlock()
	return nil
}

func sortGenerations(gens []manifest.Generation) {
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
}
