// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package cachemgr is the offline-first front for an origin. It precaches a
// manifest into a generation, activates it, and serves requests by class:
// network-first navigations, cache-first precached assets, and
// stale-while-revalidate for other same-origin resources.
package cachemgr

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/ManuGH/offlinekit/internal/cache"
	"github.com/ManuGH/offlinekit/internal/log"
	"github.com/ManuGH/offlinekit/internal/manifest"
	"github.com/ManuGH/offlinekit/internal/platform/httpx"
)

const (
	defaultInstallConcurrency = 4
	defaultFetchTimeout       = 10 * time.Second
	defaultMaxBodyBytes       = 32 << 20
	defaultRevalidateRate     = 20
	defaultRevalidateBurst    = 20

	// manifestKey stores the generation's own manifest next to its assets.
	manifestKey = "offlinekit:manifest"

	// SourceHeader tells clients where a response came from.
	SourceHeader = "X-Cache-Source"
)

// Options configures a Manager.
type Options struct {
	Store  cache.Store
	Origin *url.URL
	// Client fetches from the origin. Defaults to a traced httpx client.
	Client *http.Client
	// Prefix names generations, see manifest.Generation.
	Prefix string
	// SkipWaiting activates every successful install immediately.
	SkipWaiting        bool
	InstallConcurrency int
	FetchTimeout       time.Duration
	MaxBodyBytes       int64
	// RevalidateRate caps background refreshes per second so a burst of
	// stale hits after reconnecting does not flood the origin.
	RevalidateRate  rate.Limit
	RevalidateBurst int
	Logger          *zerolog.Logger
}

// EventType classifies lifecycle events.
type EventType string

const (
	// EventInstalled fires when a generation finished installing and waits
	// for activation.
	EventInstalled EventType = "installed"
	// EventActivated fires when a generation takes control of all clients.
	EventActivated EventType = "activated"
)

// Event is delivered to subscribers.
type Event struct {
	Type       EventType
	Generation manifest.Generation
	Previous   manifest.Generation
}

// Status is a snapshot of the lifecycle.
type Status struct {
	Active  manifest.Generation `json:"active,omitempty"`
	Pending manifest.Generation `json:"pending,omitempty"`
	Assets  int                 `json:"assets"`
}

type generation struct {
	id       manifest.Generation
	manifest *manifest.Manifest
}

// Manager controls generations and serves requests.
type Manager struct {
	store        cache.Store
	origin       *url.URL
	client       *http.Client
	prefix       string
	skipWaiting  bool
	concurrency  int
	fetchTimeout time.Duration
	maxBody      int64
	logger       zerolog.Logger

	installMu sync.Mutex

	// mu guards active and pending. Activation holds it for writing while it
	// retires generations; reads and runtime writes hold it for reading.
	mu      sync.RWMutex
	active  *generation
	pending *generation

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int

	// Background revalidation.
	ctx     context.Context
	cancel  context.CancelFunc
	bgMu    sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	flights singleflight.Group
	limiter *rate.Limiter
}

// New creates a Manager. Call Restore or Install before serving.
func New(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("cachemgr: store is required")
	}
	if opts.Origin == nil || opts.Origin.Scheme == "" || opts.Origin.Host == "" {
		return nil, errors.New("cachemgr: absolute origin URL is required")
	}

	m := &Manager{
		store:        opts.Store,
		origin:       opts.Origin,
		client:       opts.Client,
		prefix:       opts.Prefix,
		skipWaiting:  opts.SkipWaiting,
		concurrency:  opts.InstallConcurrency,
		fetchTimeout: opts.FetchTimeout,
		maxBody:      opts.MaxBodyBytes,
		subs:         make(map[int]chan Event),
	}
	if m.prefix == "" {
		m.prefix = manifest.DefaultPrefix
	}
	if m.concurrency <= 0 {
		m.concurrency = defaultInstallConcurrency
	}
	if m.fetchTimeout <= 0 {
		m.fetchTimeout = defaultFetchTimeout
	}
	if m.maxBody <= 0 {
		m.maxBody = defaultMaxBodyBytes
	}
	if opts.RevalidateRate <= 0 {
		opts.RevalidateRate = defaultRevalidateRate
	}
	if opts.RevalidateBurst <= 0 {
		opts.RevalidateBurst = defaultRevalidateBurst
	}
	m.limiter = rate.NewLimiter(opts.RevalidateRate, opts.RevalidateBurst)
	if m.client == nil {
		m.client = httpx.NewClient(m.fetchTimeout, httpx.WithTracing())
	}
	if opts.Logger != nil {
		m.logger = *opts.Logger
	} else {
		m.logger = log.WithComponent("cachemgr")
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m, nil
}

// Status reports the active and pending generations.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var st Status
	if m.active != nil {
		st.Active = m.active.id
		st.Assets = m.active.manifest.Len()
	}
	if m.pending != nil {
		st.Pending = m.pending.id
	}
	return st
}

// Subscribe registers for lifecycle events. Slow subscribers miss events
// rather than block activation. The returned func unsubscribes.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 8)
	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = ch
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) notify(ev Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.logger.Warn().
				Str(log.FieldEvent, "cachemgr.event_dropped").
				Str(log.FieldGeneration, ev.Generation.String()).
				Msg("subscriber not keeping up, event dropped")
		}
	}
}

// Close stops background revalidation and waits for in-flight refreshes.
// The store is owned by the caller and stays open.
func (m *Manager) Close() error {
	m.bgMu.Lock()
	if m.closed {
		m.bgMu.Unlock()
		return nil
	}
	m.closed = true
	m.bgMu.Unlock()

	m.cancel()
	m.wg.Wait()
	return nil
}

func (m *Manager) isClosed() bool {
	m.bgMu.Lock()
	defer m.bgMu.Unlock()
	return m.closed
}
