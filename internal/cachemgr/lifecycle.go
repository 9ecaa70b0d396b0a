// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cachemgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/offlinekit/internal/cache"
	"github.com/ManuGH/offlinekit/internal/log"
	"github.com/ManuGH/offlinekit/internal/manifest"
	"github.com/ManuGH/offlinekit/internal/metrics"
	"github.com/ManuGH/offlinekit/internal/telemetry"
)

var tracer = telemetry.Tracer("offlinekit/cachemgr")

// Install precaches every asset of man into a new generation. Either all
// assets are stored or none are, and the active generation is untouched on
// failure. A successful install waits for activation unless skip-waiting
// is configured or nothing is active yet. Install returns ErrClosed after
// Close.
func (m *Manager) Install(ctx context.Context, man *manifest.Manifest) error {
	m.installMu.Lock()
	defer m.installMu.Unlock()
	if m.isClosed() {
		return ErrClosed
	}

	gen := man.Generation(m.prefix)
	ctx, span := tracer.Start(ctx, "cachemgr.install",
		trace.WithAttributes(telemetry.InstallAttributes(gen.String(), man.Len())...))
	defer span.End()

	logger := log.WithContext(ctx, m.logger).With().
		Str(log.FieldGeneration, gen.String()).Logger()

	m.mu.RLock()
	current := m.active != nil && m.active.id == gen
	waiting := m.pending != nil && m.pending.id == gen
	m.mu.RUnlock()
	if current || waiting {
		logger.Debug().Str(log.FieldEvent, "cachemgr.install_skipped").Msg("generation already installed")
		return nil
	}

	start := time.Now()
	entries, size, err := m.precache(ctx, man)
	if err == nil {
		err = m.store.PutAll(ctx, gen, entries)
	}
	if err != nil {
		m.discard(gen)
		metrics.RecordInstall(false, time.Since(start).Seconds(), 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "install failed")
		logger.Error().Err(err).Str(log.FieldEvent, "cachemgr.install_failed").Msg("install aborted, previous generation stays active")
		return fmt.Errorf("%w: %s: %w", ErrInstallFailed, gen, err)
	}

	metrics.RecordInstall(true, time.Since(start).Seconds(), size)
	logger.Info().
		Str(log.FieldEvent, "cachemgr.installed").
		Int("assets", man.Len()).
		Str("size", humanize.Bytes(uint64(size))).
		Dur("took", time.Since(start)).
		Msg("generation installed")

	m.mu.Lock()
	m.pending = &generation{id: gen, manifest: man}
	first := m.active == nil
	m.mu.Unlock()

	if m.skipWaiting || first {
		return m.Activate(ctx)
	}
	m.notify(Event{Type: EventInstalled, Generation: gen})
	return nil
}

// precache fetches all assets with bounded parallelism. Every asset must
// answer 2xx.
func (m *Manager) precache(ctx context.Context, man *manifest.Manifest) ([]*cache.Entry, int64, error) {
	assets := man.Assets()
	entries := make([]*cache.Entry, len(assets), len(assets)+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, path := range assets {
		g.Go(func() error {
			p, q, _ := strings.Cut(path, "?")
			e, err := m.fetch(gctx, http.MethodGet, m.target(p, q), nil)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", path, err)
			}
			if !e.OK() {
				return &StatusError{Path: path, Status: e.Status}
			}
			e.Key = path
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	raw, err := json.Marshal(man)
	if err != nil {
		return nil, 0, fmt.Errorf("encode manifest: %w", err)
	}
	var size int64
	for _, e := range entries {
		size += int64(len(e.Body))
	}
	entries = append(entries, &cache.Entry{
		Key:      manifestKey,
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": []string{"application/json"}},
		Body:     raw,
		StoredAt: time.Now().UTC(),
	})
	return entries, size, nil
}

// discard removes a partially written generation. It runs on a fresh
// context because the install context may already be cancelled.
func (m *Manager) discard(gen manifest.Generation) {
	ctx, cancel := context.WithTimeout(context.Background(), m.fetchTimeout)
	defer cancel()
	if err := m.store.DeleteGeneration(ctx, gen); err != nil {
		m.logger.Warn().Err(err).
			Str(log.FieldEvent, "cachemgr.discard_failed").
			Str(log.FieldGeneration, gen.String()).
			Msg("failed to remove partial generation")
	}
}

// Activate makes the pending generation active, deletes every other
// generation, and notifies subscribers so open clients switch without a
// restart.
func (m *Manager) Activate(ctx context.Context) error {
	m.mu.Lock()
	next := m.pending
	if next == nil {
		m.mu.Unlock()
		return ErrNoPending
	}

	logger := log.WithContext(ctx, m.logger).With().
		Str(log.FieldGeneration, next.id.String()).Logger()

	if err := m.store.SetActive(ctx, next.id); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("persist active generation: %w", err)
	}

	retired := 0
	gens, err := m.store.Generations(ctx)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "cachemgr.list_failed").Msg("could not enumerate old generations")
	}
	for _, g := range gens {
		if g == next.id {
			continue
		}
		if err := m.store.DeleteGeneration(ctx, g); err != nil {
			logger.Warn().Err(err).
				Str(log.FieldEvent, "cachemgr.retire_failed").
				Str("retired", g.String()).
				Msg("failed to delete old generation")
			continue
		}
		retired++
	}

	var previous manifest.Generation
	if m.active != nil {
		previous = m.active.id
	}
	m.active = next
	m.pending = nil
	m.mu.Unlock()

	metrics.RecordActivation(previous.String(), next.id.String(), retired)
	logger.Info().
		Str(log.FieldEvent, "cachemgr.activated").
		Str("previous", previous.String()).
		Int("retired", retired).
		Msg("generation activated")

	m.notify(Event{Type: EventActivated, Generation: next.id, Previous: previous})
	return nil
}

// SkipWaiting is the external "activate now" message. Without a pending
// generation it does nothing.
func (m *Manager) SkipWaiting(ctx context.Context) error {
	err := m.Activate(ctx)
	if errors.Is(err, ErrNoPending) {
		return nil
	}
	return err
}

// Restore adopts the generation persisted as active by a previous run, if
// all of its assets are still stored. It reports whether a generation was
// adopted.
func (m *Manager) Restore(ctx context.Context) (bool, error) {
	gen, err := m.store.Active(ctx)
	if err != nil {
		return false, fmt.Errorf("read active generation: %w", err)
	}
	if gen == "" {
		return false, nil
	}
	logger := m.logger.With().Str(log.FieldGeneration, gen.String()).Logger()

	raw, err := m.store.Get(ctx, gen, manifestKey)
	if err != nil {
		return false, fmt.Errorf("read generation manifest: %w", err)
	}
	if raw == nil {
		logger.Warn().Str(log.FieldEvent, "cachemgr.restore_incomplete").Msg("persisted generation has no manifest")
		return false, nil
	}
	man, err := manifest.Parse(raw.Body)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldEvent, "cachemgr.restore_incomplete").Msg("persisted manifest unreadable")
		return false, nil
	}
	for _, path := range man.Assets() {
		e, err := m.store.Get(ctx, gen, path)
		if err != nil {
			return false, fmt.Errorf("verify %s: %w", path, err)
		}
		if e == nil {
			logger.Warn().Str(log.FieldEvent, "cachemgr.restore_incomplete").Str(log.FieldPath, path).Msg("persisted generation is missing an asset")
			return false, nil
		}
	}

	m.mu.Lock()
	m.active = &generation{id: gen, manifest: man}
	m.mu.Unlock()

	metrics.RecordActivation("", gen.String(), 0)
	logger.Info().Str(log.FieldEvent, "cachemgr.restored").Int("assets", man.Len()).Msg("restored active generation")
	m.notify(Event{Type: EventActivated, Generation: gen})
	return true, nil
}
