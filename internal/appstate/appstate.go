// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package appstate holds the process-wide client-facing state: whether the
// origin is reachable, whether an installed update waits for activation, and
// which generation currently controls clients.
//
// Init: New is called once by the daemon after the cache manager restored or
// installed its first generation. Online starts true; the first probe
// corrects it.
//
// Update rules:
//   - Online changes only through SetOnline (the connectivity probe).
//   - An installed event while another generation controls clients sets
//     UpdateAvailable.
//   - An activated event moves the controller and clears UpdateAvailable.
package appstate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/offlinekit/internal/cachemgr"
	"github.com/ManuGH/offlinekit/internal/log"
	"github.com/ManuGH/offlinekit/internal/manifest"
	"github.com/ManuGH/offlinekit/internal/metrics"
)

// Snapshot is a consistent copy of the state.
type Snapshot struct {
	Online          bool                `json:"online"`
	UpdateAvailable bool                `json:"updateAvailable"`
	Controller      manifest.Generation `json:"controller,omitempty"`
	Waiting         manifest.Generation `json:"waiting,omitempty"`
	ChangedAt       time.Time           `json:"changedAt"`
}

// State is safe for concurrent use.
type State struct {
	mu     sync.RWMutex
	snap   Snapshot
	now    func() time.Time
	logger zerolog.Logger
}

// New creates the state with controller as the generation serving clients
// (empty when nothing is active yet).
func New(controller manifest.Generation) *State {
	s := &State{
		now:    time.Now,
		logger: log.WithComponent("appstate"),
	}
	s.snap = Snapshot{Online: true, Controller: controller, ChangedAt: s.now()}
	metrics.SetOnline(true)
	return s
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Online reports the last probe result.
func (s *State) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Online
}

// SetOnline records a probe result and reports whether it changed.
func (s *State) SetOnline(online bool) bool {
	s.mu.Lock()
	changed := s.snap.Online != online
	if changed {
		s.snap.Online = online
		s.snap.ChangedAt = s.now()
	}
	s.mu.Unlock()

	metrics.SetOnline(online)
	if changed {
		s.logger.Info().
			Str(log.FieldEvent, "appstate.connectivity_changed").
			Bool("online", online).
			Msg("connectivity changed")
	}
	return changed
}

// Apply folds one lifecycle event into the state.
func (s *State) Apply(ev cachemgr.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case cachemgr.EventInstalled:
		if s.snap.Controller == "" || s.snap.Controller == ev.Generation {
			return
		}
		s.snap.UpdateAvailable = true
		s.snap.Waiting = ev.Generation
		s.logger.Info().
			Str(log.FieldEvent, "appstate.update_available").
			Str(log.FieldGeneration, string(ev.Generation)).
			Msg("new content available; skip waiting to activate")
	case cachemgr.EventActivated:
		s.snap.Controller = ev.Generation
		if s.snap.Waiting == "" || s.snap.Waiting == ev.Generation {
			s.snap.UpdateAvailable = false
			s.snap.Waiting = ""
		}
	default:
		return
	}
	s.snap.ChangedAt = s.now()
}

// Follow applies events until the channel closes or ctx is done.
func (s *State) Follow(ctx context.Context, events <-chan cachemgr.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.Apply(ev)
		}
	}
}
