// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package progress tracks a learner's position and answers through an
// ordered item collection, persisting through versioned records.
package progress

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/offlinekit/internal/log"
	"github.com/ManuGH/offlinekit/internal/metrics"
	"github.com/ManuGH/offlinekit/internal/progress/migrate"
	"github.com/ManuGH/offlinekit/internal/progress/records"
)

// Phase is the lifecycle of a session. A session passes through the phases
// on Open and again on every Reload, and rests at PhaseReady.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoaded
	PhaseMigrating
	PhaseReady
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoaded:
		return "loaded"
	case PhaseMigrating:
		return "migrating"
	case PhaseReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ErrInvalidCollection is returned for collection names that cannot be used
// as a record namespace.
var ErrInvalidCollection = errors.New("progress: invalid collection name")

var collectionName = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Options configures Open.
type Options struct {
	Backend records.Backend
	// Collection names the record namespace, e.g. "qbank".
	Collection string
	Items      Collection
	// Rand drives Shuffle. Defaults to a generator seeded from crypto/rand.
	Rand   *rand.Rand
	Logger *zerolog.Logger
}

// Session owns the progress of one collection. Transitions are serialized
// and each one persists both records before it returns.
type Session struct {
	mu         sync.Mutex
	backend    records.Backend
	collection string
	items      Collection
	rng        *rand.Rand
	logger     zerolog.Logger

	phase Phase
	state State
	// migratedFrom is the schema the records were read at, 0 when fresh.
	migratedFrom int
}

// Open loads, migrates, and repairs the persisted progress for a collection.
// Unreadable records fall back to defaults; only backend failures are
// returned as errors.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if !collectionName.MatchString(opts.Collection) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCollection, opts.Collection)
	}
	if opts.Backend == nil || opts.Items == nil {
		return nil, errors.New("progress: backend and items are required")
	}

	s := &Session{
		backend:    opts.Backend,
		collection: opts.Collection,
		items:      opts.Items,
		rng:        opts.Rand,
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	} else {
		s.logger = log.WithComponent("progress")
	}
	s.logger = s.logger.With().Str(log.FieldCollection, opts.Collection).Logger()
	if s.rng == nil {
		rng, err := newRand()
		if err != nil {
			return nil, err
		}
		s.rng = rng
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reload(ctx, opts.Items); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload repairs the persisted progress against a new item collection, for
// example after a content update. It runs under the same lock as the
// transitions, so an answer accepted before Reload is kept. On error the
// session keeps its previous items and state.
func (s *Session) Reload(ctx context.Context, items Collection) error {
	if items == nil {
		return errors.New("progress: items are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.phase
	if err := s.reload(ctx, items); err != nil {
		s.setPhase(prev)
		return err
	}
	return nil
}

// reload runs Loaded, Migrating and Ready against the records in the
// backend. The caller holds s.mu.
func (s *Session) reload(ctx context.Context, items Collection) error {
	s.migratedFrom = 0
	snapshot, err := s.load(ctx)
	if err != nil {
		return err
	}
	s.setPhase(PhaseLoaded)

	s.setPhase(PhaseMigrating)
	n := items.Len()
	current, err := migrate.Upgrade(snapshot, migrate.Env{ItemCount: n})
	if err != nil {
		return err
	}
	if s.migratedFrom != 0 && s.migratedFrom < migrate.CurrentVersion {
		metrics.IncProgressMigration(strconv.Itoa(s.migratedFrom), strconv.Itoa(migrate.CurrentVersion))
		s.logger.Info().
			Str(log.FieldEvent, "progress.migrated").
			Int("from", s.migratedFrom).
			Int("to", migrate.CurrentVersion).
			Msg("upgraded persisted progress")
	}

	order := Sanitize(current.Progress.Order, n)
	next := State{
		Order:   order,
		Cursor:  ClampCursor(current.Progress.Cursor, len(order)),
		Answers: Prune(current.Answers.Answers, n),
	}
	Recompute(&next, items)

	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.items = items
	s.state = next
	if s.migratedFrom != 0 && s.migratedFrom < migrate.CurrentVersion {
		old := []string{
			migrate.ProgressKey(s.collection, s.migratedFrom),
			migrate.AnswersKey(s.collection, s.migratedFrom),
		}
		if err := s.backend.Delete(ctx, old...); err != nil {
			s.logger.Warn().Err(err).Str(log.FieldEvent, "progress.cleanup_failed").Msg("could not delete superseded records")
		}
	}
	s.setPhase(PhaseReady)
	return nil
}

// load picks the newest schema that has any record: the current version,
// then the previous one, then defaults.
func (s *Session) load(ctx context.Context) (migrate.Snapshot, error) {
	for _, version := range []int{migrate.CurrentVersion, migrate.CurrentVersion - 1} {
		progressRaw, err := s.backend.Get(ctx, migrate.ProgressKey(s.collection, version))
		if err != nil {
			return nil, fmt.Errorf("read progress record: %w", err)
		}
		answersRaw, err := s.backend.Get(ctx, migrate.AnswersKey(s.collection, version))
		if err != nil {
			return nil, fmt.Errorf("read answer record: %w", err)
		}
		if progressRaw == nil && answersRaw == nil {
			continue
		}

		s.migratedFrom = version
		var (
			snapshot migrate.Snapshot
			problems []migrate.Problem
		)
		if version == 2 {
			snapshot, problems = migrate.DecodeV2(progressRaw, answersRaw)
		} else {
			snapshot, problems = migrate.DecodeV1(progressRaw, answersRaw)
		}
		for _, p := range problems {
			metrics.IncProgressLoadFallback(p.Record, "malformed")
			s.logger.Warn().Err(p.Err).
				Str(log.FieldEvent, "progress.record_malformed").
				Str("record", p.Record).
				Int("schema", version).
				Msg("persisted record unreadable, using defaults")
		}
		return snapshot, nil
	}
	return migrate.V2{Answers: migrate.AnswerRecord{SchemaVersion: migrate.CurrentVersion, Answers: migrate.Answers{}}}, nil
}

func (s *Session) setPhase(p Phase) {
	s.logger.Debug().
		Str(log.FieldEvent, "progress.phase").
		Str(log.FieldOldState, s.phase.String()).
		Str(log.FieldNewState, p.String()).
		Msg("session phase changed")
	s.phase = p
}

// persist writes both current-version records in one batch.
func (s *Session) persist(ctx context.Context, st State) error {
	progressRaw, answersRaw, err := migrate.Encode(migrate.V2{
		Progress: migrate.ProgressV2{
			Order:    st.Order,
			Cursor:   st.Cursor,
			Answered: st.Answered,
			Correct:  st.Correct,
			Total:    st.Total,
		},
		Answers: migrate.AnswerRecord{SchemaVersion: migrate.CurrentVersion, Answers: st.Answers},
	})
	if err != nil {
		return err
	}
	err = s.backend.PutAll(ctx, map[string][]byte{
		migrate.ProgressKey(s.collection, migrate.CurrentVersion): progressRaw,
		migrate.AnswersKey(s.collection, migrate.CurrentVersion):  answersRaw,
	})
	if err != nil {
		return fmt.Errorf("persist progress: %w", err)
	}
	return nil
}

// Phase reports the lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Collection returns the record namespace.
func (s *Session) Collection() string { return s.collection }

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

func newRand() (*rand.Rand, error) {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	return rand.New(rand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:]))), nil
}
