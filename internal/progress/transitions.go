// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package progress

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/offlinekit/internal/log"
	"github.com/ManuGH/offlinekit/internal/metrics"
	"github.com/ManuGH/offlinekit/internal/progress/migrate"
	"github.com/ManuGH/offlinekit/internal/telemetry"
)

var tracer = telemetry.Tracer("offlinekit/progress")

// apply runs one transition under the session lock. mutate edits a copy of
// the state and reports whether anything changed; the copy replaces the
// state only after it was persisted.
func (s *Session) apply(ctx context.Context, op string, mutate func(*State) bool) (State, bool, error) {
	ctx, span := tracer.Start(ctx, "progress."+op,
		trace.WithAttributes(telemetry.ProgressAttributes(s.collection, op)...))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.clone()
	if !mutate(&next) {
		metrics.IncProgressTransition(op, "noop")
		span.SetAttributes(attribute.Bool(telemetry.ProgressChangedKey, false))
		return s.state.clone(), false, nil
	}
	Recompute(&next, s.items)

	if err := s.persist(ctx, next); err != nil {
		metrics.IncProgressTransition(op, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		logger := log.WithContext(ctx, s.logger)
		logger.Error().Err(err).
			Str(log.FieldEvent, "progress.persist_failed").
			Str("op", op).
			Msg("transition rolled back")
		return s.state.clone(), false, err
	}
	s.state = next
	metrics.IncProgressTransition(op, "ok")
	span.SetAttributes(attribute.Bool(telemetry.ProgressChangedKey, true))
	return next.clone(), true, nil
}

// Advance moves the cursor by delta, clamped to the ordering. There is no
// wraparound.
func (s *Session) Advance(ctx context.Context, delta int) (State, error) {
	st, _, err := s.apply(ctx, "advance", func(st *State) bool {
		cursor := ClampCursor(st.Cursor+delta, len(st.Order))
		if cursor == st.Cursor {
			return false
		}
		st.Cursor = cursor
		return true
	})
	return st, err
}

// Shuffle replaces the ordering with a random permutation and rewinds the
// cursor. Answers are keyed by item and survive.
func (s *Session) Shuffle(ctx context.Context) (State, error) {
	st, _, err := s.apply(ctx, "shuffle", func(st *State) bool {
		st.Order = s.rng.Perm(s.items.Len())
		st.Cursor = 0
		return true
	})
	return st, err
}

// Answer records choice for the current item. The first answer is final:
// answering an answered item, an out-of-range choice, or an empty
// collection is a no-op reported by accepted=false.
func (s *Session) Answer(ctx context.Context, choice int) (State, bool, error) {
	return s.apply(ctx, "answer", func(st *State) bool {
		if len(st.Order) == 0 || choice < 0 {
			return false
		}
		item := st.Order[st.Cursor]
		if _, ok := s.items.CorrectOption(item); !ok {
			return false
		}
		if counter, ok := s.items.(OptionCounter); ok && choice >= counter.OptionCount(item) {
			return false
		}
		if _, answered := st.Answers[item]; answered {
			return false
		}
		st.Answers[item] = choice
		return true
	})
}

// Reset restores the identity ordering, rewinds, and discards all answers.
func (s *Session) Reset(ctx context.Context) (State, error) {
	st, _, err := s.apply(ctx, "reset", func(st *State) bool {
		st.Order = identity(s.items.Len())
		st.Cursor = 0
		st.Answers = migrate.Answers{}
		return true
	})
	return st, err
}
