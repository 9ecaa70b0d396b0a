// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package migrate holds the persisted progress formats, one type per schema
// version, and the pure steps that upgrade one version to the next.
package migrate

import (
	"errors"
	"fmt"
	"sort"
)

// CurrentVersion is the schema written by this build.
const CurrentVersion = 2

// ErrUnknownVersion is returned for a schema without an upgrade path.
var ErrUnknownVersion = errors.New("migrate: unknown schema version")

// Answers maps an item index to the chosen option index.
type Answers map[int]int

// Clone returns an independent copy.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Keys returns the item indices in ascending order.
func (a Answers) Keys() []int {
	keys := make([]int, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Snapshot is one persisted progress/answers pair at a fixed schema version.
type Snapshot interface {
	SchemaVersion() int
}

// Env carries what a step needs to know about the current content.
type Env struct {
	// ItemCount is the number of items in the collection.
	ItemCount int
}

// Step upgrades a snapshot by exactly one version.
type Step func(Snapshot, Env) (Snapshot, error)

// steps is keyed by the version a step upgrades from.
var steps = map[int]Step{
	1: upgradeV1,
}

// Upgrade applies steps left to right until the snapshot is current.
// A current snapshot is returned unchanged.
func Upgrade(s Snapshot, env Env) (V2, error) {
	for s.SchemaVersion() < CurrentVersion {
		step, ok := steps[s.SchemaVersion()]
		if !ok {
			return V2{}, fmt.Errorf("%w: %d", ErrUnknownVersion, s.SchemaVersion())
		}
		next, err := step(s, env)
		if err != nil {
			return V2{}, fmt.Errorf("upgrade from v%d: %w", s.SchemaVersion(), err)
		}
		s = next
	}
	current, ok := s.(V2)
	if !ok {
		return V2{}, fmt.Errorf("%w: %d", ErrUnknownVersion, s.SchemaVersion())
	}
	return current, nil
}

// upgradeV1 converts the unversioned format. When the answer keys are the
// contiguous run 0..k-1 they are positions in the previous ordering, not
// item indices, and are remapped through that ordering. An empty ordering
// stands for the identity over ItemCount. Remapped keys outside the item
// set are dropped.
func upgradeV1(s Snapshot, env Env) (Snapshot, error) {
	v1, ok := s.(V1)
	if !ok {
		return nil, fmt.Errorf("expected v1 snapshot, got %T", s)
	}

	answers := v1.Answers.Clone()
	if IsPositional(v1.Answers) {
		order := v1.Progress.Order
		if len(order) == 0 {
			order = identity(env.ItemCount)
		}
		answers = make(Answers, len(v1.Answers))
		for pos, choice := range v1.Answers {
			if pos >= len(order) {
				continue
			}
			item := order[pos]
			if item < 0 || item >= env.ItemCount {
				continue
			}
			answers[item] = choice
		}
	}

	return V2{
		Progress: ProgressV2{
			Order:    append([]int(nil), v1.Progress.Order...),
			Cursor:   v1.Progress.Idx,
			Answered: v1.Progress.Answered,
			Correct:  v1.Progress.Correct,
			Total:    v1.Progress.Total,
		},
		Answers: AnswerRecord{SchemaVersion: 2, Answers: answers},
	}, nil
}

// IsPositional reports whether the keys are exactly 0..len-1.
func IsPositional(a Answers) bool {
	if len(a) == 0 {
		return false
	}
	for i := range len(a) {
		if _, ok := a[i]; !ok {
			return false
		}
	}
	return true
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
