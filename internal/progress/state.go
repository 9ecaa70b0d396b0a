// SPDX-License-Identifier: MIT

package progress

import (
	"github.com/ManuGH/offlinekit/internal/progress/migrate"
)

// Collection is the content the session tracks. It owns no state; the
// session only needs the item count and each item's correct option.
type Collection interface {
	Len() int
	// CorrectOption returns the correct option of item i, or false when i
	// is not an item.
	CorrectOption(i int) (int, bool)
}

// OptionCounter is implemented by collections that know how many options
// each item has. Answers outside that range are rejected.
type OptionCounter interface {
	OptionCount(i int) int
}

// State is a snapshot of a session.
type State struct {
	Order    []int           `json:"order"`
	Cursor   int             `json:"cursor"`
	Answers  migrate.Answers `json:"answers"`
	Answered int             `json:"answered"`
	Correct  int             `json:"correct"`
	Total    int             `json:"total"`
}

func (s State) clone() State {
	s.Order = append([]int(nil), s.Order...)
	s.Answers = s.Answers.Clone()
	return s
}

// Sanitize returns order reduced to unique indices in [0, n), in their
// original relative order, followed by every missing index ascending. The
// result is always a permutation of 0..n-1.
func Sanitize(order []int, n int) []int {
	if n < 0 {
		n = 0
	}
	out := make([]int, 0, n)
	seen := make([]bool, n)
	for _, id := range order {
		if id < 0 || id >= n || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	for i := range n {
		if !seen[i] {
			out = append(out, i)
		}
	}
	return out
}

// ClampCursor bounds cursor to [0, length-1], or 0 for an empty ordering.
func ClampCursor(cursor, length int) int {
	switch {
	case length == 0 || cursor < 0:
		return 0
	case cursor >= length:
		return length - 1
	default:
		return cursor
	}
}

// Prune drops answers whose key is not an item index below n.
func Prune(answers migrate.Answers, n int) migrate.Answers {
	out := make(migrate.Answers, len(answers))
	for k, v := range answers {
		if k >= 0 && k < n {
			out[k] = v
		}
	}
	return out
}

// Recompute derives the counters from the answers. Counters are never
// edited directly.
func Recompute(s *State, items Collection) {
	answered, correct := 0, 0
	for item, choice := range s.Answers {
		want, ok := items.CorrectOption(item)
		if !ok {
			continue
		}
		answered++
		if choice == want {
			correct++
		}
	}
	s.Answered = answered
	s.Correct = correct
	s.Total = items.Len()
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
