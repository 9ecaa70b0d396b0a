// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package content loads and validates the question bank a progress session
// walks through.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/offlinekit/internal/cache"
)

// DefaultPath is where the application serves its question bank.
const DefaultPath = "/data/qbank.json"

// ErrInvalidQuestion marks a question that fails validation.
var ErrInvalidQuestion = errors.New("content: invalid question")

// Question is one multiple-choice item.
type Question struct {
	Stem        string   `json:"stem"`
	Choices     []string `json:"choices"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation"`
}

// Validate reports every problem with the question.
func (q Question) Validate() error {
	var errs []error
	if strings.TrimSpace(q.Stem) == "" {
		errs = append(errs, errors.New("stem must be a non-empty string"))
	}
	if len(q.Choices) < 2 {
		errs = append(errs, errors.New("choices must contain at least two options"))
	} else {
		for _, c := range q.Choices {
			if strings.TrimSpace(c) == "" {
				errs = append(errs, errors.New("every choice must be a non-empty string"))
				break
			}
		}
	}
	if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Choices) {
		errs = append(errs, errors.New("answer_index must reference a valid choice"))
	}
	if strings.TrimSpace(q.Explanation) == "" {
		errs = append(errs, errors.New("explanation must be provided"))
	}
	return errors.Join(errs...)
}

// Bank is an ordered question bank. It satisfies progress.Collection.
type Bank []Question

// Len returns the number of questions.
func (b Bank) Len() int { return len(b) }

// CorrectOption returns the answer index of question i.
func (b Bank) CorrectOption(i int) (int, bool) {
	if i < 0 || i >= len(b) {
		return 0, false
	}
	return b[i].AnswerIndex, true
}

// OptionCount returns the number of choices of question i.
func (b Bank) OptionCount(i int) int {
	if i < 0 || i >= len(b) {
		return 0
	}
	return len(b[i].Choices)
}

// Parse decodes a JSON array of questions and validates each of them.
// Problems are numbered from 1 the way authors count questions.
func Parse(data []byte) (Bank, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	if trimmed := strings.TrimSpace(string(raw)); !strings.HasPrefix(trimmed, "[") {
		return nil, errors.New("parse question bank: payload is not an array")
	}
	var bank Bank
	if err := json.Unmarshal(raw, &bank); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}

	var errs []error
	for i, q := range bank {
		if err := q.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%w: question %d: %w", ErrInvalidQuestion, i+1, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return bank, nil
}

// LoadFile reads a question bank from disk.
func LoadFile(path string) (Bank, error) {
	// #nosec G304 -- path is provided by the operator via CLI/ENV
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return Parse(data)
}

// Getter resolves a path through the offline cache.
type Getter interface {
	Get(ctx context.Context, path string) (*cache.Entry, string, error)
}

// Fetch loads the question bank through g, so a precached bank is
// available offline.
func Fetch(ctx context.Context, g Getter, path string) (Bank, error) {
	if path == "" {
		path = DefaultPath
	}
	e, _, err := g.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("fetch question bank: %w", err)
	}
	if !e.OK() {
		return nil, fmt.Errorf("fetch question bank: status %d", e.Status)
	}
	return Parse(e.Body)
}
