// SPDX-License-Identifier: MIT

package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformed marks a record that could not be decoded.
var ErrMalformed = errors.New("migrate: malformed record")

// Record names.
const (
	RecordProgress = "progress"
	RecordAnswers  = "answers"
)

// ProgressKey is the storage key of the progress record at version.
func ProgressKey(collection string, version int) string {
	return fmt.Sprintf("%s/%s.v%d", collection, RecordProgress, version)
}

// AnswersKey is the storage key of the answer record at version.
func AnswersKey(collection string, version int) string {
	return fmt.Sprintf("%s/%s.v%d", collection, RecordAnswers, version)
}

// ProgressV1 is the unversioned progress layout.
type ProgressV1 struct {
	Idx      int   `json:"idx"`
	Correct  int   `json:"correct"`
	Answered int   `json:"answered"`
	Total    int   `json:"total"`
	Order    []int `json:"order"`
}

// V1 is the unversioned format: a progress object and a bare answer map.
type V1 struct {
	Progress ProgressV1
	Answers  Answers
}

func (V1) SchemaVersion() int { return 1 }

// ProgressV2 is the current progress layout. The counters are derived and
// rewritten on every save.
type ProgressV2 struct {
	Order    []int `json:"order"`
	Cursor   int   `json:"cursor"`
	Answered int   `json:"answered"`
	Correct  int   `json:"correct"`
	Total    int   `json:"total"`
}

// AnswerRecord is the versioned answer envelope.
type AnswerRecord struct {
	SchemaVersion int     `json:"schemaVersion"`
	Answers       Answers `json:"answers"`
}

// V2 is the current format.
type V2 struct {
	Progress ProgressV2
	Answers  AnswerRecord
}

func (V2) SchemaVersion() int { return 2 }

// Problem describes a record that was replaced by its default.
type Problem struct {
	Record string
	Err    error
}

func (p Problem) Error() string { return p.Record + ": " + p.Err.Error() }

func (p Problem) Unwrap() error { return p.Err }

// DecodeV1 parses the unversioned records. Absent records (nil) decode to
// defaults silently; unparseable ones decode to defaults and are reported.
func DecodeV1(progress, answers []byte) (V1, []Problem) {
	var out V1
	var problems []Problem
	if progress != nil {
		if err := json.Unmarshal(progress, &out.Progress); err != nil {
			out.Progress = ProgressV1{}
			problems = append(problems, Problem{RecordProgress, fmt.Errorf("%w: %w", ErrMalformed, err)})
		}
	}
	out.Answers = Answers{}
	if answers != nil {
		parsed, err := decodeAnswerMap(answers)
		if err != nil {
			problems = append(problems, Problem{RecordAnswers, err})
		} else {
			out.Answers = parsed
		}
	}
	return out, problems
}

// DecodeV2 parses the current records with the same fallback rules as
// DecodeV1. An answer envelope with the wrong schema version is malformed.
func DecodeV2(progress, answers []byte) (V2, []Problem) {
	out := V2{Answers: AnswerRecord{SchemaVersion: 2, Answers: Answers{}}}
	var problems []Problem
	if progress != nil {
		if err := json.Unmarshal(progress, &out.Progress); err != nil {
			out.Progress = ProgressV2{}
			problems = append(problems, Problem{RecordProgress, fmt.Errorf("%w: %w", ErrMalformed, err)})
		}
	}
	if answers != nil {
		var env struct {
			SchemaVersion int             `json:"schemaVersion"`
			Answers       json.RawMessage `json:"answers"`
		}
		err := json.Unmarshal(answers, &env)
		switch {
		case err != nil:
			err = fmt.Errorf("%w: %w", ErrMalformed, err)
		case env.SchemaVersion != 2:
			err = fmt.Errorf("%w: schemaVersion %d", ErrMalformed, env.SchemaVersion)
		}
		var parsed Answers
		if err == nil && len(env.Answers) > 0 {
			parsed, err = decodeAnswerMap(env.Answers)
		}
		if err != nil {
			problems = append(problems, Problem{RecordAnswers, err})
		} else if parsed != nil {
			out.Answers.Answers = parsed
		}
	}
	return out, problems
}

// decodeAnswerMap accepts string keys and nullable values. Non-integer
// keys and null values are dropped.
func decodeAnswerMap(data []byte) (Answers, error) {
	if string(data) == "null" {
		return Answers{}, nil
	}
	var raw map[string]*int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	out := make(Answers, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		idx, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		out[idx] = *v
	}
	return out, nil
}

// Encode serializes the current format. Output is deterministic because
// encoding/json sorts map keys.
func Encode(v V2) (progress, answers []byte, err error) {
	p := v.Progress
	if p.Order == nil {
		p.Order = []int{}
	}
	progress, err = json.Marshal(p)
	if err != nil {
		return nil, nil, fmt.Errorf("encode progress: %w", err)
	}
	a := v.Answers
	a.SchemaVersion = CurrentVersion
	if a.Answers == nil {
		a.Answers = Answers{}
	}
	answers, err = json.Marshal(a)
	if err != nil {
		return nil, nil, fmt.Errorf("encode answers: %w", err)
	}
	return progress, answers, nil
}
