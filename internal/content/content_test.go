// SPDX-License-Identifier: MIT

package content

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/offlinekit/internal/cache"
)

const sample = `[
  {"stem":"Most common cyanotic lesion?","choices":["TOF","TGA","VSD"],"answer_index":0,"explanation":"TOF beyond the newborn period."},
  {"stem":"Egg on a string?","choices":["TGA","TAPVR"],"answer_index":0,"explanation":"Narrow mediastinum."}
]`

func TestParse_Valid(t *testing.T) {
	bank, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, 2, bank.Len())

	opt, ok := bank.CorrectOption(1)
	assert.True(t, ok)
	assert.Equal(t, 0, opt)
	_, ok = bank.CorrectOption(2)
	assert.False(t, ok)
	assert.Equal(t, 3, bank.OptionCount(0))
	assert.Equal(t, 0, bank.OptionCount(-1))
}

func TestParse_CollectsAllProblems(t *testing.T) {
	_, err := Parse([]byte(`[
	  {"stem":" ","choices":["only"],"answer_index":3,"explanation":""},
	  {"stem":"ok","choices":["a",""],"answer_index":0,"explanation":"x"}
	]`))
	require.ErrorIs(t, err, ErrInvalidQuestion)
	msg := err.Error()
	assert.Contains(t, msg, "question 1")
	assert.Contains(t, msg, "stem must be a non-empty string")
	assert.Contains(t, msg, "at least two options")
	assert.Contains(t, msg, "answer_index must reference a valid choice")
	assert.Contains(t, msg, "explanation must be provided")
	assert.Contains(t, msg, "question 2: every choice must be a non-empty string")
}

func TestParse_RejectsNonArray(t *testing.T) {
	_, err := Parse([]byte(`{"stem":"x"}`))
	assert.ErrorContains(t, err, "not an array")

	_, err = Parse([]byte(`[`))
	assert.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	bank, err := Parse([]byte(`[]`))
	require.NoError(t, err)
	assert.Zero(t, bank.Len())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qbank.json")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	bank, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, bank, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

type getterFunc func(ctx context.Context, path string) (*cache.Entry, string, error)

func (f getterFunc) Get(ctx context.Context, path string) (*cache.Entry, string, error) {
	return f(ctx, path)
}

func TestFetch(t *testing.T) {
	var requested string
	g := getterFunc(func(_ context.Context, path string) (*cache.Entry, string, error) {
		requested = path
		return &cache.Entry{Status: http.StatusOK, Body: []byte(sample)}, "cache", nil
	})
	bank, err := Fetch(context.Background(), g, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultPath, requested)
	assert.Len(t, bank, 2)

	notFound := getterFunc(func(context.Context, string) (*cache.Entry, string, error) {
		return &cache.Entry{Status: http.StatusNotFound}, "network", nil
	})
	_, err = Fetch(context.Background(), notFound, "/x.json")
	assert.ErrorContains(t, err, "status 404")

	offline := getterFunc(func(context.Context, string) (*cache.Entry, string, error) {
		return nil, "error", errors.New("offline")
	})
	_, err = Fetch(context.Background(), offline, "/x.json")
	assert.ErrorContains(t, err, "offline")
}
