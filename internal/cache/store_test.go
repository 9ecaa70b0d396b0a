// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cache

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/offlinekit/internal/manifest"
)

// backends returns a constructor per Store implementation so every test
// runs against all of them.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store {
			s, err := NewSqliteStore(filepath.Join(t.TempDir(), "cache.sqlite"))
			require.NoError(t, err)
			return s
		},
		"badger": func(t *testing.T) Store {
			s, err := OpenBadgerStore("")
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return newRedisStore(client, "test", zerolog.Nop())
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func entry(key, body string) *Entry {
	return &Entry{
		Key:      key,
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": []string{"text/plain"}},
		Body:     []byte(body),
		StoredAt: time.UnixMilli(1700000000000).UTC(),
	}
}

func TestStore_PutGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		gen := manifest.Generation("g1")

		want := entry("/index.html", "<html>")
		require.NoError(t, s.Put(ctx, gen, want))

		got, err := s.Get(ctx, gen, "/index.html")
		require.NoError(t, err)
		require.NotNil(t, got)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("entry mismatch (-want +got):\n%s", diff)
		}

		missing, err := s.Get(ctx, gen, "/nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		otherGen, err := s.Get(ctx, "g2", "/index.html")
		require.NoError(t, err)
		assert.Nil(t, otherGen, "entries are scoped to their generation")

		stats := s.Stats()
		assert.Equal(t, int64(1), stats.Hits)
		assert.Equal(t, int64(2), stats.Misses)
		assert.Equal(t, int64(1), stats.Sets)
	})
}

func TestStore_PutOverwrites(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Put(ctx, "g1", entry("/data.json", "v1")))
		require.NoError(t, s.Put(ctx, "g1", entry("/data.json", "v2")))

		got, err := s.Get(ctx, "g1", "/data.json")
		require.NoError(t, err)
		assert.Equal(t, "v2", string(got.Body))
	})
}

func TestStore_GenerationsAndDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.PutAll(ctx, "g-b", []*Entry{entry("/a", "a"), entry("/b", "b")}))
		require.NoError(t, s.PutAll(ctx, "g-a", []*Entry{entry("/a", "a")}))
		require.NoError(t, s.SetActive(ctx, "g-a"))

		gens, err := s.Generations(ctx)
		require.NoError(t, err)
		assert.Equal(t, []manifest.Generation{"g-a", "g-b"}, gens)

		require.NoError(t, s.DeleteGeneration(ctx, "g-a"))
		gens, err = s.Generations(ctx)
		require.NoError(t, err)
		assert.Equal(t, []manifest.Generation{"g-b"}, gens)

		got, err := s.Get(ctx, "g-a", "/a")
		require.NoError(t, err)
		assert.Nil(t, got)

		active, err := s.Active(ctx)
		require.NoError(t, err)
		assert.Equal(t, manifest.Generation(""), active, "deleting the active generation clears the pointer")

		b, err := s.Get(ctx, "g-b", "/b")
		require.NoError(t, err)
		require.NotNil(t, b)
	})
}

func TestStore_ActivePointer(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		active, err := s.Active(ctx)
		require.NoError(t, err)
		assert.Empty(t, active)

		require.NoError(t, s.SetActive(ctx, "g1"))
		require.NoError(t, s.SetActive(ctx, "g2"))
		active, err = s.Active(ctx)
		require.NoError(t, err)
		assert.Equal(t, manifest.Generation("g2"), active)
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	e := entry("/a", "original")
	require.NoError(t, s.Put(ctx, "g", e))
	e.Body[0] = 'X'

	got, err := s.Get(ctx, "g", "/a")
	require.NoError(t, err)
	got.Body[1] = 'Y'

	again, err := s.Get(ctx, "g", "/a")
	require.NoError(t, err)
	assert.Equal(t, "original", string(again.Body))
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	_, err := s.Get(context.Background(), "g", "/a")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Put(context.Background(), "g", entry("/a", "a")), ErrClosed)
}

func TestRedisStore_CorruptEntryIsMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := newRedisStore(client, "test", zerolog.Nop())
	defer s.Close()

	mr.HSet("test:gen:g1", "/bad", "{not json")
	got, err := s.Get(context.Background(), "g1", "/bad")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, s.HealthCheck(context.Background()))
}

func TestEntry_OK(t *testing.T) {
	assert.True(t, (&Entry{Status: 204}).OK())
	assert.False(t, (&Entry{Status: 304}).OK())
	assert.False(t, (&Entry{Status: 503}).OK())
	var nilEntry *Entry
	assert.False(t, nilEntry.OK())
}
