// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"context"
	"encoding/json"
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/offlinekit/internal/appstate"
	"github.com/ManuGH/offlinekit/internal/cache"
	"github.com/ManuGH/offlinekit/internal/cachemgr"
	"github.com/ManuGH/offlinekit/internal/content"
	"github.com/ManuGH/offlinekit/internal/health"
	"github.com/ManuGH/offlinekit/internal/manifest"
	"github.com/ManuGH/offlinekit/internal/progress"
	"github.com/ManuGH/offlinekit/internal/progress/records"
)

const bankJSON = `[
  {"stem": "2+2?", "choices": ["3", "4"], "answer_index": 1, "explanation": "Arithmetic."},
  {"stem": "Capital of France?", "choices": ["Paris", "Rome", "Oslo"], "answer_index": 0, "explanation": "Geography."},
  {"stem": "Largest planet?", "choices": ["Mars", "Jupiter"], "answer_index": 1, "explanation": "Astronomy."}
]`

type harness struct {
	origin  *httptest.Server
	offline atomic.Bool
	cache   *cachemgr.Manager
	state   *appstate.State
	server  *Server
	handler http.Handler
}

func newHarness(t *testing.T, withProgress bool) *harness {
	t.Helper()
	h := &harness{}
	version := atomic.Value{}
	version.Store("v1")
	h.origin = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/index.html", "/":
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<html>shell "+version.Load().(string)+"</html>")
		case "/offline.html":
			_, _ = io.WriteString(w, "<html>offline</html>")
		case "/data/qbank.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, bankJSON)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(h.origin.Close)

	base := h.origin.Client().Transport
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if h.offline.Load() {
			return nil, &url.Error{Op: "Get", URL: r.URL.String(), Err: io.ErrUnexpectedEOF}
		}
		return base.RoundTrip(r)
	})}

	originURL, err := url.Parse(h.origin.URL)
	require.NoError(t, err)
	logger := zerolog.New(io.Discard)
	h.cache, err = cachemgr.New(cachemgr.Options{
		Store:  cache.NewMemoryStore(),
		Origin: originURL,
		Client: client,
		Prefix: "api-test",
		Logger: &logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.cache.Close() })

	man, err := manifest.New("abc", time.Date(2025, 10, 20, 8, 0, 0, 0, time.UTC),
		"/index.html", "/offline.html", []string{"/index.html", "/offline.html", "/data/qbank.json"})
	require.NoError(t, err)
	require.NoError(t, h.cache.Install(context.Background(), man))

	h.state = appstate.New(h.cache.Generation())
	hm := health.NewManager("test")
	hm.RegisterChecker(health.NewGenerationChecker(h.cache.Status))

	h.server, err = New(Deps{
		Cache:            h.cache,
		State:            h.state,
		Health:           hm,
		ControlRateLimit: 2,
		Version:          "test",
	})
	require.NoError(t, err)
	h.handler = h.server.Handler()

	if withProgress {
		bank, err := content.Fetch(context.Background(), h.cache, content.DefaultPath)
		require.NoError(t, err)
		sess, err := progress.Open(context.Background(), progress.Options{
			Backend:    records.NewMemory(),
			Collection: "qbank",
			Items:      bank,
			Rand:       rand.New(rand.NewPCG(1, 2)),
			Logger:     &logger,
		})
		require.NoError(t, err)
		h.server.SetProgress(sess)
	}
	return h
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func (h *harness) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.RemoteAddr = "192.0.2.10:5000"
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	h := newHarness(t, true)
	rec := h.do(t, http.MethodGet, "/_offlinekit/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	st := decode[StatusResponse](t, rec)
	assert.Equal(t, "test", st.Version)
	assert.Equal(t, h.cache.Generation(), st.Cache.Active)
	assert.Equal(t, 3, st.Cache.Assets)
	assert.True(t, st.App.Online)
	require.NotNil(t, st.Progress)
	assert.Equal(t, "qbank", st.Progress.Collection)
	assert.Equal(t, "ready", st.Progress.Phase)
}

func TestProbesAndMetrics(t *testing.T) {
	h := newHarness(t, false)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/readyz", "").Code)

	rec := h.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "offlinekit_")
}

func TestCacheFront_ServesOffline(t *testing.T) {
	h := newHarness(t, false)
	h.offline.Store(true)

	rec := h.do(t, http.MethodGet, "/index.html", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shell v1")
	assert.Equal(t, "cache", rec.Header().Get(cachemgr.SourceHeader))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestControlNotFoundIsNotForwarded(t *testing.T) {
	h := newHarness(t, false)
	rec := h.do(t, http.MethodGet, "/_offlinekit/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[problem](t, rec).Error)
}

func TestSkipWaiting(t *testing.T) {
	h := newHarness(t, false)

	rec := h.do(t, http.MethodPost, "/_offlinekit/skip-waiting", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[SkipWaitingResponse](t, rec).Activated, "nothing waiting")

	next, err := manifest.New("def", time.Date(2025, 10, 21, 8, 0, 0, 0, time.UTC),
		"/index.html", "/offline.html", []string{"/index.html", "/offline.html", "/data/qbank.json"})
	require.NoError(t, err)
	require.NoError(t, h.cache.Install(context.Background(), next))
	pending := h.cache.Status().Pending
	require.NotEmpty(t, pending)

	rec = h.do(t, http.MethodPost, "/_offlinekit/skip-waiting", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SkipWaitingResponse](t, rec)
	assert.True(t, resp.Activated)
	assert.Equal(t, pending, resp.Cache.Active)

	rec = h.do(t, http.MethodPost, "/_offlinekit/skip-waiting", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestProgress_Unavailable(t *testing.T) {
	h := newHarness(t, false)
	rec := h.do(t, http.MethodGet, "/_offlinekit/progress", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "progress_unavailable", decode[problem](t, rec).Error)
}

func TestProgress_Flow(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(t, http.MethodGet, "/_offlinekit/progress", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ProgressResponse](t, rec)
	assert.Equal(t, []int{0, 1, 2}, resp.State.Order)
	assert.Equal(t, "Q1 of 3", resp.Label)
	assert.Equal(t, 3, resp.View.Remaining)

	rec = h.do(t, http.MethodPost, "/_offlinekit/progress/answer", `{"choice": 1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[ProgressResponse](t, rec)
	require.NotNil(t, resp.Accepted)
	assert.True(t, *resp.Accepted)
	assert.Equal(t, 1, resp.State.Correct)
	assert.Equal(t, "Correct 1 / 1 • 2 remaining", resp.Summary)

	rec = h.do(t, http.MethodPost, "/_offlinekit/progress/answer", `{"choice": 0}`)
	resp = decode[ProgressResponse](t, rec)
	assert.False(t, *resp.Accepted, "first answer is final")
	assert.Equal(t, 1, resp.State.Correct)

	rec = h.do(t, http.MethodPost, "/_offlinekit/progress/next?n=5", "")
	resp = decode[ProgressResponse](t, rec)
	assert.Equal(t, 2, resp.State.Cursor, "advance clamps")

	rec = h.do(t, http.MethodPost, "/_offlinekit/progress/prev", "")
	resp = decode[ProgressResponse](t, rec)
	assert.Equal(t, 1, resp.State.Cursor)

	rec = h.do(t, http.MethodPost, "/_offlinekit/progress/shuffle", "")
	resp = decode[ProgressResponse](t, rec)
	assert.ElementsMatch(t, []int{0, 1, 2}, resp.State.Order)
	assert.Equal(t, 0, resp.State.Cursor)
	assert.Equal(t, 1, resp.State.Answered, "answers survive shuffle")

	rec = h.do(t, http.MethodPost, "/_offlinekit/progress/reset", "")
	resp = decode[ProgressResponse](t, rec)
	assert.Equal(t, []int{0, 1, 2}, resp.State.Order)
	assert.Zero(t, resp.State.Answered)
}

func TestProgress_BadRequests(t *testing.T) {
	h := newHarness(t, true)

	tests := []struct {
		name   string
		target string
		body   string
	}{
		{"missing choice", "/_offlinekit/progress/answer", `{}`},
		{"unknown field", "/_offlinekit/progress/answer", `{"choice": 1, "extra": true}`},
		{"not json", "/_offlinekit/progress/answer", `choice=1`},
		{"bad n", "/_offlinekit/progress/next?n=0", ""},
		{"non-numeric n", "/_offlinekit/progress/prev?n=two", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "bad_request", decode[problem](t, rec).Error)
		})
	}
}
