// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cachemgr

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/offlinekit/internal/cache"
	"github.com/ManuGH/offlinekit/internal/manifest"
)

var errOffline = errors.New("dial tcp: network is unreachable")

// fakeOrigin serves files from memory through an in-process transport and
// can be switched offline.
type fakeOrigin struct {
	mu      sync.Mutex
	files   map[string]string
	status  map[string]int
	offline bool
	hits    atomic.Int64
	methods []string
}

func newFakeOrigin(files map[string]string) *fakeOrigin {
	return &fakeOrigin{files: files, status: map[string]int{}}
}

func (o *fakeOrigin) set(path, body string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files[path] = body
}

func (o *fakeOrigin) fail(path string, status int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status[path] = status
}

func (o *fakeOrigin) setOffline(off bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.offline = off
}

func (o *fakeOrigin) RoundTrip(req *http.Request) (*http.Response, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.offline {
		return nil, errOffline
	}
	o.hits.Add(1)
	o.methods = append(o.methods, req.Method)

	rec := httptest.NewRecorder()
	key := req.URL.Path
	if req.URL.RawQuery != "" {
		key += "?" + req.URL.RawQuery
	}
	switch body, ok := o.files[key]; {
	case o.status[key] != 0:
		rec.WriteHeader(o.status[key])
	case !ok:
		http.NotFound(rec, req)
	default:
		rec.Header().Set("Content-Type", "text/plain")
		rec.WriteHeader(http.StatusOK)
		if req.Method != http.MethodHead {
			_, _ = io.WriteString(rec, body)
		}
	}
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

var testStamp = time.Date(2025, 10, 19, 23, 12, 37, 0, time.UTC)

func testManifest(t *testing.T, build string, assets ...string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.New(build, testStamp, "/index.html", "/offline.html", assets)
	require.NoError(t, err)
	return m
}

func newTestManager(t *testing.T, origin *fakeOrigin, store cache.Store, mutate ...func(*Options)) *Manager {
	t.Helper()
	if store == nil {
		store = cache.NewMemoryStore()
	}
	logger := zerolog.New(io.Discard)
	opts := Options{
		Store:  store,
		Origin: &url.URL{Scheme: "http", Host: "origin.test"},
		Client: &http.Client{Transport: origin},
		Prefix: "test-cache",
		Logger: &logger,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	m, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// do sends a request through ServeHTTP.
func do(m *Manager, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, vv := range header {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, req)
	return rec
}

func navigate(m *Manager, target string) *httptest.ResponseRecorder {
	return do(m, http.MethodGet, target, http.Header{"Sec-Fetch-Mode": []string{"navigate"}})
}

func get(m *Manager, target string) *httptest.ResponseRecorder {
	return do(m, http.MethodGet, target, nil)
}

func siteFiles(version string) map[string]string {
	return map[string]string{
		"/index.html":   "shell " + version,
		"/offline.html": "offline " + version,
		"/app.js":       "app " + version,
		"/styles.css":   "css " + version,
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func discardLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}
