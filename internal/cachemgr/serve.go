// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cachemgr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/offlinekit/internal/cache"
	"github.com/ManuGH/offlinekit/internal/log"
	"github.com/ManuGH/offlinekit/internal/manifest"
	"github.com/ManuGH/offlinekit/internal/metrics"
	"github.com/ManuGH/offlinekit/internal/telemetry"
)

// Response sources reported in SourceHeader and metrics.
const (
	SourceNetwork     = "network"
	SourceCache       = "cache"
	SourceStale       = "stale"
	SourceShell       = "shell"
	SourceOffline     = "offline"
	SourceUnavailable = "unavailable"
	SourcePassthrough = "passthrough"
	SourceError       = "error"
)

// hopHeaders are connection-scoped and never stored or forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
}

const offlinePage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Offline</title></head>
<body><h1>Offline</h1><p>This page is not available offline.</p></body></html>
`

// ServeHTTP implements http.Handler.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	class := m.Classify(r)
	ctx, span := tracer.Start(r.Context(), "cachemgr.serve",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(telemetry.CacheAttributes(m.Status().Active.String(), string(class), r.URL.Path)...))
	defer span.End()
	r = r.WithContext(ctx)

	if class == ClassPassthrough {
		m.forward(w, r)
		metrics.RecordCacheRequest(string(class), SourcePassthrough)
		span.SetAttributes(attribute.String(telemetry.CacheSourceKey, SourcePassthrough))
		return
	}

	e, source, err := m.resolve(ctx, class, r)
	span.SetAttributes(attribute.String(telemetry.CacheSourceKey, source))
	metrics.RecordCacheRequest(string(class), source)
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	writeEntry(w, e, source)
}

// Get resolves path through the same policies as a GET request without
// writing a response. Used by in-process consumers such as the content
// loader.
func (m *Manager) Get(ctx context.Context, path string) (*cache.Entry, string, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, SourceError, err
	}
	class := m.Classify(r)
	e, source, err := m.resolve(ctx, class, r)
	metrics.RecordCacheRequest(string(class), source)
	return e, source, err
}

func (m *Manager) resolve(ctx context.Context, class Class, r *http.Request) (*cache.Entry, string, error) {
	key := requestKey(r.URL)
	switch class {
	case ClassNavigation:
		return m.serveNavigation(ctx, r, key)
	case ClassPrecache:
		return m.servePrecache(ctx, r, key)
	default:
		return m.serveRuntime(ctx, r, key)
	}
}

// serveNavigation is network first. On a transport error or a 5xx it falls
// back to the cached request, then the shell, then the offline document.
func (m *Manager) serveNavigation(ctx context.Context, r *http.Request, key string) (*cache.Entry, string, error) {
	e, err := m.fetch(ctx, http.MethodGet, m.target(r.URL.Path, r.URL.RawQuery), r.Header)
	if err == nil && e.Status < http.StatusInternalServerError {
		if e.OK() {
			m.storeRuntime(ctx, key, e)
		}
		return e, SourceNetwork, nil
	}

	logger := log.WithContext(ctx, m.logger)
	if err != nil {
		logger.Debug().Err(err).Str(log.FieldEvent, "cachemgr.navigation_offline").Str(log.FieldKey, key).Msg("navigation fell back to cache")
	}

	var shell, offline string
	m.mu.RLock()
	if m.active != nil {
		shell, offline = m.active.manifest.Shell(), m.active.manifest.Offline()
	}
	m.mu.RUnlock()

	for _, candidate := range []struct{ key, source string }{
		{key, SourceCache},
		{shell, SourceShell},
		{offline, SourceOffline},
	} {
		if candidate.key == "" {
			continue
		}
		cached, lerr := m.lookup(ctx, candidate.key)
		if lerr != nil {
			logger.Warn().Err(lerr).Str(log.FieldEvent, "cachemgr.lookup_failed").Str(log.FieldKey, candidate.key).Msg("cache lookup failed")
			continue
		}
		if cached != nil {
			return cached, candidate.source, nil
		}
	}

	if err == nil {
		return e, SourceNetwork, nil
	}
	return nil, SourceUnavailable, fmt.Errorf("%w: %s: %w", ErrUnavailable, key, err)
}

// servePrecache is cache first. A missing asset is fetched and returned
// without being written.
func (m *Manager) servePrecache(ctx context.Context, r *http.Request, key string) (*cache.Entry, string, error) {
	cached, err := m.lookup(ctx, key)
	if err != nil {
		logger := log.WithContext(ctx, m.logger)
		logger.Warn().Err(err).Str(log.FieldEvent, "cachemgr.lookup_failed").Str(log.FieldKey, key).Msg("cache lookup failed")
	}
	if cached != nil {
		return cached, SourceCache, nil
	}
	e, err := m.fetch(ctx, http.MethodGet, m.target(r.URL.Path, r.URL.RawQuery), r.Header)
	if err != nil {
		return nil, SourceError, err
	}
	return e, SourceNetwork, nil
}

// serveRuntime is stale-while-revalidate.
func (m *Manager) serveRuntime(ctx context.Context, r *http.Request, key string) (*cache.Entry, string, error) {
	target := m.target(r.URL.Path, r.URL.RawQuery)
	cached, err := m.lookup(ctx, key)
	if err != nil {
		logger := log.WithContext(ctx, m.logger)
		logger.Warn().Err(err).Str(log.FieldEvent, "cachemgr.lookup_failed").Str(log.FieldKey, key).Msg("cache lookup failed")
	}
	if cached != nil {
		header := forwardHeader(r.Header)
		header.Del("If-None-Match")
		header.Del("If-Modified-Since")
		m.revalidate(key, target, header)
		return cached, SourceStale, nil
	}

	e, err := m.fetch(ctx, http.MethodGet, target, r.Header)
	if err != nil {
		return nil, SourceError, err
	}
	if e.OK() {
		m.storeRuntime(ctx, key, e)
	}
	return e, SourceNetwork, nil
}

// revalidate refreshes key in a detached goroutine. Concurrent refreshes of
// the same key share one fetch. Refreshes over the rate budget are skipped
// and the next hit tries again. Failures only reach the log and metrics.
func (m *Manager) revalidate(key string, target *url.URL, header http.Header) {
	m.bgMu.Lock()
	if m.closed {
		m.bgMu.Unlock()
		return
	}
	if !m.limiter.Allow() {
		m.bgMu.Unlock()
		metrics.IncRevalidation("throttled")
		return
	}
	m.wg.Add(1)
	m.bgMu.Unlock()

	go func() {
		defer m.wg.Done()
		v, err, _ := m.flights.Do(key, func() (any, error) {
			ctx, cancel := context.WithTimeout(m.ctx, m.fetchTimeout)
			defer cancel()
			e, err := m.fetch(ctx, http.MethodGet, target, header)
			if err != nil {
				return "failed", err
			}
			if !e.OK() {
				return "kept", nil
			}
			if err := m.put(ctx, key, e); err != nil {
				return "failed", err
			}
			return "updated", nil
		})
		outcome, _ := v.(string)
		if outcome == "" {
			outcome = "failed"
		}
		metrics.IncRevalidation(outcome)
		if err != nil {
			m.logger.Warn().Err(err).
				Str(log.FieldEvent, "cachemgr.revalidate_failed").
				Str(log.FieldKey, key).
				Msg("background refresh failed, keeping cached copy")
		}
	}()
}

// lookup reads key from the active generation only.
func (m *Manager) lookup(ctx context.Context, key string) (*cache.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil, nil
	}
	return m.store.Get(ctx, m.active.id, key)
}

// put writes a runtime entry into the active generation. The read lock is
// held across the write so an activation cannot retire the generation in
// between. Precached keys are never overwritten.
func (m *Manager) put(ctx context.Context, key string, e *cache.Entry) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil || m.active.manifest.Contains(key) {
		return nil
	}
	stored := e.Clone()
	stored.Key = key
	return m.store.Put(ctx, m.active.id, stored)
}

func (m *Manager) storeRuntime(ctx context.Context, key string, e *cache.Entry) {
	if err := m.put(ctx, key, e); err != nil {
		logger := log.WithContext(ctx, m.logger)
		logger.Warn().Err(err).
			Str(log.FieldEvent, "cachemgr.store_failed").
			Str(log.FieldKey, key).
			Msg("failed to cache runtime response")
	}
}

// target resolves a request path and query against the origin.
func (m *Manager) target(path, rawQuery string) *url.URL {
	u := *m.origin
	u.Path = joinPath(m.origin.Path, path)
	u.RawPath = ""
	u.RawQuery = rawQuery
	u.Fragment = ""
	return &u
}

func joinPath(base, p string) string {
	base = strings.TrimRight(base, "/")
	if p == "" {
		p = "/"
	}
	return base + p
}

// fetch performs one origin request and buffers the body into an entry.
func (m *Manager) fetch(ctx context.Context, method string, target *url.URL, header http.Header) (*cache.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, method, target.String(), nil)
	if err != nil {
		return nil, err
	}
	if header != nil {
		req.Header = forwardHeader(header)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrUpstream, err)
	}
	if int64(len(body)) > m.maxBody {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, target.Path)
	}

	h := resp.Header.Clone()
	for _, k := range hopHeaders {
		h.Del(k)
	}
	return &cache.Entry{
		Key:      requestKey(target),
		Status:   resp.StatusCode,
		Header:   h,
		Body:     body,
		StoredAt: time.Now().UTC(),
	}, nil
}

// forward streams a passthrough request without touching the cache.
func (m *Manager) forward(w http.ResponseWriter, r *http.Request) {
	target := r.URL
	if !target.IsAbs() {
		target = m.target(r.URL.Path, r.URL.RawQuery)
	}
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		m.writeError(w, r, err)
		return
	}
	req.Header = forwardHeader(r.Header)
	req.ContentLength = r.ContentLength

	resp, err := m.client.Do(req)
	if err != nil {
		m.writeError(w, r, fmt.Errorf("%w: %w", ErrUpstream, err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	copyHeader(w.Header(), resp.Header)
	w.Header().Set(SourceHeader, SourcePassthrough)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger := log.WithContext(r.Context(), m.logger)
		logger.Debug().Err(err).Str(log.FieldEvent, "cachemgr.forward_copy").Msg("client went away during passthrough")
	}
}

func forwardHeader(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	for _, k := range hopHeaders {
		out.Del(k)
	}
	out.Del("Host")
	return out
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, k := range hopHeaders {
		dst.Del(k)
	}
}

func writeEntry(w http.ResponseWriter, e *cache.Entry, source string) {
	copyHeader(w.Header(), e.Header)
	w.Header().Set(SourceHeader, source)
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Body)))
	w.WriteHeader(e.Status)
	_, _ = io.Copy(w, bytes.NewReader(e.Body))
}

// writeError renders the only user-visible failures: an offline page for
// unavailable navigations and a bad gateway for uncached resources.
func (m *Manager) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.WithContext(r.Context(), m.logger)
	logger.Debug().Err(err).
		Str(log.FieldEvent, "cachemgr.serve_failed").
		Str(log.FieldPath, r.URL.Path).
		Msg("request could not be served")

	w.Header().Set("Cache-Control", "no-store")
	switch {
	case errors.Is(err, ErrUnavailable):
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set(SourceHeader, SourceUnavailable)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, offlinePage)
	default:
		w.Header().Set(SourceHeader, SourceError)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
	}
}

// Generation returns the active generation id, or "" before the first
// activation.
func (m *Manager) Generation() manifest.Generation {
	return m.Status().Active
}
