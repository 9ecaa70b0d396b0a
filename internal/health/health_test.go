// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/offlinekit/internal/cachemgr"
	"github.com/ManuGH/offlinekit/internal/config"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(_ context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Health(context.Background(), true)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)
}

func TestManager_Health_VerboseRunsCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "a", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "b", status: StatusDegraded})

	quiet := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, quiet.Status)
	assert.Nil(t, quiet.Checks)

	verbose := m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, verbose.Status)
	assert.Len(t, verbose.Checks, 2)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		ready    bool
		want     Status
	}{
		{"no checkers", nil, true, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, true, StatusHealthy},
		{"degraded stays ready", []Status{StatusHealthy, StatusDegraded}, true, StatusDegraded},
		{"unhealthy wins", []Status{StatusUnhealthy, StatusDegraded}, false, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("dev")
			for i, s := range tt.statuses {
				m.RegisterChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.ready, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestManager_ServeReady(t *testing.T) {
	m := NewManager("dev")
	active := cachemgr.Status{}
	m.RegisterChecker(NewGenerationChecker(func() cachemgr.Status { return active }))

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	active = cachemgr.Status{Active: "offlinekit-cache-abc-1", Assets: 3}
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Ready)
	assert.Equal(t, "offlinekit-cache-abc-1 (3 assets)", resp.Checks["generation"].Message)
}

func TestManager_ServeHealth_AlwaysOK(t *testing.T) {
	m := NewManager("dev")
	m.RegisterChecker(&mockChecker{name: "x", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestGenerationChecker_ReportsPending(t *testing.T) {
	c := NewGenerationChecker(func() cachemgr.Status {
		return cachemgr.Status{Active: "g1", Pending: "g2", Assets: 2}
	})
	res := c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, "g1 (2 assets), g2 waiting", res.Message)
}

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker("cache", func(context.Context) error { return nil })
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	bad := NewPingChecker("cache", func(context.Context) error { return errors.New("connection refused") })
	res := bad.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "connection refused", res.Error)

	none := NewPingChecker("memory", nil)
	assert.Equal(t, StatusHealthy, none.Check(context.Background()).Status)
	assert.Equal(t, "memory", none.Name())
}

func TestConnectivityChecker(t *testing.T) {
	online := true
	c := NewConnectivityChecker(func() bool { return online })
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
	online = false
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
}

func TestPerformStartupChecks(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.DataDir = dir
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	cfg.Manifest = filepath.Join(dir, "missing.yaml")
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), cfg), "manifest not readable")

	cfg.Manifest = ""
	cfg.DataDir = filepath.Join(dir, "nope")
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), cfg), "does not exist")

	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	cfg.DataDir = file
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), cfg), "not a directory")
}
