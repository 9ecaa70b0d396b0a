// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCacheRequest(t *testing.T) {
	before := testutil.ToFloat64(cacheRequestsTotal.WithLabelValues("runtime", "stale"))
	RecordCacheRequest("runtime", "stale")
	RecordCacheRequest("runtime", "stale")
	assert.Equal(t, before+2, testutil.ToFloat64(cacheRequestsTotal.WithLabelValues("runtime", "stale")))
}

func TestRecordInstall(t *testing.T) {
	fail := testutil.ToFloat64(cacheInstallsTotal.WithLabelValues("failure"))
	RecordInstall(false, 0, 0)
	assert.Equal(t, fail+1, testutil.ToFloat64(cacheInstallsTotal.WithLabelValues("failure")))

	RecordInstall(true, 0.5, 2048)
	assert.Equal(t, float64(2048), testutil.ToFloat64(cacheInstallBytes))
}

func TestRecordActivation_MovesGenerationGauge(t *testing.T) {
	RecordActivation("", "gen-a", 0)
	RecordActivation("gen-a", "gen-b", 1)

	assert.Equal(t, float64(1), testutil.ToFloat64(cacheActiveGeneration.WithLabelValues("gen-b")))
	// gen-a was deleted; asking for it again yields a fresh zero series.
	assert.Equal(t, float64(0), testutil.ToFloat64(cacheActiveGeneration.WithLabelValues("gen-a")))
}

func TestSetOnline(t *testing.T) {
	SetOnline(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(appOnline))
	SetOnline(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(appOnline))
}

func TestProgressCounters(t *testing.T) {
	before := testutil.ToFloat64(progressTransitionsTotal.WithLabelValues("answer", "noop"))
	IncProgressTransition("answer", "noop")
	assert.Equal(t, before+1, testutil.ToFloat64(progressTransitionsTotal.WithLabelValues("answer", "noop")))

	IncProgressLoadFallback("answers", "malformed")
	IncProgressMigration("1", "2")
	assert.GreaterOrEqual(t, testutil.ToFloat64(progressMigrationsTotal.WithLabelValues("1", "2")), float64(1))
}
