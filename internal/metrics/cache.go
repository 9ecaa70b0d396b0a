// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offlinekit_cache_requests_total",
		Help: "Requests handled by the cache manager by request class and response source",
	}, []string{"class", "source"}) // source=network|cache|stale|shell|offline|unavailable|passthrough|error

	cacheInstallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offlinekit_cache_installs_total",
		Help: "Generation install attempts by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	cacheInstallDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "offlinekit_cache_install_duration_seconds",
		Help:    "Time spent precaching a generation",
		Buckets: prometheus.DefBuckets,
	})

	cacheInstallBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "offlinekit_cache_install_bytes",
		Help: "Bytes precached by the last successful install",
	})

	cacheActivationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offlinekit_cache_activations_total",
		Help: "Number of generation activations",
	})

	cacheGenerationsRetiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offlinekit_cache_generations_retired_total",
		Help: "Number of old generations deleted during activation",
	})

	cacheRevalidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offlinekit_cache_revalidations_total",
		Help: "Background stale-while-revalidate refreshes by outcome",
	}, []string{"outcome"}) // outcome=updated|kept|failed

	cacheActiveGeneration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "offlinekit_cache_active_generation",
		Help: "Controlling generation (1 for the active one)",
	}, []string{"generation"})
)

// RecordCacheRequest counts one served request.
func RecordCacheRequest(class, source string) {
	cacheRequestsTotal.WithLabelValues(class, source).Inc()
}

// RecordInstall records an install attempt and, on success, the bytes stored.
func RecordInstall(success bool, seconds float64, bytes int64) {
	if !success {
		cacheInstallsTotal.WithLabelValues("failure").Inc()
		return
	}
	cacheInstallsTotal.WithLabelValues("success").Inc()
	cacheInstallDurationSeconds.Observe(seconds)
	cacheInstallBytes.Set(float64(bytes))
}

// RecordActivation records a generation switch and the number of retired generations.
func RecordActivation(previous, current string, retired int) {
	cacheActivationsTotal.Inc()
	cacheGenerationsRetiredTotal.Add(float64(retired))
	if previous != "" && previous != current {
		cacheActiveGeneration.DeleteLabelValues(previous)
	}
	cacheActiveGeneration.WithLabelValues(current).Set(1)
}

// IncRevalidation counts one background refresh.
func IncRevalidation(outcome string) {
	cacheRevalidationsTotal.WithLabelValues(outcome).Inc()
}
