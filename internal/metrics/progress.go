// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	progressTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offlinekit_progress_transitions_total",
		Help: "Progress store transitions by operation and outcome",
	}, []string{"op", "outcome"}) // outcome=accepted|noop|failed

	progressLoadFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offlinekit_progress_load_fallbacks_total",
		Help: "Persisted records replaced by defaults on load",
	}, []string{"record", "reason"}) // reason=malformed|unreadable

	progressMigrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offlinekit_progress_migrations_total",
		Help: "Schema upgrades applied to persisted progress",
	}, []string{"from", "to"})

	appOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "offlinekit_origin_online",
		Help: "Whether the origin was reachable at the last probe (1) or not (0)",
	})
)

// IncProgressTransition counts a transition outcome.
func IncProgressTransition(op, outcome string) {
	progressTransitionsTotal.WithLabelValues(op, outcome).Inc()
}

// IncProgressLoadFallback counts a record replaced by defaults.
func IncProgressLoadFallback(record, reason string) {
	progressLoadFallbacksTotal.WithLabelValues(record, reason).Inc()
}

// IncProgressMigration counts a schema upgrade step.
func IncProgressMigration(from, to string) {
	progressMigrationsTotal.WithLabelValues(from, to).Inc()
}

// SetOnline records origin reachability.
func SetOnline(online bool) {
	if online {
		appOnline.Set(1)
		return
	}
	appOnline.Set(0)
}
