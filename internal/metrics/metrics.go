// Package metrics exposes the engine's Prometheus collectors. Collectors
// are package-level promauto registrations; gauges are refreshed by the
// engine's rollup timer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EntriesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "ledger",
		Name:      "entries_appended_total",
		Help:      "Audit entries appended to the ledger.",
	})

	FallbackDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "ledger",
		Name:      "fallback_depth",
		Help:      "Audit entries queued in the fallback sink awaiting replay.",
	})

	VerifyViolations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "ledger",
		Name:      "verify_violations_total",
		Help:      "Integrity violations found by chain verification.",
	})

	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "threat",
		Name:      "alerts_total",
		Help:      "Alerts emitted by detectors, by alert type.",
	}, []string{"type"})

	IncidentsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "alert",
		Name:      "incidents_total",
		Help:      "Incidents persisted by the dispatcher, by severity.",
	}, []string{"severity"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "session",
		Name:      "active",
		Help:      "Currently active sessions.",
	})

	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Subsystem: "session",
		Name:      "evicted_total",
		Help:      "Sessions force-terminated by the concurrency limit.",
	})

	TrackedKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentinel",
		Subsystem: "window",
		Name:      "tracked_keys",
		Help:      "Keys currently held by the sliding-window tracker.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
