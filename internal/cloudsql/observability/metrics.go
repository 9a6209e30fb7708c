package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RefreshAttemptsTotal counts every refresh attempt dispatched to the
	// worker pool, labeled by outcome.
	RefreshAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudsql_refresh_attempts_total",
			Help: "Total number of certificate refresh attempts",
		},
		[]string{"instance", "status"},
	)

	// RefreshDuration measures how long a refresh attempt's admin API
	// round trip took, from permit grant to result.
	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudsql_refresh_duration_seconds",
			Help:    "Duration of certificate refresh admin API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"instance"},
	)

	// RefreshFailuresTotal counts refresh failures specifically, so an
	// operator can alert on a persistently failing instance even though
	// this module never evicts the last-known-good InstanceData for one
	// (see SPEC_FULL.md's resolved open question on grace periods).
	RefreshFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudsql_refresh_failures_total",
			Help: "Total number of certificate refresh failures",
		},
		[]string{"instance"},
	)

	// ActiveConnections is registered as a gauge of open connections, but
	// nothing in this module increments or decrements it: Connect returns
	// the dialed socket unwrapped, so the gauge stays at zero unless the
	// host application updates it.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudsql_active_connections",
			Help: "Number of currently open connections to Cloud SQL instances",
		},
	)

	// DialDuration measures the full Connect call: cache lookup through
	// TLS handshake completion.
	DialDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudsql_dial_duration_seconds",
			Help:    "Duration of Connect calls, from cache lookup to handshake completion",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"instance"},
	)
)

// ObserveRefresh records the outcome of one refresh attempt.
func ObserveRefresh(instance string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
		RefreshFailuresTotal.WithLabelValues(instance).Inc()
	}
	RefreshAttemptsTotal.WithLabelValues(instance, status).Inc()
	RefreshDuration.WithLabelValues(instance).Observe(duration.Seconds())
}
