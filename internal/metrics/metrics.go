// Package metrics exposes Prometheus metrics for the release check loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cycle results.
const (
	ResultOK           = "ok"
	ResultConnectError = "connect_error"
	ResultScanError    = "scan_error"
)

// Metrics holds the collectors updated by the scheduler.
type Metrics struct {
	Cycles        *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	Candidates    prometheus.Gauge
	Announcements *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "release_bot_cycles_total",
			Help: "Release checks by result.",
		}, []string{"result"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "release_bot_cycle_duration_seconds",
			Help:    "Duration of a release check.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		Candidates: f.NewGauge(prometheus.GaugeOpts{
			Name: "release_bot_candidates",
			Help: "Candidates found by the last successful scan.",
		}),
		Announcements: f.NewCounterVec(prometheus.CounterOpts{
			Name: "release_bot_announcements_total",
			Help: "Publish outcomes by result.",
		}, []string{"result"}),
	}
}

// ObserveCycle records one finished release check.
func (m *Metrics) ObserveCycle(result string, d time.Duration) {
	m.Cycles.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// SetCandidates records the size of the latest candidate list.
func (m *Metrics) SetCandidates(n int) {
	m.Candidates.Set(float64(n))
}

// ObserveOutcome counts one publish outcome.
func (m *Metrics) ObserveOutcome(result string) {
	m.Announcements.WithLabelValues(result).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
