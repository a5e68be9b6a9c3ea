// File: internal/observability/metrics.go
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports search and session counters to prometheus.
type Metrics struct {
	searches       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	activeSessions prometheus.Gauge
	httpRequests   *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rvlookup",
			Name:      "searches_total",
			Help:      "Completed license searches by outcome status.",
		}, []string{"status"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rvlookup",
			Name:      "search_duration_seconds",
			Help:      "Wall time of a license search from session acquisition to classification.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 15, 25, 40, 60},
		}, []string{"status"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rvlookup",
			Name:      "sessions_active",
			Help:      "Browser sessions currently held by in-flight searches.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rvlookup",
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the facade by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(m.searches, m.searchDuration, m.activeSessions, m.httpRequests)
	return m
}

// SessionOpened records a session acquisition.
func (m *Metrics) SessionOpened() { m.activeSessions.Inc() }

// SessionClosed records a session release.
func (m *Metrics) SessionClosed() { m.activeSessions.Dec() }

// SearchCompleted records the outcome of one search.
// Fatal engine failures are reported with status "failed".
func (m *Metrics) SearchCompleted(status string, elapsed time.Duration) {
	m.searches.WithLabelValues(status).Inc()
	m.searchDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// HTTPRequest records one facade response.
func (m *Metrics) HTTPRequest(route, code string) {
	m.httpRequests.WithLabelValues(route, code).Inc()
}
