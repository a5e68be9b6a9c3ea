package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))

	m.SearchCompleted("not_found", 2*time.Second)
	m.SearchCompleted("not_found", time.Second)
	m.SearchCompleted("found", time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.searches.WithLabelValues("not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searches.WithLabelValues("found")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.searchDuration))

	m.HTTPRequest("/search", "200")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/search", "200")))
}

func TestNewMetricsPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
