package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMetrics verifies counters and histograms are recorded per label
func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveArticle("leibal", "inserted")
	m.ObserveArticle("leibal", "inserted")
	m.ObserveArticle("leibal", "failed")
	m.ObserveListingPage("leibal", true)
	m.ObserveListingPage("leibal", false)
	m.ObserveRun("leibal", 3*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArticlesTotal.WithLabelValues("leibal", "inserted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArticlesTotal.WithLabelValues("leibal", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ListingPagesTotal.WithLabelValues("leibal", PageOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ListingPagesTotal.WithLabelValues("leibal", PageFailed)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "archscraper_run_duration_seconds")
}

// TestMetrics_Nil verifies a nil *Metrics is safe to use
func TestMetrics_Nil(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveArticle("leibal", "inserted")
		m.ObserveListingPage("leibal", true)
		m.ObserveRun("leibal", time.Second)
	})
}
