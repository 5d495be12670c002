// Package metrics provides Prometheus collectors for scrape runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsNamespace prefixes every metric name.
const MetricsNamespace = "archscraper"

// Listing page statuses.
const (
	PageOK     = "ok"
	PageFailed = "failed"
)

// Metrics holds the scrape collectors. A nil *Metrics records nothing.
type Metrics struct {
	ArticlesTotal      *prometheus.CounterVec
	ListingPagesTotal  *prometheus.CounterVec
	RunDurationSeconds *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		ArticlesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "articles_total",
				Help:      "Articles processed, by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		ListingPagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: MetricsNamespace,
				Name:      "listing_pages_total",
				Help:      "Listing pages fetched, by source and status",
			},
			[]string{"source", "status"},
		),
		RunDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: MetricsNamespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of a source scrape in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
			},
			[]string{"source"},
		),
	}
}

// ObserveArticle counts one article outcome, e.g. "inserted" or "failed".
func (m *Metrics) ObserveArticle(source, outcome string) {
	if m == nil {
		return
	}
	m.ArticlesTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveListingPage counts one listing page fetch.
func (m *Metrics) ObserveListingPage(source string, ok bool) {
	if m == nil {
		return
	}
	status := PageOK
	if !ok {
		status = PageFailed
	}
	m.ListingPagesTotal.WithLabelValues(source, status).Inc()
}

// ObserveRun records how long a source scrape took.
func (m *Metrics) ObserveRun(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.RunDurationSeconds.WithLabelValues(source).Observe(d.Seconds())
}
