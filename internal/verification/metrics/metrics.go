package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the verification domain's Prometheus metrics.
type Metrics struct {
	lookups        *prometheus.CounterVec
	cacheHits      *prometheus.CounterVec
	claimConflicts prometheus.Counter
	fundingFails   *prometheus.CounterVec
	fetchDuration  prometheus.Histogram
}

// New creates and registers all verification metrics.
func New() *Metrics {
	return &Metrics{
		lookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustgate_lookups_total",
			Help: "Verification lookups by outcome",
		}, []string{"outcome"}),
		cacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustgate_cache_hits_total",
			Help: "Cache hits by freshness",
		}, []string{"freshness"}),
		claimConflicts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trustgate_claim_conflicts_total",
			Help: "Lookups that lost the pending-claim race",
		}),
		fundingFails: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trustgate_funding_failures_total",
			Help: "Post-fetch funding deductions that failed",
		}, []string{"kind"}),
		fetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "trustgate_upstream_fetch_duration_seconds",
			Help:    "Latency of upstream profile fetches",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) Lookup(outcome string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheHit(freshness string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(freshness).Inc()
}

func (m *Metrics) ClaimConflict() {
	if m == nil {
		return
	}
	m.claimConflicts.Inc()
}

func (m *Metrics) FundingFailure(kind string) {
	if m == nil {
		return
	}
	m.fundingFails.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(d.Seconds())
}
