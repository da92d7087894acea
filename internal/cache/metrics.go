package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports per-region cache counters to prometheus.
type Metrics struct {
	hits         *prometheus.CounterVec
	misses       *prometheus.CounterVec
	evictions    *prometheus.CounterVec
	loadFailures *prometheus.CounterVec
	entries      *prometheus.GaugeVec
	loadDuration *prometheus.HistogramVec
}

// NewMetrics registers the cache collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		hits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediarr",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits by region",
		}, []string{"region"}),
		misses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediarr",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses by region",
		}, []string{"region"}),
		evictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediarr",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of evicted cache entries by region",
		}, []string{"region"}),
		loadFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediarr",
			Subsystem: "cache",
			Name:      "load_failures_total",
			Help:      "Total number of failed cache loads by region",
		}, []string{"region"}),
		entries: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mediarr",
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Current number of entries by region",
		}, []string{"region"}),
		loadDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mediarr",
			Subsystem: "cache",
			Name:      "load_duration_seconds",
			Help:      "Duration of cache miss loads in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"region"}),
	}
}

// The methods below tolerate a nil receiver so the manager can run without
// metrics.

func (m *Metrics) hit(r Region) {
	if m != nil {
		m.hits.WithLabelValues(string(r)).Inc()
	}
}

func (m *Metrics) miss(r Region) {
	if m != nil {
		m.misses.WithLabelValues(string(r)).Inc()
	}
}

func (m *Metrics) evicted(r Region, n int) {
	if m != nil && n > 0 {
		m.evictions.WithLabelValues(string(r)).Add(float64(n))
	}
}

func (m *Metrics) loadFailed(r Region) {
	if m != nil {
		m.loadFailures.WithLabelValues(string(r)).Inc()
	}
}

func (m *Metrics) size(r Region, n int) {
	if m != nil {
		m.entries.WithLabelValues(string(r)).Set(float64(n))
	}
}

func (m *Metrics) loaded(r Region, d time.Duration) {
	if m != nil {
		m.loadDuration.WithLabelValues(string(r)).Observe(d.Seconds())
	}
}
