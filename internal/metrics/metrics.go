// Package metrics exposes the engine's prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on its own registry, so tests can build
// independent instances.
type Metrics struct {
	registry *prometheus.Registry

	RepriceItems      *prometheus.CounterVec
	RepriceBatches    *prometheus.CounterVec
	ReconcileRuns     prometheus.Counter
	Opportunities     *prometheus.GaugeVec
	Forecasts         *prometheus.CounterVec
	AccuracyScored    prometheus.Counter
	SourceFetches     *prometheus.CounterVec
	Recommendations   *prometheus.CounterVec
	RecommendDuration prometheus.Histogram
}

// New registers the collectors, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		RepriceItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reseller",
			Name:      "reprice_items_total",
			Help:      "Repricing outcomes per item, labelled by terminal state.",
		}, []string{"state"}),
		RepriceBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reseller",
			Name:      "reprice_batches_total",
			Help:      "Repricing batches run, labelled by mode.",
		}, []string{"mode"}),
		ReconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reseller",
			Name:      "reconcile_runs_total",
			Help:      "Profit opportunity reconciliation passes.",
		}),
		Opportunities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "reseller",
			Name:      "opportunities_current",
			Help:      "Opportunities in the latest reconciliation run, by tier.",
		}, []string{"tier"}),
		Forecasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reseller",
			Name:      "forecasts_total",
			Help:      "Forecasts generated, labelled by method.",
		}, []string{"method"}),
		AccuracyScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reseller",
			Name:      "forecast_accuracy_scored_total",
			Help:      "Elapsed forecasts scored against realized sales.",
		}),
		SourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reseller",
			Name:      "price_source_fetches_total",
			Help:      "Price source fetches, labelled by source and outcome.",
		}, []string{"source", "outcome"}),
		Recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reseller",
			Name:      "recommendations_total",
			Help:      "Pricing recommendations computed, labelled by strategy.",
		}, []string{"strategy"}),
		RecommendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "reseller",
			Name:      "recommend_duration_seconds",
			Help:      "Time to compute one recommendation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RepriceItems,
		m.RepriceBatches,
		m.ReconcileRuns,
		m.Opportunities,
		m.Forecasts,
		m.AccuracyScored,
		m.SourceFetches,
		m.Recommendations,
		m.RecommendDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
