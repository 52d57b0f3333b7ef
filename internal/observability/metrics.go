package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vpc"

// Metrics holds the Prometheus counters, histograms, and gauges for batch
// training and classification runs.
type Metrics struct {
	CasesProcessed     prometheus.Counter
	CaseErrors         prometheus.Counter
	ProfilesClassified prometheus.Counter
	ResultsPublished   prometheus.Counter
	PipelineRunning    prometheus.Gauge

	ClassifyDuration prometheus.Histogram
	TrainDuration    prometheus.Histogram

	// Scheme store metrics.
	SchemeCache *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		CasesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cases_processed_total",
			Help:      "Total cases classified successfully.",
		}),
		CaseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "case_errors_total",
			Help:      "Total cases skipped because loading or classification failed.",
		}),
		ProfilesClassified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_classified_total",
			Help:      "Total vertical profiles assigned a class.",
		}),
		ResultsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_published_total",
			Help:      "Total case results written to the result sinks.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a batch run is active, 0 otherwise.",
		}),
		ClassifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classify_duration_seconds",
			Help:      "Duration of filtering and classifying one case.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		TrainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "train_duration_seconds",
			Help:      "Duration of training a scheme.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		SchemeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheme_cache_total",
			Help:      "Scheme artifact cache lookups by result.",
		}, []string{"result"}),
	}

	prometheus.MustRegister(
		m.CasesProcessed,
		m.CaseErrors,
		m.ProfilesClassified,
		m.ResultsPublished,
		m.PipelineRunning,
		m.ClassifyDuration,
		m.TrainDuration,
		m.SchemeCache,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		CasesProcessed:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "cases_processed_total"}),
		CaseErrors:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "case_errors_total"}),
		ProfilesClassified: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "profiles_classified_total"}),
		ResultsPublished:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "results_published_total"}),
		PipelineRunning:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		ClassifyDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "classify_duration_seconds"}),
		TrainDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "train_duration_seconds"}),
		SchemeCache:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "scheme_cache_total"}, []string{"result"}),
	}
}
