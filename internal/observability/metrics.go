package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "airquality_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the acquisition pipeline.
type Metrics struct {
	// Archive API metrics.
	ArchiveRequests *prometheus.CounterVec // labels: outcome={success,transport_error,status_error,rate_limited}
	ArchiveDuration prometheus.Histogram

	// Fetch loop metrics.
	ArtifactsFetched prometheus.Counter
	ArtifactsSkipped prometheus.Counter
	FetchFailures    prometheus.Counter
	Passes           *prometheus.CounterVec // labels: outcome={complete,budget_exhausted,failed,cancelled}
	PassDuration     prometheus.Histogram

	// Pipeline metrics.
	StageDuration      *prometheus.HistogramVec // labels: stage={dataset,reconcile,acquire,staging}
	StagingSteps       *prometheus.CounterVec   // labels: step, outcome={success,error}
	EventsPublished    *prometheus.CounterVec   // labels: kind={artifact,pass}
	AcquisitionRunning prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// repeated calls from multiple tests do not panic.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ArchiveRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_requests_total",
			Help:      "Archive API requests by outcome.",
		}, []string{"outcome"}),
		ArchiveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_request_duration_seconds",
			Help:      "Archive API request duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ArtifactsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_fetched_total",
			Help:      "Artifacts downloaded and persisted.",
		}),
		ArtifactsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_skipped_total",
			Help:      "Roster entries skipped because their artifact already existed.",
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Fetch or persist failures inside the fetch loop.",
		}),
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Fetch loop invocations by outcome.",
		}, []string{"outcome"}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of a single fetch loop invocation.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.1, 1, 10, 60, 300, 900, 1800, 3600},
		}, []string{"stage"}),
		StagingSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staging_steps_total",
			Help:      "Bulk transfer steps by step name and outcome.",
		}, []string{"step", "outcome"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events written to the event topic by kind.",
		}, []string{"kind"}),
		AcquisitionRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "acquisition_running",
			Help:      "1 while the pipeline is active, 0 when finished.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ArchiveRequests,
		m.ArchiveDuration,
		m.ArtifactsFetched,
		m.ArtifactsSkipped,
		m.FetchFailures,
		m.Passes,
		m.PassDuration,
		m.StageDuration,
		m.StagingSteps,
		m.EventsPublished,
		m.AcquisitionRunning,
	}
}
