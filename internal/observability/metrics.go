package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ccn_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for one processing run.
type Metrics struct {
	SamplesRead       prometheus.Counter
	SamplesDuplicate  prometheus.Counter
	SamplesUnreliable prometheus.Counter
	BucketsEmitted    prometheus.Counter
	BucketsFlagged    *prometheus.CounterVec // labels: flag={ss_flag,integrity_flag,...}
	SinkErrors        *prometheus.CounterVec // labels: sink

	RunDuration     prometheus.Histogram
	LastSuccess     prometheus.Gauge
	BucketsComplete prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates and registers all run metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics on a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(m.collectors()...)
	return m
}

// Gatherer returns the registry the metrics were registered with.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m.registry != nil {
		return m.registry
	}
	return prometheus.DefaultGatherer
}

func newMetrics() *Metrics {
	return &Metrics{
		SamplesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_read_total",
			Help:      "Raw minute samples read from input files.",
		}),
		SamplesDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_duplicate_total",
			Help:      "Raw rows dropped for a repeated timestamp.",
		}),
		SamplesUnreliable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_unreliable_total",
			Help:      "Samples whose supersaturation deviates beyond the limit.",
		}),
		BucketsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buckets_emitted_total",
			Help:      "Averaged buckets written to the sinks.",
		}),
		BucketsFlagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buckets_flagged_total",
			Help:      "Buckets with a QC flag raised, by flag.",
		}, []string{"flag"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Sink write failures, by sink.",
		}, []string{"sink"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-transform-load run.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		BucketsComplete: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bucket_completeness_ratio",
			Help:      "Observed over expected samples per bucket.",
			Buckets:   []float64{0.25, 0.5, 0.75, 0.9, 1},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SamplesRead,
		m.SamplesDuplicate,
		m.SamplesUnreliable,
		m.BucketsEmitted,
		m.BucketsFlagged,
		m.SinkErrors,
		m.RunDuration,
		m.LastSuccess,
		m.BucketsComplete,
	}
}
