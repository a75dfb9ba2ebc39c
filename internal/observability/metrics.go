package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "weather_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RecordsAggregated prometheus.Counter
	PipelineRunning   prometheus.Gauge
	Runs              *prometheus.CounterVec // labels: outcome={success,partial,error}
	RunDuration       prometheus.Histogram

	// Sink metrics.
	RecordsWritten *prometheus.CounterVec // labels: sink
	RecordsSkipped *prometheus.CounterVec // labels: sink
	SinkErrors     *prometheus.CounterVec // labels: sink

	// Dedup filter state loads.
	FilterLoads *prometheus.CounterVec // labels: sink, origin={loaded,fresh,recovered}

	// Upstream API metrics.
	SourceRequests    *prometheus.CounterVec // labels: outcome={success,error,rejected}
	SourceAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RecordsAggregated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_aggregated_total",
			Help:      "Total daily summary records produced by aggregation.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress, 0 otherwise.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete extract-aggregate-load run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Records persisted by each sink.",
		}, []string{"sink"}),
		RecordsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Records a sink skipped because its filter reported them as seen.",
		}, []string{"sink"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Failed sink write batches.",
		}, []string{"sink"}),
		FilterLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_loads_total",
			Help:      "Dedup filter state loads by origin.",
		}, []string{"sink", "origin"}),
		SourceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Upstream weather API requests by outcome.",
		}, []string{"outcome"}),
		SourceAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_api_duration_seconds",
			Help:      "Upstream weather API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}

	prometheus.MustRegister(
		m.RecordsAggregated,
		m.PipelineRunning,
		m.Runs,
		m.RunDuration,
		m.RecordsWritten,
		m.RecordsSkipped,
		m.SinkErrors,
		m.FilterLoads,
		m.SourceRequests,
		m.SourceAPIDuration,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RecordsAggregated: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "records_aggregated_total"}),
		PipelineRunning:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		Runs:              prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "runs_total"}, []string{"outcome"}),
		RunDuration:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "run_duration_seconds"}),
		RecordsWritten:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "records_written_total"}, []string{"sink"}),
		RecordsSkipped:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "records_skipped_total"}, []string{"sink"}),
		SinkErrors:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "sink_errors_total"}, []string{"sink"}),
		FilterLoads:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "filter_loads_total"}, []string{"sink", "origin"}),
		SourceRequests:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "source_requests_total"}, []string{"outcome"}),
		SourceAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "source_api_duration_seconds"}),
	}
}
