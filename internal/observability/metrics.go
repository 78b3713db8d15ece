package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion pipeline.
type Metrics struct {
	ReportsFetched     prometheus.Counter
	ReportsAdmitted    prometheus.Counter
	EventsWritten      prometheus.Counter
	ReportsSkipped     prometheus.Counter
	ReportsQuarantined *prometheus.CounterVec // labels: reason={malformed,unknown_type,missing_field,out_of_range}

	CycleRetries prometheus.Counter
	CyclesFailed prometheus.Counter

	CycleDuration prometheus.Histogram
	BatchSize     prometheus.Histogram

	PipelineRunning  prometheus.Gauge
	PipelineState    prometheus.Gauge
	CheckpointCursor prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ReportsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spotter_loader",
			Name:      "reports_fetched_total",
			Help:      "Total raw reports returned by feed polls.",
		}),
		ReportsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spotter_loader",
			Name:      "reports_admitted_total",
			Help:      "Total reports that passed the dedupe window.",
		}),
		EventsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spotter_loader",
			Name:      "events_written_total",
			Help:      "Total canonical events acknowledged by the sink.",
		}),
		ReportsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spotter_loader",
			Name:      "reports_skipped_total",
			Help:      "Total reports deliberately dropped during normalization.",
		}),
		ReportsQuarantined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spotter_loader",
			Name:      "reports_quarantined_total",
			Help:      "Total reports rejected during normalization, by reason.",
		}, []string{"reason"}),
		CycleRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spotter_loader",
			Name:      "cycle_retries_total",
			Help:      "Total in-cycle retries across the fetch and write stages.",
		}),
		CyclesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "spotter_loader",
			Name:      "cycles_failed_total",
			Help:      "Total poll cycles abandoned after retry exhaustion.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spotter_loader",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete poll-normalize-write-commit cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spotter_loader",
			Name:      "batch_size",
			Help:      "Number of admitted reports per cycle.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100, 200},
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "spotter_loader",
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		PipelineState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "spotter_loader",
			Name:      "pipeline_state",
			Help:      "Current pipeline stage as a numeric code.",
		}),
		CheckpointCursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "spotter_loader",
			Name:      "checkpoint_cursor_timestamp_seconds",
			Help:      "Unix timestamp of the committed checkpoint cursor.",
		}),
	}

	prometheus.MustRegister(
		m.ReportsFetched,
		m.ReportsAdmitted,
		m.EventsWritten,
		m.ReportsSkipped,
		m.ReportsQuarantined,
		m.CycleRetries,
		m.CyclesFailed,
		m.CycleDuration,
		m.BatchSize,
		m.PipelineRunning,
		m.PipelineState,
		m.CheckpointCursor,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ReportsFetched:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "spotter_loader", Name: "reports_fetched_total"}),
		ReportsAdmitted:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "spotter_loader", Name: "reports_admitted_total"}),
		EventsWritten:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "spotter_loader", Name: "events_written_total"}),
		ReportsSkipped:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "spotter_loader", Name: "reports_skipped_total"}),
		ReportsQuarantined: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "spotter_loader", Name: "reports_quarantined_total"}, []string{"reason"}),
		CycleRetries:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "spotter_loader", Name: "cycle_retries_total"}),
		CyclesFailed:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "spotter_loader", Name: "cycles_failed_total"}),
		CycleDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "spotter_loader", Name: "cycle_duration_seconds"}),
		BatchSize:          prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "spotter_loader", Name: "batch_size"}),
		PipelineRunning:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "spotter_loader", Name: "pipeline_running"}),
		PipelineState:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "spotter_loader", Name: "pipeline_state"}),
		CheckpointCursor:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "spotter_loader", Name: "checkpoint_cursor_timestamp_seconds"}),
	}
}
