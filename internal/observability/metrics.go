package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wsjtx_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ingestion pipeline.
type Metrics struct {
	DecodesReceived *prometheus.CounterVec // labels: type={heartbeat,status,decode,wspr_decode,other}
	DecodesDropped  *prometheus.CounterVec // labels: reason={not_tuned,off_air,not_new,low_confidence,empty_message,unknown_mode}
	PipelineRunning prometheus.Gauge

	// Queue metrics.
	EntriesEnqueued prometheus.Counter
	EntriesWritten  prometheus.Counter
	EntriesPending  prometheus.Gauge
	FlushFailures   prometheus.Counter
	FlushDuration   prometheus.Histogram
	BatchSize       prometheus.Histogram

	GeodesicCache *prometheus.CounterVec // labels: result={hit,miss}
	ReplayLines   *prometheus.CounterVec // labels: outcome={parsed,skipped,invalid,unknown_mode}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.DecodesReceived,
		m.DecodesDropped,
		m.PipelineRunning,
		m.EntriesEnqueued,
		m.EntriesWritten,
		m.EntriesPending,
		m.FlushFailures,
		m.FlushDuration,
		m.BatchSize,
		m.GeodesicCache,
		m.ReplayLines,
	)

	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// every test can own a fresh set.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DecodesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decodes_received_total",
			Help:      "WSJT-X telegrams received, by type.",
		}, []string{"type"}),
		DecodesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decodes_dropped_total",
			Help:      "Decodes discarded before enqueueing, by reason.",
		}, []string{"reason"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		EntriesEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_enqueued_total",
			Help:      "Total entries added to the ingestion queue.",
		}),
		EntriesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_written_total",
			Help:      "Total entries delivered to the sinks.",
		}),
		EntriesPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entries_pending",
			Help:      "Entries buffered in the ingestion queue.",
		}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_failures_total",
			Help:      "Total flushes that failed to write to a sink.",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Duration of a sink write during a flush.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of entries written per flush.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
		GeodesicCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geodesic_cache_total",
			Help:      "Geodesic cache lookups by result.",
		}, []string{"result"}),
		ReplayLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_lines_total",
			Help:      "Log lines read during replay, by outcome.",
		}, []string{"outcome"}),
	}
}

// ObserveGeodesicCache records a geodesic cache lookup.
func (m *Metrics) ObserveGeodesicCache(hit bool) {
	if hit {
		m.GeodesicCache.WithLabelValues("hit").Inc()
		return
	}
	m.GeodesicCache.WithLabelValues("miss").Inc()
}
