package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the retrieval pipeline.
// Source-level counters are labeled by source identifier so per-provider
// behavior stays visible when several sources run in one pipeline.
type Metrics struct {
	// RunsStarted counts pipeline runs initiated.
	RunsStarted prometheus.Counter

	// RunsCompleted counts pipeline runs that finished with at least one
	// usable source result.
	RunsCompleted prometheus.Counter

	// RunsFailed counts pipeline runs where every source failed.
	RunsFailed prometheus.Counter

	// RunDuration observes the end-to-end duration of runs in seconds.
	RunDuration prometheus.Histogram

	// SearchesStarted counts source searches initiated, labeled by source.
	SearchesStarted *prometheus.CounterVec

	// SearchesCompleted counts source searches that settled ok, labeled by source.
	SearchesCompleted *prometheus.CounterVec

	// SearchesPartial counts source searches cut off by the deadline guard,
	// labeled by source.
	SearchesPartial *prometheus.CounterVec

	// SearchesFailed counts source searches that settled with an error,
	// labeled by source and error kind.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes source search duration in seconds, labeled by source.
	SearchDuration *prometheus.HistogramVec

	// RecordsFetched counts records returned by sources before dedup, labeled by source.
	RecordsFetched *prometheus.CounterVec

	// RecordsAdded counts records that survived dedup, labeled by source.
	RecordsAdded *prometheus.CounterVec

	// RecordsDuplicate counts records discarded as title duplicates, labeled by source.
	RecordsDuplicate *prometheus.CounterVec

	// OptimizerRequests counts synonym-generation calls, labeled by outcome
	// ("ok", "error", "disabled").
	OptimizerRequests *prometheus.CounterVec

	// SnapshotWrites counts incremental snapshot writes.
	SnapshotWrites prometheus.Counter

	// SnapshotFailures counts snapshot writes that failed. Failures are
	// logged and never abort the run.
	SnapshotFailures prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the provided registerer.
// Pass prometheus.DefaultRegisterer for production use, or a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "litscout_runs_started_total",
			Help: "Total number of pipeline runs initiated.",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "litscout_runs_completed_total",
			Help: "Total number of pipeline runs with at least one usable source result.",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "litscout_runs_failed_total",
			Help: "Total number of pipeline runs where every source failed.",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "litscout_run_duration_seconds",
			Help:    "End-to-end pipeline run duration in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		SearchesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "litscout_searches_started_total",
			Help: "Source searches initiated, by source.",
		}, []string{"source"}),
		SearchesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "litscout_searches_completed_total",
			Help: "Source searches that settled ok, by source.",
		}, []string{"source"}),
		SearchesPartial: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "litscout_searches_partial_total",
			Help: "Source searches cut off by the deadline guard, by source.",
		}, []string{"source"}),
		SearchesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "litscout_searches_failed_total",
			Help: "Source searches that settled with an error, by source and error kind.",
		}, []string{"source", "kind"}),
		SearchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "litscout_search_duration_seconds",
			Help:    "Source search duration in seconds, by source.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 180, 300},
		}, []string{"source"}),
		RecordsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "litscout_records_fetched_total",
			Help: "Records returned by sources before dedup, by source.",
		}, []string{"source"}),
		RecordsAdded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "litscout_records_added_total",
			Help: "Records that survived dedup, by source.",
		}, []string{"source"}),
		RecordsDuplicate: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "litscout_records_duplicate_total",
			Help: "Records discarded as normalized-title duplicates, by source.",
		}, []string{"source"}),
		OptimizerRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "litscout_optimizer_requests_total",
			Help: "Synonym-generation calls, by outcome.",
		}, []string{"outcome"}),
		SnapshotWrites: factory.NewCounter(prometheus.CounterOpts{
			Name: "litscout_snapshot_writes_total",
			Help: "Incremental snapshot writes.",
		}),
		SnapshotFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "litscout_snapshot_failures_total",
			Help: "Incremental snapshot writes that failed.",
		}),
	}
}
