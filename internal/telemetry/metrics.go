package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedRequestDuration tracks end-to-end ranking latency.
	FeedRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_request_duration_seconds",
		Help:    "Time taken to produce a ranked feed page",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})

	// FeedCandidateCount tracks candidate set sizes before truncation.
	FeedCandidateCount = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_candidates_count",
		Help:    "Number of candidates gathered per request",
		Buckets: []float64{1, 10, 30, 60, 100, 200, 400},
	})

	// FeedDegraded counts requests served with a degraded signal set.
	FeedDegraded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_degraded_total",
		Help: "Feed requests that lost a signal source, by source",
	}, []string{"source"}) // source: cache, store, bandit

	// CacheHits / CacheMisses track product meta hydration.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_meta_cache_hits_total",
		Help: "Product meta entries served from cache",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feed_meta_cache_misses_total",
		Help: "Product meta entries hydrated from the store",
	})

	// EventsProcessed counts consumed events by outcome.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_events_processed_total",
		Help: "Events drained from the queue, by outcome",
	}, []string{"outcome"}) // outcome: ok, malformed, failed

	// EventQueueDepth is the current event backlog.
	EventQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feed_event_queue_depth",
		Help: "Current length of the events list",
	})

	// WorkerRunDuration tracks batch job runtimes.
	WorkerRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feed_worker_run_duration_seconds",
		Help:    "Time taken by batch worker runs, by job",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"job"}) // job: aggregate, train, cleanup

	// WorkerRunErrors counts failed batch runs.
	WorkerRunErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_worker_run_errors_total",
		Help: "Batch worker runs that returned an error, by job",
	}, []string{"job"})

	// WorkerRowsWritten counts rows/entries written back per job.
	WorkerRowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_worker_rows_written_total",
		Help: "Rows or cache entries written by batch jobs, by job",
	}, []string{"job"})
)
