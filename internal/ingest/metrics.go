package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message outcomes
const (
	outcomeAccepted  = "accepted"
	outcomeStale     = "stale"
	outcomeMalformed = "malformed"
)

var (
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobfeed",
		Subsystem: "ingest",
		Name:      "messages_total",
		Help:      "Queue messages processed by decode outcome",
	}, []string{"outcome"})

	jobsMergedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jobfeed",
		Subsystem: "ingest",
		Name:      "jobs_merged_total",
		Help:      "Jobs merged into the current bucket",
	})

	mergeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jobfeed",
		Subsystem: "ingest",
		Name:      "merge_failures_total",
		Help:      "Accepted messages whose jobs could not be merged",
	})

	ackFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jobfeed",
		Subsystem: "ingest",
		Name:      "ack_failures_total",
		Help:      "Messages that could not be acknowledged or dead-lettered",
	})

	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jobfeed",
		Subsystem: "ingest",
		Name:      "cycles_total",
		Help:      "Ingestion cycles by result",
	}, []string{"result"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jobfeed",
		Subsystem: "ingest",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of ingestion cycles",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
)
