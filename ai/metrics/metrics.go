// Package metrics exposes the Prometheus instruments of the request
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts finished orchestrations by outcome.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crewmind",
		Subsystem: "orchestrator",
		Name:      "requests_total",
		Help:      "Finished request orchestrations.",
	}, []string{"skill", "function", "status"})

	// StageDuration observes per-stage latency of the pipeline.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "crewmind",
		Subsystem: "orchestrator",
		Name:      "stage_duration_seconds",
		Help:      "Latency of pipeline stages.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"stage"})

	// DedupHits counts suppressed platform redeliveries.
	DedupHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crewmind",
		Subsystem: "gateway",
		Name:      "dedup_hits_total",
		Help:      "Events suppressed as redeliveries.",
	})

	// SelfEventsDropped counts our own posts echoed back by the platform.
	SelfEventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crewmind",
		Subsystem: "gateway",
		Name:      "self_events_dropped_total",
		Help:      "Self-originated events dropped before dispatch.",
	})

	// RetrievalChunks observes how many chunks survive the relevance
	// floor per retrieval.
	RetrievalChunks = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crewmind",
		Subsystem: "retrieval",
		Name:      "chunks_returned",
		Help:      "Chunks surviving the relevance floor per query.",
		Buckets:   prometheus.LinearBuckets(0, 1, 11),
	})
)
