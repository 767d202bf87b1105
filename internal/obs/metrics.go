// Copyright 2025 James Ross
package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// EnqueueTotal counts publishes per queue (spec.md 4.3 "Metrics").
	EnqueueTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enqueue_total",
		Help: "Total number of jobs published, labeled by queue name.",
	}, []string{"queue"})

	// DurationSeconds is the per-delivery processing time, regardless of
	// success or failure (spec.md 8 invariant: exactly one observation per
	// delivery).
	DurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "duration_seconds",
		Help:    "Histogram of job processing durations, labeled by queue name.",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue"})

	// FailuresTotal counts handler exceptions per queue.
	FailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "failures_total",
		Help: "Total number of handler exceptions, labeled by queue name.",
	}, []string{"queue"})

	EngineRestartsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "engine_restarts_total",
		Help: "Total number of optimization-engine restarts.",
	})

	AssetOptimizationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_optimizations_total",
		Help: "Total number of per-asset optimizations, labeled by result.",
	}, []string{"result"})

	MonitoringReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monitoring_reports_total",
		Help: "Total number of monitoring reports sent, labeled by kind and result.",
	}, []string{"kind", "result"})

	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open, labeled by breaker name.",
	}, []string{"name"})

	CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_trips_total",
		Help: "Count of times a breaker transitioned to Open, labeled by breaker name.",
	}, []string{"name"})
)

func init() {
	prometheus.MustRegister(
		EnqueueTotal,
		DurationSeconds,
		FailuresTotal,
		EngineRestartsTotal,
		AssetOptimizationsTotal,
		MonitoringReportsTotal,
		CircuitBreakerState,
		CircuitBreakerTrips,
	)
}
