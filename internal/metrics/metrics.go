// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Store Metrics (DuckDB)
	StoreQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of failed DuckDB queries",
		},
		[]string{"operation"},
	)

	// Monitor Metrics
	MonitorCycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dlq_monitor_cycle_duration_seconds",
			Help:    "Duration of one namespace monitor cycle in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"namespace"},
	)

	MonitorCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_monitor_cycles_total",
			Help: "Total number of namespace monitor cycles",
		},
		[]string{"namespace", "result"}, // result: "ok", "error", "unauthorized", "skipped"
	)

	MonitorEntriesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_monitor_entries_created_total",
			Help: "Total number of new DLQ history entries detected",
		},
		[]string{"namespace"},
	)

	MonitorMessagesPeeked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_monitor_messages_peeked_total",
			Help: "Total number of DLQ messages examined",
		},
		[]string{"namespace"},
	)

	MonitorLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dlq_monitor_last_success_timestamp",
			Help: "Unix timestamp of the last successful monitor cycle",
		},
		[]string{"namespace"},
	)

	DLQActiveEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dlq_active_entries",
			Help: "Current number of unresolved DLQ history entries",
		},
		[]string{"namespace"},
	)

	// Rule Engine Metrics
	RuleMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_matches_total",
			Help: "Total number of rule matches against DLQ entries",
		},
		[]string{"rule"},
	)

	RuleReplaysSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_replays_skipped_total",
			Help: "Total number of auto-replays skipped by the hourly rate budget",
		},
		[]string{"rule"},
	)

	// Replay Metrics
	ReplayOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_outcomes_total",
			Help: "Total number of completed replays by outcome",
		},
		[]string{"outcome", "initiator"}, // outcome: "success", "failed"; initiator: "rule", "manual"
	)

	ReplayAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "replay_attempts_per_job",
			Help:    "Number of send attempts per replay job",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		},
	)

	ReplayQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "replay_queue_depth",
			Help: "Current number of queued replay jobs",
		},
	)

	// Broker Gateway Metrics
	BrokerBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "broker_circuit_breaker_state",
			Help: "Broker circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"namespace"},
	)

	BrokerBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_circuit_breaker_transitions_total",
			Help: "Total number of broker circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordStoreQuery records a store query metric
func RecordStoreQuery(operation string, duration time.Duration, err error) {
	StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		StoreQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordMonitorCycle records the outcome of one namespace monitor cycle
func RecordMonitorCycle(namespace, result string, duration time.Duration) {
	MonitorCycles.WithLabelValues(namespace, result).Inc()
	MonitorCycleDuration.WithLabelValues(namespace).Observe(duration.Seconds())
	if result == "ok" {
		MonitorLastSuccess.WithLabelValues(namespace).Set(float64(time.Now().Unix()))
	}
}

// RecordReplayOutcome records a completed replay job
func RecordReplayOutcome(success bool, initiator string, attempts int) {
	outcome := "success"
	if !success {
		outcome = "failed"
	}
	ReplayOutcomes.WithLabelValues(outcome, initiator).Inc()
	ReplayAttempts.Observe(float64(attempts))
}
