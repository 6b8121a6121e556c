// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

/*
Package metrics provides Prometheus metrics collection and export.

Collectors are registered with promauto at package load and exposed at
the /metrics endpoint in Prometheus text format.

# Available Metrics

HTTP:
  - api_requests_total (counter; method, endpoint, status_code)
  - api_request_duration_seconds (histogram; method, endpoint)
  - api_active_requests (gauge)
  - api_rate_limit_hits_total (counter; endpoint)

Store (DuckDB):
  - duckdb_query_duration_seconds (histogram; operation)
  - duckdb_query_errors_total (counter; operation)

DLQ monitor:
  - dlq_monitor_cycle_duration_seconds (histogram; namespace)
  - dlq_monitor_cycles_total (counter; namespace, result)
  - dlq_monitor_entries_created_total (counter; namespace)
  - dlq_monitor_messages_peeked_total (counter; namespace)
  - dlq_monitor_last_success_timestamp (gauge; namespace)
  - dlq_active_entries (gauge; namespace)

Rules and replay:
  - rule_matches_total (counter; rule)
  - rule_replays_skipped_total (counter; rule)
  - replay_outcomes_total (counter; outcome, initiator)
  - replay_attempts_per_job (histogram)
  - replay_queue_depth (gauge)

Broker gateways:
  - broker_circuit_breaker_state (gauge; namespace)
  - broker_circuit_breaker_transitions_total (counter; name, from_state, to_state)

# Usage

	defer func(start time.Time) {
	    metrics.RecordStoreQuery("upsert", time.Since(start), err)
	}(time.Now())
*/
package metrics
