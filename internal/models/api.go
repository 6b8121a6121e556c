// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package models

import "time"

// Problem is an RFC 7807 problem details document, extended with a stable
// machine-readable code and the request correlation id.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Code    string `json:"code"`
	TraceID string `json:"traceId,omitempty"`
}

// Problem codes returned by the API. These are part of the contract and
// must stay stable across releases.
const (
	CodeValidationFailed    = "validation_failed"
	CodeNotFound            = "not_found"
	CodeConflict            = "conflict"
	CodeStatusFinal         = "status_final"
	CodeNamespaceInactive   = "namespace_inactive"
	CodeBrokerUnavailable   = "broker_unavailable"
	CodeBrokerUnauthorized  = "broker_unauthorized"
	CodeRateLimited         = "rate_limited"
	CodeReplayNotReplayable = "replay_not_replayable"
	CodeInternal            = "internal_error"
)

// Page is the generic paginated list envelope.
type Page[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	PageNumber int   `json:"pageNumber"`
	PageSize   int   `json:"pageSize"`
	HasNext    bool  `json:"hasNext"`
	HasPrev    bool  `json:"hasPrev"`
}

// NewPage builds the envelope and derives the HasNext/HasPrev flags from
// the total count. Items is normalized to an empty slice so the JSON is
// always an array.
func NewPage[T any](items []T, total int64, pageNumber, pageSize int) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{
		Items:      items,
		TotalCount: total,
		PageNumber: pageNumber,
		PageSize:   pageSize,
		HasNext:    int64(pageNumber*pageSize) < total,
		HasPrev:    pageNumber > 1,
	}
}

// DlqSummary is the aggregate DLQ view returned by the summary endpoint.
// RangeDays scopes the aggregates; zero means all time.
type DlqSummary struct {
	RangeDays       int   `json:"rangeDays"`
	TotalEntries    int64 `json:"totalEntries"`
	ActiveEntries   int64 `json:"activeEntries"`
	ResolvedEntries int64 `json:"resolvedEntries"`

	ByStatus    map[DlqStatus]int64       `json:"byStatus"`
	ByCategory  map[FailureCategory]int64 `json:"byCategory"`
	ByNamespace map[string]int64          `json:"byNamespace"`
	ByEntity    map[string]int64          `json:"byEntity"`

	// Daily holds per-calendar-day detection and resolution counts in
	// ascending date order.
	Daily []DailyCounts `json:"daily"`

	OldestDetectedAt *time.Time `json:"oldestDetectedAt,omitempty"`
	NewestDetectedAt *time.Time `json:"newestDetectedAt,omitempty"`
}

// DailyCounts is one day's bucket in the summary. New counts entries
// first detected that day; Resolved counts entries replayed, archived
// or discarded that day.
type DailyCounts struct {
	Date     string `json:"date"` // YYYY-MM-DD, UTC
	New      int64  `json:"new"`
	Resolved int64  `json:"resolved"`
}

// RuleTestResult is returned by the dry-run rule evaluation endpoint.
// EstimatedSuccessRate is the rule's historical successCount/matchCount,
// 0.0 when the rule has never matched (or conditions were given inline).
type RuleTestResult struct {
	Tested               int64             `json:"tested"`
	Matched              int64             `json:"matched"`
	EstimatedSuccessRate float64           `json:"estimatedSuccessRate"`
	SampleMatches        []DlqHistoryEntry `json:"sampleMatches"`
}
