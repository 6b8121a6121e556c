// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package models

import "time"

// DlqStatus is the lifecycle status of a DLQ history entry.
type DlqStatus string

const (
	StatusActive       DlqStatus = "Active"
	StatusReplayed     DlqStatus = "Replayed"
	StatusArchived     DlqStatus = "Archived"
	StatusDiscarded    DlqStatus = "Discarded"
	StatusReplayFailed DlqStatus = "ReplayFailed"
)

// Valid reports whether the status is one of the known values.
func (s DlqStatus) Valid() bool {
	switch s {
	case StatusActive, StatusReplayed, StatusArchived, StatusDiscarded, StatusReplayFailed:
		return true
	}
	return false
}

// Resolved reports whether the status counts as resolved for summary
// statistics.
func (s DlqStatus) Resolved() bool {
	switch s {
	case StatusReplayed, StatusArchived, StatusDiscarded:
		return true
	}
	return false
}

// CanTransitionTo enforces status finality: once an entry is Replayed,
// Archived or Discarded only archival is allowed; ReplayFailed may move to
// Replayed after a successful retry.
func (s DlqStatus) CanTransitionTo(next DlqStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusActive:
		return true
	case StatusReplayFailed:
		return next == StatusReplayed || next == StatusArchived || next == StatusDiscarded
	case StatusReplayed:
		return next == StatusArchived
	case StatusArchived:
		return next == StatusReplayed // notes round-trip only, per finality rules
	case StatusDiscarded:
		return false
	}
	return false
}

// FailureCategory is the classifier-assigned failure category.
type FailureCategory string

const (
	CategoryTransient        FailureCategory = "Transient"
	CategoryMaxDelivery      FailureCategory = "MaxDelivery"
	CategoryExpired          FailureCategory = "Expired"
	CategoryDataQuality      FailureCategory = "DataQuality"
	CategoryAuthorization    FailureCategory = "Authorization"
	CategoryProcessingError  FailureCategory = "ProcessingError"
	CategoryResourceNotFound FailureCategory = "ResourceNotFound"
	CategoryQuotaExceeded    FailureCategory = "QuotaExceeded"
	CategoryUnknown          FailureCategory = "Unknown"
)

// DedupKey uniquely identifies one broker message as observed by this
// system. TopicName is empty for queue messages.
type DedupKey struct {
	NamespaceID     string     `json:"namespaceId"`
	EntityName      string     `json:"entityName"`
	EntityType      EntityType `json:"entityType"`
	TopicName       string     `json:"topicName,omitempty"`
	BrokerMessageID string     `json:"brokerMessageId"`
	SequenceNumber  int64      `json:"sequenceNumber"`
}

// DlqHistoryEntry is the persisted record of one dead-lettered message from
// detection through resolution. Identity is the dedup key; ID is a
// surrogate.
type DlqHistoryEntry struct {
	ID int64 `json:"id"`

	DedupKey

	BodyHash string `json:"bodyHash"`

	EnqueuedAtUTC     *time.Time `json:"enqueuedAtUtc,omitempty"`
	DeadLetteredAtUTC *time.Time `json:"deadLetteredAtUtc,omitempty"`
	DetectedAtUTC     time.Time  `json:"detectedAtUtc"`

	DeadLetterReason           string `json:"deadLetterReason,omitempty"`
	DeadLetterErrorDescription string `json:"deadLetterErrorDescription,omitempty"`

	DeliveryCount int64 `json:"deliveryCount"`

	ContentType               string `json:"contentType,omitempty"`
	SizeBytes                 int64  `json:"sizeBytes"`
	BodyPreview               string `json:"bodyPreview,omitempty"`
	ApplicationPropertiesJSON string `json:"applicationPropertiesJson,omitempty"`

	FailureCategory    FailureCategory `json:"failureCategory"`
	CategoryConfidence float64         `json:"categoryConfidence"`

	Status DlqStatus `json:"status"`

	ReplayedAt    *time.Time `json:"replayedAt,omitempty"`
	ReplaySuccess *bool      `json:"replaySuccess,omitempty"`
	ArchivedAt    *time.Time `json:"archivedAt,omitempty"`
	UserNotes     string     `json:"userNotes,omitempty"`

	CorrelationID string `json:"correlationId,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
}

// ReplayOutcome is the stored result of one replay attempt sequence.
type ReplayOutcome string

const (
	ReplayOutcomeSuccess ReplayOutcome = "Success"
	ReplayOutcomeFailed  ReplayOutcome = "Failed"
)

// ReplayedByManual marks operator-initiated replays in ReplayedBy.
const ReplayedByManual = "manual"

// ReplayHistoryEntry records one replay of a DLQ history entry.
type ReplayHistoryEntry struct {
	ID         int64     `json:"id"`
	DlqEntryID int64     `json:"dlqEntryId"`
	ReplayedAt time.Time `json:"replayedAt"`

	// ReplayedBy is a rule ID or ReplayedByManual.
	ReplayedBy string `json:"replayedBy"`

	// Strategy is opaque metadata describing how the replay was executed.
	Strategy string `json:"strategy,omitempty"`

	ReplayedToEntity string        `json:"replayedToEntity"`
	OutcomeStatus    ReplayOutcome `json:"outcomeStatus"`
	Attempts         int           `json:"attempts"`

	NewDeadLetterReason string `json:"newDeadLetterReason,omitempty"`
	ErrorDetails        string `json:"errorDetails,omitempty"`
}

// TimelineEventType identifies one event in a message's reconstructed
// timeline. The declaration order is the stable tiebreak for events
// sharing a timestamp.
type TimelineEventType string

const (
	EventEnqueued        TimelineEventType = "Enqueued"
	EventDeadLettered    TimelineEventType = "DeadLettered"
	EventDetected        TimelineEventType = "Detected"
	EventReplayedSuccess TimelineEventType = "ReplayedSuccess"
	EventReplayedFailed  TimelineEventType = "ReplayedFailed"
	EventStatusChanged   TimelineEventType = "StatusChanged"
	EventArchived        TimelineEventType = "Archived"
)

// timelineOrder maps event types to their tiebreak rank.
var timelineOrder = map[TimelineEventType]int{
	EventEnqueued:        0,
	EventDeadLettered:    1,
	EventDetected:        2,
	EventReplayedSuccess: 3,
	EventReplayedFailed:  4,
	EventStatusChanged:   5,
	EventArchived:        6,
}

// Order returns the tiebreak rank of the event type.
func (t TimelineEventType) Order() int {
	return timelineOrder[t]
}

// TimelineEvent is one event in the derived per-message timeline. It is a
// view reconstructed from DlqHistoryEntry fields and replay history, not a
// separately stored record.
type TimelineEvent struct {
	Type      TimelineEventType `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Detail    string            `json:"detail,omitempty"`
}
