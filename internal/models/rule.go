// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package models

import "time"

// RuleField is the DLQ entry attribute a condition inspects.
type RuleField string

const (
	FieldDeadLetterReason           RuleField = "DeadLetterReason"
	FieldDeadLetterErrorDescription RuleField = "DeadLetterErrorDescription"
	FieldFailureCategory            RuleField = "FailureCategory"
	FieldEntityName                 RuleField = "EntityName"
	FieldDeliveryCount              RuleField = "DeliveryCount"
	FieldContentType                RuleField = "ContentType"
	FieldTopicName                  RuleField = "TopicName"
	FieldCorrelationID              RuleField = "CorrelationId"
	FieldApplicationProperty        RuleField = "ApplicationProperty"
)

// Valid reports whether the field is one of the known values.
func (f RuleField) Valid() bool {
	switch f {
	case FieldDeadLetterReason, FieldDeadLetterErrorDescription, FieldFailureCategory,
		FieldEntityName, FieldDeliveryCount, FieldContentType, FieldTopicName,
		FieldCorrelationID, FieldApplicationProperty:
		return true
	}
	return false
}

// RuleOperator is the comparison applied by a condition.
type RuleOperator string

const (
	OpContains    RuleOperator = "Contains"
	OpNotContains RuleOperator = "NotContains"
	OpEquals      RuleOperator = "Equals"
	OpNotEquals   RuleOperator = "NotEquals"
	OpStartsWith  RuleOperator = "StartsWith"
	OpEndsWith    RuleOperator = "EndsWith"
	OpRegex       RuleOperator = "Regex"
	OpGreaterThan RuleOperator = "GreaterThan"
	OpLessThan    RuleOperator = "LessThan"
	OpIn          RuleOperator = "In"
)

// Valid reports whether the operator is one of the known values.
func (o RuleOperator) Valid() bool {
	switch o {
	case OpContains, OpNotContains, OpEquals, OpNotEquals, OpStartsWith,
		OpEndsWith, OpRegex, OpGreaterThan, OpLessThan, OpIn:
		return true
	}
	return false
}

// RuleCondition is one predicate of a rule. All conditions of a rule are
// combined with AND.
type RuleCondition struct {
	Field         RuleField    `json:"field"`
	Operator      RuleOperator `json:"operator"`
	Value         string       `json:"value"`
	CaseSensitive bool         `json:"caseSensitive"`

	// PropertyKey is required iff Field is ApplicationProperty.
	PropertyKey string `json:"propertyKey,omitempty"`
}

// RuleAction describes what happens when a rule matches.
type RuleAction struct {
	AutoReplay         bool   `json:"autoReplay"`
	DelaySeconds       int    `json:"delaySeconds"`
	MaxRetries         int    `json:"maxRetries"`
	ExponentialBackoff bool   `json:"exponentialBackoff"`
	TargetEntity       string `json:"targetEntity,omitempty"`
}

// Rule is an operator-defined match-and-replay rule evaluated against DLQ
// history entries.
type Rule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`

	// DisabledReason is set when the system disables a rule (for example
	// an invalid regex condition) and is surfaced to operators.
	DisabledReason string `json:"disabledReason,omitempty"`

	Conditions []RuleCondition `json:"conditions"`
	Action     RuleAction      `json:"action"`

	// MaxReplaysPerHour caps auto-replays in any rolling 3600s window.
	MaxReplaysPerHour int `json:"maxReplaysPerHour"`

	MatchCount   int64 `json:"matchCount"`
	SuccessCount int64 `json:"successCount"`

	// Version increments on every update; the compiled-regex cache is
	// keyed by (ID, Version).
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
