// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/debdevops/servicehub/internal/dlqstore"
	"github.com/debdevops/servicehub/internal/models"
	"github.com/debdevops/servicehub/internal/validation"
)

// createNamespaceRequest registers a broker namespace. The connection
// string is encrypted at rest and never echoed back.
type createNamespaceRequest struct {
	Name             string `json:"name" validate:"required,min=1,max=100"`
	DisplayName      string `json:"displayName" validate:"max=200"`
	ConnectionString string `json:"connectionString" validate:"required"`
	Active           *bool  `json:"active"`
}

type updateNamespaceRequest struct {
	DisplayName      *string `json:"displayName" validate:"omitempty,max=200"`
	ConnectionString *string `json:"connectionString" validate:"omitempty,min=1"`
	Active           *bool   `json:"active"`
}

// sendMessageRequest submits a message to a queue or topic. Body is the
// payload verbatim; binary content should be base64-encoded by the caller
// with a matching contentType.
type sendMessageRequest struct {
	MessageID             string         `json:"messageId" validate:"max=200"`
	Body                  string         `json:"body" validate:"required"`
	ContentType           string         `json:"contentType" validate:"max=200"`
	CorrelationID         string         `json:"correlationId" validate:"max=200"`
	SessionID             string         `json:"sessionId" validate:"max=200"`
	ApplicationProperties map[string]any `json:"applicationProperties"`
}

// deadLetterRequest moves a live message to the dead-letter sub-queue.
// Test tooling only; production brokers may not support it.
type deadLetterRequest struct {
	MessageID        string `json:"messageId" validate:"required"`
	Reason           string `json:"reason" validate:"max=500"`
	ErrorDescription string `json:"errorDescription" validate:"max=2000"`
}

// ruleRequest creates or replaces a replay rule. Condition semantics are
// validated separately so errors can name the failing condition index.
type ruleRequest struct {
	Name              string                 `json:"name" validate:"required,min=1,max=100"`
	Description       string                 `json:"description" validate:"max=1000"`
	Enabled           *bool                  `json:"enabled"`
	Conditions        []models.RuleCondition `json:"conditions" validate:"required,min=1,max=20"`
	Action            models.RuleAction      `json:"action"`
	MaxReplaysPerHour int                    `json:"maxReplaysPerHour" validate:"min=1,max=10000"`
}

// ruleTestRequest dry-runs a stored rule (by id) or ad-hoc conditions
// against currently Active entries.
type ruleTestRequest struct {
	RuleID      string                 `json:"ruleId"`
	Conditions  []models.RuleCondition `json:"conditions"`
	NamespaceID string                 `json:"namespaceId"`
	MaxMessages int                    `json:"maxMessages" validate:"min=0,max=10000"`
}

type notesRequest struct {
	Notes string `json:"notes" validate:"max=4000"`
}

// statusRequest archives or discards an entry. Other statuses are owned by
// the replay executor and rejected here.
type statusRequest struct {
	Status models.DlqStatus `json:"status" validate:"required"`
	Notes  *string          `json:"notes" validate:"omitempty,max=4000"`
}

// replayRequest optionally overrides the manual replay action. An empty
// body replays immediately to the origin entity.
type replayRequest struct {
	TargetEntity       string `json:"targetEntity" validate:"max=260"`
	DelaySeconds       int    `json:"delaySeconds" validate:"min=0,max=3600"`
	MaxRetries         int    `json:"maxRetries" validate:"min=0,max=10"`
	ExponentialBackoff bool   `json:"exponentialBackoff"`
}

// decodeAndValidate decodes the JSON body into dst and runs struct
// validation. Malformed JSON and failed validation both surface as
// validation problems.
func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequestf("invalid JSON body: %v", err)
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		return verr
	}
	return nil
}

// badRequestError carries a client-facing 400 detail through the error
// mapping without inventing a sentinel per message.
type badRequestError struct{ detail string }

func (e *badRequestError) Error() string { return e.detail }

func badRequestf(format string, args ...any) error {
	return &badRequestError{detail: fmt.Sprintf(format, args...)}
}

// parsePage extracts page/pageSize with the configured default and cap.
func (rt *Router) parsePage(r *http.Request) (page, pageSize int, err error) {
	q := r.URL.Query()
	page = 1
	if raw := q.Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, badRequestf("page must be a positive integer, got %q", raw)
		}
	}
	pageSize = rt.cfg.API.DefaultPageSize
	if raw := q.Get("pageSize"); raw != "" {
		pageSize, err = strconv.Atoi(raw)
		if err != nil || pageSize < 1 {
			return 0, 0, badRequestf("pageSize must be a positive integer, got %q", raw)
		}
	}
	if pageSize > rt.cfg.API.MaxPageSize {
		pageSize = rt.cfg.API.MaxPageSize
	}
	return page, pageSize, nil
}

// parseDlqFilter builds the history filter from query parameters. Unknown
// status or category values are rejected rather than silently matching
// nothing.
func (rt *Router) parseDlqFilter(r *http.Request) (dlqstore.Filter, error) {
	q := r.URL.Query()
	f := dlqstore.Filter{
		NamespaceID: q.Get("namespaceId"),
		EntityName:  q.Get("entityName"),
		TopicName:   q.Get("topicName"),
		Search:      q.Get("search"),
	}

	if raw := q.Get("status"); raw != "" {
		status := models.DlqStatus(raw)
		if !status.Valid() {
			return f, badRequestf("unknown status %q", raw)
		}
		f.Status = status
	}
	if raw := q.Get("category"); raw != "" {
		f.Category = models.FailureCategory(raw)
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, badRequestf("from must be RFC 3339, got %q", raw)
		}
		f.DetectedFrom = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, badRequestf("to must be RFC 3339, got %q", raw)
		}
		f.DetectedTo = &t
	}

	page, pageSize, err := rt.parsePage(r)
	if err != nil {
		return f, err
	}
	f.Page = page
	f.PageSize = pageSize
	return f, nil
}

// pageHeaders mirrors the pagination envelope in response headers.
func pageHeaders(w http.ResponseWriter, total int64, page, pageSize int) {
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	w.Header().Set("X-Page-Number", strconv.Itoa(page))
	w.Header().Set("X-Page-Size", strconv.Itoa(pageSize))
}
