// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package query is the read side of the DLQ history: paged listings,
// full entry detail with replay history, the reconstructed per-message
// timeline, and the fleet summary. It never mutates the store.
package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/goccy/go-json"

	"github.com/debdevops/servicehub/internal/dlqstore"
	"github.com/debdevops/servicehub/internal/models"
)

// Service answers read queries against the DLQ history store.
type Service struct {
	store *dlqstore.Store
}

func NewService(store *dlqstore.Store) *Service {
	return &Service{store: store}
}

// List returns one page of history entries plus the total match count
// across all pages.
func (s *Service) List(ctx context.Context, f dlqstore.Filter) ([]models.DlqHistoryEntry, int64, error) {
	return s.store.List(ctx, f)
}

// Detail is the full view of one entry: the stored record, its
// application properties decoded back into a map, and every replay
// recorded against it, oldest first.
type Detail struct {
	models.DlqHistoryEntry

	ApplicationProperties map[string]any              `json:"applicationProperties,omitempty"`
	Replays               []models.ReplayHistoryEntry `json:"replays"`
}

// Get loads one entry with its replay history. Returns
// dlqstore.ErrNotFound for unknown IDs.
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	replays, err := s.store.Replays(ctx, id)
	if err != nil {
		return nil, err
	}

	d := &Detail{DlqHistoryEntry: *entry, Replays: replays}
	if entry.ApplicationPropertiesJSON != "" {
		// Properties were serialized at detection time; a decode failure
		// here means corruption, not a caller error, so the raw JSON
		// stays available on the embedded entry.
		_ = json.Unmarshal([]byte(entry.ApplicationPropertiesJSON), &d.ApplicationProperties)
	}
	return d, nil
}

// Timeline reconstructs the lifecycle of one entry from its stored
// timestamps and replay history. Events are ordered by timestamp
// ascending, with the event type's declaration order as the tiebreak
// for equal timestamps.
func (s *Service) Timeline(ctx context.Context, id int64) ([]models.TimelineEvent, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	replays, err := s.store.Replays(ctx, id)
	if err != nil {
		return nil, err
	}

	var events []models.TimelineEvent
	if entry.EnqueuedAtUTC != nil {
		events = append(events, models.TimelineEvent{
			Type:      models.EventEnqueued,
			Timestamp: *entry.EnqueuedAtUTC,
			Detail:    fmt.Sprintf("Enqueued on %s", entry.EntityName),
		})
	}
	if entry.DeadLetteredAtUTC != nil {
		events = append(events, models.TimelineEvent{
			Type:      models.EventDeadLettered,
			Timestamp: *entry.DeadLetteredAtUTC,
			Detail:    entry.DeadLetterReason,
		})
	}
	events = append(events, models.TimelineEvent{
		Type:      models.EventDetected,
		Timestamp: entry.DetectedAtUTC,
		Detail:    fmt.Sprintf("Classified as %s", entry.FailureCategory),
	})

	for _, r := range replays {
		typ := models.EventReplayedSuccess
		detail := fmt.Sprintf("Replayed to %s by %s", r.ReplayedToEntity, r.ReplayedBy)
		if r.OutcomeStatus != models.ReplayOutcomeSuccess {
			typ = models.EventReplayedFailed
			detail = fmt.Sprintf("Replay to %s by %s failed", r.ReplayedToEntity, r.ReplayedBy)
			if r.ErrorDetails != "" {
				detail += ": " + r.ErrorDetails
			}
		}
		events = append(events, models.TimelineEvent{Type: typ, Timestamp: r.ReplayedAt, Detail: detail})
	}

	if entry.ArchivedAt != nil {
		switch entry.Status {
		case models.StatusArchived:
			events = append(events, models.TimelineEvent{
				Type:      models.EventArchived,
				Timestamp: *entry.ArchivedAt,
				Detail:    entry.UserNotes,
			})
		case models.StatusDiscarded:
			events = append(events, models.TimelineEvent{
				Type:      models.EventStatusChanged,
				Timestamp: *entry.ArchivedAt,
				Detail:    "Discarded",
			})
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Type.Order() < events[j].Type.Order()
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// Summary returns the fleet-wide aggregate counts, scoped to entries
// detected within the last rangeDays days; zero means all time.
func (s *Service) Summary(ctx context.Context, rangeDays int) (*models.DlqSummary, error) {
	return s.store.Summary(ctx, rangeDays)
}
