// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package dlqstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/debdevops/servicehub/internal/config"
	"github.com/debdevops/servicehub/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(&config.StoreConfig{Path: "", MaxMemory: "512MB", Threads: 2})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testEntry(seq int64) *models.DlqHistoryEntry {
	return &models.DlqHistoryEntry{
		DedupKey: models.DedupKey{
			NamespaceID:     "ns-1",
			EntityName:      "orders",
			EntityType:      models.EntityTypeQueue,
			BrokerMessageID: fmt.Sprintf("m-%d", seq),
			SequenceNumber:  seq,
		},
		BodyHash:           "abc123",
		DeadLetterReason:   "MaxDeliveryCountExceeded",
		DeliveryCount:      10,
		SizeBytes:          42,
		BodyPreview:        `{"n":1}`,
		FailureCategory:    models.CategoryMaxDelivery,
		CategoryConfidence: 0.99,
	}
}

func TestUpsertCreatesThenMerges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := testEntry(101)
	created, err := s.Upsert(ctx, entry)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !created {
		t.Fatal("first upsert should create")
	}
	if entry.ID == 0 {
		t.Fatal("id not assigned")
	}
	if entry.Status != models.StatusActive {
		t.Errorf("status = %s, want Active", entry.Status)
	}
	firstDetected := entry.DetectedAtUTC

	// Re-observation with a higher delivery count merges.
	again := testEntry(101)
	again.DeliveryCount = 12
	again.DeadLetterErrorDescription = "still failing"
	created, err = s.Upsert(ctx, again)
	if err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	if created {
		t.Fatal("second upsert must not create")
	}
	if again.ID != entry.ID {
		t.Errorf("merged id = %d, want %d", again.ID, entry.ID)
	}
	if again.DeliveryCount != 12 {
		t.Errorf("delivery count = %d, want 12", again.DeliveryCount)
	}
	if !again.DetectedAtUTC.Equal(firstDetected) {
		t.Errorf("detectedAt changed on merge: %s vs %s", again.DetectedAtUTC, firstDetected)
	}
	if again.DeadLetterErrorDescription != "still failing" {
		t.Error("error description should refresh on merge")
	}

	// A lower delivery count never shrinks the stored value.
	lower := testEntry(101)
	lower.DeliveryCount = 3
	if _, err := s.Upsert(ctx, lower); err != nil {
		t.Fatalf("third Upsert: %v", err)
	}
	if lower.DeliveryCount != 12 {
		t.Errorf("delivery count after lower observation = %d, want 12", lower.DeliveryCount)
	}
}

func TestUpsertPreservesStatusOnMerge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := testEntry(7)
	if _, err := s.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := s.SetStatus(ctx, entry.ID, models.StatusArchived, nil); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	again := testEntry(7)
	if _, err := s.Upsert(ctx, again); err != nil {
		t.Fatalf("re-Upsert: %v", err)
	}
	if again.Status != models.StatusArchived {
		t.Errorf("status after merge = %s, want Archived", again.Status)
	}
}

func TestTopicNameDisambiguatesSubscriptions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Same message id and sequence on two subscriptions of different
	// topics must create two rows.
	a := testEntry(500)
	a.EntityType = models.EntityTypeSubscription
	a.EntityName = "audit"
	a.TopicName = "events"

	b := testEntry(500)
	b.EntityType = models.EntityTypeSubscription
	b.EntityName = "audit"
	b.TopicName = "billing-events"

	if created, err := s.Upsert(ctx, a); err != nil || !created {
		t.Fatalf("first: created=%v err=%v", created, err)
	}
	if created, err := s.Upsert(ctx, b); err != nil || !created {
		t.Fatalf("second: created=%v err=%v", created, err)
	}
	if a.ID == b.ID {
		t.Error("entries on different topics must not collide")
	}
}

func TestSetStatusFinality(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := testEntry(1)
	if _, err := s.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	updated, err := s.SetStatus(ctx, entry.ID, models.StatusDiscarded, nil)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if updated.Status != models.StatusDiscarded {
		t.Errorf("status = %s", updated.Status)
	}

	// Discarded is terminal.
	_, err = s.SetStatus(ctx, entry.ID, models.StatusActive, nil)
	if !IsInvalidTransition(err) {
		t.Errorf("transition out of Discarded = %v, want InvalidTransitionError", err)
	}
}

func TestSetStatusArchiveStampsTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := testEntry(2)
	if _, err := s.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	notes := "known bad producer"
	updated, err := s.SetStatus(ctx, entry.ID, models.StatusArchived, &notes)
	if err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if updated.ArchivedAt == nil {
		t.Error("archivedAt not stamped")
	}
	if updated.UserNotes != notes {
		t.Errorf("notes = %q", updated.UserNotes)
	}
}

func TestSetStatusNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.SetStatus(context.Background(), 9999, models.StatusArchived, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRecordReplayAtomicOutcome(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := testEntry(3)
	if _, err := s.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	replay := &models.ReplayHistoryEntry{
		DlqEntryID:       entry.ID,
		ReplayedBy:       models.ReplayedByManual,
		Strategy:         "immediate",
		ReplayedToEntity: "orders",
		OutcomeStatus:    models.ReplayOutcomeSuccess,
		Attempts:         3,
	}
	if err := s.RecordReplay(ctx, replay); err != nil {
		t.Fatalf("RecordReplay: %v", err)
	}
	if replay.ID == 0 {
		t.Fatal("replay id not assigned")
	}

	got, err := s.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusReplayed {
		t.Errorf("status = %s, want Replayed", got.Status)
	}
	if got.ReplaySuccess == nil || !*got.ReplaySuccess {
		t.Error("replaySuccess not set")
	}
	if got.ReplayedAt == nil {
		t.Error("replayedAt not set")
	}

	replays, err := s.Replays(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Replays: %v", err)
	}
	if len(replays) != 1 || replays[0].Attempts != 3 {
		t.Errorf("replays = %+v", replays)
	}
}

func TestRecordReplayFailureThenRetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := testEntry(4)
	if _, err := s.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	fail := &models.ReplayHistoryEntry{
		DlqEntryID:       entry.ID,
		ReplayedBy:       models.ReplayedByManual,
		ReplayedToEntity: "orders",
		OutcomeStatus:    models.ReplayOutcomeFailed,
		Attempts:         3,
		ErrorDetails:     "broker unavailable",
	}
	if err := s.RecordReplay(ctx, fail); err != nil {
		t.Fatalf("RecordReplay failure: %v", err)
	}
	got, _ := s.Get(ctx, entry.ID)
	if got.Status != models.StatusReplayFailed {
		t.Fatalf("status = %s, want ReplayFailed", got.Status)
	}

	// ReplayFailed entries may be retried to success.
	ok := &models.ReplayHistoryEntry{
		DlqEntryID:       entry.ID,
		ReplayedBy:       models.ReplayedByManual,
		ReplayedToEntity: "orders",
		OutcomeStatus:    models.ReplayOutcomeSuccess,
		Attempts:         1,
	}
	if err := s.RecordReplay(ctx, ok); err != nil {
		t.Fatalf("RecordReplay retry: %v", err)
	}
	got, _ = s.Get(ctx, entry.ID)
	if got.Status != models.StatusReplayed {
		t.Errorf("status = %s, want Replayed", got.Status)
	}

	replays, _ := s.Replays(ctx, entry.ID)
	if len(replays) != 2 {
		t.Errorf("replay count = %d, want 2", len(replays))
	}
}

func TestRecordReplayRefusedOnFinalEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := testEntry(5)
	if _, err := s.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := s.SetStatus(ctx, entry.ID, models.StatusDiscarded, nil); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	err := s.RecordReplay(ctx, &models.ReplayHistoryEntry{
		DlqEntryID:       entry.ID,
		ReplayedBy:       models.ReplayedByManual,
		ReplayedToEntity: "orders",
		OutcomeStatus:    models.ReplayOutcomeSuccess,
		Attempts:         1,
	})
	if !IsInvalidTransition(err) {
		t.Errorf("error = %v, want InvalidTransitionError", err)
	}

	// Nothing was written: the outcome insert rolled back with the
	// refused status change.
	replays, _ := s.Replays(ctx, entry.ID)
	if len(replays) != 0 {
		t.Errorf("replay history leaked %d rows", len(replays))
	}
}

func TestListFilterAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := testEntry(int64(200 + i))
		e.DetectedAtUTC = base.Add(time.Duration(i) * time.Minute)
		if i%2 == 0 {
			e.NamespaceID = "ns-2"
			e.FailureCategory = models.CategoryTransient
		}
		if _, err := s.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert %d: %v", i, err)
		}
	}

	// Newest first.
	all, total, err := s.List(ctx, Filter{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 5 || len(all) != 5 {
		t.Fatalf("total = %d, len = %d", total, len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].DetectedAtUTC.After(all[i-1].DetectedAtUTC) {
			t.Fatal("not ordered detected_at DESC")
		}
	}

	// Namespace filter.
	ns2, total, err := s.List(ctx, Filter{NamespaceID: "ns-2", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("List ns-2: %v", err)
	}
	if total != 3 || len(ns2) != 3 {
		t.Errorf("ns-2 total = %d, len = %d, want 3", total, len(ns2))
	}

	// Category filter.
	_, total, err = s.List(ctx, Filter{Category: models.CategoryMaxDelivery, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("List by category: %v", err)
	}
	if total != 2 {
		t.Errorf("MaxDelivery total = %d, want 2", total)
	}

	// Pagination: page 2 of size 2 holds the middle slice.
	page2, total, err := s.List(ctx, Filter{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if total != 5 || len(page2) != 2 {
		t.Errorf("page 2: total = %d, len = %d", total, len(page2))
	}

	// Search hits the reason text.
	_, total, err = s.List(ctx, Filter{Search: "maxdelivery", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("List search: %v", err)
	}
	if total != 5 {
		t.Errorf("search total = %d, want 5", total)
	}
}

func TestCountActiveByNamespace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testEntry(301)
	b := testEntry(302)
	if _, err := s.Upsert(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(ctx, b); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetStatus(ctx, b.ID, models.StatusArchived, nil); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountActiveByNamespace(ctx, "ns-1")
	if err != nil {
		t.Fatalf("CountActiveByNamespace: %v", err)
	}
	if n != 1 {
		t.Errorf("active count = %d, want 1", n)
	}
}

func TestSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := testEntry(401)
	b := testEntry(402)
	b.FailureCategory = models.CategoryTransient
	if _, err := s.Upsert(ctx, a); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(ctx, b); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetStatus(ctx, b.ID, models.StatusDiscarded, nil); err != nil {
		t.Fatal(err)
	}

	sum, err := s.Summary(ctx, 0)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.TotalEntries != 2 || sum.ActiveEntries != 1 || sum.ResolvedEntries != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.OldestDetectedAt == nil || sum.NewestDetectedAt == nil {
		t.Error("detection bounds not set")
	}
	var dailyNew int64
	for _, d := range sum.Daily {
		dailyNew += d.New
	}
	if dailyNew != 2 {
		t.Errorf("daily new total = %d, want 2", dailyNew)
	}
	if sum.ByStatus[models.StatusActive] != 1 || sum.ByStatus[models.StatusDiscarded] != 1 {
		t.Errorf("byStatus = %v", sum.ByStatus)
	}
	if sum.ByCategory[models.CategoryMaxDelivery] != 1 || sum.ByCategory[models.CategoryTransient] != 1 {
		t.Errorf("byCategory = %v", sum.ByCategory)
	}
	if sum.ByNamespace["ns-1"] != 2 {
		t.Errorf("byNamespace = %v", sum.ByNamespace)
	}
	if sum.ByEntity["orders"] != 2 {
		t.Errorf("byEntity = %v", sum.ByEntity)
	}
}

func TestSummaryRangeExcludesOldEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := testEntry(411)
	old.DetectedAtUTC = time.Now().UTC().AddDate(0, 0, -40)
	recent := testEntry(412)
	if _, err := s.Upsert(ctx, old); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upsert(ctx, recent); err != nil {
		t.Fatal(err)
	}

	sum, err := s.Summary(ctx, 7)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.RangeDays != 7 {
		t.Errorf("rangeDays = %d, want 7", sum.RangeDays)
	}
	if sum.TotalEntries != 1 {
		t.Errorf("total = %d, want 1 (old entry outside range)", sum.TotalEntries)
	}

	all, err := s.Summary(ctx, 0)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if all.TotalEntries != 2 {
		t.Errorf("all-time total = %d, want 2", all.TotalEntries)
	}
}

func TestUpdateNotes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := testEntry(6)
	if _, err := s.Upsert(ctx, entry); err != nil {
		t.Fatal(err)
	}
	got, err := s.UpdateNotes(ctx, entry.ID, "checked with producer team")
	if err != nil {
		t.Fatalf("UpdateNotes: %v", err)
	}
	if got.UserNotes != "checked with producer team" {
		t.Errorf("notes = %q", got.UserNotes)
	}
	if got.Status != models.StatusActive {
		t.Errorf("notes update must not change status, got %s", got.Status)
	}

	if _, err := s.UpdateNotes(ctx, 9999, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing entry = %v, want ErrNotFound", err)
	}
}

func TestSchemaCreatesSecondaryIndexes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"idx_dlq_dedup", "idx_dlq_status", "idx_dlq_entity", "idx_dlq_detected_at"} {
		var n int
		row := s.Conn().QueryRowContext(ctx,
			`SELECT COUNT(*) FROM duckdb_indexes() WHERE index_name = ?`, name)
		if err := row.Scan(&n); err != nil {
			t.Fatalf("query indexes: %v", err)
		}
		if n != 1 {
			t.Errorf("index %s: found %d, want 1", name, n)
		}
	}
}
