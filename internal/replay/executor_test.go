// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package replay

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/broker/memory"
	"github.com/debdevops/servicehub/internal/config"
	"github.com/debdevops/servicehub/internal/dlqstore"
	"github.com/debdevops/servicehub/internal/models"
	"github.com/debdevops/servicehub/internal/rules"
)

type stubNamespaces struct {
	ns models.Namespace
}

func (s *stubNamespaces) Get(ctx context.Context, id string) (*models.Namespace, error) {
	if id != s.ns.ID {
		return nil, fmt.Errorf("namespace %s not found", id)
	}
	out := s.ns
	return &out, nil
}

type stubGateways struct {
	gw broker.Gateway
}

func (s *stubGateways) Gateway(ctx context.Context, ns *models.Namespace) (broker.Gateway, error) {
	return s.gw, nil
}

type fixture struct {
	executor *Executor
	store    *dlqstore.Store
	gw       *memory.Gateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := dlqstore.New(&config.StoreConfig{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	gw := memory.New()
	gw.AddQueue("orders")

	executor := New(store, &stubNamespaces{ns: models.Namespace{ID: "ns-1", Name: "dev", Active: true}},
		&stubGateways{gw: gw}, &config.ReplayConfig{
			BaseDelay:      time.Millisecond,
			AttemptTimeout: time.Second,
		})
	return &fixture{executor: executor, store: store, gw: gw}
}

// seed injects a DLQ message into the broker and records the matching
// history entry, as one monitor cycle would.
func (f *fixture) seed(t *testing.T, messageID string, body string) *models.DlqHistoryEntry {
	t.Helper()
	entity := broker.Entity{Name: "orders", Type: models.EntityTypeQueue}
	seq := f.gw.InjectDLQ(entity, broker.Message{
		MessageID:        messageID,
		DeadLetterReason: "MaxDeliveryCountExceeded",
		Body:             []byte(body),
	})

	entry := &models.DlqHistoryEntry{
		DedupKey: models.DedupKey{
			NamespaceID:     "ns-1",
			EntityName:      "orders",
			EntityType:      models.EntityTypeQueue,
			BrokerMessageID: messageID,
			SequenceNumber:  seq,
		},
		BodyHash:         "h",
		DeadLetterReason: "MaxDeliveryCountExceeded",
		FailureCategory:  models.CategoryMaxDelivery,
	}
	if _, err := f.store.Upsert(context.Background(), entry); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return entry
}

func TestReplaySuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.seed(t, "m-1", `{"order":1}`)

	outcome, err := f.executor.Replay(ctx, entry.ID, models.RuleAction{})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if outcome.OutcomeStatus != models.ReplayOutcomeSuccess || outcome.Attempts != 1 {
		t.Errorf("outcome = %+v", outcome)
	}
	if outcome.ReplayedBy != models.ReplayedByManual {
		t.Errorf("replayedBy = %q", outcome.ReplayedBy)
	}

	sent := f.gw.Sent("orders")
	if len(sent) != 1 || string(sent[0].Body) != `{"order":1}` {
		t.Errorf("sent = %+v", sent)
	}

	got, err := f.store.Get(ctx, entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusReplayed {
		t.Errorf("status = %s, want Replayed", got.Status)
	}
}

func TestReplayRetriesWithBackoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.seed(t, "m-2", "x")

	f.gw.FailNTimes("Send", broker.NewError(broker.KindTransient, "send", "orders", errors.New("broker busy")), 2)

	outcome, err := f.executor.Replay(ctx, entry.ID, models.RuleAction{
		MaxRetries:         2,
		ExponentialBackoff: true,
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if outcome.OutcomeStatus != models.ReplayOutcomeSuccess {
		t.Errorf("outcome = %s, want Success", outcome.OutcomeStatus)
	}
	if outcome.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", outcome.Attempts)
	}
}

func TestReplayExhaustsRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.seed(t, "m-3", "x")

	f.gw.FailWith("Send", broker.NewError(broker.KindTransient, "send", "orders", errors.New("down")))

	outcome, err := f.executor.Replay(ctx, entry.ID, models.RuleAction{MaxRetries: 1})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if outcome.OutcomeStatus != models.ReplayOutcomeFailed || outcome.Attempts != 2 {
		t.Errorf("outcome = %+v", outcome)
	}
	if outcome.ErrorDetails == "" {
		t.Error("error details missing")
	}

	got, _ := f.store.Get(ctx, entry.ID)
	if got.Status != models.StatusReplayFailed {
		t.Errorf("status = %s, want ReplayFailed", got.Status)
	}

	// A ReplayFailed entry may be manually retried.
	f.gw.ClearFault("Send")
	outcome, err = f.executor.Replay(ctx, entry.ID, models.RuleAction{})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if outcome.OutcomeStatus != models.ReplayOutcomeSuccess {
		t.Errorf("retry outcome = %s", outcome.OutcomeStatus)
	}
}

func TestReplayTargetOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.AddQueue("orders-repair")
	entry := f.seed(t, "m-4", "x")

	outcome, err := f.executor.Replay(ctx, entry.ID, models.RuleAction{TargetEntity: "orders-repair"})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if outcome.ReplayedToEntity != "orders-repair" {
		t.Errorf("target = %q", outcome.ReplayedToEntity)
	}
	if len(f.gw.Sent("orders-repair")) != 1 {
		t.Error("message not routed to override target")
	}
}

func TestReplayRefusesFinalStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.seed(t, "m-5", "x")
	if _, err := f.store.SetStatus(ctx, entry.ID, models.StatusDiscarded, nil); err != nil {
		t.Fatal(err)
	}

	_, err := f.executor.Replay(ctx, entry.ID, models.RuleAction{})
	if !errors.Is(err, ErrNotReplayable) {
		t.Errorf("error = %v, want ErrNotReplayable", err)
	}
}

func TestReplayMessageGoneFromBroker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := f.seed(t, "m-6", "x")

	// Entry exists in history, but the broker no longer holds the message.
	f.gw.FailWith("PeekDLQ", broker.NewError(broker.KindNotFound, "peek", "orders", errors.New("purged")))

	outcome, err := f.executor.Replay(ctx, entry.ID, models.RuleAction{MaxRetries: 3})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if outcome.OutcomeStatus != models.ReplayOutcomeFailed {
		t.Errorf("outcome = %s, want Failed", outcome.OutcomeStatus)
	}
	if outcome.Attempts != 1 {
		t.Errorf("attempts = %d, want 1 (not-found is not retryable)", outcome.Attempts)
	}
}

func TestWorkerDropsNonActiveJobs(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	entry := f.seed(t, "m-7", "x")
	if _, err := f.store.SetStatus(ctx, entry.ID, models.StatusArchived, nil); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.executor.Serve(ctx)
	}()

	f.executor.Submit(rules.ReplayJob{EntryID: entry.ID, Rule: models.Rule{ID: "r1", Action: models.RuleAction{AutoReplay: true}}})

	// The queued job is dropped since the entry is Archived.
	deadline := time.After(2 * time.Second)
	for f.executor.QueueDepth() > 0 {
		select {
		case <-deadline:
			t.Fatal("queue not drained")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	replays, err := f.store.Replays(context.Background(), entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(replays) != 0 {
		t.Errorf("replay rows = %d, want 0", len(replays))
	}
}

func TestReplayAllMixedOutcomes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.seed(t, "b-1", "x")
	b := f.seed(t, "b-2", "x")
	c := f.seed(t, "b-3", "x")
	if _, err := f.store.SetStatus(ctx, c.ID, models.StatusArchived, nil); err != nil {
		t.Fatal(err)
	}

	result, err := f.executor.ReplayAll(ctx, []int64{a.ID, b.ID, c.ID}, models.RuleAction{})
	if err != nil {
		t.Fatalf("ReplayAll: %v", err)
	}
	if result.Matched != 3 || result.Replayed != 2 || result.Skipped != 1 || result.Failed != 0 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Results) != 2 {
		t.Errorf("results = %d, want 2", len(result.Results))
	}
}
