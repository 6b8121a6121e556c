// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/broker/memory"
	"github.com/debdevops/servicehub/internal/config"
	"github.com/debdevops/servicehub/internal/credstore"
	"github.com/debdevops/servicehub/internal/dlqstore"
	"github.com/debdevops/servicehub/internal/models"
	"github.com/debdevops/servicehub/internal/replay"
	"github.com/debdevops/servicehub/internal/rules"
)

type stubGateways struct {
	gw broker.Gateway
}

func (s *stubGateways) Gateway(ctx context.Context, ns *models.Namespace) (broker.Gateway, error) {
	return s.gw, nil
}

func (s *stubGateways) Uncached(ctx context.Context, ns *models.Namespace) (broker.Gateway, error) {
	return s.gw, nil
}

// failingGateways refuses every dial with a fixed error.
type failingGateways struct {
	err error
}

func (f *failingGateways) Uncached(ctx context.Context, ns *models.Namespace) (broker.Gateway, error) {
	return nil, f.err
}

type fixture struct {
	store   *dlqstore.Store
	creds   *credstore.Store
	gw      *memory.Gateway
	ns      *models.Namespace
	monitor *Monitor
	engine  *rules.Engine
	sink    *captureSink
}

type captureSink struct {
	jobs []rules.ReplayJob
}

func (s *captureSink) Submit(job rules.ReplayJob) {
	s.jobs = append(s.jobs, job)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := dlqstore.New(&config.StoreConfig{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	enc, err := config.NewCredentialEncryptor("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatal(err)
	}
	creds, err := credstore.OpenInMemory(enc)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = creds.Close() })

	ns := &models.Namespace{Name: "dev", Active: true}
	if err := creds.Create(context.Background(), ns, "memory://"); err != nil {
		t.Fatal(err)
	}

	gw := memory.New()
	gw.AddQueue("orders")

	sink := &captureSink{}
	engine := rules.NewEngine(store, sink)
	m := New(store, creds, &stubGateways{gw: gw}, engine, nil, 0, 0)

	return &fixture{store: store, creds: creds, gw: gw, ns: ns, monitor: m, engine: engine, sink: sink}
}

func (f *fixture) injectDLQ(entity broker.Entity, id, reason string) int64 {
	return f.gw.InjectDLQ(entity, broker.Message{
		MessageID:        id,
		DeadLetterReason: reason,
		DeliveryCount:    10,
		Body:             []byte(`{"k":"v"}`),
	})
}

func TestRunNamespaceDetectsAndClassifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	queue := broker.Entity{Name: "orders", Type: models.EntityTypeQueue}

	f.injectDLQ(queue, "m-1", "MaxDeliveryCountExceeded")
	f.injectDLQ(queue, "m-2", "Connection timeout to downstream")

	stats, err := f.monitor.RunNamespace(ctx, f.ns)
	if err != nil {
		t.Fatalf("RunNamespace: %v", err)
	}
	if stats.EntriesCreated != 2 || stats.MessagesPeeked != 2 {
		t.Errorf("stats = %+v", stats)
	}

	entries, total, err := f.store.List(ctx, dlqstore.Filter{NamespaceID: f.ns.ID, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	categories := map[models.FailureCategory]bool{}
	for _, e := range entries {
		categories[e.FailureCategory] = true
		if e.Status != models.StatusActive {
			t.Errorf("entry %d status = %s", e.ID, e.Status)
		}
		if e.BodyHash == "" || e.SizeBytes == 0 {
			t.Errorf("entry %d missing body metadata", e.ID)
		}
	}
	if !categories[models.CategoryMaxDelivery] || !categories[models.CategoryTransient] {
		t.Errorf("categories = %v", categories)
	}

	// The namespace connection test result is refreshed on success.
	got, err := f.creds.Get(ctx, f.ns.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastConnectionTestSucceeded == nil || !*got.LastConnectionTestSucceeded {
		t.Error("connection test success not recorded")
	}
}

func TestRunNamespaceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	queue := broker.Entity{Name: "orders", Type: models.EntityTypeQueue}
	f.injectDLQ(queue, "m-1", "MaxDeliveryCountExceeded")

	if _, err := f.monitor.RunNamespace(ctx, f.ns); err != nil {
		t.Fatal(err)
	}
	stats, err := f.monitor.RunNamespace(ctx, f.ns)
	if err != nil {
		t.Fatal(err)
	}
	if stats.EntriesCreated != 0 || stats.EntriesUpdated != 1 {
		t.Errorf("second cycle stats = %+v, want created=0 updated=1", stats)
	}

	_, total, err := f.store.List(ctx, dlqstore.Filter{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("total rows = %d, want 1", total)
	}
}

func TestRunNamespaceScansSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gw.AddTopic("events")
	f.gw.AddSubscription("events", "audit")
	sub := broker.Entity{Name: "audit", Type: models.EntityTypeSubscription, TopicName: "events"}
	f.injectDLQ(sub, "s-1", "Validation failed: schema mismatch")

	stats, err := f.monitor.RunNamespace(ctx, f.ns)
	if err != nil {
		t.Fatal(err)
	}
	if stats.EntriesCreated != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	entries, _, err := f.store.List(ctx, dlqstore.Filter{EntityName: "audit", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].TopicName != "events" || entries[0].FailureCategory != models.CategoryDataQuality {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestRunNamespaceUnauthorizedShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gw.FailWith("ListQueues", broker.NewError(broker.KindUnauthorized, "list_queues", "", errors.New("claims required")))

	_, err := f.monitor.RunNamespace(ctx, f.ns)
	if !broker.IsUnauthorized(err) {
		t.Fatalf("error = %v, want unauthorized", err)
	}

	got, err := f.creds.Get(ctx, f.ns.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastConnectionTestSucceeded == nil || *got.LastConnectionTestSucceeded {
		t.Error("failed connection test not recorded")
	}
	if got.LastConnectionTestError == "" {
		t.Error("connection test error not recorded")
	}
}

func TestRunNamespaceRecordsUnauthorizedDial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A namespace whose credential cannot be resolved surfaces as
	// Unauthorized and flips the connection-test status, same as an
	// authorization failure on a live gateway.
	src := &failingGateways{err: broker.NewError(broker.KindUnauthorized, "dial", "",
		errors.New("resolve credential: namespace not found"))}
	m := New(f.store, f.creds, src, nil, nil, 0, 0)

	_, err := m.RunNamespace(ctx, f.ns)
	if !broker.IsUnauthorized(err) {
		t.Fatalf("error = %v, want unauthorized", err)
	}

	got, err := f.creds.Get(ctx, f.ns.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastConnectionTestSucceeded == nil || *got.LastConnectionTestSucceeded {
		t.Error("failed connection test not recorded")
	}
	if got.LastConnectionTestError == "" {
		t.Error("connection test error not recorded")
	}
}

func TestRunNamespaceSkipsFailingEntity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.gw.AddQueue("billing")
	f.injectDLQ(broker.Entity{Name: "orders", Type: models.EntityTypeQueue}, "m-1", "x")
	f.injectDLQ(broker.Entity{Name: "billing", Type: models.EntityTypeQueue}, "m-2", "x")

	// One entity's peek fails; the cycle continues with the other.
	f.gw.FailNTimes("PeekDLQ", broker.NewError(broker.KindTransient, "peek", "billing", errors.New("flaky")), 1)

	stats, err := f.monitor.RunNamespace(ctx, f.ns)
	if err != nil {
		t.Fatalf("RunNamespace: %v", err)
	}
	if stats.EntriesCreated != 1 {
		t.Errorf("created = %d, want 1 (one entity skipped)", stats.EntriesCreated)
	}
	if stats.EntitiesScanned != 2 {
		t.Errorf("scanned = %d, want 2", stats.EntitiesScanned)
	}
}

func TestPeekPaginationRespectsSafetyCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	queue := broker.Entity{Name: "orders", Type: models.EntityTypeQueue}

	for i := 0; i < 25; i++ {
		f.injectDLQ(queue, fmt.Sprintf("m-%d", i), "x")
	}

	capped := New(f.store, f.creds, &stubGateways{gw: f.gw}, nil, nil, 10, 20)
	stats, err := capped.RunNamespace(ctx, f.ns)
	if err != nil {
		t.Fatal(err)
	}
	if stats.MessagesPeeked != 20 {
		t.Errorf("peeked = %d, want 20 (safety cap)", stats.MessagesPeeked)
	}
	if stats.EntriesCreated != 20 {
		t.Errorf("created = %d, want 20", stats.EntriesCreated)
	}
}

func TestAutoReplayRateLimitEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rule := &models.Rule{
		Name:    "replay-max-delivery",
		Enabled: true,
		Conditions: []models.RuleCondition{
			{Field: models.FieldFailureCategory, Operator: models.OpEquals, Value: "MaxDelivery"},
		},
		Action:            models.RuleAction{AutoReplay: true},
		MaxReplaysPerHour: 2,
	}
	if err := f.store.CreateRule(ctx, rule); err != nil {
		t.Fatal(err)
	}

	executor := replay.New(f.store, f.creds, &stubGateways{gw: f.gw}, &config.ReplayConfig{
		Workers:        1,
		BaseDelay:      time.Millisecond,
		AttemptTimeout: time.Second,
	})
	m := New(f.store, f.creds, &stubGateways{gw: f.gw}, rules.NewEngine(f.store, executor), nil, 0, 0)

	queue := broker.Entity{Name: "orders", Type: models.EntityTypeQueue}
	for i := 0; i < 3; i++ {
		f.injectDLQ(queue, fmt.Sprintf("m-%d", i), "MaxDeliveryCountExceeded")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = executor.Serve(ctx)
	}()

	stats, err := m.RunNamespace(ctx, f.ns)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Rules.Matched != 3 || stats.Rules.Submitted != 2 || stats.Rules.Skipped != 1 {
		t.Fatalf("rule result = %+v, want matched=3 submitted=2 skipped=1", stats.Rules)
	}

	// Wait for the two submitted jobs to complete.
	deadline := time.After(5 * time.Second)
	for {
		replayed, _, err := f.store.List(ctx, dlqstore.Filter{Status: models.StatusReplayed, Page: 1, PageSize: 10})
		if err == nil && len(replayed) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("replays did not complete")
		case <-time.After(20 * time.Millisecond):
		}
	}

	active, _, err := f.store.List(ctx, dlqstore.Filter{Status: models.StatusActive, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Errorf("active entries = %d, want 1", len(active))
	}
	cancel()
	<-done
}
