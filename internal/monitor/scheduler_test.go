// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/config"
	"github.com/debdevops/servicehub/internal/dlqstore"
	"github.com/debdevops/servicehub/internal/models"
)

func TestSchedulerRunsCycles(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := broker.Entity{Name: "orders", Type: models.EntityTypeQueue}
	f.injectDLQ(queue, "m-1", "MaxDeliveryCountExceeded")

	s := NewScheduler(f.creds, f.monitor, &config.MonitorConfig{
		PollInterval:          20 * time.Millisecond,
		InitialDelay:          time.Millisecond,
		MaxParallelNamespaces: 2,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for {
		_, total, err := f.store.List(context.Background(), dlqstore.Filter{Page: 1, PageSize: 10})
		if err == nil && total == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("scheduler never produced a cycle")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerSkipsInactiveNamespaces(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Deactivate the namespace; the scheduler must never dispatch it.
	f.ns.Active = false
	if err := f.creds.Update(context.Background(), f.ns, nil); err != nil {
		t.Fatal(err)
	}
	f.injectDLQ(broker.Entity{Name: "orders", Type: models.EntityTypeQueue}, "m-1", "x")

	s := NewScheduler(f.creds, f.monitor, &config.MonitorConfig{
		PollInterval: 15 * time.Millisecond,
		InitialDelay: time.Millisecond,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(ctx)
	}()

	time.Sleep(150 * time.Millisecond)
	_, total, err := f.store.List(context.Background(), dlqstore.Filter{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("entries = %d, want 0 for inactive namespace", total)
	}

	cancel()
	<-done
}

func TestTickDeadline(t *testing.T) {
	s := NewScheduler(nil, nil, &config.MonitorConfig{PollInterval: 10 * time.Second})
	if got := s.TickDeadline(); got != 50*time.Second {
		t.Errorf("deadline = %s, want 50s", got)
	}
}
