// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package dial

import (
	"context"
	"errors"
	"testing"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/config"
	"github.com/debdevops/servicehub/internal/credstore"
	"github.com/debdevops/servicehub/internal/models"
)

func newProvider(t *testing.T) (*Provider, *credstore.Store) {
	t.Helper()
	enc, err := config.NewCredentialEncryptor("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("encryptor: %v", err)
	}
	creds, err := credstore.OpenInMemory(enc)
	if err != nil {
		t.Fatalf("credstore: %v", err)
	}
	t.Cleanup(func() { _ = creds.Close() })

	p := NewProvider(&config.BrokerConfig{RetryAttempts: 2}, creds)
	t.Cleanup(p.Close)
	return p, creds
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), "amqp://guest@localhost")
	var be *broker.Error
	if !errors.As(err, &be) || be.Kind != broker.KindProtocol {
		t.Errorf("error = %v, want protocol broker error", err)
	}
}

func TestProviderCachesPerNamespace(t *testing.T) {
	p, creds := newProvider(t)
	ctx := context.Background()

	ns := &models.Namespace{Name: "dev", Active: true}
	if err := creds.Create(ctx, ns, "memory://dev"); err != nil {
		t.Fatalf("create namespace: %v", err)
	}

	first, err := p.Gateway(ctx, ns)
	if err != nil {
		t.Fatalf("Gateway: %v", err)
	}
	second, err := p.Gateway(ctx, ns)
	if err != nil {
		t.Fatalf("Gateway again: %v", err)
	}
	if first != second {
		t.Error("gateway not cached")
	}
}

func TestGatewayMissingCredentialIsUnauthorized(t *testing.T) {
	p, _ := newProvider(t)
	ctx := context.Background()

	ghost := &models.Namespace{ID: "ghost", Name: "ghost"}
	if _, err := p.Gateway(ctx, ghost); !broker.IsUnauthorized(err) {
		t.Errorf("Gateway error = %v, want unauthorized", err)
	}
	if _, err := p.Uncached(ctx, ghost); !broker.IsUnauthorized(err) {
		t.Errorf("Uncached error = %v, want unauthorized", err)
	}
}

func TestUncachedSeesFreshRuntimeCounts(t *testing.T) {
	p, creds := newProvider(t)
	ctx := context.Background()

	ns := &models.Namespace{Name: "dev", Active: true}
	if err := creds.Create(ctx, ns, "memory://"); err != nil {
		t.Fatal(err)
	}

	cached, err := p.Gateway(ctx, ns)
	if err != nil {
		t.Fatal(err)
	}
	uncached, err := p.Uncached(ctx, ns)
	if err != nil {
		t.Fatal(err)
	}

	// Prime the listing cache before any queue exists.
	if _, err := cached.ListQueues(ctx); err != nil {
		t.Fatal(err)
	}

	p.Memory().AddQueue("orders")

	stale, err := cached.ListQueues(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Errorf("cached listing = %d queues, want 0 until the TTL expires", len(stale))
	}

	fresh, err := uncached.ListQueues(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(fresh) != 1 || fresh[0].Name != "orders" {
		t.Errorf("uncached listing = %+v, want the new queue immediately", fresh)
	}
}

func TestProviderSharesMemoryGateway(t *testing.T) {
	p, creds := newProvider(t)
	ctx := context.Background()

	a := &models.Namespace{Name: "dev-a", Active: true}
	b := &models.Namespace{Name: "dev-b", Active: true}
	if err := creds.Create(ctx, a, "memory://"); err != nil {
		t.Fatal(err)
	}
	if err := creds.Create(ctx, b, "memory://"); err != nil {
		t.Fatal(err)
	}

	p.Memory().AddQueue("orders")

	gwA, err := p.Gateway(ctx, a)
	if err != nil {
		t.Fatalf("Gateway a: %v", err)
	}
	gwB, err := p.Gateway(ctx, b)
	if err != nil {
		t.Fatalf("Gateway b: %v", err)
	}

	for _, gw := range []broker.Gateway{gwA, gwB} {
		queues, err := gw.ListQueues(ctx)
		if err != nil {
			t.Fatalf("ListQueues: %v", err)
		}
		if len(queues) != 1 || queues[0].Name != "orders" {
			t.Errorf("queues = %+v", queues)
		}
	}
}

func TestProviderInvalidateRedials(t *testing.T) {
	p, creds := newProvider(t)
	ctx := context.Background()

	ns := &models.Namespace{Name: "dev", Active: true}
	if err := creds.Create(ctx, ns, "memory://"); err != nil {
		t.Fatal(err)
	}

	first, err := p.Gateway(ctx, ns)
	if err != nil {
		t.Fatal(err)
	}
	p.Invalidate(ns.ID)
	second, err := p.Gateway(ctx, ns)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("invalidate did not drop the cached gateway")
	}
}
