// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package dial selects and caches broker gateways per namespace. The
// credential string decides the implementation: NATS URLs dial
// JetStream, Azure Service Bus connection strings dial the cloud SDK,
// and the memory scheme serves a process-local gateway for the
// standalone development profile.
package dial

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/broker/azuresb"
	"github.com/debdevops/servicehub/internal/broker/memory"
	"github.com/debdevops/servicehub/internal/broker/natsjs"
	"github.com/debdevops/servicehub/internal/config"
	"github.com/debdevops/servicehub/internal/credstore"
	"github.com/debdevops/servicehub/internal/logging"
	"github.com/debdevops/servicehub/internal/models"
)

const (
	entityCacheTTL     = 30 * time.Second
	defaultCallTimeout = 30 * time.Second
)

// Open dials a raw, undecorated gateway for the given credential.
func Open(ctx context.Context, credential string) (broker.Gateway, error) {
	switch {
	case strings.HasPrefix(credential, "nats://"), strings.HasPrefix(credential, "tls://"):
		return natsjs.New(ctx, credential)
	case strings.Contains(credential, "Endpoint=sb://"):
		return azuresb.New(credential)
	case strings.HasPrefix(credential, "memory://"):
		return memory.New(), nil
	default:
		return nil, broker.NewError(broker.KindProtocol, "dial", "",
			fmt.Errorf("unrecognized credential format"))
	}
}

// dialed pairs the shared decorated gateway with its listing-cached view.
// The API browses through cached; the monitor reads through inner so a
// fresh dead-letter count is never hidden for a cache TTL.
type dialed struct {
	inner  broker.Gateway
	cached broker.Gateway
}

// Provider hands out one decorated gateway per namespace, dialing
// lazily and caching the connection for reuse across monitor cycles
// and API calls. All memory:// namespaces share a single in-process
// gateway so seeded entities are visible everywhere.
type Provider struct {
	cfg   *config.BrokerConfig
	creds *credstore.Store

	mu       sync.Mutex
	gateways map[string]dialed
	mem      *memory.Gateway
}

// NewProvider creates a provider backed by the namespace credential
// store.
func NewProvider(cfg *config.BrokerConfig, creds *credstore.Store) *Provider {
	return &Provider{
		cfg:      cfg,
		creds:    creds,
		gateways: make(map[string]dialed),
	}
}

// Memory returns the shared in-process gateway, creating it on first
// use. Dev seeding and tests use it to stage entities and messages.
func (p *Provider) Memory() *memory.Gateway {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.memoryLocked()
}

func (p *Provider) memoryLocked() *memory.Gateway {
	if p.mem == nil {
		p.mem = memory.New()
	}
	return p.mem
}

// Gateway returns the decorated gateway for a namespace, dialing it if
// not yet cached. Entity listings served through it may lag by the
// listing-cache TTL.
func (p *Provider) Gateway(ctx context.Context, ns *models.Namespace) (broker.Gateway, error) {
	d, err := p.dial(ctx, ns)
	if err != nil {
		return nil, err
	}
	return d.cached, nil
}

// Uncached returns the namespace's gateway without the entity-listing
// cache. The monitor enumerates through it so runtime counts reflect
// the broker at peek time.
func (p *Provider) Uncached(ctx context.Context, ns *models.Namespace) (broker.Gateway, error) {
	d, err := p.dial(ctx, ns)
	if err != nil {
		return nil, err
	}
	return d.inner, nil
}

func (p *Provider) dial(ctx context.Context, ns *models.Namespace) (dialed, error) {
	p.mu.Lock()
	if d, ok := p.gateways[ns.ID]; ok {
		p.mu.Unlock()
		return d, nil
	}
	p.mu.Unlock()

	credential, err := p.creds.Credential(ctx, ns.ID)
	if err != nil {
		// A missing or undecryptable credential is an authorization
		// failure for the namespace, never a retryable broker hiccup.
		return dialed{}, broker.NewError(broker.KindUnauthorized, "dial", "",
			fmt.Errorf("resolve credential for namespace %s: %w", ns.Name, err))
	}

	var base broker.Gateway
	if strings.HasPrefix(credential, "memory://") {
		p.mu.Lock()
		base = p.memoryLocked()
		p.mu.Unlock()
	} else {
		base, err = Open(ctx, credential)
		if err != nil {
			return dialed{}, err
		}
	}

	d := p.decorate(base, ns.Name)

	p.mu.Lock()
	defer p.mu.Unlock()
	// Another caller may have dialed concurrently; keep the first one.
	if existing, ok := p.gateways[ns.ID]; ok {
		if d.inner != existing.inner && base != p.mem {
			_ = base.Close()
		}
		return existing, nil
	}
	p.gateways[ns.ID] = d
	logging.Info().
		Str("namespace", ns.Name).
		Str("namespace_id", ns.ID).
		Msg("Broker gateway dialed")
	return d, nil
}

func (p *Provider) decorate(base broker.Gateway, namespace string) dialed {
	policy := broker.DefaultRetryPolicy()
	if p.cfg != nil && p.cfg.RetryAttempts > 0 {
		policy.MaxAttempts = p.cfg.RetryAttempts
	}
	callTimeout := defaultCallTimeout
	if p.cfg != nil && p.cfg.CallTimeout > 0 {
		callTimeout = p.cfg.CallTimeout
	}
	var gw broker.Gateway = broker.WithCallTimeout(base, callTimeout)
	gw = broker.WithRetries(gw, policy)
	gw = broker.WithBreaker(gw, namespace)
	return dialed{inner: gw, cached: broker.WithEntityCache(gw, entityCacheTTL)}
}

// Invalidate drops a namespace's cached gateway, closing the
// connection. Called when a namespace's credential changes or the
// namespace is removed.
func (p *Provider) Invalidate(namespaceID string) {
	p.mu.Lock()
	d, ok := p.gateways[namespaceID]
	delete(p.gateways, namespaceID)
	p.mu.Unlock()

	if ok {
		if err := d.cached.Close(); err != nil {
			logging.Warn().Err(err).
				Str("namespace_id", namespaceID).
				Msg("Failed to close broker gateway")
		}
	}
}

// Close tears down every cached gateway.
func (p *Provider) Close() {
	p.mu.Lock()
	gateways := p.gateways
	p.gateways = make(map[string]dialed)
	p.mu.Unlock()

	for id, d := range gateways {
		if err := d.cached.Close(); err != nil {
			logging.Warn().Err(err).
				Str("namespace_id", id).
				Msg("Failed to close broker gateway")
		}
	}
}
