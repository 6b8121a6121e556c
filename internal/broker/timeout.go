// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package broker

import (
	"context"
	"time"

	"github.com/debdevops/servicehub/internal/models"
)

// CallTimeoutGateway bounds every broker operation with its own deadline
// so a stalled connection cannot pin a monitor worker for the whole
// tick. It sits innermost in the decorator chain; the retry layer above
// sees the expiry as a timeout and may attempt again.
type CallTimeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

// WithCallTimeout decorates a gateway with a per-call deadline. A
// non-positive timeout passes calls through unbounded.
func WithCallTimeout(next Gateway, timeout time.Duration) *CallTimeoutGateway {
	return &CallTimeoutGateway{next: next, timeout: timeout}
}

func (g *CallTimeoutGateway) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *CallTimeoutGateway) Ping(ctx context.Context) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return g.next.Ping(ctx)
}

func (g *CallTimeoutGateway) ListQueues(ctx context.Context) ([]models.EntityInfo, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return g.next.ListQueues(ctx)
}

func (g *CallTimeoutGateway) ListTopics(ctx context.Context) ([]models.EntityInfo, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return g.next.ListTopics(ctx)
}

func (g *CallTimeoutGateway) ListSubscriptions(ctx context.Context, topic string) ([]models.EntityInfo, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return g.next.ListSubscriptions(ctx, topic)
}

func (g *CallTimeoutGateway) PeekActive(ctx context.Context, entity Entity, fromSequence int64, max int) ([]Message, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return g.next.PeekActive(ctx, entity, fromSequence, max)
}

func (g *CallTimeoutGateway) PeekDLQ(ctx context.Context, entity Entity, fromSequence int64, max int) ([]Message, error) {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return g.next.PeekDLQ(ctx, entity, fromSequence, max)
}

func (g *CallTimeoutGateway) Send(ctx context.Context, entityName string, msg Message) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return g.next.Send(ctx, entityName, msg)
}

func (g *CallTimeoutGateway) DeadLetter(ctx context.Context, entity Entity, msg Message) error {
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return DeadLetter(ctx, g.next, entity, msg)
}

func (g *CallTimeoutGateway) Close() error {
	return g.next.Close()
}
