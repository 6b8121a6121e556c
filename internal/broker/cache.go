// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package broker

import (
	"context"
	"sync"
	"time"

	"github.com/debdevops/servicehub/internal/models"
)

type entityEntry struct {
	data      []models.EntityInfo
	expiresAt time.Time
}

// EntityCache memoizes entity listings in front of a Gateway so the API can
// serve namespace browsing without hitting the broker on every request.
// Runtime counts served from the cache may lag by up to the TTL; the
// monitor lists through the uncached view the dial provider keeps
// alongside this one.
type EntityCache struct {
	next Gateway
	ttl  time.Duration

	mu      sync.RWMutex
	entries map[string]entityEntry
}

// WithEntityCache decorates a gateway with a TTL cache over the three
// listing calls. Peek, Send, Ping and Close pass through.
func WithEntityCache(next Gateway, ttl time.Duration) *EntityCache {
	return &EntityCache{
		next:    next,
		ttl:     ttl,
		entries: make(map[string]entityEntry),
	}
}

func (c *EntityCache) get(key string) ([]models.EntityInfo, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.data, true
}

func (c *EntityCache) set(key string, data []models.EntityInfo) {
	c.mu.Lock()
	c.entries[key] = entityEntry{data: data, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops all cached listings, for use after connection tests or
// namespace credential changes.
func (c *EntityCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]entityEntry)
	c.mu.Unlock()
}

func (c *EntityCache) list(ctx context.Context, key string, fetch func() ([]models.EntityInfo, error)) ([]models.EntityInfo, error) {
	if data, ok := c.get(key); ok {
		return data, nil
	}
	data, err := fetch()
	if err != nil {
		return nil, err
	}
	c.set(key, data)
	return data, nil
}

func (c *EntityCache) ListQueues(ctx context.Context) ([]models.EntityInfo, error) {
	return c.list(ctx, "queues", func() ([]models.EntityInfo, error) { return c.next.ListQueues(ctx) })
}

func (c *EntityCache) ListTopics(ctx context.Context) ([]models.EntityInfo, error) {
	return c.list(ctx, "topics", func() ([]models.EntityInfo, error) { return c.next.ListTopics(ctx) })
}

func (c *EntityCache) ListSubscriptions(ctx context.Context, topic string) ([]models.EntityInfo, error) {
	return c.list(ctx, "subs:"+topic, func() ([]models.EntityInfo, error) { return c.next.ListSubscriptions(ctx, topic) })
}

func (c *EntityCache) Ping(ctx context.Context) error {
	return c.next.Ping(ctx)
}

func (c *EntityCache) PeekActive(ctx context.Context, entity Entity, fromSequence int64, max int) ([]Message, error) {
	return c.next.PeekActive(ctx, entity, fromSequence, max)
}

func (c *EntityCache) PeekDLQ(ctx context.Context, entity Entity, fromSequence int64, max int) ([]Message, error) {
	return c.next.PeekDLQ(ctx, entity, fromSequence, max)
}

func (c *EntityCache) DeadLetter(ctx context.Context, entity Entity, msg Message) error {
	return DeadLetter(ctx, c.next, entity, msg)
}

func (c *EntityCache) Send(ctx context.Context, entityName string, msg Message) error {
	return c.next.Send(ctx, entityName, msg)
}

func (c *EntityCache) Close() error {
	return c.next.Close()
}
