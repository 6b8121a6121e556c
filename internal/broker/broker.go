// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package broker defines the gateway abstraction over a message broker
// namespace: entity discovery, runtime counts, non-destructive DLQ peeking
// and message submission. Implementations live in the subpackages (memory,
// natsjs, azuresb); the retry and breaker decorators in this package wrap
// any implementation.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/debdevops/servicehub/internal/models"
)

var errDeadLetterUnsupported = errors.New("gateway does not support direct dead-lettering")

// Message is one broker message as observed through a gateway. Bodies are
// carried as raw bytes; the monitor derives hash, preview and size from
// them and never persists the full payload.
type Message struct {
	MessageID      string
	SequenceNumber int64

	EnqueuedAt     *time.Time
	DeadLetteredAt *time.Time

	DeadLetterReason           string
	DeadLetterErrorDescription string

	DeliveryCount int64
	ContentType   string
	CorrelationID string
	SessionID     string

	Body                  []byte
	ApplicationProperties map[string]any
}

// Entity addresses one queue or subscription. TopicName is set only for
// subscriptions.
type Entity struct {
	Name      string
	Type      models.EntityType
	TopicName string
}

// Gateway is the namespace-scoped broker access used by the monitor, the
// replay executor and the namespace API. All calls honor context
// cancellation. Implementations must be safe for concurrent use.
type Gateway interface {
	// Ping verifies connectivity and authorization against the namespace.
	Ping(ctx context.Context) error

	// ListQueues returns all queues with their runtime counts.
	ListQueues(ctx context.Context) ([]models.EntityInfo, error)

	// ListTopics returns all topics.
	ListTopics(ctx context.Context) ([]models.EntityInfo, error)

	// ListSubscriptions returns the subscriptions of one topic with their
	// runtime counts.
	ListSubscriptions(ctx context.Context, topic string) ([]models.EntityInfo, error)

	// PeekActive reads up to max messages from the entity's live queue
	// without consuming them, starting at fromSequence inclusive, in
	// ascending sequence order.
	PeekActive(ctx context.Context, entity Entity, fromSequence int64, max int) ([]Message, error)

	// PeekDLQ reads up to max messages from the entity's dead-letter
	// sub-queue without consuming them, starting at fromSequence
	// inclusive. Messages come back in ascending sequence order; an empty
	// slice means the sub-queue is exhausted.
	PeekDLQ(ctx context.Context, entity Entity, fromSequence int64, max int) ([]Message, error)

	// Send submits a message to the named queue or topic.
	Send(ctx context.Context, entityName string, msg Message) error

	// Close releases the underlying connection.
	Close() error
}

// DeadLetterer is implemented by gateways that can place a message on an
// entity's dead-letter sub-queue directly. It exists for the test-only
// dead-letter endpoint and the embedded development broker; production
// gateways may not support it.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, entity Entity, msg Message) error
}

// DeadLetter forwards to the gateway's DeadLetterer implementation, or
// returns a protocol error when the backing broker has no direct
// dead-letter operation. Decorators delegate through this so the
// capability survives wrapping.
func DeadLetter(ctx context.Context, g Gateway, entity Entity, msg Message) error {
	dl, ok := g.(DeadLetterer)
	if !ok {
		return NewError(KindProtocol, "DeadLetter", entity.Name, errDeadLetterUnsupported)
	}
	return dl.DeadLetter(ctx, entity, msg)
}
