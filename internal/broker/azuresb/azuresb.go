// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package azuresb implements the broker gateway on Azure Service Bus
// using the azservicebus SDK. Runtime counts and entity discovery go
// through the admin client; peeking and sending go through cached AMQP
// receivers and senders.
package azuresb

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus/admin"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/models"
)

// Gateway is a broker.Gateway over one Service Bus namespace.
type Gateway struct {
	client *azservicebus.Client
	admin  *admin.Client

	mu        sync.Mutex
	senders   map[string]*azservicebus.Sender
	receivers map[string]*azservicebus.Receiver
	closed    bool
}

// New builds a gateway from a namespace connection string.
func New(connectionString string) (*Gateway, error) {
	client, err := azservicebus.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, wrap("connect", "", err)
	}
	adminClient, err := admin.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, wrap("connect", "", err)
	}
	return &Gateway{
		client:    client,
		admin:     adminClient,
		senders:   make(map[string]*azservicebus.Sender),
		receivers: make(map[string]*azservicebus.Receiver),
	}, nil
}

// wrap classifies SDK errors into the broker error taxonomy. AMQP-level
// failures surface as *azservicebus.Error; admin (ATOM) failures surface
// as *azcore.ResponseError. A missing entity has no stable SDK code on
// the messaging path, so the raw AMQP condition is matched by string.
func wrap(op, entity string, err error) error {
	if err == nil {
		return nil
	}

	kind := broker.KindTransient

	if isEntityNotFound(err) {
		return broker.NewError(broker.KindNotFound, op, entity, err)
	}

	var sbErr *azservicebus.Error
	if errors.As(err, &sbErr) {
		switch sbErr.Code {
		case azservicebus.CodeUnauthorizedAccess:
			kind = broker.KindUnauthorized
		case azservicebus.CodeTimeout:
			kind = broker.KindTimeout
		default:
			kind = broker.KindTransient
		}
		return broker.NewError(kind, op, entity, err)
	}

	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 401, 403:
			kind = broker.KindUnauthorized
		case 404:
			kind = broker.KindNotFound
		case 429:
			kind = broker.KindQuotaExceeded
		}
		return broker.NewError(kind, op, entity, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		kind = broker.KindTimeout
	}
	return broker.NewError(kind, op, entity, err)
}

// isEntityNotFound matches the AMQP conditions Service Bus raises when a
// queue, topic or subscription does not exist.
func isEntityNotFound(err error) bool {
	s := err.Error()
	return strings.Contains(s, "com.microsoft:entity-not-found") ||
		strings.Contains(s, "amqp:not-found")
}

func (g *Gateway) Ping(ctx context.Context) error {
	if _, err := g.admin.GetNamespaceProperties(ctx, nil); err != nil {
		return wrap("Ping", "", err)
	}
	return nil
}

func (g *Gateway) ListQueues(ctx context.Context) ([]models.EntityInfo, error) {
	var out []models.EntityInfo
	pager := g.admin.NewListQueuesRuntimePropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrap("ListQueues", "", err)
		}
		for _, q := range page.QueueRuntimeProperties {
			out = append(out, models.EntityInfo{
				Name: q.QueueName,
				Type: models.EntityTypeQueue,
				Counts: models.RuntimeCounts{
					Active:     int64(q.ActiveMessageCount),
					DeadLetter: int64(q.DeadLetterMessageCount),
					Scheduled:  int64(q.ScheduledMessageCount),
					Transfer:   int64(q.TransferMessageCount),
					Total:      q.TotalMessageCount,
				},
			})
		}
	}
	return out, nil
}

func (g *Gateway) ListTopics(ctx context.Context) ([]models.EntityInfo, error) {
	var out []models.EntityInfo
	pager := g.admin.NewListTopicsRuntimePropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrap("ListTopics", "", err)
		}
		for _, t := range page.TopicRuntimeProperties {
			out = append(out, models.EntityInfo{
				Name: t.TopicName,
				Type: models.EntityTypeTopic,
				Counts: models.RuntimeCounts{
					Scheduled: int64(t.ScheduledMessageCount),
				},
			})
		}
	}
	return out, nil
}

func (g *Gateway) ListSubscriptions(ctx context.Context, topic string) ([]models.EntityInfo, error) {
	var out []models.EntityInfo
	pager := g.admin.NewListSubscriptionsRuntimePropertiesPager(topic, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrap("ListSubscriptions", topic, err)
		}
		for _, s := range page.SubscriptionRuntimeProperties {
			out = append(out, models.EntityInfo{
				Name:      s.SubscriptionName,
				Type:      models.EntityTypeSubscription,
				TopicName: topic,
				Counts: models.RuntimeCounts{
					Active:     int64(s.ActiveMessageCount),
					DeadLetter: int64(s.DeadLetterMessageCount),
					Transfer:   int64(s.TransferMessageCount),
					Total:      s.TotalMessageCount,
				},
			})
		}
	}
	return out, nil
}

// receiver returns a cached receiver for the entity's live queue or
// dead-letter sub-queue.
func (g *Gateway) receiver(op string, entity broker.Entity, deadLetter bool) (*azservicebus.Receiver, error) {
	key := entity.TopicName + "|" + entity.Name
	if deadLetter {
		key += "|dlq"
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, broker.NewError(broker.KindProtocol, op, entity.Name, errClosed)
	}
	if r, ok := g.receivers[key]; ok {
		return r, nil
	}

	opts := &azservicebus.ReceiverOptions{}
	if deadLetter {
		opts.SubQueue = azservicebus.SubQueueDeadLetter
	}
	var (
		r   *azservicebus.Receiver
		err error
	)
	if entity.Type == models.EntityTypeSubscription {
		r, err = g.client.NewReceiverForSubscription(entity.TopicName, entity.Name, opts)
	} else {
		r, err = g.client.NewReceiverForQueue(entity.Name, opts)
	}
	if err != nil {
		return nil, wrap(op, entity.Name, err)
	}
	g.receivers[key] = r
	return r, nil
}

func (g *Gateway) peek(ctx context.Context, op string, entity broker.Entity, deadLetter bool, fromSequence int64, max int) ([]broker.Message, error) {
	receiver, err := g.receiver(op, entity, deadLetter)
	if err != nil {
		return nil, err
	}

	peeked, err := receiver.PeekMessages(ctx, max, &azservicebus.PeekMessagesOptions{
		FromSequenceNumber: &fromSequence,
	})
	if err != nil {
		return nil, wrap(op, entity.Name, err)
	}

	out := make([]broker.Message, 0, len(peeked))
	for _, m := range peeked {
		out = append(out, receivedToMessage(m))
	}
	return out, nil
}

func (g *Gateway) PeekActive(ctx context.Context, entity broker.Entity, fromSequence int64, max int) ([]broker.Message, error) {
	return g.peek(ctx, "PeekActive", entity, false, fromSequence, max)
}

func (g *Gateway) PeekDLQ(ctx context.Context, entity broker.Entity, fromSequence int64, max int) ([]broker.Message, error) {
	return g.peek(ctx, "PeekDLQ", entity, true, fromSequence, max)
}

func receivedToMessage(m *azservicebus.ReceivedMessage) broker.Message {
	msg := broker.Message{
		MessageID:             m.MessageID,
		DeliveryCount:         int64(m.DeliveryCount),
		EnqueuedAt:            m.EnqueuedTime,
		Body:                  m.Body,
		ApplicationProperties: m.ApplicationProperties,
	}
	if m.SequenceNumber != nil {
		msg.SequenceNumber = *m.SequenceNumber
	}
	if m.DeadLetterReason != nil {
		msg.DeadLetterReason = *m.DeadLetterReason
	}
	if m.DeadLetterErrorDescription != nil {
		msg.DeadLetterErrorDescription = *m.DeadLetterErrorDescription
	}
	if m.ContentType != nil {
		msg.ContentType = *m.ContentType
	}
	if m.CorrelationID != nil {
		msg.CorrelationID = *m.CorrelationID
	}
	if m.SessionID != nil {
		msg.SessionID = *m.SessionID
	}
	return msg
}

func (g *Gateway) sender(entityName string) (*azservicebus.Sender, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, broker.NewError(broker.KindProtocol, "Send", entityName, errClosed)
	}
	if s, ok := g.senders[entityName]; ok {
		return s, nil
	}
	s, err := g.client.NewSender(entityName, nil)
	if err != nil {
		return nil, wrap("Send", entityName, err)
	}
	g.senders[entityName] = s
	return s, nil
}

func (g *Gateway) Send(ctx context.Context, entityName string, msg broker.Message) error {
	sender, err := g.sender(entityName)
	if err != nil {
		return err
	}

	out := &azservicebus.Message{
		Body:                  msg.Body,
		ApplicationProperties: msg.ApplicationProperties,
	}
	if msg.MessageID != "" {
		out.MessageID = &msg.MessageID
	}
	if msg.ContentType != "" {
		out.ContentType = &msg.ContentType
	}
	if msg.CorrelationID != "" {
		out.CorrelationID = &msg.CorrelationID
	}
	if msg.SessionID != "" {
		out.SessionID = &msg.SessionID
	}

	if err := sender.SendMessage(ctx, out, nil); err != nil {
		return wrap("Send", entityName, err)
	}
	return nil
}

// Close tears down every cached sender and receiver and the underlying
// AMQP connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	g.closed = true
	senders := g.senders
	receivers := g.receivers
	g.senders = nil
	g.receivers = nil
	g.mu.Unlock()

	ctx := context.Background()
	for _, s := range senders {
		_ = s.Close(ctx)
	}
	for _, r := range receivers {
		_ = r.Close(ctx)
	}
	return g.client.Close(ctx)
}
