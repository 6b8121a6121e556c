// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package memory provides an in-process broker gateway. It backs the dev
// profile and the test suites: deterministic sequence numbers, direct DLQ
// injection and per-operation fault injection.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/models"
)

type entityState struct {
	info   models.EntityInfo
	active []broker.Message
	dlq    []broker.Message
}

type fault struct {
	err       error
	remaining int // <0 means forever
}

// Gateway is an in-memory broker.Gateway. The zero value is not usable;
// construct with New.
type Gateway struct {
	mu sync.Mutex

	queues map[string]*entityState
	topics map[string]map[string]*entityState // topic -> subscription

	nextSeq int64
	sent    map[string][]broker.Message
	faults  map[string]*fault
	closed  bool
}

// New returns an empty in-memory gateway.
func New() *Gateway {
	return &Gateway{
		queues:  make(map[string]*entityState),
		topics:  make(map[string]map[string]*entityState),
		nextSeq: 1,
		sent:    make(map[string][]broker.Message),
		faults:  make(map[string]*fault),
	}
}

// AddQueue registers a queue.
func (g *Gateway) AddQueue(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queues[name] = &entityState{
		info: models.EntityInfo{Name: name, Type: models.EntityTypeQueue},
	}
}

// AddTopic registers a topic.
func (g *Gateway) AddTopic(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.topics[name]; !ok {
		g.topics[name] = make(map[string]*entityState)
	}
}

// AddSubscription registers a subscription under a topic, creating the
// topic if needed.
func (g *Gateway) AddSubscription(topic, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	subs, ok := g.topics[topic]
	if !ok {
		subs = make(map[string]*entityState)
		g.topics[topic] = subs
	}
	subs[name] = &entityState{
		info: models.EntityInfo{Name: name, Type: models.EntityTypeSubscription, TopicName: topic},
	}
}

// InjectDLQ places a message on an entity's dead-letter sub-queue. A zero
// SequenceNumber is replaced with the next monotonic sequence; a nil
// DeadLetteredAt is stamped with the current time. Returns the assigned
// sequence number.
func (g *Gateway) InjectDLQ(entity broker.Entity, msg broker.Message) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	state := g.lookupLocked(entity)
	if state == nil {
		return 0
	}
	if msg.SequenceNumber == 0 {
		msg.SequenceNumber = g.nextSeq
		g.nextSeq++
	} else if msg.SequenceNumber >= g.nextSeq {
		g.nextSeq = msg.SequenceNumber + 1
	}
	if msg.DeadLetteredAt == nil {
		now := time.Now().UTC()
		msg.DeadLetteredAt = &now
	}
	state.dlq = append(state.dlq, msg)
	return msg.SequenceNumber
}

// FailWith makes every subsequent call of the named operation (Ping,
// ListQueues, ListTopics, ListSubscriptions, PeekActive, PeekDLQ, Send,
// DeadLetter) return err until cleared with ClearFault.
func (g *Gateway) FailWith(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults[op] = &fault{err: err, remaining: -1}
}

// FailNTimes makes the next n calls of the named operation return err,
// after which calls succeed again.
func (g *Gateway) FailNTimes(op string, err error, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.faults[op] = &fault{err: err, remaining: n}
}

// ClearFault removes any injected fault for the operation.
func (g *Gateway) ClearFault(op string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.faults, op)
}

// Sent returns the messages submitted to the named entity, in order.
func (g *Gateway) Sent(entityName string) []broker.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]broker.Message, len(g.sent[entityName]))
	copy(out, g.sent[entityName])
	return out
}

func (g *Gateway) lookupLocked(entity broker.Entity) *entityState {
	if entity.Type == models.EntityTypeSubscription {
		if subs, ok := g.topics[entity.TopicName]; ok {
			return subs[entity.Name]
		}
		return nil
	}
	return g.queues[entity.Name]
}

func (g *Gateway) failLocked(op string) error {
	f, ok := g.faults[op]
	if !ok {
		return nil
	}
	if f.remaining == 0 {
		delete(g.faults, op)
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			defer delete(g.faults, op)
		}
	}
	return f.err
}

func (g *Gateway) Ping(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failLocked("Ping")
}

func (g *Gateway) ListQueues(ctx context.Context) ([]models.EntityInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failLocked("ListQueues"); err != nil {
		return nil, err
	}
	out := make([]models.EntityInfo, 0, len(g.queues))
	for _, state := range g.queues {
		out = append(out, g.infoLocked(state))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *Gateway) ListTopics(ctx context.Context) ([]models.EntityInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failLocked("ListTopics"); err != nil {
		return nil, err
	}
	out := make([]models.EntityInfo, 0, len(g.topics))
	for name := range g.topics {
		out = append(out, models.EntityInfo{Name: name, Type: models.EntityTypeTopic})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (g *Gateway) ListSubscriptions(ctx context.Context, topic string) ([]models.EntityInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failLocked("ListSubscriptions"); err != nil {
		return nil, err
	}
	subs, ok := g.topics[topic]
	if !ok {
		return nil, broker.NewError(broker.KindNotFound, "ListSubscriptions", topic, errTopicNotFound)
	}
	out := make([]models.EntityInfo, 0, len(subs))
	for _, state := range subs {
		out = append(out, g.infoLocked(state))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// infoLocked refreshes the runtime counts from current queue depths.
func (g *Gateway) infoLocked(state *entityState) models.EntityInfo {
	info := state.info
	info.Counts.Active = int64(len(state.active))
	info.Counts.DeadLetter = int64(len(state.dlq))
	info.Counts.Total = info.Counts.Active + info.Counts.DeadLetter + info.Counts.Scheduled + info.Counts.Transfer
	return info
}

// peekLocked returns up to max messages from msgs with sequence numbers at
// or above fromSequence, ascending.
func peekLocked(msgs []broker.Message, fromSequence int64, max int) []broker.Message {
	sorted := append([]broker.Message(nil), msgs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SequenceNumber < sorted[j].SequenceNumber })
	out := make([]broker.Message, 0, max)
	for _, m := range sorted {
		if m.SequenceNumber < fromSequence {
			continue
		}
		out = append(out, m)
		if len(out) >= max {
			break
		}
	}
	return out
}

func (g *Gateway) PeekActive(ctx context.Context, entity broker.Entity, fromSequence int64, max int) ([]broker.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failLocked("PeekActive"); err != nil {
		return nil, err
	}
	state := g.lookupLocked(entity)
	if state == nil {
		return nil, broker.NewError(broker.KindNotFound, "PeekActive", entity.Name, errEntityNotFound)
	}
	return peekLocked(state.active, fromSequence, max), nil
}

func (g *Gateway) PeekDLQ(ctx context.Context, entity broker.Entity, fromSequence int64, max int) ([]broker.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failLocked("PeekDLQ"); err != nil {
		return nil, err
	}
	state := g.lookupLocked(entity)
	if state == nil {
		return nil, broker.NewError(broker.KindNotFound, "PeekDLQ", entity.Name, errEntityNotFound)
	}

	return peekLocked(state.dlq, fromSequence, max), nil
}

func (g *Gateway) Send(ctx context.Context, entityName string, msg broker.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failLocked("Send"); err != nil {
		return err
	}
	queue, isQueue := g.queues[entityName]
	subs, isTopic := g.topics[entityName]
	if !isQueue && !isTopic {
		return broker.NewError(broker.KindNotFound, "Send", entityName, errEntityNotFound)
	}

	if msg.SequenceNumber == 0 {
		msg.SequenceNumber = g.nextSeq
		g.nextSeq++
	}
	if msg.EnqueuedAt == nil {
		now := time.Now().UTC()
		msg.EnqueuedAt = &now
	}

	// Queue sends land on the queue; topic sends fan out to every
	// subscription's live queue.
	if isQueue {
		queue.active = append(queue.active, msg)
	} else {
		for _, sub := range subs {
			sub.active = append(sub.active, msg)
		}
	}
	g.sent[entityName] = append(g.sent[entityName], msg)
	return nil
}

// DeadLetter moves the live message with msg's MessageID onto the
// entity's dead-letter sub-queue, stamping the given reason. A message
// not found live is dead-lettered as given, mirroring InjectDLQ.
func (g *Gateway) DeadLetter(ctx context.Context, entity broker.Entity, msg broker.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failLocked("DeadLetter"); err != nil {
		return err
	}
	state := g.lookupLocked(entity)
	if state == nil {
		return broker.NewError(broker.KindNotFound, "DeadLetter", entity.Name, errEntityNotFound)
	}

	for i, m := range state.active {
		if m.MessageID == msg.MessageID {
			state.active = append(state.active[:i], state.active[i+1:]...)
			m.DeadLetterReason = msg.DeadLetterReason
			m.DeadLetterErrorDescription = msg.DeadLetterErrorDescription
			if m.DeliveryCount < msg.DeliveryCount {
				m.DeliveryCount = msg.DeliveryCount
			}
			msg = m
			break
		}
	}
	if msg.SequenceNumber == 0 {
		msg.SequenceNumber = g.nextSeq
		g.nextSeq++
	}
	if msg.DeadLetteredAt == nil {
		now := time.Now().UTC()
		msg.DeadLetteredAt = &now
	}
	state.dlq = append(state.dlq, msg)
	return nil
}

func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}
