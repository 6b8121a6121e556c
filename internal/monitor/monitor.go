// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package monitor keeps the DLQ history in eventual consistency with the
// brokers. A per-namespace monitor enumerates DLQ-bearing entities,
// peeks their dead-letter sub-queues page by page, deduplicates against
// the store and classifies new messages; a process-wide scheduler fans
// monitors out across all active namespaces on a fixed tick with bounded
// parallelism.
package monitor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/classifier"
	"github.com/debdevops/servicehub/internal/credstore"
	"github.com/debdevops/servicehub/internal/dlqstore"
	"github.com/debdevops/servicehub/internal/logging"
	"github.com/debdevops/servicehub/internal/metrics"
	"github.com/debdevops/servicehub/internal/models"
	"github.com/debdevops/servicehub/internal/rules"
)

const (
	defaultPeekPageSize = 100
	defaultSafetyCap    = 10000
	bodyPreviewLimit    = 1024
)

// GatewaySource hands out broker gateways; the dial provider implements
// it. The monitor reads through the uncached view so runtime counts
// reflect the broker at peek time.
type GatewaySource interface {
	Uncached(ctx context.Context, ns *models.Namespace) (broker.Gateway, error)
}

// Evaluator receives each cycle's batch of active entries; the rule
// engine implements it.
type Evaluator interface {
	EvaluateBatch(ctx context.Context, entries []models.DlqHistoryEntry) (rules.BatchResult, error)
}

// Monitor reconciles one namespace per invocation.
type Monitor struct {
	store    *dlqstore.Store
	creds    *credstore.Store
	gateways GatewaySource
	engine   Evaluator
	classify classifier.Func

	peekPageSize int
	safetyCap    int
}

// New creates a monitor. Zero page size and cap fall back to the
// defaults (100-message pages, 10,000 messages per entity per cycle).
func New(store *dlqstore.Store, creds *credstore.Store, gateways GatewaySource, engine Evaluator, classify classifier.Func, peekPageSize, safetyCap int) *Monitor {
	if classify == nil {
		classify = classifier.Classify
	}
	if peekPageSize <= 0 || peekPageSize > 100 {
		peekPageSize = defaultPeekPageSize
	}
	if safetyCap <= 0 {
		safetyCap = defaultSafetyCap
	}
	return &Monitor{
		store:        store,
		creds:        creds,
		gateways:     gateways,
		engine:       engine,
		classify:     classify,
		peekPageSize: peekPageSize,
		safetyCap:    safetyCap,
	}
}

// CycleStats summarizes one namespace cycle.
type CycleStats struct {
	EntitiesScanned int
	MessagesPeeked  int
	EntriesCreated  int
	EntriesUpdated  int
	Rules           rules.BatchResult
}

// RunNamespace executes one monitor cycle for the namespace. Per-entity
// failures are logged and skipped; an authorization failure aborts the
// cycle and records the failed connection test.
func (m *Monitor) RunNamespace(ctx context.Context, ns *models.Namespace) (CycleStats, error) {
	start := time.Now()
	stats, err := m.run(ctx, ns)

	result := "ok"
	switch {
	case err == nil:
	case broker.IsUnauthorized(err):
		result = "unauthorized"
	default:
		result = "error"
	}
	metrics.RecordMonitorCycle(ns.Name, result, time.Since(start))
	return stats, err
}

func (m *Monitor) run(ctx context.Context, ns *models.Namespace) (CycleStats, error) {
	var stats CycleStats

	gw, err := m.gateways.Uncached(ctx, ns)
	if err != nil {
		if broker.IsUnauthorized(err) {
			m.recordConnectionTest(ns, false, err.Error())
		}
		return stats, fmt.Errorf("gateway for namespace %s: %w", ns.Name, err)
	}

	entities, err := m.dlqEntities(ctx, gw, ns)
	if err != nil {
		if broker.IsUnauthorized(err) {
			m.recordConnectionTest(ns, false, err.Error())
		}
		return stats, err
	}

	var batch []models.DlqHistoryEntry
	for _, entity := range entities {
		stats.EntitiesScanned++
		peeked, created, updated, entries := m.scanEntity(ctx, gw, ns, entity)
		stats.MessagesPeeked += peeked
		stats.EntriesCreated += created
		stats.EntriesUpdated += updated
		batch = append(batch, entries...)
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
	}

	metrics.MonitorMessagesPeeked.WithLabelValues(ns.Name).Add(float64(stats.MessagesPeeked))
	metrics.MonitorEntriesCreated.WithLabelValues(ns.Name).Add(float64(stats.EntriesCreated))
	if active, err := m.store.CountActiveByNamespace(ctx, ns.ID); err == nil {
		metrics.DLQActiveEntries.WithLabelValues(ns.Name).Set(float64(active))
	}

	if m.engine != nil && len(batch) > 0 {
		stats.Rules, err = m.engine.EvaluateBatch(ctx, batch)
		if err != nil {
			logging.Err(err).Str("namespace", ns.Name).Msg("Rule evaluation failed")
		}
	}

	m.recordConnectionTest(ns, true, "")
	logging.Ctx(ctx).Debug().
		Str("namespace", ns.Name).
		Int("entities", stats.EntitiesScanned).
		Int("peeked", stats.MessagesPeeked).
		Int("created", stats.EntriesCreated).
		Msg("Monitor cycle finished")
	return stats, nil
}

// dlqEntities lists queues and subscriptions whose dead-letter count is
// nonzero. Listing errors on one topic's subscriptions are logged and
// skipped; queue or topic listing errors abort since nothing can be
// scanned without them.
func (m *Monitor) dlqEntities(ctx context.Context, gw broker.Gateway, ns *models.Namespace) ([]broker.Entity, error) {
	var out []broker.Entity

	queues, err := gw.ListQueues(ctx)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	for _, q := range queues {
		if q.Counts.DeadLetter > 0 {
			out = append(out, broker.Entity{Name: q.Name, Type: models.EntityTypeQueue})
		}
	}

	topics, err := gw.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	for _, topic := range topics {
		subs, err := gw.ListSubscriptions(ctx, topic.Name)
		if err != nil {
			if broker.IsUnauthorized(err) {
				return nil, err
			}
			logging.Warn().Err(err).
				Str("namespace", ns.Name).
				Str("topic", topic.Name).
				Msg("Skipping topic, subscription listing failed")
			continue
		}
		for _, sub := range subs {
			if sub.Counts.DeadLetter > 0 {
				out = append(out, broker.Entity{Name: sub.Name, Type: models.EntityTypeSubscription, TopicName: topic.Name})
			}
		}
	}
	return out, nil
}

// scanEntity pages through one entity's DLQ and upserts every message.
// Returns peeked/created/updated counts and the Active entries for rule
// evaluation.
func (m *Monitor) scanEntity(ctx context.Context, gw broker.Gateway, ns *models.Namespace, entity broker.Entity) (peeked, created, updated int, batch []models.DlqHistoryEntry) {
	from := int64(0)
	for peeked < m.safetyCap {
		max := m.peekPageSize
		if remaining := m.safetyCap - peeked; remaining < max {
			max = remaining
		}
		msgs, err := gw.PeekDLQ(ctx, entity, from, max)
		if err != nil {
			logging.Warn().Err(err).
				Str("namespace", ns.Name).
				Str("entity", entity.Name).
				Msg("Skipping entity, DLQ peek failed")
			return
		}
		if len(msgs) == 0 {
			return
		}

		for _, msg := range msgs {
			peeked++
			entry := m.buildEntry(ns, entity, msg)
			wasCreated, err := m.store.Upsert(ctx, entry)
			if err != nil {
				logging.Err(err).
					Str("namespace", ns.Name).
					Str("entity", entity.Name).
					Str("message_id", msg.MessageID).
					Msg("Failed to upsert DLQ entry")
				continue
			}
			if wasCreated {
				created++
			} else {
				updated++
			}
			if entry.Status == models.StatusActive {
				batch = append(batch, *entry)
			}
		}
		from = msgs[len(msgs)-1].SequenceNumber + 1
	}
	return
}

func (m *Monitor) buildEntry(ns *models.Namespace, entity broker.Entity, msg broker.Message) *models.DlqHistoryEntry {
	sum := sha256.Sum256(msg.Body)

	entry := &models.DlqHistoryEntry{
		DedupKey: models.DedupKey{
			NamespaceID:     ns.ID,
			EntityName:      entity.Name,
			EntityType:      entity.Type,
			TopicName:       entity.TopicName,
			BrokerMessageID: msg.MessageID,
			SequenceNumber:  msg.SequenceNumber,
		},
		BodyHash:                   hex.EncodeToString(sum[:]),
		EnqueuedAtUTC:              msg.EnqueuedAt,
		DeadLetteredAtUTC:          msg.DeadLetteredAt,
		DeadLetterReason:           msg.DeadLetterReason,
		DeadLetterErrorDescription: msg.DeadLetterErrorDescription,
		DeliveryCount:              msg.DeliveryCount,
		ContentType:                msg.ContentType,
		SizeBytes:                  int64(len(msg.Body)),
		BodyPreview:                preview(msg.Body),
		CorrelationID:              msg.CorrelationID,
		SessionID:                  msg.SessionID,
	}
	if len(msg.ApplicationProperties) > 0 {
		if props, err := json.Marshal(msg.ApplicationProperties); err == nil {
			entry.ApplicationPropertiesJSON = string(props)
		}
	}

	verdict := m.classify(classifier.Input{
		DeadLetterReason:      msg.DeadLetterReason,
		ErrorDescription:      msg.DeadLetterErrorDescription,
		DeliveryCount:         msg.DeliveryCount,
		ApplicationProperties: msg.ApplicationProperties,
	})
	entry.FailureCategory = verdict.Category
	entry.CategoryConfidence = verdict.Confidence
	return entry
}

// preview truncates the body for storage, replacing invalid UTF-8 so a
// binary payload stays displayable.
func preview(body []byte) string {
	s := string(body)
	if len(s) > bodyPreviewLimit {
		s = s[:bodyPreviewLimit]
	}
	return strings.ToValidUTF8(s, "�")
}

func (m *Monitor) recordConnectionTest(ns *models.Namespace, ok bool, errMsg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.creds.RecordConnectionTest(ctx, ns.ID, ok, errMsg); err != nil {
		logging.Warn().Err(err).Str("namespace", ns.Name).Msg("Failed to record connection test result")
	}
}
