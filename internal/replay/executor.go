// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package replay executes DLQ replays: it re-fetches the dead-lettered
// message from the broker, re-sends it to the original (or overridden)
// entity with optional delay and backoff, and records the outcome
// atomically with the entry's status change. Auto-replays arrive as
// rule engine jobs through an unbounded queue consumed by a worker
// pool; manual replays call Replay directly from the API.
package replay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/debdevops/servicehub/internal/broker"
	"github.com/debdevops/servicehub/internal/config"
	"github.com/debdevops/servicehub/internal/dlqstore"
	"github.com/debdevops/servicehub/internal/logging"
	"github.com/debdevops/servicehub/internal/metrics"
	"github.com/debdevops/servicehub/internal/models"
	"github.com/debdevops/servicehub/internal/rules"
)

var (
	// ErrNotReplayable is returned when the entry's status forbids replay.
	ErrNotReplayable = errors.New("replay: entry is not in a replayable status")

	// ErrNamespaceInactive is returned when the entry's namespace is
	// deactivated.
	ErrNamespaceInactive = errors.New("replay: namespace is inactive")
)

const (
	defaultWorkers        = 4
	defaultBaseDelay      = 2 * time.Second
	defaultAttemptTimeout = 30 * time.Second
)

// NamespaceSource resolves namespaces; the credential store implements
// it.
type NamespaceSource interface {
	Get(ctx context.Context, id string) (*models.Namespace, error)
}

// GatewaySource hands out broker gateways; the dial provider implements
// it.
type GatewaySource interface {
	Gateway(ctx context.Context, ns *models.Namespace) (broker.Gateway, error)
}

// Executor runs replay jobs. Implements rules.Sink for auto-replays and
// suture's service contract for the worker pool.
type Executor struct {
	store      *dlqstore.Store
	namespaces NamespaceSource
	gateways   GatewaySource

	workers        int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	pacer          *rate.Limiter

	queue *jobQueue
}

// New creates an executor. Zero config fields fall back to defaults;
// SendsPerSecond 0 disables global send pacing.
func New(store *dlqstore.Store, namespaces NamespaceSource, gateways GatewaySource, cfg *config.ReplayConfig) *Executor {
	e := &Executor{
		store:          store,
		namespaces:     namespaces,
		gateways:       gateways,
		workers:        defaultWorkers,
		baseDelay:      defaultBaseDelay,
		attemptTimeout: defaultAttemptTimeout,
		queue:          newJobQueue(),
	}
	if cfg != nil {
		if cfg.Workers > 0 {
			e.workers = cfg.Workers
		}
		if cfg.BaseDelay > 0 {
			e.baseDelay = cfg.BaseDelay
		}
		if cfg.AttemptTimeout > 0 {
			e.attemptTimeout = cfg.AttemptTimeout
		}
		if cfg.SendsPerSecond > 0 {
			e.pacer = rate.NewLimiter(rate.Limit(cfg.SendsPerSecond), 1)
		}
	}
	return e
}

// Submit queues an auto-replay job from the rule engine.
func (e *Executor) Submit(job rules.ReplayJob) {
	e.queue.push(job)
}

// QueueDepth reports the number of pending jobs.
func (e *Executor) QueueDepth() int {
	return e.queue.depth()
}

// Serve runs the worker pool until the context is canceled. It
// satisfies the suture service contract.
func (e *Executor) Serve(ctx context.Context) error {
	logging.Info().Int("workers", e.workers).Msg("Replay executor starting")

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx)
		}()
	}
	wg.Wait()

	logging.Info().Msg("Replay executor stopped")
	return ctx.Err()
}

func (e *Executor) work(ctx context.Context) {
	for {
		job, ok := e.queue.pop(ctx)
		if !ok {
			return
		}
		// Auto-replay drops jobs whose entry moved past Active between
		// match and execution.
		if _, err := e.execute(ctx, job.EntryID, job.Rule.ID, job.Rule.Action, false); err != nil {
			if errors.Is(err, ErrNotReplayable) {
				logging.Debug().Int64("entry_id", job.EntryID).Msg("Replay job dropped, entry no longer Active")
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logging.Err(err).
				Int64("entry_id", job.EntryID).
				Str("rule", job.Rule.Name).
				Msg("Auto-replay failed before send")
		}
	}
}

// Replay performs an operator-initiated replay of one entry. Active and
// ReplayFailed entries are replayable.
func (e *Executor) Replay(ctx context.Context, entryID int64, action models.RuleAction) (*models.ReplayHistoryEntry, error) {
	return e.execute(ctx, entryID, models.ReplayedByManual, action, true)
}

// BulkResult summarizes a replay-all pass.
type BulkResult struct {
	Matched  int                         `json:"matched"`
	Replayed int                         `json:"replayed"`
	Failed   int                         `json:"failed"`
	Skipped  int                         `json:"skipped"`
	Results  []models.ReplayHistoryEntry `json:"results"`
}

// ReplayAll replays the given entries sequentially with manual
// semantics. Entries in a non-replayable status count as skipped.
func (e *Executor) ReplayAll(ctx context.Context, entryIDs []int64, action models.RuleAction) (*BulkResult, error) {
	result := &BulkResult{Matched: len(entryIDs), Results: []models.ReplayHistoryEntry{}}
	for _, id := range entryIDs {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		replayEntry, err := e.execute(ctx, id, models.ReplayedByManual, action, true)
		switch {
		case errors.Is(err, ErrNotReplayable):
			result.Skipped++
		case err != nil:
			result.Failed++
			logging.Err(err).Int64("entry_id", id).Msg("Bulk replay entry failed")
		case replayEntry.OutcomeStatus == models.ReplayOutcomeSuccess:
			result.Replayed++
			result.Results = append(result.Results, *replayEntry)
		default:
			result.Failed++
			result.Results = append(result.Results, *replayEntry)
		}
	}
	return result, nil
}

// execute runs the full replay sequence for one entry and records the
// outcome. Precondition failures (missing entry, wrong status, inactive
// namespace, unreachable gateway) return an error without writing a
// replay row; send failures after the preconditions record a Failed
// outcome instead.
func (e *Executor) execute(ctx context.Context, entryID int64, by string, action models.RuleAction, allowRetryOfFailed bool) (*models.ReplayHistoryEntry, error) {
	entry, err := e.store.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if !replayable(entry.Status, allowRetryOfFailed) {
		return nil, fmt.Errorf("%w: status %s", ErrNotReplayable, entry.Status)
	}

	ns, err := e.namespaces.Get(ctx, entry.NamespaceID)
	if err != nil {
		return nil, fmt.Errorf("resolve namespace %s: %w", entry.NamespaceID, err)
	}
	if !ns.Active {
		return nil, ErrNamespaceInactive
	}

	gw, err := e.gateways.Gateway(ctx, ns)
	if err != nil {
		return nil, err
	}

	if action.DelaySeconds > 0 {
		if err := sleepCtx(ctx, time.Duration(action.DelaySeconds)*time.Second); err != nil {
			return nil, err
		}
	}

	target := entry.EntityName
	if entry.EntityType == models.EntityTypeSubscription {
		target = entry.TopicName
	}
	if action.TargetEntity != "" {
		target = action.TargetEntity
	}

	outcome := e.attempt(ctx, gw, entry, target, action)
	outcome.DlqEntryID = entry.ID
	outcome.ReplayedBy = by
	outcome.ReplayedToEntity = target
	outcome.Strategy = strategyLabel(action)

	if err := e.store.RecordReplay(ctx, outcome); err != nil {
		return nil, fmt.Errorf("record replay outcome: %w", err)
	}

	initiator := "rule"
	if by == models.ReplayedByManual {
		initiator = models.ReplayedByManual
	}
	metrics.RecordReplayOutcome(outcome.OutcomeStatus == models.ReplayOutcomeSuccess, initiator, outcome.Attempts)
	logging.Ctx(ctx).Info().
		Int64("entry_id", entry.ID).
		Str("target", target).
		Str("outcome", string(outcome.OutcomeStatus)).
		Int("attempts", outcome.Attempts).
		Msg("Replay finished")
	return outcome, nil
}

// attempt re-fetches the live message and sends it, retrying per the
// action's budget. The returned entry carries outcome, attempts and
// error details only.
func (e *Executor) attempt(ctx context.Context, gw broker.Gateway, entry *models.DlqHistoryEntry, target string, action models.RuleAction) *models.ReplayHistoryEntry {
	out := &models.ReplayHistoryEntry{}

	maxAttempts := action.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out.Attempts = attempt

		msg, err := e.fetchOriginal(ctx, gw, entry)
		if err == nil {
			err = e.send(ctx, gw, target, msg)
		}
		if err == nil {
			out.OutcomeStatus = models.ReplayOutcomeSuccess
			return out
		}
		lastErr = err

		if !broker.IsRetryable(err) || attempt == maxAttempts || ctx.Err() != nil {
			break
		}
		backoff := e.baseDelay
		if action.ExponentialBackoff {
			backoff = time.Duration(float64(e.baseDelay) * math.Pow(2, float64(attempt-1)))
		}
		if err := sleepCtx(ctx, backoff); err != nil {
			lastErr = err
			break
		}
	}

	out.OutcomeStatus = models.ReplayOutcomeFailed
	if lastErr != nil {
		out.ErrorDetails = lastErr.Error()
	}
	return out
}

// fetchOriginal peeks the entry's message back out of the DLQ by
// sequence number. Only the body preview is persisted, so the full
// payload must still be present on the broker for a replay to succeed.
func (e *Executor) fetchOriginal(ctx context.Context, gw broker.Gateway, entry *models.DlqHistoryEntry) (broker.Message, error) {
	entity := broker.Entity{
		Name:      entry.EntityName,
		Type:      entry.EntityType,
		TopicName: entry.TopicName,
	}
	msgs, err := gw.PeekDLQ(ctx, entity, entry.SequenceNumber, 1)
	if err != nil {
		return broker.Message{}, err
	}
	if len(msgs) == 0 || msgs[0].SequenceNumber != entry.SequenceNumber || msgs[0].MessageID != entry.BrokerMessageID {
		return broker.Message{}, broker.NewError(broker.KindNotFound, "fetch_original", entry.EntityName,
			fmt.Errorf("message %s seq %d no longer in dead-letter queue", entry.BrokerMessageID, entry.SequenceNumber))
	}
	return msgs[0], nil
}

func (e *Executor) send(ctx context.Context, gw broker.Gateway, target string, msg broker.Message) error {
	if e.pacer != nil {
		if err := e.pacer.Wait(ctx); err != nil {
			return err
		}
	}
	sendCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
	defer cancel()
	return gw.Send(sendCtx, target, msg)
}

func replayable(status models.DlqStatus, allowRetryOfFailed bool) bool {
	if status == models.StatusActive {
		return true
	}
	return allowRetryOfFailed && status == models.StatusReplayFailed
}

func strategyLabel(action models.RuleAction) string {
	backoff := "flat"
	if action.ExponentialBackoff {
		backoff = "exponential"
	}
	return fmt.Sprintf("delay=%ds retries=%d backoff=%s", action.DelaySeconds, action.MaxRetries, backoff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
