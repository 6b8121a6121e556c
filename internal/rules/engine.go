// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package rules evaluates operator-defined replay rules against DLQ
// history entries. The monitor hands each cycle's created and still
// active entries to EvaluateBatch; matching rules with autoReplay
// submit jobs to the replay executor, throttled per rule by a rolling
// hourly budget.
package rules

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/debdevops/servicehub/internal/dlqstore"
	"github.com/debdevops/servicehub/internal/logging"
	"github.com/debdevops/servicehub/internal/metrics"
	"github.com/debdevops/servicehub/internal/models"
)

const (
	sampleLimit      = 20
	defaultTestLimit = 1000
	testRulePageSize = 200
)

// ReplayJob is one auto-replay request produced by a matching rule.
type ReplayJob struct {
	EntryID int64
	Rule    models.Rule
}

// Sink accepts replay jobs; the replay executor implements it.
type Sink interface {
	Submit(job ReplayJob)
}

// Engine evaluates rules. Safe for concurrent use; the monitor worker
// pool calls EvaluateBatch from multiple goroutines.
type Engine struct {
	store   *dlqstore.Store
	sink    Sink
	regexes *regexCache
	limits  *limiterSet
	now     func() time.Time
}

// NewEngine creates an engine writing matched counters to the store and
// submitting auto-replay jobs to the sink.
func NewEngine(store *dlqstore.Store, sink Sink) *Engine {
	return &Engine{
		store:   store,
		sink:    sink,
		regexes: newRegexCache(),
		limits:  newLimiterSet(),
		now:     time.Now,
	}
}

// BatchResult summarizes one EvaluateBatch pass. Skipped counts matches
// that would have auto-replayed but exceeded the rule's hourly budget.
type BatchResult struct {
	Matched   int
	Submitted int
	Skipped   int
}

// EvaluateBatch runs every enabled rule against the given entries in
// rule definition order. Rules whose regex conditions fail to compile
// are disabled with an operator-visible reason and skipped.
func (e *Engine) EvaluateBatch(ctx context.Context, entries []models.DlqHistoryEntry) (BatchResult, error) {
	var result BatchResult
	if len(entries) == 0 {
		return result, nil
	}

	loaded, err := e.store.ListRules(ctx, true)
	if err != nil {
		return result, fmt.Errorf("load rules: %w", err)
	}
	if len(loaded) == 0 {
		return result, nil
	}
	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].CreatedAt.Before(loaded[j].CreatedAt)
	})

	compiled := make([]compiledRule, 0, len(loaded))
	for _, r := range loaded {
		cr, err := e.regexes.compileRule(r)
		if err != nil {
			reason := fmt.Sprintf("invalid condition: %v", err)
			logging.Warn().
				Str("rule", r.Name).
				Str("rule_id", r.ID).
				Err(err).
				Msg("Disabling rule with uncompilable condition")
			if derr := e.store.DisableRule(ctx, r.ID, reason); derr != nil {
				logging.Err(derr).Str("rule_id", r.ID).Msg("Failed to disable rule")
			}
			continue
		}
		compiled = append(compiled, cr)
	}

	matchCounts := make(map[string]int64)
	for i := range entries {
		entry := &entries[i]
		for _, cr := range compiled {
			if !cr.matches(entry) {
				continue
			}
			result.Matched++
			matchCounts[cr.rule.ID]++
			metrics.RuleMatches.WithLabelValues(cr.rule.Name).Inc()

			if !cr.rule.Action.AutoReplay {
				continue
			}
			if e.limits.allow(cr.rule.ID, e.now(), cr.rule.MaxReplaysPerHour) {
				e.sink.Submit(ReplayJob{EntryID: entry.ID, Rule: cr.rule})
				result.Submitted++
			} else {
				result.Skipped++
				metrics.RuleReplaysSkipped.WithLabelValues(cr.rule.Name).Inc()
				logging.Debug().
					Str("rule", cr.rule.Name).
					Int64("entry_id", entry.ID).
					Msg("Auto-replay skipped by hourly rate budget")
			}
		}
	}

	for id, n := range matchCounts {
		if err := e.store.IncrementRuleMatches(ctx, id, n); err != nil {
			logging.Err(err).Str("rule_id", id).Msg("Failed to increment rule match counter")
		}
	}
	return result, nil
}

// MatchingActiveIDs loads a rule and returns the IDs of Active entries
// it currently matches, newest first, up to limit. Used by the bulk
// replay endpoint.
func (e *Engine) MatchingActiveIDs(ctx context.Context, ruleID string, limit int) (*models.Rule, []int64, error) {
	r, err := e.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, nil, err
	}
	cr, err := e.regexes.compileRule(*r)
	if err != nil {
		return nil, nil, err
	}
	if limit <= 0 {
		limit = defaultTestLimit
	}

	var ids []int64
	for page := 1; len(ids) < limit; page++ {
		entries, _, err := e.store.List(ctx, dlqstore.Filter{
			Status:   models.StatusActive,
			Page:     page,
			PageSize: testRulePageSize,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("list active entries: %w", err)
		}
		if len(entries) == 0 {
			break
		}
		for i := range entries {
			if len(ids) >= limit {
				break
			}
			if cr.matches(&entries[i]) {
				ids = append(ids, entries[i].ID)
			}
		}
	}
	return r, ids, nil
}

// ReserveReplays consumes up to n slots from the rule's rolling-hour
// replay budget and returns how many were granted. Bulk replays draw
// from the same budget as auto-replays.
func (e *Engine) ReserveReplays(rule *models.Rule, n int) int {
	granted := 0
	for i := 0; i < n; i++ {
		if !e.limits.allow(rule.ID, e.now(), rule.MaxReplaysPerHour) {
			break
		}
		granted++
	}
	return granted
}

// Forget drops process-local state for a deleted rule.
func (e *Engine) Forget(ruleID string) {
	e.limits.forget(ruleID)
}

// TestRequest describes a dry-run evaluation. Exactly one of RuleID or
// Conditions is set; NamespaceID optionally narrows the scope.
type TestRequest struct {
	RuleID      string
	Conditions  []models.RuleCondition
	NamespaceID string
	MaxMessages int
}

// TestRule evaluates conditions against currently Active entries without
// replaying anything.
func (e *Engine) TestRule(ctx context.Context, req TestRequest) (*models.RuleTestResult, error) {
	var (
		rule        models.Rule
		successRate float64
	)
	if req.RuleID != "" {
		r, err := e.store.GetRule(ctx, req.RuleID)
		if err != nil {
			return nil, err
		}
		rule = *r
		if r.MatchCount > 0 {
			successRate = float64(r.SuccessCount) / float64(r.MatchCount)
		}
	} else {
		if err := ValidateConditions(req.Conditions); err != nil {
			return nil, err
		}
		rule = models.Rule{Conditions: req.Conditions}
	}

	cr, err := e.regexes.compileRule(rule)
	if err != nil {
		return nil, err
	}

	limit := req.MaxMessages
	if limit <= 0 {
		limit = defaultTestLimit
	}

	result := &models.RuleTestResult{
		EstimatedSuccessRate: successRate,
		SampleMatches:        []models.DlqHistoryEntry{},
	}
	for page := 1; result.Tested < int64(limit); page++ {
		entries, _, err := e.store.List(ctx, dlqstore.Filter{
			NamespaceID: req.NamespaceID,
			Status:      models.StatusActive,
			Page:        page,
			PageSize:    testRulePageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("list active entries: %w", err)
		}
		if len(entries) == 0 {
			break
		}
		for i := range entries {
			if result.Tested >= int64(limit) {
				break
			}
			result.Tested++
			if cr.matches(&entries[i]) {
				result.Matched++
				if len(result.SampleMatches) < sampleLimit {
					result.SampleMatches = append(result.SampleMatches, entries[i])
				}
			}
		}
	}
	return result, nil
}
