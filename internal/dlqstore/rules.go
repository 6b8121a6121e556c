// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package dlqstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/debdevops/servicehub/internal/models"
)

const ruleColumns = `id, name, description, enabled, disabled_reason,
	conditions_json, action_json, max_replays_per_hour, match_count,
	success_count, version, created_at, updated_at`

func scanRule(row rowScanner) (*models.Rule, error) {
	var (
		r              models.Rule
		conditionsJSON string
		actionJSON     string
	)
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Enabled, &r.DisabledReason,
		&conditionsJSON, &actionJSON, &r.MaxReplaysPerHour, &r.MatchCount,
		&r.SuccessCount, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}

	if err := json.Unmarshal([]byte(conditionsJSON), &r.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshal rule conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(actionJSON), &r.Action); err != nil {
		return nil, fmt.Errorf("unmarshal rule action: %w", err)
	}
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return &r, nil
}

func marshalRule(r *models.Rule) (string, string, error) {
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return "", "", fmt.Errorf("marshal rule conditions: %w", err)
	}
	action, err := json.Marshal(r.Action)
	if err != nil {
		return "", "", fmt.Errorf("marshal rule action: %w", err)
	}
	return string(conditions), string(action), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unique")
}

// CreateRule stores a new rule. A zero ID is replaced with a UUID;
// counters start at zero and version at 1.
func (s *Store) CreateRule(ctx context.Context, r *models.Rule) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1
	r.MatchCount = 0
	r.SuccessCount = 0

	conditions, action, err := marshalRule(r)
	if err != nil {
		return err
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO replay_rules (
			id, name, description, enabled, disabled_reason, conditions_json,
			action_json, max_replays_per_hour, match_count, success_count,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0, 1, ?, ?)`,
		r.ID, r.Name, r.Description, r.Enabled, r.DisabledReason,
		conditions, action, r.MaxReplaysPerHour, r.CreatedAt, r.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateRuleName
	}
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// GetRule returns one rule by id.
func (s *Store) GetRule(ctx context.Context, id string) (*models.Rule, error) {
	return scanRule(s.conn.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM replay_rules WHERE id = ?`, id))
}

// ListRules returns all rules ordered by name. When enabledOnly is set,
// disabled rules are excluded.
func (s *Store) ListRules(ctx context.Context, enabledOnly bool) ([]models.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM replay_rules`
	if enabledOnly {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY name ASC`

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []models.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}

// UpdateRule rewrites a rule's definition, bumping its version so cached
// compiled conditions are invalidated. Counters are preserved.
func (s *Store) UpdateRule(ctx context.Context, r *models.Rule) error {
	conditions, action, err := marshalRule(r)
	if err != nil {
		return err
	}
	r.UpdatedAt = time.Now().UTC()

	res, err := s.conn.ExecContext(ctx,
		`UPDATE replay_rules SET
			name = ?, description = ?, enabled = ?, disabled_reason = ?,
			conditions_json = ?, action_json = ?, max_replays_per_hour = ?,
			version = version + 1, updated_at = ?
		 WHERE id = ?`,
		r.Name, r.Description, r.Enabled, r.DisabledReason,
		conditions, action, r.MaxReplaysPerHour, r.UpdatedAt, r.ID)
	if isUniqueViolation(err) {
		return ErrDuplicateRuleName
	}
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	updated, err := s.GetRule(ctx, r.ID)
	if err != nil {
		return err
	}
	*r = *updated
	return nil
}

// DeleteRule removes a rule.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM replay_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DisableRule turns a rule off with an operator-visible reason, used when
// a condition fails to compile.
func (s *Store) DisableRule(ctx context.Context, id, reason string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE replay_rules SET enabled = false, disabled_reason = ?, updated_at = ? WHERE id = ?`,
		reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("disable rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementRuleMatches adds to a rule's lifetime match counter.
func (s *Store) IncrementRuleMatches(ctx context.Context, id string, n int64) error {
	if n == 0 {
		return nil
	}
	res, err := s.conn.ExecContext(ctx,
		`UPDATE replay_rules SET match_count = match_count + ? WHERE id = ?`, n, id)
	if err != nil {
		return fmt.Errorf("increment rule matches: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}
