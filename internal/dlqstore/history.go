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
	"sort"
	"strings"
	"time"

	"github.com/debdevops/servicehub/internal/models"
)

const historyColumns = `id, namespace_id, entity_name, entity_type, topic_name,
	broker_message_id, sequence_number, body_hash, enqueued_at, dead_lettered_at,
	detected_at, dead_letter_reason, dead_letter_error_description, delivery_count,
	content_type, size_bytes, body_preview, application_properties_json,
	failure_category, category_confidence, status, replayed_at, replay_success,
	archived_at, user_notes, correlation_id, session_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.DlqHistoryEntry, error) {
	var (
		e            models.DlqHistoryEntry
		enqueuedAt   sql.NullTime
		deadLettered sql.NullTime
		replayedAt   sql.NullTime
		archivedAt   sql.NullTime
		replayOK     sql.NullBool
	)

	err := row.Scan(
		&e.ID, &e.NamespaceID, &e.EntityName, &e.EntityType, &e.TopicName,
		&e.BrokerMessageID, &e.SequenceNumber, &e.BodyHash, &enqueuedAt, &deadLettered,
		&e.DetectedAtUTC, &e.DeadLetterReason, &e.DeadLetterErrorDescription, &e.DeliveryCount,
		&e.ContentType, &e.SizeBytes, &e.BodyPreview, &e.ApplicationPropertiesJSON,
		&e.FailureCategory, &e.CategoryConfidence, &e.Status, &replayedAt, &replayOK,
		&archivedAt, &e.UserNotes, &e.CorrelationID, &e.SessionID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan dlq entry: %w", err)
	}

	if enqueuedAt.Valid {
		t := enqueuedAt.Time.UTC()
		e.EnqueuedAtUTC = &t
	}
	if deadLettered.Valid {
		t := deadLettered.Time.UTC()
		e.DeadLetteredAtUTC = &t
	}
	if replayedAt.Valid {
		t := replayedAt.Time.UTC()
		e.ReplayedAt = &t
	}
	if archivedAt.Valid {
		t := archivedAt.Time.UTC()
		e.ArchivedAt = &t
	}
	if replayOK.Valid {
		v := replayOK.Bool
		e.ReplaySuccess = &v
	}
	e.DetectedAtUTC = e.DetectedAtUTC.UTC()
	return &e, nil
}

// Upsert inserts a newly observed DLQ message or merges a re-observation
// of a known one, keyed by the dedup index. On merge the delivery count
// only ever grows, reasons and preview are refreshed, and status,
// detection time, classification and operator fields are preserved.
// Returns true when a new row was created. The entry is updated in place
// to the stored state either way.
func (s *Store) Upsert(ctx context.Context, entry *models.DlqHistoryEntry) (bool, error) {
	if entry.Status == "" {
		entry.Status = models.StatusActive
	}
	if entry.DetectedAtUTC.IsZero() {
		entry.DetectedAtUTC = time.Now().UTC()
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM dlq_history
		 WHERE namespace_id = ? AND entity_name = ? AND entity_type = ?
		   AND topic_name = ? AND broker_message_id = ? AND sequence_number = ?`,
		entry.NamespaceID, entry.EntityName, entry.EntityType,
		entry.TopicName, entry.BrokerMessageID, entry.SequenceNumber,
	).Scan(&existingID)

	created := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = true
		err = tx.QueryRowContext(ctx,
			`INSERT INTO dlq_history (
				namespace_id, entity_name, entity_type, topic_name,
				broker_message_id, sequence_number, body_hash, enqueued_at,
				dead_lettered_at, detected_at, dead_letter_reason,
				dead_letter_error_description, delivery_count, content_type,
				size_bytes, body_preview, application_properties_json,
				failure_category, category_confidence, status,
				user_notes, correlation_id, session_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			entry.NamespaceID, entry.EntityName, entry.EntityType, entry.TopicName,
			entry.BrokerMessageID, entry.SequenceNumber, entry.BodyHash, entry.EnqueuedAtUTC,
			entry.DeadLetteredAtUTC, entry.DetectedAtUTC, entry.DeadLetterReason,
			entry.DeadLetterErrorDescription, entry.DeliveryCount, entry.ContentType,
			entry.SizeBytes, entry.BodyPreview, entry.ApplicationPropertiesJSON,
			entry.FailureCategory, entry.CategoryConfidence, entry.Status,
			entry.UserNotes, entry.CorrelationID, entry.SessionID,
		).Scan(&entry.ID)
		if err != nil {
			return false, fmt.Errorf("insert dlq entry: %w", err)
		}

	case err != nil:
		return false, fmt.Errorf("lookup dlq entry: %w", err)

	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE dlq_history SET
				delivery_count = GREATEST(delivery_count, ?),
				dead_letter_reason = ?,
				dead_letter_error_description = ?,
				body_hash = ?,
				content_type = ?,
				size_bytes = ?,
				body_preview = ?,
				application_properties_json = ?,
				enqueued_at = COALESCE(?, enqueued_at),
				dead_lettered_at = COALESCE(?, dead_lettered_at),
				correlation_id = ?,
				session_id = ?
			 WHERE id = ?`,
			entry.DeliveryCount,
			entry.DeadLetterReason,
			entry.DeadLetterErrorDescription,
			entry.BodyHash,
			entry.ContentType,
			entry.SizeBytes,
			entry.BodyPreview,
			entry.ApplicationPropertiesJSON,
			entry.EnqueuedAtUTC,
			entry.DeadLetteredAtUTC,
			entry.CorrelationID,
			entry.SessionID,
			existingID,
		)
		if err != nil {
			return false, fmt.Errorf("merge dlq entry: %w", err)
		}
		entry.ID = existingID
	}

	stored, err := scanEntry(tx.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM dlq_history WHERE id = ?`, entry.ID))
	if err != nil {
		return false, err
	}
	*entry = *stored

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert: %w", err)
	}
	return created, nil
}

// Get returns one entry by id.
func (s *Store) Get(ctx context.Context, id int64) (*models.DlqHistoryEntry, error) {
	return scanEntry(s.conn.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM dlq_history WHERE id = ?`, id))
}

// SetStatus transitions an entry's lifecycle status under the finality
// rules. Archival stamps archived_at; notes, when non-nil, are updated in
// the same statement. Returns the updated entry.
func (s *Store) SetStatus(ctx context.Context, id int64, next models.DlqStatus, notes *string) (*models.DlqHistoryEntry, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin status change: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanEntry(tx.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM dlq_history WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	if !current.Status.CanTransitionTo(next) {
		return nil, &InvalidTransitionError{From: current.Status, To: next}
	}

	// Archival and discard both stamp the resolution timestamp; the
	// timeline needs it for the terminal event.
	var archivedAt *time.Time
	if (next == models.StatusArchived || next == models.StatusDiscarded) && current.ArchivedAt == nil {
		now := time.Now().UTC()
		archivedAt = &now
	} else {
		archivedAt = current.ArchivedAt
	}

	userNotes := current.UserNotes
	if notes != nil {
		userNotes = *notes
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE dlq_history SET status = ?, archived_at = ?, user_notes = ? WHERE id = ?`,
		next, archivedAt, userNotes, id); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	updated, err := scanEntry(tx.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM dlq_history WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status change: %w", err)
	}
	return updated, nil
}

// UpdateNotes replaces the operator notes without touching status.
func (s *Store) UpdateNotes(ctx context.Context, id int64, notes string) (*models.DlqHistoryEntry, error) {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE dlq_history SET user_notes = ? WHERE id = ?`, notes, id)
	if err != nil {
		return nil, fmt.Errorf("update notes: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Filter narrows history listings. Zero values mean "any".
type Filter struct {
	NamespaceID string
	EntityName  string
	TopicName   string
	Status      models.DlqStatus
	Category    models.FailureCategory

	// Search matches message id, reason, error description or preview.
	Search string

	DetectedFrom *time.Time
	DetectedTo   *time.Time

	Page     int
	PageSize int
}

func (f Filter) where() (string, []any) {
	var clauses []string
	var args []any

	add := func(clause string, vals ...any) {
		clauses = append(clauses, clause)
		args = append(args, vals...)
	}

	if f.NamespaceID != "" {
		add("namespace_id = ?", f.NamespaceID)
	}
	if f.EntityName != "" {
		add("entity_name = ?", f.EntityName)
	}
	if f.TopicName != "" {
		add("topic_name = ?", f.TopicName)
	}
	if f.Status != "" {
		add("status = ?", f.Status)
	}
	if f.Category != "" {
		add("failure_category = ?", f.Category)
	}
	if f.Search != "" {
		like := "%" + strings.ToLower(f.Search) + "%"
		add(`(lower(broker_message_id) LIKE ? OR lower(dead_letter_reason) LIKE ?
			OR lower(dead_letter_error_description) LIKE ? OR lower(body_preview) LIKE ?)`,
			like, like, like, like)
	}
	if f.DetectedFrom != nil {
		add("detected_at >= ?", *f.DetectedFrom)
	}
	if f.DetectedTo != nil {
		add("detected_at < ?", *f.DetectedTo)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List returns one page of entries newest-first (detected_at DESC, id
// DESC as the stable tiebreak) plus the total match count.
func (s *Store) List(ctx context.Context, f Filter) ([]models.DlqHistoryEntry, int64, error) {
	where, args := f.where()

	var total int64
	if err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dlq_history`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count dlq entries: %w", err)
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	pageSize := f.PageSize
	if pageSize < 1 {
		pageSize = 50
	}

	query := `SELECT ` + historyColumns + ` FROM dlq_history` + where +
		` ORDER BY detected_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := s.conn.QueryContext(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list dlq entries: %w", err)
	}
	defer rows.Close()

	var out []models.DlqHistoryEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate dlq entries: %w", err)
	}
	return out, total, nil
}

// CountActiveByNamespace reports how many unresolved entries reference a
// namespace; namespace deletion is refused while this is non-zero.
func (s *Store) CountActiveByNamespace(ctx context.Context, namespaceID string) (int64, error) {
	var n int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dlq_history WHERE namespace_id = ? AND status IN (?, ?)`,
		namespaceID, models.StatusActive, models.StatusReplayFailed).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active entries: %w", err)
	}
	return n, nil
}

// RecordReplay stores one replay outcome and the resulting status change
// in a single transaction, so the replay history and the entry can never
// disagree. For successful rule-driven replays the rule's success counter
// is incremented in the same transaction.
func (s *Store) RecordReplay(ctx context.Context, replay *models.ReplayHistoryEntry) error {
	success := replay.OutcomeStatus == models.ReplayOutcomeSuccess
	newStatus := models.StatusReplayFailed
	if success {
		newStatus = models.StatusReplayed
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replay record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanEntry(tx.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM dlq_history WHERE id = ?`, replay.DlqEntryID))
	if err != nil {
		return err
	}
	if !current.Status.CanTransitionTo(newStatus) {
		return &InvalidTransitionError{From: current.Status, To: newStatus}
	}

	if replay.ReplayedAt.IsZero() {
		replay.ReplayedAt = time.Now().UTC()
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO replay_history (
			dlq_entry_id, replayed_at, replayed_by, strategy, replayed_to_entity,
			outcome_status, attempts, new_dead_letter_reason, error_details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		replay.DlqEntryID, replay.ReplayedAt, replay.ReplayedBy, replay.Strategy,
		replay.ReplayedToEntity, replay.OutcomeStatus, replay.Attempts,
		replay.NewDeadLetterReason, replay.ErrorDetails,
	).Scan(&replay.ID)
	if err != nil {
		return fmt.Errorf("insert replay record: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE dlq_history SET status = ?, replayed_at = ?, replay_success = ? WHERE id = ?`,
		newStatus, replay.ReplayedAt, success, replay.DlqEntryID); err != nil {
		return fmt.Errorf("update entry after replay: %w", err)
	}

	if success && replay.ReplayedBy != models.ReplayedByManual {
		if _, err := tx.ExecContext(ctx,
			`UPDATE replay_rules SET success_count = success_count + 1 WHERE id = ?`,
			replay.ReplayedBy); err != nil {
			return fmt.Errorf("increment rule success count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replay record: %w", err)
	}
	return nil
}

// Replays lists an entry's replay history oldest-first.
func (s *Store) Replays(ctx context.Context, dlqEntryID int64) ([]models.ReplayHistoryEntry, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, dlq_entry_id, replayed_at, replayed_by, strategy, replayed_to_entity,
			outcome_status, attempts, new_dead_letter_reason, error_details
		 FROM replay_history WHERE dlq_entry_id = ? ORDER BY replayed_at ASC, id ASC`,
		dlqEntryID)
	if err != nil {
		return nil, fmt.Errorf("list replays: %w", err)
	}
	defer rows.Close()

	var out []models.ReplayHistoryEntry
	for rows.Next() {
		var r models.ReplayHistoryEntry
		if err := rows.Scan(&r.ID, &r.DlqEntryID, &r.ReplayedAt, &r.ReplayedBy,
			&r.Strategy, &r.ReplayedToEntity, &r.OutcomeStatus, &r.Attempts,
			&r.NewDeadLetterReason, &r.ErrorDetails); err != nil {
			return nil, fmt.Errorf("scan replay record: %w", err)
		}
		r.ReplayedAt = r.ReplayedAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate replays: %w", err)
	}
	return out, nil
}

// Summary aggregates the history for the dashboard endpoint. rangeDays
// scopes every aggregate to entries detected within the last N days;
// zero or negative means all time.
func (s *Store) Summary(ctx context.Context, rangeDays int) (*models.DlqSummary, error) {
	sum := &models.DlqSummary{
		ByStatus:    make(map[models.DlqStatus]int64),
		ByCategory:  make(map[models.FailureCategory]int64),
		ByNamespace: make(map[string]int64),
		ByEntity:    make(map[string]int64),
		Daily:       []models.DailyCounts{},
	}

	where := ""
	var args []any
	if rangeDays > 0 {
		sum.RangeDays = rangeDays
		where = " WHERE detected_at >= ?"
		args = append(args, time.Now().UTC().AddDate(0, 0, -rangeDays))
	}

	type grouping struct {
		query string
		apply func(key string, n int64)
	}
	groupings := []grouping{
		{`SELECT status, COUNT(*) FROM dlq_history` + where + ` GROUP BY status`,
			func(key string, n int64) { sum.ByStatus[models.DlqStatus(key)] = n }},
		{`SELECT failure_category, COUNT(*) FROM dlq_history` + where + ` GROUP BY failure_category`,
			func(key string, n int64) { sum.ByCategory[models.FailureCategory(key)] = n }},
		{`SELECT namespace_id, COUNT(*) FROM dlq_history` + where + ` GROUP BY namespace_id`,
			func(key string, n int64) { sum.ByNamespace[key] = n }},
		{`SELECT entity_name, COUNT(*) FROM dlq_history` + where + ` GROUP BY entity_name`,
			func(key string, n int64) { sum.ByEntity[key] = n }},
	}

	for _, g := range groupings {
		rows, err := s.conn.QueryContext(ctx, g.query, args...)
		if err != nil {
			return nil, fmt.Errorf("summary query: %w", err)
		}
		for rows.Next() {
			var key string
			var n int64
			if err := rows.Scan(&key, &n); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan summary row: %w", err)
			}
			g.apply(key, n)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterate summary rows: %w", err)
		}
		rows.Close()
	}

	for status, n := range sum.ByStatus {
		sum.TotalEntries += n
		if status.Resolved() {
			sum.ResolvedEntries += n
		}
	}
	sum.ActiveEntries = sum.ByStatus[models.StatusActive] + sum.ByStatus[models.StatusReplayFailed]

	if err := s.summaryDaily(ctx, sum, where, args); err != nil {
		return nil, err
	}
	return s.summaryBounds(ctx, sum, where, args)
}

// summaryDaily fills the per-day new/resolved buckets. Resolution day is
// the replay timestamp for replayed entries, the archive timestamp for
// archived and discarded ones.
func (s *Store) summaryDaily(ctx context.Context, sum *models.DlqSummary, where string, args []any) error {
	buckets := make(map[string]*models.DailyCounts)
	bucket := func(day string) *models.DailyCounts {
		if b, ok := buckets[day]; ok {
			return b
		}
		b := &models.DailyCounts{Date: day}
		buckets[day] = b
		return b
	}

	collect := func(query string, apply func(day string, n int64)) error {
		rows, err := s.conn.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("summary daily query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var day time.Time
			var n int64
			if err := rows.Scan(&day, &n); err != nil {
				return fmt.Errorf("scan summary daily row: %w", err)
			}
			apply(day.UTC().Format("2006-01-02"), n)
		}
		return rows.Err()
	}

	if err := collect(
		`SELECT CAST(detected_at AS DATE) AS day, COUNT(*) FROM dlq_history`+where+` GROUP BY day ORDER BY day`,
		func(day string, n int64) { bucket(day).New = n },
	); err != nil {
		return err
	}

	resolvedWhere := ` WHERE COALESCE(replayed_at, archived_at) IS NOT NULL
		AND status IN ('Replayed', 'Archived', 'Discarded')`
	if where != "" {
		resolvedWhere += ` AND detected_at >= ?`
	}
	if err := collect(
		`SELECT CAST(COALESCE(replayed_at, archived_at) AS DATE) AS day, COUNT(*)
		 FROM dlq_history`+resolvedWhere+` GROUP BY day ORDER BY day`,
		func(day string, n int64) { bucket(day).Resolved = n },
	); err != nil {
		return err
	}

	days := make([]string, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		sum.Daily = append(sum.Daily, *buckets[day])
	}
	return nil
}

// summaryBounds fills the oldest/newest detection timestamps.
func (s *Store) summaryBounds(ctx context.Context, sum *models.DlqSummary, where string, args []any) (*models.DlqSummary, error) {
	var oldest, newest sql.NullTime
	err := s.conn.QueryRowContext(ctx,
		`SELECT MIN(detected_at), MAX(detected_at) FROM dlq_history`+where, args...,
	).Scan(&oldest, &newest)
	if err != nil {
		return nil, fmt.Errorf("summary bounds: %w", err)
	}
	if oldest.Valid {
		t := oldest.Time.UTC()
		sum.OldestDetectedAt = &t
	}
	if newest.Valid {
		t := newest.Time.UTC()
		sum.NewestDetectedAt = &t
	}
	return sum, nil
}
