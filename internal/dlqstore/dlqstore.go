// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package dlqstore owns the persisted DLQ intelligence state in DuckDB:
// the deduplicating history of dead-lettered messages, their replay
// history and the operator-defined replay rules. Every other component
// reads and writes through this package; nothing else touches the
// database.
package dlqstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/debdevops/servicehub/internal/config"
)

// Store wraps the DuckDB connection.
type Store struct {
	conn *sql.DB
}

// New opens (or creates) the store described by cfg and initializes the
// schema. An empty path opens an in-memory database.
func New(cfg *config.StoreConfig) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create store directory %s: %w", dir, err)
			}
		}
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "1GB"
	}

	connStr := fmt.Sprintf(
		"%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, threads, maxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open dlq store: %w", err)
	}

	// DuckDB is effectively single-writer; a small pool avoids lock
	// contention between the monitor and the API read side.
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)

	s := &Store{conn: conn}
	if err := s.initSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize dlq store schema: %w", err)
	}
	return s, nil
}

// Conn exposes the raw connection for health checks.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close releases the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for _, q := range schemaStatements() {
		if _, err := s.conn.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("execute schema statement: %s: %w", q, err)
		}
	}
	return nil
}

func schemaStatements() []string {
	return []string{
		`CREATE SEQUENCE IF NOT EXISTS dlq_history_seq START 1`,
		`CREATE SEQUENCE IF NOT EXISTS replay_history_seq START 1`,

		// One row per observed dead-lettered message. The dedup index is
		// the identity: topic_name is '' for queue messages so the unique
		// constraint holds across queues and subscriptions.
		`CREATE TABLE IF NOT EXISTS dlq_history (
			id BIGINT PRIMARY KEY DEFAULT nextval('dlq_history_seq'),
			namespace_id TEXT NOT NULL,
			entity_name TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			topic_name TEXT NOT NULL DEFAULT '',
			broker_message_id TEXT NOT NULL,
			sequence_number BIGINT NOT NULL,
			body_hash TEXT NOT NULL,
			enqueued_at TIMESTAMP,
			dead_lettered_at TIMESTAMP,
			detected_at TIMESTAMP NOT NULL,
			dead_letter_reason TEXT NOT NULL DEFAULT '',
			dead_letter_error_description TEXT NOT NULL DEFAULT '',
			delivery_count BIGINT NOT NULL DEFAULT 0,
			content_type TEXT NOT NULL DEFAULT '',
			size_bytes BIGINT NOT NULL DEFAULT 0,
			body_preview TEXT NOT NULL DEFAULT '',
			application_properties_json TEXT NOT NULL DEFAULT '',
			failure_category TEXT NOT NULL,
			category_confidence DOUBLE NOT NULL,
			status TEXT NOT NULL,
			replayed_at TIMESTAMP,
			replay_success BOOLEAN,
			archived_at TIMESTAMP,
			user_notes TEXT NOT NULL DEFAULT '',
			correlation_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_dlq_dedup
			ON dlq_history(namespace_id, entity_name, entity_type, topic_name, broker_message_id, sequence_number)`,
		`CREATE INDEX IF NOT EXISTS idx_dlq_status ON dlq_history(status)`,
		`CREATE INDEX IF NOT EXISTS idx_dlq_entity ON dlq_history(entity_name)`,
		`CREATE INDEX IF NOT EXISTS idx_dlq_namespace_status ON dlq_history(namespace_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_dlq_detected_at ON dlq_history(detected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_dlq_category ON dlq_history(failure_category)`,

		`CREATE TABLE IF NOT EXISTS replay_history (
			id BIGINT PRIMARY KEY DEFAULT nextval('replay_history_seq'),
			dlq_entry_id BIGINT NOT NULL,
			replayed_at TIMESTAMP NOT NULL,
			replayed_by TEXT NOT NULL,
			strategy TEXT NOT NULL DEFAULT '',
			replayed_to_entity TEXT NOT NULL,
			outcome_status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 1,
			new_dead_letter_reason TEXT NOT NULL DEFAULT '',
			error_details TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_replay_entry ON replay_history(dlq_entry_id)`,

		`CREATE TABLE IF NOT EXISTS replay_rules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			enabled BOOLEAN NOT NULL DEFAULT true,
			disabled_reason TEXT NOT NULL DEFAULT '',
			conditions_json TEXT NOT NULL,
			action_json TEXT NOT NULL,
			max_replays_per_hour INTEGER NOT NULL,
			match_count BIGINT NOT NULL DEFAULT 0,
			success_count BIGINT NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
}
