// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// New opens (creating if necessary) the sqlite database at path and applies
// the schema migrations.
func New(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent runs.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version >= len(migrations) {
		return nil
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}

		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to bump schema version to %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", i+1, err)
		}

		log.Debug().Int("version", i+1).Msg("Applied database migration")
	}

	return nil
}

var migrations = []string{
	`
	CREATE TABLE instances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		host TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'sonarr',
		api_key_encrypted TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE cleaner_configs (
		instance_id INTEGER PRIMARY KEY REFERENCES instances(id) ON DELETE CASCADE,
		enabled INTEGER NOT NULL DEFAULT 0,
		dry_run_mode INTEGER NOT NULL DEFAULT 1,
		interval_mins INTEGER NOT NULL DEFAULT 30,
		trigger_cooldown_mins INTEGER NOT NULL DEFAULT 5,

		stalled_enabled INTEGER NOT NULL DEFAULT 1,
		stalled_threshold_mins INTEGER NOT NULL DEFAULT 60,
		failed_enabled INTEGER NOT NULL DEFAULT 1,
		slow_enabled INTEGER NOT NULL DEFAULT 0,
		slow_speed_threshold_kb INTEGER NOT NULL DEFAULT 100,
		slow_grace_period_mins INTEGER NOT NULL DEFAULT 30,
		error_pattern_enabled INTEGER NOT NULL DEFAULT 0,
		error_patterns_json TEXT NOT NULL DEFAULT '[]',
		seeding_timeout_enabled INTEGER NOT NULL DEFAULT 0,
		seeding_timeout_hours INTEGER NOT NULL DEFAULT 48,
		estimated_completion_enabled INTEGER NOT NULL DEFAULT 0,
		estimated_completion_multiplier REAL NOT NULL DEFAULT 2.0,
		import_enabled INTEGER NOT NULL DEFAULT 1,
		import_pending_threshold_mins INTEGER NOT NULL DEFAULT 30,

		strike_system_enabled INTEGER NOT NULL DEFAULT 1,
		max_strikes INTEGER NOT NULL DEFAULT 3,
		strike_decay_hours INTEGER NOT NULL DEFAULT 24,

		cleanup_level TEXT NOT NULL DEFAULT 'safe',
		pattern_mode TEXT NOT NULL DEFAULT 'defaults',
		custom_patterns_json TEXT NOT NULL DEFAULT '[]',

		auto_import_enabled INTEGER NOT NULL DEFAULT 0,
		auto_import_safe_only INTEGER NOT NULL DEFAULT 1,
		auto_import_max_attempts INTEGER NOT NULL DEFAULT 3,
		auto_import_cooldown_mins INTEGER NOT NULL DEFAULT 30,
		auto_import_safe_patterns_json TEXT NOT NULL DEFAULT '[]',
		auto_import_never_patterns_json TEXT NOT NULL DEFAULT '[]',

		whitelist_patterns_json TEXT NOT NULL DEFAULT '[]',

		remove_from_client INTEGER NOT NULL DEFAULT 1,
		add_to_blocklist INTEGER NOT NULL DEFAULT 1,
		search_after_removal INTEGER NOT NULL DEFAULT 1,
		change_category_enabled INTEGER NOT NULL DEFAULT 0,

		max_removals_per_run INTEGER NOT NULL DEFAULT 10,
		min_queue_age_mins INTEGER NOT NULL DEFAULT 10,

		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE strikes (
		instance_id INTEGER NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
		item_key TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		last_strike_at DATETIME NOT NULL,
		PRIMARY KEY (instance_id, item_key)
	);

	CREATE TABLE import_attempts (
		instance_id INTEGER NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
		item_key TEXT NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_attempt_at DATETIME NOT NULL,
		PRIMARY KEY (instance_id, item_key)
	);

	CREATE TABLE cleaner_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance_id INTEGER NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		removed_count INTEGER NOT NULL DEFAULT 0,
		warned_count INTEGER NOT NULL DEFAULT 0,
		skipped_count INTEGER NOT NULL DEFAULT 0,
		whitelisted_count INTEGER NOT NULL DEFAULT 0,
		deferred_count INTEGER NOT NULL DEFAULT 0,
		import_dispatched_count INTEGER NOT NULL DEFAULT 0,
		rule_breakdown_json TEXT NOT NULL DEFAULT '{}',
		decisions_json TEXT NOT NULL DEFAULT '[]',
		has_data_error INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		duration_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX idx_cleaner_logs_instance ON cleaner_logs(instance_id, started_at DESC);
	CREATE INDEX idx_cleaner_logs_status ON cleaner_logs(status);
	`,
}
