// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sweeparr/sweeparr/internal/dbinterface"
)

// StrikeRecord tracks consecutive strikes against a queue item. Keyed by
// downloadId when present (so all files of a season pack share strikes),
// otherwise by item id.
type StrikeRecord struct {
	InstanceID   int       `json:"instanceId"`
	ItemKey      string    `json:"itemKey"`
	Count        int       `json:"count"`
	LastStrikeAt time.Time `json:"lastStrikeAt"`
}

// ImportAttemptRecord tracks auto-import attempts against a queue item, used
// to enforce the attempt cap and cooldown.
type ImportAttemptRecord struct {
	InstanceID    int       `json:"instanceId"`
	ItemKey       string    `json:"itemKey"`
	AttemptCount  int       `json:"attemptCount"`
	LastAttemptAt time.Time `json:"lastAttemptAt"`
}

// StrikeStore persists strike records across runs.
type StrikeStore struct {
	db dbinterface.Querier
}

func NewStrikeStore(db dbinterface.Querier) *StrikeStore {
	return &StrikeStore{db: db}
}

// Get returns the strike record for an item, or nil if none exists.
func (s *StrikeStore) Get(ctx context.Context, instanceID int, itemKey string) (*StrikeRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT instance_id, item_key, count, last_strike_at FROM strikes WHERE instance_id = ? AND item_key = ?`,
		instanceID, itemKey)

	var rec StrikeRecord
	if err := row.Scan(&rec.InstanceID, &rec.ItemKey, &rec.Count, &rec.LastStrikeAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Set upserts a strike record.
func (s *StrikeStore) Set(ctx context.Context, rec *StrikeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strikes (instance_id, item_key, count, last_strike_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(instance_id, item_key) DO UPDATE SET
			count = excluded.count,
			last_strike_at = excluded.last_strike_at
	`, rec.InstanceID, rec.ItemKey, rec.Count, rec.LastStrikeAt)
	return err
}

// Delete removes a strike record, e.g. once the item is removed or resolved.
func (s *StrikeStore) Delete(ctx context.Context, instanceID int, itemKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM strikes WHERE instance_id = ? AND item_key = ?`, instanceID, itemKey)
	return err
}

// PruneDecayed removes records whose last strike is older than the decay
// window. Decay is computed lazily at read time; this only keeps the table
// from growing without bound.
func (s *StrikeStore) PruneDecayed(ctx context.Context, instanceID int, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM strikes WHERE instance_id = ? AND last_strike_at < ?`, instanceID, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ImportAttemptStore persists auto-import attempt records across runs.
type ImportAttemptStore struct {
	db dbinterface.Querier
}

func NewImportAttemptStore(db dbinterface.Querier) *ImportAttemptStore {
	return &ImportAttemptStore{db: db}
}

// Get returns the attempt record for an item, or nil if none exists.
func (s *ImportAttemptStore) Get(ctx context.Context, instanceID int, itemKey string) (*ImportAttemptRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT instance_id, item_key, attempt_count, last_attempt_at FROM import_attempts WHERE instance_id = ? AND item_key = ?`,
		instanceID, itemKey)

	var rec ImportAttemptRecord
	if err := row.Scan(&rec.InstanceID, &rec.ItemKey, &rec.AttemptCount, &rec.LastAttemptAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Record increments the attempt count and stamps the attempt time. Called on
// dispatch regardless of the eventual import outcome, so repeated failures
// exhaust the budget.
func (s *ImportAttemptStore) Record(ctx context.Context, instanceID int, itemKey string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO import_attempts (instance_id, item_key, attempt_count, last_attempt_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(instance_id, item_key) DO UPDATE SET
			attempt_count = attempt_count + 1,
			last_attempt_at = excluded.last_attempt_at
	`, instanceID, itemKey, at)
	return err
}

// Clear removes the attempt record after a successful import so the item
// starts fresh if it ever reappears.
func (s *ImportAttemptStore) Clear(ctx context.Context, instanceID int, itemKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM import_attempts WHERE instance_id = ? AND item_key = ?`, instanceID, itemKey)
	return err
}
