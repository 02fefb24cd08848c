// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sweeparr/sweeparr/internal/dbinterface"
)

var ErrLogNotFound = errors.New("cleaner log not found")

// RunStatus is the terminal (or in-progress) status of a cleaner run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusSkipped   RunStatus = "skipped"
	RunStatusError     RunStatus = "error"
)

// CleanerLog is the persisted record of one cleaner run.
type CleanerLog struct {
	ID                    int             `json:"id"`
	InstanceID            int             `json:"instanceId"`
	Status                RunStatus       `json:"status"`
	DryRun                bool            `json:"dryRun"`
	RemovedCount          int             `json:"removedCount"`
	WarnedCount           int             `json:"warnedCount"`
	SkippedCount          int             `json:"skippedCount"`
	WhitelistedCount      int             `json:"whitelistedCount"`
	DeferredCount         int             `json:"deferredCount"`
	ImportDispatchedCount int             `json:"importDispatchedCount"`
	RuleBreakdown         map[string]int  `json:"ruleBreakdown"`
	Decisions             json.RawMessage `json:"decisions"`
	HasDataError          bool            `json:"hasDataError"`
	ErrorMessage          string          `json:"errorMessage,omitempty"`
	StartedAt             time.Time       `json:"startedAt"`
	FinishedAt            *time.Time      `json:"finishedAt,omitempty"`
	DurationMs            int64           `json:"durationMs"`
}

// CleanerLogFilter narrows List results.
type CleanerLogFilter struct {
	Status     RunStatus
	InstanceID int
	Page       int
	PageSize   int
}

// InstanceDayStats summarizes today's activity for the status endpoint.
type InstanceDayStats struct {
	CleanedToday int        `json:"cleanedToday"`
	SkippedToday int        `json:"skippedToday"`
	LastRunAt    *time.Time `json:"lastRunAt,omitempty"`
}

// DailyStat is one bucket of the statistics time series.
type DailyStat struct {
	Date    string `json:"date"`
	Cleaned int    `json:"cleaned"`
	Runs    int    `json:"runs"`
}

// InstanceBreakdown aggregates per-instance totals for statistics.
type InstanceBreakdown struct {
	InstanceID   int    `json:"instanceId"`
	InstanceName string `json:"instanceName"`
	ItemsCleaned int    `json:"itemsCleaned"`
	Runs         int    `json:"runs"`
}

// Statistics is the aggregate view served by GET /statistics.
type Statistics struct {
	ItemsCleaned      int                 `json:"itemsCleaned"`
	TotalRuns         int                 `json:"totalRuns"`
	SuccessRate       float64             `json:"successRate"`
	AverageDurationMs int64               `json:"averageDurationMs"`
	Daily             []DailyStat         `json:"daily"`
	RuleBreakdown     map[string]int      `json:"ruleBreakdown"`
	Instances         []InstanceBreakdown `json:"instances"`
	RecentActivity    []*CleanerLog       `json:"recentActivity"`
}

// CleanerLogStore persists run results and serves log/statistics queries.
type CleanerLogStore struct {
	db dbinterface.Querier
}

func NewCleanerLogStore(db dbinterface.Querier) *CleanerLogStore {
	return &CleanerLogStore{db: db}
}

// Create inserts a log row, typically with status=running, and returns its id.
func (s *CleanerLogStore) Create(ctx context.Context, entry *CleanerLog) (int, error) {
	breakdownJSON, err := encodeRuleBreakdown(entry.RuleBreakdown)
	if err != nil {
		return 0, err
	}

	decisions := entry.Decisions
	if len(decisions) == 0 {
		decisions = json.RawMessage("[]")
	}

	var id int
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO cleaner_logs (
			instance_id, status, dry_run, removed_count, warned_count, skipped_count,
			whitelisted_count, deferred_count, import_dispatched_count,
			rule_breakdown_json, decisions_json,
			has_data_error, error_message, started_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		entry.InstanceID,
		string(entry.Status),
		boolToSQLite(entry.DryRun),
		entry.RemovedCount,
		entry.WarnedCount,
		entry.SkippedCount,
		entry.WhitelistedCount,
		entry.DeferredCount,
		entry.ImportDispatchedCount,
		breakdownJSON,
		string(decisions),
		boolToSQLite(entry.HasDataError),
		entry.ErrorMessage,
		entry.StartedAt,
		entry.FinishedAt,
		entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return 0, err
	}

	return id, nil
}

// Finish updates a running log row with its terminal result.
func (s *CleanerLogStore) Finish(ctx context.Context, id int, entry *CleanerLog) error {
	breakdownJSON, err := encodeRuleBreakdown(entry.RuleBreakdown)
	if err != nil {
		return err
	}

	decisions := entry.Decisions
	if len(decisions) == 0 {
		decisions = json.RawMessage("[]")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE cleaner_logs SET
			status = ?,
			removed_count = ?,
			warned_count = ?,
			skipped_count = ?,
			whitelisted_count = ?,
			deferred_count = ?,
			import_dispatched_count = ?,
			rule_breakdown_json = ?,
			decisions_json = ?,
			has_data_error = ?,
			error_message = ?,
			finished_at = ?,
			duration_ms = ?
		WHERE id = ?
	`,
		string(entry.Status),
		entry.RemovedCount,
		entry.WarnedCount,
		entry.SkippedCount,
		entry.WhitelistedCount,
		entry.DeferredCount,
		entry.ImportDispatchedCount,
		breakdownJSON,
		string(decisions),
		boolToSQLite(entry.HasDataError),
		entry.ErrorMessage,
		entry.FinishedAt,
		entry.DurationMs,
		id,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLogNotFound
	}

	return nil
}

// List returns a page of logs matching the filter plus the total match count.
func (s *CleanerLogStore) List(ctx context.Context, filter CleanerLogFilter) ([]*CleanerLog, int, error) {
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.InstanceID > 0 {
		conditions = append(conditions, "instance_id = ?")
		args = append(args, filter.InstanceID)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cleaner_logs"+where, args...).Scan(&totalCount); err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}

	query := `SELECT id, instance_id, status, dry_run, removed_count, warned_count, skipped_count,
		whitelisted_count, deferred_count, import_dispatched_count, rule_breakdown_json, decisions_json,
		has_data_error, error_message, started_at, finished_at, duration_ms
		FROM cleaner_logs` + where + ` ORDER BY started_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var logs []*CleanerLog
	for rows.Next() {
		entry, err := scanCleanerLog(rows)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return logs, totalCount, nil
}

// DayStats returns today's cleaned/skipped counts and the last run time for an instance.
func (s *CleanerLogStore) DayStats(ctx context.Context, instanceID int, dayStart time.Time) (*InstanceDayStats, error) {
	stats := &InstanceDayStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(removed_count), 0), COALESCE(SUM(skipped_count), 0)
		FROM cleaner_logs
		WHERE instance_id = ? AND started_at >= ? AND status != ?
	`, instanceID, dayStart, string(RunStatusRunning)).Scan(&stats.CleanedToday, &stats.SkippedToday)
	if err != nil {
		return nil, err
	}

	var lastRun sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT MAX(started_at) FROM cleaner_logs WHERE instance_id = ?`, instanceID).Scan(&lastRun)
	if err != nil {
		return nil, err
	}
	if lastRun.Valid {
		stats.LastRunAt = &lastRun.Time
	}

	return stats, nil
}

// Statistics aggregates run history for the statistics endpoint. Days limits
// the daily time series (and the aggregation window) to the most recent N days.
func (s *CleanerLogStore) Statistics(ctx context.Context, days int) (*Statistics, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().AddDate(0, 0, -days)

	stats := &Statistics{
		RuleBreakdown: make(map[string]int),
	}

	var avgDuration sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(removed_count), 0), COUNT(*), AVG(duration_ms)
		FROM cleaner_logs
		WHERE started_at >= ? AND status != ?
	`, since, string(RunStatusRunning)).Scan(&stats.ItemsCleaned, &stats.TotalRuns, &avgDuration)
	if err != nil {
		return nil, err
	}
	if avgDuration.Valid {
		stats.AverageDurationMs = int64(avgDuration.Float64)
	}

	var successfulRuns int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cleaner_logs
		WHERE started_at >= ? AND status IN (?, ?, ?)
	`, since, string(RunStatusCompleted), string(RunStatusPartial), string(RunStatusSkipped)).Scan(&successfulRuns)
	if err != nil {
		return nil, err
	}
	if stats.TotalRuns > 0 {
		stats.SuccessRate = float64(successfulRuns) / float64(stats.TotalRuns)
	}

	// Daily series
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(started_at), COALESCE(SUM(removed_count), 0), COUNT(*)
		FROM cleaner_logs
		WHERE started_at >= ? AND status != ?
		GROUP BY date(started_at)
		ORDER BY date(started_at) ASC
	`, since, string(RunStatusRunning))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var day DailyStat
		if err := rows.Scan(&day.Date, &day.Cleaned, &day.Runs); err != nil {
			return nil, err
		}
		stats.Daily = append(stats.Daily, day)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Rule breakdown: merge per-run histograms
	breakdownRows, err := s.db.QueryContext(ctx, `
		SELECT rule_breakdown_json FROM cleaner_logs
		WHERE started_at >= ? AND status != ?
	`, since, string(RunStatusRunning))
	if err != nil {
		return nil, err
	}
	defer breakdownRows.Close()

	for breakdownRows.Next() {
		var raw string
		if err := breakdownRows.Scan(&raw); err != nil {
			return nil, err
		}
		var breakdown map[string]int
		if err := json.Unmarshal([]byte(raw), &breakdown); err != nil {
			continue // tolerate malformed historical rows
		}
		for rule, count := range breakdown {
			stats.RuleBreakdown[rule] += count
		}
	}
	if err := breakdownRows.Err(); err != nil {
		return nil, err
	}

	// Per-instance breakdown
	instanceRows, err := s.db.QueryContext(ctx, `
		SELECT l.instance_id, COALESCE(i.name, ''), COALESCE(SUM(l.removed_count), 0), COUNT(*)
		FROM cleaner_logs l
		LEFT JOIN instances i ON i.id = l.instance_id
		WHERE l.started_at >= ? AND l.status != ?
		GROUP BY l.instance_id
		ORDER BY SUM(l.removed_count) DESC
	`, since, string(RunStatusRunning))
	if err != nil {
		return nil, err
	}
	defer instanceRows.Close()

	for instanceRows.Next() {
		var b InstanceBreakdown
		if err := instanceRows.Scan(&b.InstanceID, &b.InstanceName, &b.ItemsCleaned, &b.Runs); err != nil {
			return nil, err
		}
		stats.Instances = append(stats.Instances, b)
	}
	if err := instanceRows.Err(); err != nil {
		return nil, err
	}

	recent, _, err := s.List(ctx, CleanerLogFilter{Page: 1, PageSize: 10})
	if err != nil {
		return nil, err
	}
	stats.RecentActivity = recent

	return stats, nil
}

func encodeRuleBreakdown(breakdown map[string]int) (string, error) {
	if len(breakdown) == 0 {
		return "{}", nil
	}
	payload, err := json.Marshal(breakdown)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func scanCleanerLog(scanner interface {
	Scan(dest ...any) error
}) (*CleanerLog, error) {
	var (
		entry         CleanerLog
		status        string
		dryRunInt     int
		breakdownJSON string
		decisionsJSON string
		dataErrInt    int
		finishedAt    sql.NullTime
	)

	if err := scanner.Scan(
		&entry.ID,
		&entry.InstanceID,
		&status,
		&dryRunInt,
		&entry.RemovedCount,
		&entry.WarnedCount,
		&entry.SkippedCount,
		&entry.WhitelistedCount,
		&entry.DeferredCount,
		&entry.ImportDispatchedCount,
		&breakdownJSON,
		&decisionsJSON,
		&dataErrInt,
		&entry.ErrorMessage,
		&entry.StartedAt,
		&finishedAt,
		&entry.DurationMs,
	); err != nil {
		return nil, err
	}

	entry.Status = RunStatus(status)
	entry.DryRun = dryRunInt == 1
	entry.HasDataError = dataErrInt == 1
	entry.Decisions = json.RawMessage(decisionsJSON)

	if breakdownJSON != "" {
		if err := json.Unmarshal([]byte(breakdownJSON), &entry.RuleBreakdown); err != nil {
			return nil, fmt.Errorf("decode rule breakdown: %w", err)
		}
	}
	if entry.RuleBreakdown == nil {
		entry.RuleBreakdown = map[string]int{}
	}

	if finishedAt.Valid {
		entry.FinishedAt = &finishedAt.Time
	}

	return &entry, nil
}
