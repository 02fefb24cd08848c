// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeparr/sweeparr/internal/arr"
	"github.com/sweeparr/sweeparr/internal/models"
)

var serviceNow = time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return serviceNow }

func TestServiceRunLiveRemovesStalledItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.saveConfig(t, func(cfg *models.CleanerConfig) {
		cfg.DryRunMode = false
		cfg.StrikeSystemEnabled = false
	})

	client := &stubClient{items: []arr.QueueItem{
		{ID: 1, DownloadID: "abc", Title: "Stuck.Show.S01E01", State: arr.StateStalled, Added: serviceNow.Add(-2 * time.Hour)},
		{ID: 2, DownloadID: "def", Title: "Fine.Show.S01E02", State: arr.StateDownloading, Added: serviceNow.Add(-2 * time.Hour), SpeedKBps: 5000},
	}}

	svc := env.newService(client)
	svc.SetNowFunc(fixedNow)

	result, err := svc.Run(ctx, env.instance.ID, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, models.RunStatusCompleted, result.Status)
	assert.Equal(t, []int64{1}, client.removedIDs())

	// Post-removal search is on by default.
	assert.Equal(t, 1, client.searchCount())

	// The run is logged with its final counts.
	logs, total, err := env.logs.List(ctx, models.CleanerLogFilter{InstanceID: env.instance.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, logs, 1)
	assert.Equal(t, models.RunStatusCompleted, logs[0].Status)
	assert.Equal(t, 1, logs[0].RemovedCount)
	assert.False(t, logs[0].DryRun)
}

func TestServiceDryRunNeverDispatchesOrMutates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Strikes on and dry-run on: evaluation wants a strike, dry run must not
	// persist it.
	env.saveConfig(t, nil)

	client := &stubClient{items: []arr.QueueItem{
		{ID: 1, DownloadID: "abc", Title: "Stuck.Show.S01E01", State: arr.StateStalled, Added: serviceNow.Add(-2 * time.Hour)},
	}}

	svc := env.newService(client)
	svc.SetNowFunc(fixedNow)

	result, err := svc.Run(ctx, env.instance.ID, false)
	require.NoError(t, err)

	assert.True(t, result.DryRun)
	assert.Empty(t, client.removedIDs())
	assert.Zero(t, client.searchCount())

	rec, err := env.strikes.Get(ctx, env.instance.ID, "abc")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestServiceStrikeEscalationAcrossRuns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.saveConfig(t, func(cfg *models.CleanerConfig) {
		cfg.DryRunMode = false
		cfg.MaxStrikes = 3
	})

	client := &stubClient{items: []arr.QueueItem{
		{ID: 1, DownloadID: "abc", Title: "Stuck.Show.S01E01", State: arr.StateStalled, Added: serviceNow.Add(-24 * time.Hour)},
	}}

	svc := env.newService(client)

	runAt := func(now time.Time) *RunResult {
		svc.SetNowFunc(func() time.Time { return now })
		result, err := svc.Run(ctx, env.instance.ID, false)
		require.NoError(t, err)
		return result
	}

	// Strikes one and two demote the removal to a warning.
	result := runAt(serviceNow)
	assert.Equal(t, 1, result.Warned)
	assert.Zero(t, result.Removed)

	result = runAt(serviceNow.Add(time.Minute))
	assert.Equal(t, 1, result.Warned)
	assert.Zero(t, result.Removed)

	// Third strike reaches the limit and removes.
	result = runAt(serviceNow.Add(2 * time.Minute))
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, []int64{1}, client.removedIDs())

	// Removal clears the strike record.
	rec, err := env.strikes.Get(ctx, env.instance.ID, "abc")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestServiceRemovalCapDefersExcess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.saveConfig(t, func(cfg *models.CleanerConfig) {
		cfg.DryRunMode = false
		cfg.StrikeSystemEnabled = false
		cfg.MaxRemovalsPerRun = 1
	})

	client := &stubClient{items: []arr.QueueItem{
		{ID: 1, DownloadID: "abc", Title: "Stuck.One", State: arr.StateStalled, Added: serviceNow.Add(-2 * time.Hour)},
		{ID: 2, DownloadID: "def", Title: "Stuck.Two", State: arr.StateStalled, Added: serviceNow.Add(-2 * time.Hour)},
	}}

	svc := env.newService(client)
	svc.SetNowFunc(fixedNow)

	result, err := svc.Run(ctx, env.instance.ID, false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 1, result.Deferred)
	assert.Equal(t, models.RunStatusPartial, result.Status)
	assert.Equal(t, []int64{1}, client.removedIDs())
}

func TestServiceImportAttemptBeforeRemoval(t *testing.T) {
	blockedItem := func() []arr.QueueItem {
		return []arr.QueueItem{{
			ID:         1,
			DownloadID: "abc",
			Title:      "Blocked.Show.S01E01",
			State:      arr.StateImportBlocked,
			StatusText: "Manual import required",
			Added:      serviceNow.Add(-2 * time.Hour),
		}}
	}

	configure := func(cfg *models.CleanerConfig) {
		cfg.DryRunMode = false
		cfg.StrikeSystemEnabled = false
		cfg.PatternMode = models.PatternModeInclude
		cfg.CustomPatterns = []string{"manual import required"}
		cfg.AutoImport.Enabled = true
	}

	t.Run("import dispatched instead of removal", func(t *testing.T) {
		env := newTestEnv(t)
		env.saveConfig(t, configure)

		client := &stubClient{items: blockedItem()}
		svc := env.newService(client)
		svc.SetNowFunc(fixedNow)

		result, err := svc.Run(context.Background(), env.instance.ID, false)
		require.NoError(t, err)

		assert.Equal(t, []int64{1}, client.imported)
		assert.Empty(t, client.removedIDs())

		// An import dispatch is not a removal and must not count as one.
		assert.Zero(t, result.Removed)
		assert.Equal(t, 1, result.ImportsDispatched)
		assert.Equal(t, models.RunStatusCompleted, result.Status)

		// The attempt is recorded so the per-item budget holds across runs.
		attempt, err := env.attempts.Get(context.Background(), env.instance.ID, "abc")
		require.NoError(t, err)
		require.NotNil(t, attempt)
		assert.Equal(t, 1, attempt.AttemptCount)
	})

	t.Run("failed import dispatch falls back to removal", func(t *testing.T) {
		env := newTestEnv(t)
		env.saveConfig(t, configure)

		client := &stubClient{items: blockedItem(), importErr: errors.New("command rejected")}
		svc := env.newService(client)
		svc.SetNowFunc(fixedNow)

		result, err := svc.Run(context.Background(), env.instance.ID, false)
		require.NoError(t, err)

		assert.Equal(t, []int64{1}, client.removedIDs())
		assert.Equal(t, 1, result.Removed)
		assert.Equal(t, models.RunStatusCompleted, result.Status)
	})
}

func TestServiceFetchErrorLogsErrorRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.saveConfig(t, func(cfg *models.CleanerConfig) {
		cfg.DryRunMode = false
	})

	client := &stubClient{fetchErr: errors.New("connection refused")}
	svc := env.newService(client)
	svc.SetNowFunc(fixedNow)

	_, err := svc.Run(ctx, env.instance.ID, false)
	require.Error(t, err)

	logs, _, err := env.logs.List(ctx, models.CleanerLogFilter{InstanceID: env.instance.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.RunStatusError, logs[0].Status)
	assert.Contains(t, logs[0].ErrorMessage, "connection refused")
}

func TestServicePreview(t *testing.T) {
	t.Run("groups decisions without mutating state", func(t *testing.T) {
		env := newTestEnv(t)
		ctx := context.Background()

		env.saveConfig(t, func(cfg *models.CleanerConfig) {
			cfg.DryRunMode = false
		})

		client := &stubClient{items: []arr.QueueItem{
			{ID: 1, DownloadID: "abc", Title: "Stuck.Show.S01E01", State: arr.StateStalled, Added: serviceNow.Add(-2 * time.Hour)},
		}}

		svc := env.newService(client)
		svc.SetNowFunc(fixedNow)

		preview, err := svc.Preview(ctx, env.instance.ID)
		require.NoError(t, err)

		assert.True(t, preview.InstanceReachable)
		assert.Equal(t, 1, preview.WouldWarn)
		assert.Empty(t, client.removedIDs())

		rec, err := env.strikes.Get(ctx, env.instance.ID, "abc")
		require.NoError(t, err)
		assert.Nil(t, rec)

		// Previews leave no run log behind.
		_, total, err := env.logs.List(ctx, models.CleanerLogFilter{InstanceID: env.instance.ID})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("unreachable instance yields a shell", func(t *testing.T) {
		env := newTestEnv(t)
		env.saveConfig(t, nil)

		client := &stubClient{fetchErr: errors.New("dial tcp: connection refused")}
		svc := env.newService(client)
		svc.SetNowFunc(fixedNow)

		preview, err := svc.Preview(context.Background(), env.instance.ID)
		require.NoError(t, err)

		assert.False(t, preview.InstanceReachable)
		assert.Empty(t, preview.PreviewItems)
	})
}
