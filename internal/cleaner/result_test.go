// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeparr/sweeparr/internal/models"
)

func TestApplyRemovalCap(t *testing.T) {
	t.Run("excess removals are deferred, not dropped", func(t *testing.T) {
		decisions := make([]Decision, 10)
		for i := range decisions {
			decisions[i] = Decision{
				ItemID: int64(i + 1),
				Title:  fmt.Sprintf("item-%d", i+1),
				Rule:   RuleStalled,
				Action: ActionRemove,
			}
		}

		capped := ApplyRemovalCap(decisions, 5)

		require.Len(t, capped, 10)
		live, deferred := 0, 0
		for _, d := range capped {
			if d.Deferred {
				deferred++
			} else if d.Action == ActionRemove {
				live++
			}
		}
		assert.Equal(t, 5, live)
		assert.Equal(t, 5, deferred)

		// First five stay live, preserving input order.
		for i := 0; i < 5; i++ {
			assert.False(t, capped[i].Deferred)
		}
		for i := 5; i < 10; i++ {
			assert.True(t, capped[i].Deferred)
		}
	})

	t.Run("non-remove decisions do not consume the cap", func(t *testing.T) {
		decisions := []Decision{
			{Action: ActionWarn},
			{Action: ActionRemove},
			{Action: ActionSkip},
			{Action: ActionRemove},
		}

		capped := ApplyRemovalCap(decisions, 2)

		for _, d := range capped {
			assert.False(t, d.Deferred)
		}
	})
}

func TestAssembleResult(t *testing.T) {
	startedAt := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	finishedAt := startedAt.Add(3 * time.Second)

	t.Run("counts and histogram", func(t *testing.T) {
		decisions := []Decision{
			{Rule: RuleStalled, Action: ActionRemove},
			{Rule: RuleStalled, Action: ActionWarn},
			{Rule: RuleHealthy, Action: ActionSkip},
			{Rule: RuleWhitelisted, Action: ActionWhitelist},
			{Rule: RuleSlow, Action: ActionRemove, Deferred: true},
		}

		result := AssembleResult(1, false, decisions, startedAt, finishedAt, false)

		assert.Equal(t, 5, result.TotalItems)
		assert.Equal(t, 1, result.Removed)
		assert.Equal(t, 1, result.Warned)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, 1, result.Whitelisted)
		assert.Equal(t, 1, result.Deferred)
		assert.Equal(t, 2, result.RuleBreakdown[RuleStalled])
		assert.Equal(t, 1, result.RuleBreakdown[RuleSlow])
	})

	t.Run("import dispatches counted apart from removals", func(t *testing.T) {
		decisions := []Decision{
			{Rule: RuleImportBlock, Action: ActionRemove, ImportDispatched: true},
			{Rule: RuleStalled, Action: ActionRemove},
		}

		result := AssembleResult(1, false, decisions, startedAt, finishedAt, false)
		assert.Equal(t, 1, result.Removed)
		assert.Equal(t, 1, result.ImportsDispatched)
		assert.Equal(t, models.RunStatusCompleted, result.Status)
	})

	t.Run("import dispatches alone still complete the run", func(t *testing.T) {
		decisions := []Decision{
			{Rule: RuleImportBlock, Action: ActionRemove, ImportDispatched: true},
		}

		result := AssembleResult(1, false, decisions, startedAt, finishedAt, false)
		assert.Zero(t, result.Removed)
		assert.Equal(t, models.RunStatusCompleted, result.Status)
	})

	t.Run("deferred removals make the run partial", func(t *testing.T) {
		decisions := []Decision{
			{Rule: RuleStalled, Action: ActionRemove},
			{Rule: RuleStalled, Action: ActionRemove, Deferred: true},
		}

		result := AssembleResult(1, false, decisions, startedAt, finishedAt, false)
		assert.Equal(t, models.RunStatusPartial, result.Status)
	})

	t.Run("nothing matched means skipped", func(t *testing.T) {
		decisions := []Decision{
			{Rule: RuleHealthy, Action: ActionSkip},
			{Rule: RuleTooYoung, Action: ActionSkip},
		}

		result := AssembleResult(1, false, decisions, startedAt, finishedAt, false)
		assert.Equal(t, models.RunStatusSkipped, result.Status)
	})

	t.Run("clean run with removals is completed", func(t *testing.T) {
		decisions := []Decision{
			{Rule: RuleStalled, Action: ActionRemove},
			{Rule: RuleHealthy, Action: ActionSkip},
		}

		result := AssembleResult(1, false, decisions, startedAt, finishedAt, false)
		assert.Equal(t, models.RunStatusCompleted, result.Status)
	})

	t.Run("data errors flag the run partial", func(t *testing.T) {
		decisions := []Decision{
			{Rule: RuleStalled, Action: ActionRemove},
		}

		result := AssembleResult(1, false, decisions, startedAt, finishedAt, true)
		assert.True(t, result.HasDataError)
		assert.Equal(t, models.RunStatusPartial, result.Status)
	})
}

func TestBuildPreview(t *testing.T) {
	startedAt := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	decisions := []Decision{
		{DownloadID: "X", Title: "Show.Name.S01E01", Rule: RuleStalled, Action: ActionRemove},
		{DownloadID: "X", Title: "Show.Name.S01E02", Rule: RuleStalled, Action: ActionWarn},
		{Title: "Solo", Rule: RuleHealthy, Action: ActionSkip},
	}

	result := AssembleResult(1, true, decisions, startedAt, startedAt, false)
	cfg := models.DefaultCleanerConfig(1)

	preview := BuildPreview(result, QueueSummary{TotalItems: 3}, cfg, true, startedAt)

	require.Len(t, preview.PreviewItems, 2)
	assert.Equal(t, 1, preview.WouldRemove)
	assert.Equal(t, 1, preview.WouldWarn)
	assert.Equal(t, 1, preview.WouldSkip)
	assert.True(t, preview.InstanceReachable)
	assert.Equal(t, cfg, preview.ConfigSnapshot)
}
