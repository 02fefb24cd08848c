// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sweeparr/sweeparr/internal/arr"
	"github.com/sweeparr/sweeparr/internal/models"
)

func TestShouldAttemptImport(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	enabledConfig := func() *models.CleanerConfig {
		cfg := models.DefaultCleanerConfig(1)
		cfg.AutoImport.Enabled = true
		cfg.AutoImport.SafeOnly = true
		cfg.AutoImport.MaxAttempts = 3
		cfg.AutoImport.CooldownMins = 30
		return cfg
	}

	t.Run("disabled auto-import never attempts", func(t *testing.T) {
		cfg := enabledConfig()
		cfg.AutoImport.Enabled = false
		item := arr.QueueItem{StatusText: "Waiting to import"}

		advice := ShouldAttemptImport(item, cfg, nil, now)
		assert.False(t, advice.Attempt)
	})

	t.Run("never veto is absolute even when safe also matches", func(t *testing.T) {
		cfg := enabledConfig()
		cfg.AutoImport.SafePatterns = []string{"special case"}
		cfg.AutoImport.NeverPatterns = []string{"special case"}
		item := arr.QueueItem{StatusText: "Special case import"}

		advice := ShouldAttemptImport(item, cfg, nil, now)
		assert.False(t, advice.Attempt)
	})

	t.Run("built-in never pattern vetoes", func(t *testing.T) {
		cfg := enabledConfig()
		item := arr.QueueItem{StatusText: "Password protected archive found"}

		advice := ShouldAttemptImport(item, cfg, nil, now)
		assert.False(t, advice.Attempt)
	})

	t.Run("safeOnly rejects unmatched status", func(t *testing.T) {
		cfg := enabledConfig()
		item := arr.QueueItem{StatusText: "Unrecognized block reason"}

		advice := ShouldAttemptImport(item, cfg, nil, now)
		assert.False(t, advice.Attempt)
	})

	t.Run("safeOnly accepts built-in safe match", func(t *testing.T) {
		cfg := enabledConfig()
		item := arr.QueueItem{StatusText: "Waiting for import"}

		advice := ShouldAttemptImport(item, cfg, nil, now)
		assert.True(t, advice.Attempt)
	})

	t.Run("safeOnly disabled attempts any non-vetoed status", func(t *testing.T) {
		cfg := enabledConfig()
		cfg.AutoImport.SafeOnly = false
		item := arr.QueueItem{StatusText: "Unrecognized block reason"}

		advice := ShouldAttemptImport(item, cfg, nil, now)
		assert.True(t, advice.Attempt)
	})

	t.Run("attempt budget exhaustion blocks", func(t *testing.T) {
		cfg := enabledConfig()
		item := arr.QueueItem{StatusText: "Waiting for import"}
		attempt := &models.ImportAttemptRecord{
			AttemptCount:  3,
			LastAttemptAt: now.Add(-2 * time.Hour),
		}

		advice := ShouldAttemptImport(item, cfg, attempt, now)
		assert.False(t, advice.Attempt)
	})

	t.Run("cooldown blocks recent attempts", func(t *testing.T) {
		cfg := enabledConfig()
		item := arr.QueueItem{StatusText: "Waiting for import"}
		attempt := &models.ImportAttemptRecord{
			AttemptCount:  1,
			LastAttemptAt: now.Add(-10 * time.Minute),
		}

		advice := ShouldAttemptImport(item, cfg, attempt, now)
		assert.False(t, advice.Attempt)
	})

	t.Run("attempt allowed after cooldown elapses", func(t *testing.T) {
		cfg := enabledConfig()
		item := arr.QueueItem{StatusText: "Waiting for import"}
		attempt := &models.ImportAttemptRecord{
			AttemptCount:  1,
			LastAttemptAt: now.Add(-45 * time.Minute),
		}

		advice := ShouldAttemptImport(item, cfg, attempt, now)
		assert.True(t, advice.Attempt)
	})
}
