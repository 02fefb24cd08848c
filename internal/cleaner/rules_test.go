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

var evalNow = time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

func testConfig() *models.CleanerConfig {
	cfg := models.DefaultCleanerConfig(1)
	cfg.Enabled = true
	cfg.StrikeSystemEnabled = false
	cfg.MinQueueAgeMins = 10
	return cfg
}

func stalledItem(age time.Duration) arr.QueueItem {
	return arr.QueueItem{
		ID:    101,
		Title: "Some.Show.S01E01",
		State: arr.StateStalled,
		Added: evalNow.Add(-age),
	}
}

func TestEvaluateWhitelistAlwaysWins(t *testing.T) {
	cfg := testConfig()
	cfg.WhitelistPatterns = []models.WhitelistPattern{
		{Type: models.WhitelistTypeTitle, Text: "some.show"},
	}

	// Item simultaneously failed and whitelisted.
	item := stalledItem(5 * time.Hour)
	item.State = arr.StateFailed

	decision := Evaluate(EvalInput{Item: item, Config: cfg, Now: evalNow})

	assert.Equal(t, RuleWhitelisted, decision.Rule)
	assert.Equal(t, ActionWhitelist, decision.Action)
}

func TestEvaluateTooYoungGracePeriod(t *testing.T) {
	cfg := testConfig()

	item := stalledItem(5 * time.Minute)
	decision := Evaluate(EvalInput{Item: item, Config: cfg, Now: evalNow})

	assert.Equal(t, RuleTooYoung, decision.Rule)
	assert.Equal(t, ActionSkip, decision.Action)
}

func TestEvaluateFailedOutranksSlow(t *testing.T) {
	cfg := testConfig()
	cfg.SlowEnabled = true
	cfg.SlowSpeedThresholdKB = 100
	cfg.SlowGracePeriodMins = 30

	// Failed download that is also crawling below the slow threshold.
	item := arr.QueueItem{
		ID:        7,
		Title:     "Some.Movie.2026",
		State:     arr.StateFailed,
		Added:     evalNow.Add(-2 * time.Hour),
		SpeedKBps: 1,
	}

	decision := Evaluate(EvalInput{Item: item, Config: cfg, Now: evalNow})

	assert.Equal(t, RuleFailed, decision.Rule)
	assert.Equal(t, ActionRemove, decision.Action)
}

func TestEvaluateRuleChecks(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(*models.CleanerConfig)
		item         func() arr.QueueItem
		expectedRule string
		expectedAct  Action
	}{
		{
			name: "stalled beyond threshold removes",
			item: func() arr.QueueItem { return stalledItem(2 * time.Hour) },

			expectedRule: RuleStalled,
			expectedAct:  ActionRemove,
		},
		{
			name: "stalled under threshold is healthy",
			item: func() arr.QueueItem { return stalledItem(30 * time.Minute) },

			expectedRule: RuleHealthy,
			expectedAct:  ActionSkip,
		},
		{
			name:   "disabled stalled rule cannot fire",
			mutate: func(cfg *models.CleanerConfig) { cfg.StalledEnabled = false },
			item:   func() arr.QueueItem { return stalledItem(5 * time.Hour) },

			expectedRule: RuleHealthy,
			expectedAct:  ActionSkip,
		},
		{
			name: "slow download removes after grace period",
			mutate: func(cfg *models.CleanerConfig) {
				cfg.SlowEnabled = true
				cfg.SlowSpeedThresholdKB = 100
				cfg.SlowGracePeriodMins = 30
			},
			item: func() arr.QueueItem {
				return arr.QueueItem{
					State:     arr.StateDownloading,
					Added:     evalNow.Add(-time.Hour),
					SpeedKBps: 12,
				}
			},

			expectedRule: RuleSlow,
			expectedAct:  ActionRemove,
		},
		{
			name: "error pattern match removes",
			mutate: func(cfg *models.CleanerConfig) {
				cfg.ErrorPatternEnabled = true
				cfg.ErrorPatterns = []string{"tracker unreachable"}
			},
			item: func() arr.QueueItem {
				item := stalledItem(30 * time.Minute)
				item.State = arr.StateDownloading
				item.ErrorMessage = "Tracker unreachable: timeout"
				return item
			},

			expectedRule: RuleErrorPattern,
			expectedAct:  ActionRemove,
		},
		{
			name: "seeding timeout removes",
			mutate: func(cfg *models.CleanerConfig) {
				cfg.SeedingTimeoutEnabled = true
				cfg.SeedingTimeoutHours = 48
			},
			item: func() arr.QueueItem {
				since := evalNow.Add(-72 * time.Hour)
				return arr.QueueItem{
					State:        arr.StateSeeding,
					Added:        evalNow.Add(-80 * time.Hour),
					SeedingSince: &since,
				}
			},

			expectedRule: RuleSeedTimeout,
			expectedAct:  ActionRemove,
		},
		{
			name: "estimated completion exceeded removes",
			mutate: func(cfg *models.CleanerConfig) {
				cfg.EstimatedCompletionEnabled = true
				cfg.EstimatedCompletionMultiplier = 2.0
			},
			item: func() arr.QueueItem {
				return arr.QueueItem{
					State: arr.StateDownloading,
					Added: evalNow.Add(-5 * time.Hour),
					ETA:   time.Hour,
				}
			},

			expectedRule: RuleEstComplete,
			expectedAct:  ActionRemove,
		},
		{
			name: "import blocked with safe keyword removes",
			item: func() arr.QueueItem {
				return arr.QueueItem{
					State:      arr.StateImportBlocked,
					Added:      evalNow.Add(-time.Hour),
					StatusText: "Sample file detected",
				}
			},

			expectedRule: RuleImportBlock,
			expectedAct:  ActionRemove,
		},
		{
			name: "import pending under threshold is healthy",
			item: func() arr.QueueItem {
				return arr.QueueItem{
					State:      arr.StateImportPending,
					Added:      evalNow.Add(-15 * time.Minute),
					StatusText: "Sample file detected",
				}
			},

			expectedRule: RuleHealthy,
			expectedAct:  ActionSkip,
		},
		{
			name: "data error gets its own tag instead of healthy",
			item: func() arr.QueueItem {
				item := stalledItem(5 * time.Hour)
				item.DataError = true
				return item
			},

			expectedRule: RuleDataError,
			expectedAct:  ActionSkip,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}

			decision := Evaluate(EvalInput{Item: tt.item(), Config: cfg, Now: evalNow})

			assert.Equal(t, tt.expectedRule, decision.Rule)
			assert.Equal(t, tt.expectedAct, decision.Action)
		})
	}
}

func TestEvaluateStrikeSubstitution(t *testing.T) {
	cfg := testConfig()
	cfg.StrikeSystemEnabled = true
	cfg.MaxStrikes = 3

	item := stalledItem(2 * time.Hour)

	// Three consecutive evaluations: warn, warn, remove.
	first := Evaluate(EvalInput{Item: item, Config: cfg, Strikes: 0, Now: evalNow})
	assert.Equal(t, ActionWarn, first.Action)
	assert.True(t, first.RecordStrike)
	assert.Equal(t, 1, first.Strikes)

	second := Evaluate(EvalInput{Item: item, Config: cfg, Strikes: 1, Now: evalNow})
	assert.Equal(t, ActionWarn, second.Action)
	assert.Equal(t, 2, second.Strikes)

	third := Evaluate(EvalInput{Item: item, Config: cfg, Strikes: 2, Now: evalNow})
	assert.Equal(t, ActionRemove, third.Action)
	assert.Equal(t, 3, third.Strikes)

	// Decay resets the sequence: the caller reports zero strikes again.
	fourth := Evaluate(EvalInput{Item: item, Config: cfg, Strikes: 0, Now: evalNow})
	assert.Equal(t, ActionWarn, fourth.Action)
}

func TestEvaluateFailedBypassesStrikes(t *testing.T) {
	cfg := testConfig()
	cfg.StrikeSystemEnabled = true
	cfg.MaxStrikes = 3

	item := stalledItem(2 * time.Hour)
	item.State = arr.StateFailed

	decision := Evaluate(EvalInput{Item: item, Config: cfg, Strikes: 0, Now: evalNow})

	assert.Equal(t, RuleFailed, decision.Rule)
	assert.Equal(t, ActionRemove, decision.Action)
	assert.False(t, decision.RecordStrike)
}

func TestEvaluateImportBlockedGetsImportAdvice(t *testing.T) {
	cfg := testConfig()
	cfg.AutoImport.Enabled = true
	cfg.AutoImport.SafeOnly = true

	item := arr.QueueItem{
		State:      arr.StateImportBlocked,
		Added:      evalNow.Add(-time.Hour),
		StatusText: "Sample file detected",
	}

	decision := Evaluate(EvalInput{Item: item, Config: cfg, Now: evalNow})

	assert.Equal(t, RuleImportBlock, decision.Rule)
	assert.Equal(t, ActionRemove, decision.Action)
	// Sample matches a built-in never pattern, so no import attempt.
	assert.False(t, decision.AttemptImport)
}
