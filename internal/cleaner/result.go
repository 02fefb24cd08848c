// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import (
	"time"

	"github.com/sweeparr/sweeparr/internal/models"
)

// RunResult aggregates one evaluation pass over an instance's queue.
type RunResult struct {
	InstanceID int       `json:"instanceId"`
	DryRun     bool      `json:"dryRun"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	TotalItems        int `json:"totalItems"`
	Removed           int `json:"removed"`
	Warned            int `json:"warned"`
	Skipped           int `json:"skipped"`
	Whitelisted       int `json:"whitelisted"`
	Deferred          int `json:"deferred"`
	ImportsDispatched int `json:"importsDispatched"`

	RuleBreakdown map[string]int `json:"ruleBreakdown"`
	Decisions     []Decision     `json:"decisions"`

	Status       models.RunStatus `json:"status"`
	HasDataError bool             `json:"hasDataError"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
}

// ApplyRemovalCap demotes remove decisions beyond maxRemovalsPerRun to
// deferred. Deferred items are reported, never executed, so the safety limit
// holds even when more items qualify. Order is preserved; the first cap
// removals stay live.
func ApplyRemovalCap(decisions []Decision, limit int) []Decision {
	if limit <= 0 {
		return decisions
	}

	live := 0
	out := make([]Decision, len(decisions))
	for i, d := range decisions {
		if d.Action == ActionRemove {
			if live < limit {
				live++
			} else {
				d.Deferred = true
			}
		}
		out[i] = d
	}
	return out
}

// AssembleResult folds decisions into a run summary. Deferred removals count
// toward Deferred, not Removed.
func AssembleResult(instanceID int, dryRun bool, decisions []Decision, startedAt, finishedAt time.Time, hasDataError bool) *RunResult {
	result := &RunResult{
		InstanceID:    instanceID,
		DryRun:        dryRun,
		StartedAt:     startedAt,
		FinishedAt:    finishedAt,
		TotalItems:    len(decisions),
		RuleBreakdown: make(map[string]int),
		Decisions:     decisions,
		HasDataError:  hasDataError,
	}

	for _, d := range decisions {
		result.RuleBreakdown[d.Rule]++
		switch {
		case d.Deferred:
			result.Deferred++
		case d.ImportDispatched:
			result.ImportsDispatched++
		case d.Action == ActionRemove:
			result.Removed++
		case d.Action == ActionWarn:
			result.Warned++
		case d.Action == ActionWhitelist:
			result.Whitelisted++
		default:
			result.Skipped++
		}
	}

	result.Status = deriveStatus(result)
	return result
}

// deriveStatus maps a result to its log status: partial when the cap deferred
// removals or item-level failures occurred, skipped when nothing matched.
func deriveStatus(r *RunResult) models.RunStatus {
	switch {
	case r.Deferred > 0 || r.HasDataError:
		return models.RunStatusPartial
	case r.Removed == 0 && r.Warned == 0 && r.Whitelisted == 0 && r.ImportsDispatched == 0:
		return models.RunStatusSkipped
	default:
		return models.RunStatusCompleted
	}
}

// QueueSummary describes the snapshot a preview evaluated.
type QueueSummary struct {
	TotalItems   int            `json:"totalItems"`
	ByState      map[string]int `json:"byState"`
	ByProtocol   map[string]int `json:"byProtocol"`
	OldestAgeMin float64        `json:"oldestAgeMinutes"`
}

// EnhancedPreviewResult is the dry-run payload served to the preview surface:
// grouped decisions plus summaries and the config they were computed under.
type EnhancedPreviewResult struct {
	PreviewItems       []ItemGroup           `json:"previewItems"`
	QueueSummary       QueueSummary          `json:"queueSummary"`
	RuleSummary        map[string]int        `json:"ruleSummary"`
	WouldRemove        int                   `json:"wouldRemove"`
	WouldWarn          int                   `json:"wouldWarn"`
	WouldSkip          int                   `json:"wouldSkip"`
	ConfigSnapshot     *models.CleanerConfig `json:"configSnapshot"`
	InstanceReachable  bool                  `json:"instanceReachable"`
	PreviewGeneratedAt time.Time             `json:"previewGeneratedAt"`
}

// BuildPreview turns a dry-run result into the enhanced preview payload.
func BuildPreview(result *RunResult, summary QueueSummary, cfg *models.CleanerConfig, reachable bool, now time.Time) *EnhancedPreviewResult {
	return &EnhancedPreviewResult{
		PreviewItems:       GroupDecisions(result.Decisions),
		QueueSummary:       summary,
		RuleSummary:        result.RuleBreakdown,
		WouldRemove:        result.Removed + result.Deferred,
		WouldWarn:          result.Warned,
		WouldSkip:          result.Skipped,
		ConfigSnapshot:     cfg,
		InstanceReachable:  reachable,
		PreviewGeneratedAt: now,
	}
}
