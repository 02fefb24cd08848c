// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import (
	"fmt"
	"time"

	"github.com/sweeparr/sweeparr/internal/arr"
	"github.com/sweeparr/sweeparr/internal/models"
)

// Action is the outcome of evaluating one queue item.
type Action string

const (
	ActionRemove    Action = "remove"
	ActionWarn      Action = "warn"
	ActionSkip      Action = "skip"
	ActionWhitelist Action = "whitelist"
)

// Rule tags, in priority order. When several rules fire for one item the
// evaluator keeps the highest-priority one.
const (
	RuleWhitelisted  = "whitelisted"
	RuleTooYoung     = "too_young"
	RuleErrorPattern = "error_pattern"
	RuleFailed       = "failed"
	RuleImportBlock  = "import_blocked"
	RuleImportPend   = "import_pending"
	RuleSeedTimeout  = "seeding_timeout"
	RuleEstComplete  = "estimated_completion"
	RuleStalled      = "stalled"
	RuleSlow         = "slow"
	RuleHealthy      = "healthy"
	RuleDataError    = "data_error"
)

// rulePriority orders rule tags; lower index wins.
var rulePriority = []string{
	RuleWhitelisted,
	RuleTooYoung,
	RuleErrorPattern,
	RuleFailed,
	RuleImportBlock,
	RuleImportPend,
	RuleSeedTimeout,
	RuleEstComplete,
	RuleStalled,
	RuleSlow,
	RuleHealthy,
}

// Decision is the single outcome for one queue item in one run.
type Decision struct {
	ItemID         int64  `json:"itemId"`
	ItemKey        string `json:"itemKey"`
	DownloadID     string `json:"downloadId,omitempty"`
	Title          string `json:"title"`
	Rule           string `json:"rule"`
	Action         Action `json:"action"`
	Reason         string `json:"reason"`
	DetailedReason string `json:"detailedReason,omitempty"`

	// RecordStrike asks the caller to increment the item's strike count.
	// Set when strike substitution demoted a removal to a warning.
	RecordStrike bool `json:"-"`

	// AttemptImport asks the caller to try an import before falling back
	// to the removal this decision would otherwise dispatch.
	AttemptImport bool   `json:"attemptImport,omitempty"`
	ImportReason  string `json:"importReason,omitempty"`

	// ImportDispatched marks a remove decision whose import attempt was
	// dispatched successfully; the item was not removed and must not be
	// counted as one.
	ImportDispatched bool `json:"importDispatched,omitempty"`

	// Deferred marks a remove decision demoted by the per-run removal cap.
	// It is reported but not executed.
	Deferred bool `json:"deferred,omitempty"`

	// Strikes is the item's effective strike count after this evaluation,
	// for reporting.
	Strikes int `json:"strikes,omitempty"`
}

// candidate is one rule's provisional verdict before priority resolution.
type candidate struct {
	rule   string
	action Action
	reason string
	detail string
}

// EvalInput carries everything Evaluate needs. Strike and import-attempt
// state is passed in so evaluation stays pure: identical inputs always yield
// the identical Decision.
type EvalInput struct {
	Item          arr.QueueItem
	Config        *models.CleanerConfig
	Strikes       int
	ImportAttempt *models.ImportAttemptRecord
	Now           time.Time
}

// Evaluate produces exactly one Decision for a queue item.
//
// Whitelist and the minimum-age grace period short-circuit everything else.
// Remaining enabled rules are evaluated independently and the highest-priority
// match wins. A would-be removal from any rule except failed is demoted to a
// warning while the item's strike count is below maxStrikes.
func Evaluate(in EvalInput) Decision {
	item, cfg, now := in.Item, in.Config, in.Now

	base := Decision{
		ItemID:     item.ID,
		ItemKey:    item.Key(),
		DownloadID: item.DownloadID,
		Title:      item.Title,
		Strikes:    in.Strikes,
	}

	if item.DataError {
		base.Rule = RuleDataError
		base.Action = ActionSkip
		base.Reason = "item detail could not be parsed"
		return base
	}

	if matchesWhitelist(item, cfg.WhitelistPatterns) {
		base.Rule = RuleWhitelisted
		base.Action = ActionWhitelist
		base.Reason = "matches a whitelist pattern"
		return base
	}

	age := item.AgeMinutes(now)
	if age < float64(cfg.MinQueueAgeMins) {
		base.Rule = RuleTooYoung
		base.Action = ActionSkip
		base.Reason = fmt.Sprintf("queued %.0f min, grace period is %d min", age, cfg.MinQueueAgeMins)
		return base
	}

	best := candidate{rule: RuleHealthy, action: ActionSkip, reason: "no rule matched"}
	bestIdx := priorityIndex(RuleHealthy)

	consider := func(c candidate) {
		if idx := priorityIndex(c.rule); idx < bestIdx {
			best = c
			bestIdx = idx
		}
	}

	if cfg.ErrorPatternEnabled && MatchesAny(item.ErrorMessage, cfg.ErrorPatterns) {
		consider(candidate{
			rule:   RuleErrorPattern,
			action: ActionRemove,
			reason: "error message matches a configured pattern",
			detail: item.ErrorMessage,
		})
	}

	if cfg.FailedEnabled && item.State == arr.StateFailed {
		consider(candidate{
			rule:   RuleFailed,
			action: ActionRemove,
			reason: "download failed",
			detail: item.ErrorMessage,
		})
	}

	if cfg.ImportEnabled && age >= float64(cfg.ImportPendingThresholdMins) {
		switch item.State {
		case arr.StateImportBlocked:
			if shouldActOnBlockReason(item.StatusText, cfg) {
				consider(candidate{
					rule:   RuleImportBlock,
					action: ActionRemove,
					reason: "import blocked beyond threshold",
					detail: item.StatusText,
				})
			}
		case arr.StateImportPending:
			if shouldActOnBlockReason(item.StatusText, cfg) {
				consider(candidate{
					rule:   RuleImportPend,
					action: ActionRemove,
					reason: "import pending beyond threshold",
					detail: item.StatusText,
				})
			}
		}
	}

	if cfg.SeedingTimeoutEnabled && item.State == arr.StateSeeding && item.SeedingSince != nil {
		seeding := now.Sub(*item.SeedingSince)
		if seeding >= time.Duration(cfg.SeedingTimeoutHours)*time.Hour {
			consider(candidate{
				rule:   RuleSeedTimeout,
				action: ActionRemove,
				reason: fmt.Sprintf("seeding for %s, timeout is %dh", seeding.Round(time.Minute), cfg.SeedingTimeoutHours),
			})
		}
	}

	if cfg.EstimatedCompletionEnabled && item.ETA > 0 {
		budget := time.Duration(float64(item.ETA) * cfg.EstimatedCompletionMultiplier)
		elapsed := time.Duration(age) * time.Minute
		if elapsed >= budget {
			consider(candidate{
				rule:   RuleEstComplete,
				action: ActionRemove,
				reason: fmt.Sprintf("elapsed %s exceeds %.1fx the estimated completion", elapsed.Round(time.Minute), cfg.EstimatedCompletionMultiplier),
			})
		}
	}

	if cfg.StalledEnabled && item.State == arr.StateStalled && age >= float64(cfg.StalledThresholdMins) {
		consider(candidate{
			rule:   RuleStalled,
			action: ActionRemove,
			reason: fmt.Sprintf("stalled for %.0f min, threshold is %d min", age, cfg.StalledThresholdMins),
		})
	}

	if cfg.SlowEnabled && item.State == arr.StateDownloading &&
		item.SpeedKBps < float64(cfg.SlowSpeedThresholdKB) && age >= float64(cfg.SlowGracePeriodMins) {
		consider(candidate{
			rule:   RuleSlow,
			action: ActionRemove,
			reason: fmt.Sprintf("averaging %.1f KB/s, threshold is %d KB/s", item.SpeedKBps, cfg.SlowSpeedThresholdKB),
		})
	}

	base.Rule = best.rule
	base.Action = best.action
	base.Reason = best.reason
	base.DetailedReason = best.detail

	// Failed removals bypass strikes: a permanently failed transfer will
	// not self-resolve by waiting.
	if base.Action == ActionRemove && cfg.StrikeSystemEnabled && base.Rule != RuleFailed {
		next := in.Strikes + 1
		if next < cfg.MaxStrikes {
			base.Action = ActionWarn
			base.RecordStrike = true
			base.Strikes = next
			base.Reason = fmt.Sprintf("%s (strike %d of %d)", base.Reason, next, cfg.MaxStrikes)
		} else {
			base.RecordStrike = true
			base.Strikes = next
			base.Reason = fmt.Sprintf("%s (strike limit reached)", base.Reason)
		}
	}

	// Import-blocked removals may get an import attempt first. The caller
	// treats this as try import, fall back to remove on failure.
	if base.Action == ActionRemove && (base.Rule == RuleImportBlock || base.Rule == RuleImportPend) {
		advice := ShouldAttemptImport(item, cfg, in.ImportAttempt, now)
		base.AttemptImport = advice.Attempt
		base.ImportReason = advice.Reason
	}

	return base
}

func priorityIndex(rule string) int {
	for i, r := range rulePriority {
		if r == rule {
			return i
		}
	}
	return len(rulePriority)
}
