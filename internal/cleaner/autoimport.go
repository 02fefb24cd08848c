// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import (
	"fmt"
	"time"

	"github.com/sweeparr/sweeparr/internal/arr"
	"github.com/sweeparr/sweeparr/internal/models"
)

// ImportAdvice is the advisor's verdict for one import-blocked item.
type ImportAdvice struct {
	Attempt bool   `json:"attempt"`
	Reason  string `json:"reason"`
}

// ShouldAttemptImport decides whether an import attempt should be tried
// before removing an import-blocked item. Checks run in a fixed order; the
// never-pattern veto is absolute and cannot be overridden by safe matches.
func ShouldAttemptImport(item arr.QueueItem, cfg *models.CleanerConfig, attempt *models.ImportAttemptRecord, now time.Time) ImportAdvice {
	ai := cfg.AutoImport

	if !ai.Enabled {
		return ImportAdvice{Attempt: false, Reason: "auto-import disabled"}
	}

	neverPatterns := append(append([]string{}, builtinNeverImportPatterns...), ai.NeverPatterns...)
	if MatchesAny(item.StatusText, neverPatterns) {
		return ImportAdvice{Attempt: false, Reason: "status matches a never pattern"}
	}

	if ai.SafeOnly {
		safePatterns := append(append([]string{}, builtinSafeImportPatterns...), ai.SafePatterns...)
		if !MatchesAny(item.StatusText, safePatterns) {
			return ImportAdvice{Attempt: false, Reason: "status does not match any safe pattern"}
		}
	}

	if attempt != nil {
		if attempt.AttemptCount >= ai.MaxAttempts {
			return ImportAdvice{
				Attempt: false,
				Reason:  fmt.Sprintf("attempt budget exhausted (%d/%d)", attempt.AttemptCount, ai.MaxAttempts),
			}
		}

		cooldown := time.Duration(ai.CooldownMins) * time.Minute
		if elapsed := now.Sub(attempt.LastAttemptAt); elapsed < cooldown {
			return ImportAdvice{
				Attempt: false,
				Reason:  fmt.Sprintf("cooldown active, %s remaining", (cooldown - elapsed).Round(time.Second)),
			}
		}
	}

	return ImportAdvice{Attempt: true, Reason: "eligible for import attempt"}
}
