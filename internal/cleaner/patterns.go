// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import (
	"strings"

	"github.com/sweeparr/sweeparr/internal/arr"
	"github.com/sweeparr/sweeparr/internal/models"
)

// MatchesAny reports whether any pattern is a case-insensitive substring of
// text. Patterns are literal substrings, not regexes. An empty pattern set
// matches nothing; empty patterns are ignored.
func MatchesAny(text string, patterns []string) bool {
	if len(patterns) == 0 || text == "" {
		return false
	}
	haystack := strings.ToLower(text)
	for _, pattern := range patterns {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p == "" {
			continue
		}
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}

// matchesWhitelist checks the item against typed whitelist patterns, matching
// each pattern against the item field its type selects.
func matchesWhitelist(item arr.QueueItem, patterns []models.WhitelistPattern) bool {
	for _, p := range patterns {
		text := strings.ToLower(strings.TrimSpace(p.Text))
		if text == "" {
			continue
		}

		switch p.Type {
		case models.WhitelistTypeTracker:
			if strings.Contains(strings.ToLower(item.Tracker), text) ||
				strings.Contains(strings.ToLower(item.Indexer), text) {
				return true
			}
		case models.WhitelistTypeTag:
			for _, tag := range item.Tags {
				if strings.Contains(strings.ToLower(tag), text) {
					return true
				}
			}
		case models.WhitelistTypeCategory:
			if strings.Contains(strings.ToLower(item.Category), text) {
				return true
			}
		case models.WhitelistTypeTitle:
			if strings.Contains(strings.ToLower(item.Title), text) {
				return true
			}
		}
	}
	return false
}

// Built-in block-reason keywords per cleanup level. Each level includes the
// keywords of the level below it.
var (
	safeBlockPatterns = []string{
		"sample",
		"password",
		"archive",
		"rar",
		"zipped",
		"executable",
		"unwanted extension",
		"virus",
		"malware",
	}

	moderateBlockPatterns = append([]string{
		"unable to parse",
		"unknown series",
		"unknown movie",
		"no files found",
		"not a custom format upgrade",
		"not an upgrade",
	}, safeBlockPatterns...)

	aggressiveBlockPatterns = append([]string{
		"already imported",
		"duplicate",
		"missing",
		"quality",
		"manual import required",
		"waiting",
	}, moderateBlockPatterns...)
)

// blockPatternsForLevel returns the built-in block-reason keyword set for a
// cleanup level.
func blockPatternsForLevel(level models.CleanupLevel) []string {
	switch level {
	case models.CleanupLevelAggressive:
		return aggressiveBlockPatterns
	case models.CleanupLevelModerate:
		return moderateBlockPatterns
	default:
		return safeBlockPatterns
	}
}

// shouldActOnBlockReason decides whether an import-blocked status warrants
// action under the configured cleanup level and pattern mode.
//
//	defaults: act when the status matches the level's built-in keywords.
//	include:  act only when the status matches a custom pattern.
//	exclude:  act per level defaults, unless a custom pattern matches
//	          (custom patterns form a protect list).
func shouldActOnBlockReason(statusText string, cfg *models.CleanerConfig) bool {
	switch cfg.PatternMode {
	case models.PatternModeInclude:
		return MatchesAny(statusText, cfg.CustomPatterns)
	case models.PatternModeExclude:
		if MatchesAny(statusText, cfg.CustomPatterns) {
			return false
		}
		return MatchesAny(statusText, blockPatternsForLevel(cfg.CleanupLevel))
	default:
		return MatchesAny(statusText, blockPatternsForLevel(cfg.CleanupLevel))
	}
}

// Built-in auto-import pattern sets. Never patterns veto regardless of safe
// matches; safe patterns mark block reasons an import retry can plausibly fix.
var (
	builtinSafeImportPatterns = []string{
		"waiting",
		"manual import required",
		"not a custom format upgrade",
		"not an upgrade",
		"already imported",
	}

	builtinNeverImportPatterns = []string{
		"sample",
		"password",
		"archive",
		"rar",
		"executable",
		"virus",
		"malware",
		"unable to parse",
		"no files found",
	}
)
