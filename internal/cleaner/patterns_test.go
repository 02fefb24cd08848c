// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sweeparr/sweeparr/internal/arr"
	"github.com/sweeparr/sweeparr/internal/models"
)

func TestMatchesAny(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		patterns []string
		expected bool
	}{
		{
			name:     "case insensitive match",
			text:     "Download STALLED with no connections",
			patterns: []string{"stalled"},
			expected: true,
		},
		{
			name:     "substring match",
			text:     "no files found are eligible for import",
			patterns: []string{"no files found"},
			expected: true,
		},
		{
			name:     "no match",
			text:     "downloading normally",
			patterns: []string{"stalled", "failed"},
			expected: false,
		},
		{
			name:     "empty pattern set matches nothing",
			text:     "anything",
			patterns: nil,
			expected: false,
		},
		{
			name:     "empty patterns are ignored",
			text:     "anything",
			patterns: []string{"", "  "},
			expected: false,
		},
		{
			name:     "literal substrings only, no regex",
			text:     "sample.file",
			patterns: []string{"sample.file"},
			expected: true,
		},
		{
			name:     "regex metacharacters do not match as regex",
			text:     "sampleXfile",
			patterns: []string{"sample.file"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MatchesAny(tt.text, tt.patterns))
		})
	}
}

func TestMatchesWhitelist(t *testing.T) {
	item := arr.QueueItem{
		Title:    "Some.Show.S01E01.1080p",
		Tracker:  "https://tracker.example.org/announce",
		Indexer:  "PrivateHD",
		Category: "tv-sonarr",
		Tags:     []string{"keep", "archive"},
	}

	tests := []struct {
		name     string
		patterns []models.WhitelistPattern
		expected bool
	}{
		{
			name:     "tracker match",
			patterns: []models.WhitelistPattern{{Type: models.WhitelistTypeTracker, Text: "example.org"}},
			expected: true,
		},
		{
			name:     "tracker pattern also matches indexer",
			patterns: []models.WhitelistPattern{{Type: models.WhitelistTypeTracker, Text: "privatehd"}},
			expected: true,
		},
		{
			name:     "tag match",
			patterns: []models.WhitelistPattern{{Type: models.WhitelistTypeTag, Text: "KEEP"}},
			expected: true,
		},
		{
			name:     "category match",
			patterns: []models.WhitelistPattern{{Type: models.WhitelistTypeCategory, Text: "sonarr"}},
			expected: true,
		},
		{
			name:     "title match",
			patterns: []models.WhitelistPattern{{Type: models.WhitelistTypeTitle, Text: "some.show"}},
			expected: true,
		},
		{
			name:     "type restricts the matched field",
			patterns: []models.WhitelistPattern{{Type: models.WhitelistTypeTitle, Text: "example.org"}},
			expected: false,
		},
		{
			name:     "no patterns",
			patterns: nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, matchesWhitelist(item, tt.patterns))
		})
	}
}

func TestShouldActOnBlockReason(t *testing.T) {
	baseConfig := func(mode models.PatternMode, level models.CleanupLevel, custom []string) *models.CleanerConfig {
		cfg := models.DefaultCleanerConfig(1)
		cfg.PatternMode = mode
		cfg.CleanupLevel = level
		cfg.CustomPatterns = custom
		return cfg
	}

	tests := []struct {
		name     string
		status   string
		cfg      *models.CleanerConfig
		expected bool
	}{
		{
			name:     "defaults mode acts on safe-level keyword",
			status:   "Sample file detected",
			cfg:      baseConfig(models.PatternModeDefaults, models.CleanupLevelSafe, nil),
			expected: true,
		},
		{
			name:     "defaults mode ignores moderate keyword at safe level",
			status:   "Unable to parse release name",
			cfg:      baseConfig(models.PatternModeDefaults, models.CleanupLevelSafe, nil),
			expected: false,
		},
		{
			name:     "moderate level includes safe keywords",
			status:   "Password protected archive",
			cfg:      baseConfig(models.PatternModeDefaults, models.CleanupLevelModerate, nil),
			expected: true,
		},
		{
			name:     "aggressive level acts on waiting state",
			status:   "Waiting for download client",
			cfg:      baseConfig(models.PatternModeDefaults, models.CleanupLevelAggressive, nil),
			expected: true,
		},
		{
			name:     "include mode only acts on custom patterns",
			status:   "Sample file detected",
			cfg:      baseConfig(models.PatternModeInclude, models.CleanupLevelSafe, []string{"my custom reason"}),
			expected: false,
		},
		{
			name:     "include mode acts on custom match",
			status:   "My custom reason here",
			cfg:      baseConfig(models.PatternModeInclude, models.CleanupLevelSafe, []string{"my custom reason"}),
			expected: true,
		},
		{
			name:     "exclude mode suppresses action on custom match",
			status:   "Sample file detected",
			cfg:      baseConfig(models.PatternModeExclude, models.CleanupLevelSafe, []string{"sample"}),
			expected: false,
		},
		{
			name:     "exclude mode keeps level defaults otherwise",
			status:   "Password protected archive",
			cfg:      baseConfig(models.PatternModeExclude, models.CleanupLevelSafe, []string{"sample"}),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, shouldActOnBlockReason(tt.status, tt.cfg))
		})
	}
}
