// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupDecisions(t *testing.T) {
	t.Run("items sharing a downloadId merge into one group", func(t *testing.T) {
		decisions := []Decision{
			{ItemID: 1, DownloadID: "X", Title: "Show.Name.S01E01", Rule: RuleStalled, Action: ActionRemove},
			{ItemID: 2, DownloadID: "X", Title: "Show.Name.S01E02", Rule: RuleHealthy, Action: ActionSkip},
		}

		groups := GroupDecisions(decisions)

		require.Len(t, groups, 1)
		assert.Equal(t, "X", groups[0].DownloadID)
		assert.Equal(t, ActionRemove, groups[0].WorstAction)
		assert.Len(t, groups[0].Members, 2)
	})

	t.Run("grouping single items is a no-op", func(t *testing.T) {
		decisions := []Decision{
			{ItemID: 1, DownloadID: "A", Title: "First", Action: ActionSkip, Rule: RuleHealthy},
			{ItemID: 2, DownloadID: "", Title: "Second", Action: ActionWarn, Rule: RuleStalled},
		}

		groups := GroupDecisions(decisions)

		require.Len(t, groups, 2)
		assert.Equal(t, "First", groups[0].Label)
		assert.Equal(t, ActionSkip, groups[0].WorstAction)
		assert.Equal(t, "Second", groups[1].Label)
		assert.Equal(t, ActionWarn, groups[1].WorstAction)
	})

	t.Run("input order is preserved", func(t *testing.T) {
		decisions := []Decision{
			{ItemID: 1, Title: "solo-1", Action: ActionSkip},
			{ItemID: 2, DownloadID: "P", Title: "pack-1", Action: ActionSkip},
			{ItemID: 3, Title: "solo-2", Action: ActionSkip},
			{ItemID: 4, DownloadID: "P", Title: "pack-2", Action: ActionSkip},
		}

		groups := GroupDecisions(decisions)

		require.Len(t, groups, 3)
		assert.Equal(t, "solo-1", groups[0].Label)
		assert.Equal(t, "P", groups[1].DownloadID)
		assert.Equal(t, "solo-2", groups[2].Label)
	})
}

func TestWorstAction(t *testing.T) {
	tests := []struct {
		name     string
		actions  []Action
		expected Action
	}{
		{"remove beats everything", []Action{ActionWhitelist, ActionSkip, ActionRemove, ActionWarn}, ActionRemove},
		{"warn beats skip", []Action{ActionSkip, ActionWarn, ActionSkip}, ActionWarn},
		{"skip beats whitelist", []Action{ActionWhitelist, ActionSkip}, ActionSkip},
		{"all whitelist", []Action{ActionWhitelist, ActionWhitelist}, ActionWhitelist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members := make([]Decision, len(tt.actions))
			for i, action := range tt.actions {
				members[i] = Decision{Action: action}
			}
			assert.Equal(t, tt.expected, worstAction(members))
		})
	}
}

func TestDominantRule(t *testing.T) {
	t.Run("most frequent rule wins", func(t *testing.T) {
		members := []Decision{
			{Rule: RuleStalled},
			{Rule: RuleHealthy},
			{Rule: RuleStalled},
		}
		assert.Equal(t, RuleStalled, dominantRule(members))
	})

	t.Run("ties break by first occurrence", func(t *testing.T) {
		members := []Decision{
			{Rule: RuleHealthy},
			{Rule: RuleStalled},
			{Rule: RuleStalled},
			{Rule: RuleHealthy},
		}
		assert.Equal(t, RuleHealthy, dominantRule(members))
	})
}

func TestCommonTitlePrefix(t *testing.T) {
	tests := []struct {
		name     string
		titles   []string
		expected string
	}{
		{
			name:     "dot separated episode titles",
			titles:   []string{"Show.Name.S01E01", "Show.Name.S01E02"},
			expected: "Show.Name",
		},
		{
			name:     "dash separated season",
			titles:   []string{"Show Name - S01E01 - Pilot", "Show Name - S01E02 - Next"},
			expected: "Show Name",
		},
		{
			name:     "space separated season",
			titles:   []string{"Show Name S01E01", "Show Name S01E02"},
			expected: "Show Name",
		},
		{
			name:     "year in parentheses",
			titles:   []string{"Movie Title (2026) 1080p", "Movie Title (2026) 720p"},
			expected: "Movie Title",
		},
		{
			name:     "bracketed release group",
			titles:   []string{"Title [Group] 01", "Title [Group] 02"},
			expected: "Title",
		},
		{
			name:     "no common prefix",
			titles:   []string{"Alpha", "Beta"},
			expected: "",
		},
		{
			name:     "single title",
			titles:   []string{"Only.One.S01E01"},
			expected: "Only.One",
		},
		{
			name:     "empty input",
			titles:   nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, commonTitlePrefix(tt.titles))
		})
	}
}
