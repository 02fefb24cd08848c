// Copyright (c) 2026, the sweeparr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package cleaner

import "strings"

// actionWeight ranks actions by severity for worst-action folding.
var actionWeight = map[Action]int{
	ActionRemove:    4,
	ActionWarn:      3,
	ActionSkip:      2,
	ActionWhitelist: 1,
}

// ItemGroup is a view-only aggregate over decisions sharing a downloadId,
// used to present a season pack as one row. Never persisted.
type ItemGroup struct {
	DownloadID   string     `json:"downloadId"`
	Label        string     `json:"label"`
	WorstAction  Action     `json:"worstAction"`
	DominantRule string     `json:"dominantRule"`
	Members      []Decision `json:"members"`
}

// GroupDecisions merges decisions that share a non-empty downloadId into
// ItemGroups; decisions without one (or alone in theirs) become single-member
// groups. Input order is preserved, so the transform is deterministic and
// idempotent over already-singular input.
func GroupDecisions(decisions []Decision) []ItemGroup {
	byDownload := make(map[string][]Decision)
	for _, d := range decisions {
		if d.DownloadID != "" {
			byDownload[d.DownloadID] = append(byDownload[d.DownloadID], d)
		}
	}

	groups := make([]ItemGroup, 0, len(decisions))
	emitted := make(map[string]bool)

	for _, d := range decisions {
		if d.DownloadID != "" && len(byDownload[d.DownloadID]) > 1 {
			if emitted[d.DownloadID] {
				continue
			}
			emitted[d.DownloadID] = true
			members := byDownload[d.DownloadID]
			groups = append(groups, ItemGroup{
				DownloadID:   d.DownloadID,
				Label:        groupLabel(members),
				WorstAction:  worstAction(members),
				DominantRule: dominantRule(members),
				Members:      members,
			})
			continue
		}

		groups = append(groups, ItemGroup{
			DownloadID:   d.DownloadID,
			Label:        d.Title,
			WorstAction:  d.Action,
			DominantRule: d.Rule,
			Members:      []Decision{d},
		})
	}

	return groups
}

// worstAction folds members down to the highest-severity action.
func worstAction(members []Decision) Action {
	worst := ActionWhitelist
	for _, m := range members {
		if actionWeight[m.Action] > actionWeight[worst] {
			worst = m.Action
		}
	}
	return worst
}

// dominantRule returns the most frequent rule tag among members, breaking
// ties by first occurrence.
func dominantRule(members []Decision) string {
	counts := make(map[string]int)
	var order []string
	for _, m := range members {
		if counts[m.Rule] == 0 {
			order = append(order, m.Rule)
		}
		counts[m.Rule]++
	}

	best := ""
	bestCount := 0
	for _, rule := range order {
		if counts[rule] > bestCount {
			best = rule
			bestCount = counts[rule]
		}
	}
	return best
}

func groupLabel(members []Decision) string {
	titles := make([]string, 0, len(members))
	for _, m := range members {
		titles = append(titles, m.Title)
	}
	if label := commonTitlePrefix(titles); label != "" {
		return label
	}
	return titles[0]
}

// titleSeparators, checked longest-first so " - S" wins over " - ".
var titleSeparators = []string{" - S", " S", " - ", " (", " ["}

// commonTitlePrefix derives a human label from member titles: the longest
// character-by-character common prefix, trimmed back to the nearest known
// separator so the label reads as a show or movie name rather than a
// truncated word. Dot-separated release names are handled by also treating
// "." as a word boundary.
func commonTitlePrefix(titles []string) string {
	if len(titles) == 0 {
		return ""
	}

	prefix := titles[0]
	for _, title := range titles[1:] {
		max := len(prefix)
		if len(title) < max {
			max = len(title)
		}
		i := 0
		for i < max && prefix[i] == title[i] {
			i++
		}
		prefix = prefix[:i]
	}

	if prefix == "" {
		return ""
	}

	for _, sep := range titleSeparators {
		if idx := strings.LastIndex(prefix, sep); idx > 0 {
			return strings.Trim(prefix[:idx], " .-")
		}
	}

	// Release-style titles: "Show.Name.S01E0" trims to "Show.Name".
	if idx := strings.LastIndex(prefix, ".S"); idx > 0 {
		return strings.Trim(prefix[:idx], " .-")
	}

	return strings.Trim(prefix, " .-")
}
