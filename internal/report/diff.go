package report

import "strings"

// DiffStats summarizes how much a rewrite changed a file.
type DiffStats struct {
	AddedLines   int `json:"added_lines"`
	RemovedLines int `json:"removed_lines"`
}

// Diff counts the lines added to and removed from before when producing
// after. Lines are matched as a multiset, so moved lines do not count as
// changes. This intentionally trades diff precision for speed on large
// files.
func Diff(before, after string) DiffStats {
	beforeCounts := lineCounts(before)
	afterCounts := lineCounts(after)

	var stats DiffStats
	for line, count := range afterCounts {
		if extra := count - beforeCounts[line]; extra > 0 {
			stats.AddedLines += extra
		}
	}
	for line, count := range beforeCounts {
		if missing := count - afterCounts[line]; missing > 0 {
			stats.RemovedLines += missing
		}
	}
	return stats
}

func lineCounts(content string) map[string]int {
	counts := make(map[string]int)
	if content == "" {
		return counts
	}
	content = strings.TrimSuffix(content, "\n")
	for _, line := range strings.Split(content, "\n") {
		counts[line]++
	}
	return counts
}
