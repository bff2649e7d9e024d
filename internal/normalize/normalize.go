// Package normalize cleans raw user-submitted keyword lists into a
// deterministic, deduplicated, sorted set ready for embedding and clustering.
package normalize

import (
	"regexp"
	"sort"
	"strings"
)

// allowedChars strips everything outside lowercase letters, digits,
// whitespace, and hyphens. Applied after lowercasing.
var allowedChars = regexp.MustCompile(`[^a-z0-9\s-]`)

// Result holds the cleaned keyword set and cleaning statistics.
type Result struct {
	Keywords      []string `json:"keywords"`
	OriginalCount int      `json:"original_count"`
	CleanedCount  int      `json:"cleaned_count"`
	RemovedCount  int      `json:"removed_count"`
}

// Stats holds aggregate shape metrics for a cleaned keyword set.
type Stats struct {
	TotalKeywords int     `json:"total_keywords"`
	AvgWordCount  float64 `json:"avg_word_count"`
	AvgCharCount  float64 `json:"avg_char_count"`
	Shortest      string  `json:"shortest"`
	Longest       string  `json:"longest"`
}

// Clean normalizes a raw keyword list: lowercase, collapse whitespace runs,
// strip special characters (hyphens survive), trim, drop empties, dedupe,
// and sort ascending. The output is identical for any permutation of the
// input. Clean never fails; a fully degenerate input yields an empty set.
func Clean(raw []string) Result {
	result := Result{OriginalCount: len(raw)}

	seen := make(map[string]struct{}, len(raw))
	cleaned := make([]string, 0, len(raw))
	for _, keyword := range raw {
		kw := strings.ToLower(keyword)
		kw = strings.Join(strings.Fields(kw), " ")
		kw = allowedChars.ReplaceAllString(kw, "")
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		cleaned = append(cleaned, kw)
	}

	sort.Strings(cleaned)

	result.Keywords = cleaned
	result.CleanedCount = len(cleaned)
	result.RemovedCount = result.OriginalCount - result.CleanedCount
	return result
}

// ComputeStats summarizes a cleaned keyword set. Zero value for empty input.
func ComputeStats(keywords []string) Stats {
	stats := Stats{TotalKeywords: len(keywords)}
	if len(keywords) == 0 {
		return stats
	}

	totalWords := 0
	totalChars := 0
	shortest := keywords[0]
	longest := keywords[0]
	for _, kw := range keywords {
		totalWords += len(strings.Fields(kw))
		totalChars += len(kw)
		if len(kw) < len(shortest) {
			shortest = kw
		}
		if len(kw) > len(longest) {
			longest = kw
		}
	}

	stats.AvgWordCount = float64(totalWords) / float64(len(keywords))
	stats.AvgCharCount = float64(totalChars) / float64(len(keywords))
	stats.Shortest = shortest
	stats.Longest = longest
	return stats
}
