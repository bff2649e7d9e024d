// Package generate turns cluster research into content artifacts: a
// structured outline and a post idea per keyword cluster.
package generate

import (
	"sort"
	"strings"

	"github.com/kwforge/kwforge/internal/research"
)

// Headings containing these words are navigation or commerce noise,
// not topical signal.
var genericHeadingWords = []string{"buy", "price", "review", "best", "top"}

// ExtractCommonTopics finds h2/h3 headings that recur across the
// scraped competitor pages. Headings seen on at least two pages come
// first; if nothing recurs, the most frequent headings are used as is.
func ExtractCommonTopics(pages []research.PageContent) []string {
	counts := make(map[string]int)
	var order []string

	for _, page := range pages {
		if !page.Success {
			continue
		}
		for _, h := range page.Headings {
			if h.Level != "h2" && h.Level != "h3" {
				continue
			}
			text := strings.ToLower(strings.TrimSpace(h.Text))
			if len(text) <= 3 || containsAny(text, genericHeadingWords) {
				continue
			}
			if counts[text] == 0 {
				order = append(order, text)
			}
			counts[text]++
		}
	}

	// Most frequent first, first-seen order on ties.
	ranked := make([]string, len(order))
	copy(ranked, order)
	sort.SliceStable(ranked, func(i, j int) bool {
		return counts[ranked[i]] > counts[ranked[j]]
	})

	var common []string
	for _, text := range ranked {
		if counts[text] >= 2 {
			common = append(common, text)
			if len(common) == 10 {
				break
			}
		}
	}
	if len(common) > 0 {
		return common
	}

	if len(ranked) > 5 {
		ranked = ranked[:5]
	}
	return ranked
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
