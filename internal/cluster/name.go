package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kwforge/kwforge/internal/llm"
)

// stopWords are excluded from frequency-based name generation.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {},
	"but": {}, "for": {}, "with": {}, "to": {},
}

const (
	namePromptKeywordLimit = 8
	nameMaxTokens          = 200
)

const nameSystemPrompt = "You are a content strategist. Generate unique, descriptive names for keyword clusters based on their semantic groupings."

// Namer produces cluster names in a single batched call.
type Namer interface {
	NameClusters(ctx context.Context, clusters []Cluster) ([]string, error)
}

// LLMNamer names clusters with one LLM call per batch.
type LLMNamer struct {
	Provider llm.Provider
}

// NameClusters asks the provider for one name per cluster and returns them in
// cluster order. Errors if the response cannot be parsed as a JSON string
// array of matching length; callers fall back to frequency naming.
func (n *LLMNamer) NameClusters(ctx context.Context, clusters []Cluster) ([]string, error) {
	if len(clusters) == 0 {
		return nil, nil
	}

	var info strings.Builder
	for i, c := range clusters {
		shown := c.Keywords
		extra := 0
		if len(shown) > namePromptKeywordLimit {
			extra = len(shown) - namePromptKeywordLimit
			shown = shown[:namePromptKeywordLimit]
		}
		fmt.Fprintf(&info, "Cluster %d: %s", i+1, strings.Join(shown, ", "))
		if extra > 0 {
			fmt.Fprintf(&info, "... (+%d more)", extra)
		}
		info.WriteString("\n")
	}

	prompt := fmt.Sprintf(`Here are %d keyword clusters from a semantic analysis:

%s
Generate unique, descriptive names for each cluster (2-4 words each). Each name should capture the main theme of that specific cluster and be different from the others.

Return your response as a JSON array of strings, like this:
["Cluster Name 1", "Cluster Name 2", "Cluster Name 3", ...]

Make sure each name is specific and reflects the unique aspect of that cluster.`, len(clusters), info.String())

	resp, err := n.Provider.Complete(ctx, prompt, llm.CompletionOpts{
		System:      nameSystemPrompt,
		MaxTokens:   nameMaxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("naming call failed: %w", err)
	}

	names, err := parseNameResponse(resp)
	if err != nil {
		return nil, err
	}
	if len(names) != len(clusters) {
		return nil, fmt.Errorf("expected %d names, got %d", len(clusters), len(names))
	}
	return names, nil
}

// parseNameResponse parses the LLM response into a string slice.
// Handles both clean JSON arrays and markdown-wrapped responses.
func parseNameResponse(resp string) ([]string, error) {
	resp = strings.TrimSpace(resp)

	// Strip markdown code fences if present
	if strings.HasPrefix(resp, "```") {
		lines := strings.Split(resp, "\n")
		var cleaned []string
		inBlock := false
		for _, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inBlock = !inBlock
				continue
			}
			if inBlock {
				cleaned = append(cleaned, line)
			}
		}
		resp = strings.Join(cleaned, "\n")
	}

	var names []string
	if err := json.Unmarshal([]byte(resp), &names); err != nil {
		// Try extracting an embedded array from surrounding prose.
		start := strings.Index(resp, "[")
		end := strings.LastIndex(resp, "]")
		if start >= 0 && end > start {
			if err2 := json.Unmarshal([]byte(resp[start:end+1]), &names); err2 == nil {
				return names, nil
			}
		}
		return nil, fmt.Errorf("parsing name response as JSON array: %w", err)
	}
	return names, nil
}

// ApplyNames sets each cluster's name, preferring the namer when one is
// provided and its result lines up, falling back to deterministic
// frequency-based naming otherwise. Never fails.
func ApplyNames(ctx context.Context, namer Namer, clusters []Cluster) {
	if len(clusters) == 0 {
		return
	}

	if namer != nil {
		if names, err := namer.NameClusters(ctx, clusters); err == nil && len(names) == len(clusters) {
			for i := range clusters {
				if name := strings.TrimSpace(names[i]); name != "" {
					clusters[i].Name = name
				}
			}
			return
		}
	}

	for i := range clusters {
		clusters[i].Name = frequencyName(clusters[i].Keywords)
	}
}

// frequencyName derives a name from the two most frequent non-stop-word
// tokens across the cluster's keywords. When everything is a stop word, a
// truncated-keyword placeholder is used instead. Pure local computation.
func frequencyName(keywords []string) string {
	counts := make(map[string]int)
	order := make(map[string]int)
	next := 0
	for _, keyword := range keywords {
		for _, word := range strings.Fields(keyword) {
			if _, stop := stopWords[word]; stop {
				continue
			}
			if _, seen := counts[word]; !seen {
				order[word] = next
				next++
			}
			counts[word]++
		}
	}

	if len(counts) == 0 {
		if len(keywords) == 0 {
			return "Keyword Group"
		}
		first := keywords[0]
		if len(first) > 15 {
			first = first[:15]
		}
		return fmt.Sprintf("Keyword Group %s...", first)
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	// Highest count first; first-seen order breaks count ties so the result
	// is stable for a given keyword ordering.
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return order[words[i]] < order[words[j]]
	})
	if len(words) > 2 {
		words = words[:2]
	}

	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
