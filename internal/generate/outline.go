package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kwforge/kwforge/internal/llm"
)

// Outline is a structured blog post plan.
type Outline struct {
	Title        string            `json:"title"`
	Introduction OutlineIntro      `json:"introduction"`
	Sections     []OutlineSection  `json:"sections"`
	Conclusion   OutlineConclusion `json:"conclusion"`
}

type OutlineIntro struct {
	Hook     string `json:"hook"`
	Overview string `json:"overview"`
}

type OutlineSection struct {
	Heading     string   `json:"heading"`
	Description string   `json:"description"`
	Subsections []string `json:"subsections"`
}

type OutlineConclusion struct {
	Summary string `json:"summary"`
	CTA     string `json:"cta"`
}

// Validate rejects outlines missing the parts a report depends on.
func (o *Outline) Validate() error {
	if strings.TrimSpace(o.Title) == "" {
		return fmt.Errorf("outline has no title")
	}
	if len(o.Sections) == 0 {
		return fmt.Errorf("outline has no sections")
	}
	return nil
}

const outlineSystemPrompt = "You are a content strategy expert. Generate well-structured content outlines in JSON format."

// Generator produces outlines and post ideas through an LLM provider.
// Generation failures are fatal to the caller; there is no rule-based
// fallback here.
type Generator struct {
	Provider llm.Provider
}

// GenerateOutline builds a content outline for a cluster from its
// keywords and the topics common to top-ranking pages.
func (g *Generator) GenerateOutline(ctx context.Context, keywords, topics []string) (*Outline, error) {
	prompt := fmt.Sprintf(`Create a comprehensive content outline for a blog post.

Target Keywords: %s
Common Topics in Top-Ranking Content: %s

Generate a structured outline with:
1. An engaging introduction section
2. 5-7 main body sections (H2 level)
3. 2-3 subsections under each main section (H3 level)
4. A conclusion section

Format as JSON:
{
  "title": "Suggested title",
  "introduction": {
    "hook": "Opening hook",
    "overview": "What this post covers"
  },
  "sections": [
    {
      "heading": "Main section heading",
      "description": "What this section covers",
      "subsections": ["Subsection 1", "Subsection 2"]
    }
  ],
  "conclusion": {
    "summary": "Key takeaways",
    "cta": "Call to action"
  }
}

Respond ONLY with valid JSON, no additional text.`,
		strings.Join(head(keywords, 5), ", "),
		strings.Join(head(topics, 10), ", "))

	raw, err := g.Provider.Complete(ctx, prompt, llm.CompletionOpts{
		System:      outlineSystemPrompt,
		Temperature: 0.7,
		MaxTokens:   2000,
		Format:      "json",
	})
	if err != nil {
		return nil, fmt.Errorf("outline generation failed: %w", err)
	}

	var outline Outline
	if err := json.Unmarshal([]byte(extractJSON(raw)), &outline); err != nil {
		return nil, fmt.Errorf("parsing outline response: %w", err)
	}
	if err := outline.Validate(); err != nil {
		return nil, err
	}
	return &outline, nil
}

func head(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// extractJSON strips markdown code fences the model sometimes wraps
// around its JSON payload.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```json"); idx >= 0 {
		s = s[idx+len("```json"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	} else if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[idx+len("```"):]
		if end := strings.Index(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	return strings.TrimSpace(s)
}
