package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kwforge/kwforge/internal/llm"
)

// Idea is a single post concept generated for a cluster.
type Idea struct {
	Title                 string   `json:"title"`
	Angle                 string   `json:"angle"`
	TargetAudience        string   `json:"target_audience"`
	ValueProposition      string   `json:"value_proposition"`
	ContentFormat         string   `json:"content_format"`
	EstimatedReadingTime  string   `json:"estimated_reading_time"`
	DifficultyLevel       string   `json:"difficulty_level"`
	SocialHooks           []string `json:"social_hooks"`
	MonetizationPotential string   `json:"monetization_potential"`
	SEO                   IdeaSEO  `json:"seo_optimization"`
}

type IdeaSEO struct {
	PrimaryKeyword     string `json:"primary_keyword"`
	SearchIntent       string `json:"search_intent"`
	CompetitorAnalysis string `json:"competitor_analysis"`
}

func (i *Idea) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("idea has no title")
	}
	return nil
}

const ideaSystemPrompt = "You are a senior content marketing strategist with expertise in viral content creation, SEO, and audience psychology. Generate highly engaging, conversion-focused post ideas that combine creativity with strategic marketing principles."

// GenerateIdea proposes one post idea for a cluster. The outline, when
// present, grounds the idea in the planned section headings.
func (g *Generator) GenerateIdea(ctx context.Context, keywords []string, outline *Outline) (*Idea, error) {
	var outlineContext string
	if outline != nil {
		headings := make([]string, 0, len(outline.Sections))
		for _, s := range outline.Sections {
			headings = append(headings, s.Heading)
		}
		outlineContext = "\n\nOutline sections: " + strings.Join(headings, ", ")
	}

	prompt := fmt.Sprintf(`Generate ONE unique, compelling, and user-friendly blog post idea that drives engagement and conversions.

Keywords: %s%s

Requirements:
- Create a catchy, click-worthy title that sparks curiosity
- Propose a unique angle that stands out from typical content
- Define the target audience clearly with demographics and pain points
- Make it actionable and valuable with specific benefits
- Include content format suggestions (listicle, how-to, case study, etc.)
- Add estimated reading time and difficulty level
- Suggest social media hooks and sharing angles
- Include monetization potential (affiliate, lead gen, etc.)

Format as JSON:
{
  "title": "Catchy post title",
  "angle": "Unique perspective or approach",
  "target_audience": "Who this is for (demographics, pain points, interests)",
  "value_proposition": "What readers will gain (specific benefits)",
  "content_format": "Suggested format (how-to guide, listicle, case study, etc.)",
  "estimated_reading_time": "5-7 minutes",
  "difficulty_level": "Beginner/Intermediate/Advanced",
  "social_hooks": ["Hook 1", "Hook 2", "Hook 3"],
  "monetization_potential": "Affiliate products, lead generation, etc.",
  "seo_optimization": {
    "primary_keyword": "main keyword",
    "search_intent": "informational/commercial/transactional",
    "competitor_analysis": "What makes this different"
  }
}

Respond ONLY with valid JSON.`,
		strings.Join(head(keywords, 5), ", "), outlineContext)

	raw, err := g.Provider.Complete(ctx, prompt, llm.CompletionOpts{
		System:      ideaSystemPrompt,
		Temperature: 0.8,
		MaxTokens:   1000,
		Format:      "json",
	})
	if err != nil {
		return nil, fmt.Errorf("idea generation failed: %w", err)
	}

	var idea Idea
	if err := json.Unmarshal([]byte(extractJSON(raw)), &idea); err != nil {
		return nil, fmt.Errorf("parsing idea response: %w", err)
	}
	if err := idea.Validate(); err != nil {
		return nil, err
	}
	return &idea, nil
}
