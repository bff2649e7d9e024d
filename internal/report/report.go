// Package report renders the content strategy report for a completed
// batch as a markdown document.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kwforge/kwforge/internal/generate"
	"github.com/kwforge/kwforge/internal/store"
)

const maxListedKeywords = 50

// Reporter writes a strategy report and returns its path.
type Reporter interface {
	Generate(batch *store.Batch, clusters []*store.ClusterRecord) (string, error)
}

// MarkdownReporter writes reports under Dir, one file per batch run.
type MarkdownReporter struct {
	Dir string
}

func NewMarkdownReporter(dir string) *MarkdownReporter {
	if dir == "" {
		dir = "reports"
	}
	return &MarkdownReporter{Dir: dir}
}

func (r *MarkdownReporter) Generate(batch *store.Batch, clusters []*store.ClusterRecord) (string, error) {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	filename := fmt.Sprintf("content_strategy_report_%s.md", time.Now().Format("20060102_150405"))
	path := filepath.Join(r.Dir, filename)

	if err := os.WriteFile(path, []byte(Render(batch, clusters)), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// Render builds the report body. Split out from Generate so it can be
// inspected without touching the filesystem.
func Render(batch *store.Batch, clusters []*store.ClusterRecord) string {
	var b strings.Builder

	shortID := batch.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}

	fmt.Fprintf(&b, "# Content Strategy Report\n\n")
	fmt.Fprintf(&b, "**Batch ID:** %s...  \n", shortID)
	fmt.Fprintf(&b, "**Generated:** %s  \n", time.Now().Format("January 2, 2006"))
	fmt.Fprintf(&b, "**Keywords Processed:** %d\n\n", batch.KeywordCount)

	fmt.Fprintf(&b, "## Executive Summary\n\n")
	fmt.Fprintf(&b, "This report contains a content strategy analysis for %d keywords. ", len(batch.CleanedKeywords))
	fmt.Fprintf(&b, "The analysis identified %d distinct content clusters, each with a detailed outline and post idea based on competitive research of top-ranking content.\n\n", len(clusters))

	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Original Keywords | %d |\n", len(batch.RawKeywords))
	fmt.Fprintf(&b, "| Unique Keywords | %d |\n", batch.KeywordCount)
	fmt.Fprintf(&b, "| Content Clusters | %d |\n", len(clusters))
	fmt.Fprintf(&b, "| Outlines Generated | %d |\n", len(clusters))
	fmt.Fprintf(&b, "| Post Ideas | %d |\n\n", len(clusters))

	fmt.Fprintf(&b, "## 1. Keywords Analysis\n\n")
	fmt.Fprintf(&b, "### 1.1 Original Keywords\n\n%s\n\n", keywordList(batch.RawKeywords))
	fmt.Fprintf(&b, "### 1.2 Processed Keywords\n\n%s\n\n", keywordList(batch.CleanedKeywords))

	fmt.Fprintf(&b, "## 2. Content Clusters & Strategy\n\n")
	for i, cluster := range clusters {
		renderCluster(&b, i+1, cluster)
	}

	return b.String()
}

func renderCluster(b *strings.Builder, index int, cluster *store.ClusterRecord) {
	fmt.Fprintf(b, "### 2.%d Cluster: %s\n\n", index, cluster.ClusterName)
	fmt.Fprintf(b, "**Keywords (%d):** %s\n\n", cluster.KeywordCount, strings.Join(cluster.Keywords, ", "))

	if idea := decodeIdea(cluster.IdeaJSON); idea != nil {
		fmt.Fprintf(b, "**Post Idea**\n\n")
		fmt.Fprintf(b, "- **Title:** %s\n", idea.Title)
		fmt.Fprintf(b, "- **Angle:** %s\n", idea.Angle)
		fmt.Fprintf(b, "- **Target Audience:** %s\n", idea.TargetAudience)
		fmt.Fprintf(b, "- **Value Proposition:** %s\n\n", idea.ValueProposition)
	}

	outline := decodeOutline(cluster.OutlineJSON)
	if outline == nil {
		return
	}

	fmt.Fprintf(b, "**Content Outline:** *%s*\n\n", outline.Title)
	if hook := firstNonEmpty(outline.Introduction.Hook, outline.Introduction.Overview); hook != "" {
		fmt.Fprintf(b, "**Introduction:** %s\n\n", hook)
	}

	sections := outline.Sections
	if len(sections) > 7 {
		sections = sections[:7]
	}
	for i, section := range sections {
		fmt.Fprintf(b, "%d. **%s**\n", i+1, section.Heading)
		subs := section.Subsections
		if len(subs) > 3 {
			subs = subs[:3]
		}
		for _, sub := range subs {
			fmt.Fprintf(b, "   - %s\n", sub)
		}
		if section.Description != "" {
			fmt.Fprintf(b, "   *%s*\n", section.Description)
		}
	}
	if concl := firstNonEmpty(outline.Conclusion.Summary, outline.Conclusion.CTA); concl != "" {
		fmt.Fprintf(b, "\n**Conclusion:** %s\n", concl)
	}
	fmt.Fprintf(b, "\n")
}

func decodeIdea(raw string) *generate.Idea {
	if raw == "" {
		return nil
	}
	var idea generate.Idea
	if err := json.Unmarshal([]byte(raw), &idea); err != nil {
		return nil
	}
	return &idea
}

func decodeOutline(raw string) *generate.Outline {
	if raw == "" {
		return nil
	}
	var outline generate.Outline
	if err := json.Unmarshal([]byte(raw), &outline); err != nil {
		return nil
	}
	return &outline
}

func keywordList(keywords []string) string {
	if len(keywords) == 0 {
		return "_none_"
	}
	if len(keywords) <= maxListedKeywords {
		return strings.Join(keywords, ", ")
	}
	return fmt.Sprintf("%s ... and %d more",
		strings.Join(keywords[:maxListedKeywords], ", "),
		len(keywords)-maxListedKeywords)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
