package report

import (
	"os"
	"strings"
	"testing"

	"github.com/kwforge/kwforge/internal/store"
)

func sampleBatch() *store.Batch {
	return &store.Batch{
		ID:              "9f3c1c2a-0000-0000-0000-000000000000",
		RawKeywords:     []string{"Running Shoes!", "running shoes", "yoga mats"},
		CleanedKeywords: []string{"running shoes", "yoga mats"},
		KeywordCount:    2,
		Status:          store.StatusCompleted,
	}
}

func sampleClusters() []*store.ClusterRecord {
	return []*store.ClusterRecord{
		{
			ClusterNumber: 1,
			ClusterName:   "Running Shoes",
			Keywords:      []string{"running shoes"},
			KeywordCount:  1,
			IdeaJSON:      `{"title":"Shoe Myths Debunked","angle":"Contrarian","target_audience":"Runners","value_proposition":"Faster times"}`,
			OutlineJSON: `{
				"title": "The Running Shoe Guide",
				"introduction": {"hook": "Sore feet?"},
				"sections": [
					{"heading": "How We Tested", "description": "Methodology", "subsections": ["Lab", "Road"]},
					{"heading": "Top Models"}
				],
				"conclusion": {"summary": "Fit matters most."}
			}`,
		},
		{
			ClusterNumber: 2,
			ClusterName:   "Yoga Mats",
			Keywords:      []string{"yoga mats"},
			KeywordCount:  1,
		},
	}
}

func TestRender(t *testing.T) {
	body := Render(sampleBatch(), sampleClusters())

	for _, want := range []string{
		"# Content Strategy Report",
		"**Batch ID:** 9f3c1c2a...",
		"**Keywords Processed:** 2",
		"| Content Clusters | 2 |",
		"### 1.2 Processed Keywords",
		"running shoes, yoga mats",
		"### 2.1 Cluster: Running Shoes",
		"- **Title:** Shoe Myths Debunked",
		"**Content Outline:** *The Running Shoe Guide*",
		"**Introduction:** Sore feet?",
		"1. **How We Tested**",
		"   - Lab",
		"   *Methodology*",
		"**Conclusion:** Fit matters most.",
		"### 2.2 Cluster: Yoga Mats",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestRenderTruncatesKeywordList(t *testing.T) {
	batch := sampleBatch()
	batch.CleanedKeywords = nil
	for i := 0; i < 60; i++ {
		batch.CleanedKeywords = append(batch.CleanedKeywords, "kw")
	}

	body := Render(batch, nil)
	if !strings.Contains(body, "... and 10 more") {
		t.Error("long keyword list not truncated")
	}
}

func TestGenerateWritesFile(t *testing.T) {
	dir := t.TempDir()
	reporter := NewMarkdownReporter(dir)

	path, err := reporter.Generate(sampleBatch(), sampleClusters())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(path, dir) || !strings.HasSuffix(path, ".md") {
		t.Errorf("path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if !strings.Contains(string(data), "# Content Strategy Report") {
		t.Error("written report missing title")
	}
}
