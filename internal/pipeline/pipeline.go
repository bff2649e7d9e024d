// Package pipeline orchestrates a keyword batch from raw input to a
// completed content strategy: clean, embed, cluster, research each
// cluster, generate artifacts, persist, report and notify.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kwforge/kwforge/internal/cluster"
	"github.com/kwforge/kwforge/internal/embed"
	"github.com/kwforge/kwforge/internal/generate"
	"github.com/kwforge/kwforge/internal/normalize"
	"github.com/kwforge/kwforge/internal/notify"
	"github.com/kwforge/kwforge/internal/report"
	"github.com/kwforge/kwforge/internal/research"
	"github.com/kwforge/kwforge/internal/store"
)

// ErrNoKeywords is returned when cleaning leaves nothing to process.
// No batch row is created in that case.
var ErrNoKeywords = errors.New("no usable keywords after cleaning")

// StageError tags a failure with the pipeline stage that produced it,
// so batch error messages say where the run died.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// OutlineGenerator and IdeaGenerator are the two LLM-backed artifact
// producers. generate.Generator satisfies both.
type OutlineGenerator interface {
	GenerateOutline(ctx context.Context, keywords, topics []string) (*generate.Outline, error)
}

type IdeaGenerator interface {
	GenerateIdea(ctx context.Context, keywords []string, outline *generate.Outline) (*generate.Idea, error)
}

// Config tunes a pipeline run.
type Config struct {
	// SearchResults is how many organic hits to request per cluster.
	SearchResults int
	// ScrapeURLs is how many of those hits get scraped.
	ScrapeURLs int
	// RunTimeout bounds a background run's wall clock time.
	RunTimeout time.Duration
	// Cluster carries k selection bounds and seeding.
	Cluster cluster.Options
}

func (c Config) withDefaults() Config {
	if c.SearchResults <= 0 {
		c.SearchResults = 5
	}
	if c.ScrapeURLs <= 0 {
		c.ScrapeURLs = 3
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 10 * time.Minute
	}
	return c
}

// Runner wires the pipeline's collaborators together. All fields
// except Notifier and Reporter are required.
type Runner struct {
	Store    store.Store
	Embedder embed.Embedder
	Searcher research.Searcher
	Scraper  research.Scraper
	Outlines OutlineGenerator
	Ideas    IdeaGenerator
	Namer    cluster.Namer
	Notifier notify.Notifier
	Reporter report.Reporter
	Config   Config
}

// Start validates and registers a batch, then processes it in the
// background. It returns the batch ID as soon as the row exists; the
// run itself is bounded by Config.RunTimeout, not by ctx.
func (r *Runner) Start(ctx context.Context, externalUserID string, rawKeywords []string, source string) (string, error) {
	batch, err := r.prepare(ctx, externalUserID, rawKeywords, source)
	if err != nil {
		return "", err
	}

	cfg := r.Config.withDefaults()
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), cfg.RunTimeout)
		defer cancel()
		r.process(runCtx, batch)
	}()

	return batch.ID, nil
}

// Run processes a batch synchronously. The CLI uses this path.
func (r *Runner) Run(ctx context.Context, externalUserID string, rawKeywords []string, source string) (string, error) {
	batch, err := r.prepare(ctx, externalUserID, rawKeywords, source)
	if err != nil {
		return "", err
	}
	if err := r.process(ctx, batch); err != nil {
		return batch.ID, err
	}
	return batch.ID, nil
}

func (r *Runner) prepare(ctx context.Context, externalUserID string, rawKeywords []string, source string) (*store.Batch, error) {
	user, err := r.Store.GetOrCreateUser(ctx, externalUserID)
	if err != nil {
		return nil, fmt.Errorf("resolving user: %w", err)
	}

	result := normalize.Clean(rawKeywords)
	if len(result.Keywords) == 0 {
		return nil, ErrNoKeywords
	}
	fmt.Fprintf(os.Stderr, "Cleaned keywords: %d -> %d unique\n", result.OriginalCount, result.CleanedCount)

	batch := &store.Batch{
		UserID:          user.ID,
		RawKeywords:     rawKeywords,
		CleanedKeywords: result.Keywords,
		SourceType:      source,
	}
	if err := r.Store.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("creating batch: %w", err)
	}
	return batch, nil
}

// settleTimeout bounds the terminal-state write and failure notice
// once the run itself has already died.
const settleTimeout = 10 * time.Second

// process runs every stage and settles the batch in exactly one
// terminal state. The returned error mirrors what was recorded.
func (r *Runner) process(ctx context.Context, batch *store.Batch) error {
	if err := r.runStages(ctx, batch); err != nil {
		fmt.Fprintf(os.Stderr, "Pipeline error for batch %s: %v\n", batch.ID, err)

		// The run context may be the very thing that failed (expired
		// wall-clock budget), so the failed transition gets its own
		// deadline. A batch must never stay processing after its run died.
		settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
		defer cancel()
		if serr := r.Store.UpdateBatchStatus(settleCtx, batch.ID, store.StatusFailed, err.Error()); serr != nil {
			fmt.Fprintf(os.Stderr, "Warning: recording batch failure: %v\n", serr)
		}
		notify.Send(settleCtx, r.Notifier, fmt.Sprintf("Batch %s failed: %v", shortID(batch.ID), err))
		return err
	}
	return nil
}

func (r *Runner) runStages(ctx context.Context, batch *store.Batch) error {
	keywords := batch.CleanedKeywords

	r.progress(ctx, fmt.Sprintf("Generating embeddings for %d keywords", len(keywords)))
	embeddings, err := r.Embedder.EmbedBatch(ctx, keywords)
	if err != nil {
		return &StageError{Stage: "embedding", Err: err}
	}

	cfg := r.Config.withDefaults()
	clusters, err := cluster.Partition(keywords, embeddings, cfg.Cluster)
	if err != nil {
		return &StageError{Stage: "clustering", Err: err}
	}
	cluster.ApplyNames(ctx, r.Namer, clusters)
	r.progress(ctx, fmt.Sprintf("Created %d keyword clusters", len(clusters)))

	for i := range clusters {
		c := &clusters[i]
		r.progress(ctx, fmt.Sprintf("Processing cluster %d/%d: %s", i+1, len(clusters), c.Name))

		outlineJSON, ideaJSON, ideaTitle, err := r.enrich(ctx, c.Keywords)
		if err != nil {
			return err
		}

		record := &store.ClusterRecord{
			BatchID:       batch.ID,
			ClusterNumber: c.Number,
			ClusterName:   c.Name,
			Keywords:      c.Keywords,
			KeywordCount:  c.KeywordCount,
			IdeaTitle:     ideaTitle,
			IdeaJSON:      ideaJSON,
			OutlineJSON:   outlineJSON,
		}
		if _, err := r.Store.SaveCluster(ctx, record); err != nil {
			return &StageError{Stage: "persistence", Err: err}
		}
	}

	if err := r.Store.UpdateBatchStatus(ctx, batch.ID, store.StatusCompleted, ""); err != nil {
		return &StageError{Stage: "persistence", Err: err}
	}

	message := fmt.Sprintf("Batch %s completed: %d keywords in %d clusters",
		shortID(batch.ID), len(keywords), len(clusters))

	if r.Reporter != nil {
		records, err := r.Store.ListClusters(ctx, batch.ID)
		if err == nil {
			if path, rerr := r.Reporter.Generate(batch, records); rerr != nil {
				fmt.Fprintf(os.Stderr, "Warning: report generation failed: %v\n", rerr)
			} else {
				message += ". Report: " + path
			}
		}
	}

	notify.Send(ctx, r.Notifier, message)
	return nil
}

// progress reports a stage boundary on stderr and to the notifier.
func (r *Runner) progress(ctx context.Context, message string) {
	fmt.Fprintln(os.Stderr, message)
	notify.Send(ctx, r.Notifier, message)
}

// enrich researches a cluster and generates its outline and idea.
// Search and scrape failures degrade gracefully; generation failures
// are fatal.
func (r *Runner) enrich(ctx context.Context, keywords []string) (outlineJSON, ideaJSON, ideaTitle string, err error) {
	cfg := r.Config.withDefaults()

	mainKeyword := keywords[0]
	hits, err := r.Searcher.Search(ctx, mainKeyword, cfg.SearchResults)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: search for %q failed: %v\n", mainKeyword, err)
		hits = nil
	}

	urls := make([]string, 0, cfg.ScrapeURLs)
	for _, hit := range hits {
		if len(urls) == cfg.ScrapeURLs {
			break
		}
		urls = append(urls, hit.URL)
	}
	pages := research.ScrapeAll(ctx, r.Scraper, urls)
	topics := generate.ExtractCommonTopics(pages)

	outline, err := r.Outlines.GenerateOutline(ctx, keywords, topics)
	if err != nil {
		return "", "", "", &StageError{Stage: "outline", Err: err}
	}
	idea, err := r.Ideas.GenerateIdea(ctx, keywords, outline)
	if err != nil {
		return "", "", "", &StageError{Stage: "idea", Err: err}
	}

	outlineBytes, err := json.Marshal(outline)
	if err != nil {
		return "", "", "", &StageError{Stage: "outline", Err: err}
	}
	ideaBytes, err := json.Marshal(idea)
	if err != nil {
		return "", "", "", &StageError{Stage: "idea", Err: err}
	}
	return string(outlineBytes), string(ideaBytes), idea.Title, nil
}

// Regenerate rebuilds outlines and ideas for clusters of a completed
// batch. Empty clusterNumbers means every cluster. The batch status is
// never touched; any failure aborts with earlier clusters updated.
func (r *Runner) Regenerate(ctx context.Context, batchID string, clusterNumbers []int) error {
	batch, err := r.Store.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status != store.StatusCompleted {
		return fmt.Errorf("batch %s has status %q: %w", shortID(batchID), batch.Status, store.ErrBatchNotCompleted)
	}

	records, err := r.Store.ListClusters(ctx, batchID)
	if err != nil {
		return err
	}

	// Reject the whole request before enriching anything if any asked-for
	// cluster does not exist in the batch.
	exists := make(map[int]bool, len(records))
	for _, record := range records {
		exists[record.ClusterNumber] = true
	}
	wanted := make(map[int]bool, len(clusterNumbers))
	for _, n := range clusterNumbers {
		if !exists[n] {
			return fmt.Errorf("cluster %d not in batch %s: %w", n, shortID(batchID), store.ErrClusterNotFound)
		}
		wanted[n] = true
	}

	matched := 0
	for _, record := range records {
		if len(wanted) > 0 && !wanted[record.ClusterNumber] {
			continue
		}
		matched++

		fmt.Fprintf(os.Stderr, "Regenerating cluster %d: %s\n", record.ClusterNumber, record.ClusterName)
		outlineJSON, ideaJSON, ideaTitle, err := r.enrich(ctx, record.Keywords)
		if err != nil {
			return fmt.Errorf("regenerating cluster %d: %w", record.ClusterNumber, err)
		}
		if err := r.Store.UpdateClusterArtifacts(ctx, batchID, record.ClusterNumber, outlineJSON, ideaJSON, ideaTitle); err != nil {
			return err
		}
	}
	if matched == 0 {
		return fmt.Errorf("no matching clusters in batch %s: %w", shortID(batchID), store.ErrClusterNotFound)
	}

	notify.Send(ctx, r.Notifier, fmt.Sprintf("Regenerated %d cluster(s) in batch %s", matched, shortID(batchID)))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
