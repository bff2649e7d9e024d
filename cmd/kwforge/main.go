package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kwforge/kwforge/internal/cluster"
	"github.com/kwforge/kwforge/internal/config"
	"github.com/kwforge/kwforge/internal/embed"
	"github.com/kwforge/kwforge/internal/generate"
	"github.com/kwforge/kwforge/internal/llm"
	kwmcp "github.com/kwforge/kwforge/internal/mcp"
	"github.com/kwforge/kwforge/internal/normalize"
	"github.com/kwforge/kwforge/internal/notify"
	"github.com/kwforge/kwforge/internal/pipeline"
	"github.com/kwforge/kwforge/internal/report"
	"github.com/kwforge/kwforge/internal/research"
	"github.com/kwforge/kwforge/internal/store"
)

const version = "0.1.0-dev"

const defaultEmbedFlag = "ollama/nomic-embed-text"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runProcess(os.Args[2:])
	case "batches":
		err = runBatches(os.Args[2:])
	case "show":
		err = runShow(os.Args[2:])
	case "regenerate":
		err = runRegenerate(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("kwforge %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliFlags are the shared flags every command accepts, plus run extras.
type cliFlags struct {
	configPath string
	dbPath     string
	llmFlag    string
	embedFlag  string
	userID     string
	file       string
	limit      int
	args       []string
}

func parseFlags(args []string) (cliFlags, error) {
	out := cliFlags{userID: "cli-user", limit: 10}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("flag %s requires a value", arg)
			}
			i++
			return args[i], nil
		}

		var err error
		switch arg {
		case "--config":
			out.configPath, err = next()
		case "--db":
			out.dbPath, err = next()
		case "--llm":
			out.llmFlag, err = next()
		case "--embed":
			out.embedFlag, err = next()
		case "--user", "-u":
			out.userID, err = next()
		case "--file", "-f":
			out.file, err = next()
		case "--limit", "-n":
			var v string
			if v, err = next(); err == nil {
				out.limit, err = strconv.Atoi(v)
			}
		default:
			if strings.HasPrefix(arg, "-") {
				return out, fmt.Errorf("unknown flag: %s", arg)
			}
			out.args = append(out.args, arg)
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// app bundles everything a command needs after wiring.
type app struct {
	store  store.Store
	runner *pipeline.Runner
	cfg    config.ResolvedConfig
}

func buildApp(flags cliFlags) (*app, error) {
	resolved, err := config.ResolveConfig(config.ResolveOptions{
		ConfigPath: flags.configPath,
		CLILLM:     flags.llmFlag,
		CLIEmbed:   flags.embedFlag,
		CLIDBPath:  flags.dbPath,
	})
	if err != nil {
		return nil, err
	}

	st, err := store.NewStore(store.StoreConfig{DBPath: resolved.DBPath.Value})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	embedFlag := resolved.EmbedProvider.Value
	if embedFlag == "" {
		embedFlag = defaultEmbedFlag
	}
	embedCfg, err := embed.ParseEmbedFlag(embedFlag)
	if err != nil {
		st.Close()
		return nil, err
	}
	if resolved.EmbedEndpoint.Value != "" {
		embedCfg.Endpoint = resolved.EmbedEndpoint.Value
	}
	if resolved.EmbedAPIKey.Value != "" {
		embedCfg.APIKey = resolved.EmbedAPIKey.Value
	}
	embedClient, err := embed.NewClient(embedCfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("configuring embeddings: %w", err)
	}

	llmCfg, err := llm.ParseLLMFlag(resolved.LLMProvider.Value)
	if err != nil {
		st.Close()
		return nil, err
	}
	llmCfg.APIKey = resolved.APIKeyForProvider(llmCfg.Provider).Value
	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("configuring LLM: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if resolved.SlackWebhook.Value != "" {
		notifier = notify.NewSlackWebhook(resolved.SlackWebhook.Value)
	}

	gen := &generate.Generator{Provider: provider}
	runner := &pipeline.Runner{
		Store:    st,
		Embedder: embed.NewCachingEmbedder(embedClient),
		Searcher: research.NewCachingSearcher(research.NewSerpClient(research.SearchConfig{APIKey: resolved.SearchAPIKey.Value})),
		Scraper:  research.NewHTTPScraper(),
		Outlines: gen,
		Ideas:    gen,
		Namer:    &cluster.LLMNamer{Provider: provider},
		Notifier: notifier,
		Reporter: report.NewMarkdownReporter(resolved.ReportDir.Value),
		Config:   pipelineConfig(resolved),
	}

	return &app{store: st, runner: runner, cfg: resolved}, nil
}

func pipelineConfig(resolved config.ResolvedConfig) pipeline.Config {
	cfg := pipeline.Config{}
	if n, err := strconv.Atoi(resolved.MinClusters.Value); err == nil && n > 0 {
		cfg.Cluster.MinClusters = n
	}
	if n, err := strconv.Atoi(resolved.MaxClusters.Value); err == nil && n > 0 {
		cfg.Cluster.MaxClusters = n
	}
	if d, err := time.ParseDuration(resolved.RunTimeout.Value); err == nil && d > 0 {
		cfg.RunTimeout = d
	}
	return cfg
}

func runProcess(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	var rawKeywords []string
	source := "text"
	switch {
	case flags.file != "":
		rawKeywords, err = normalize.ParseCSV(flags.file)
		if err != nil {
			return err
		}
		source = "csv"
	case len(flags.args) > 0:
		rawKeywords = normalize.ParseText(strings.Join(flags.args, " "))
	default:
		return fmt.Errorf("usage: kwforge run \"keyword1, keyword2, ...\" or kwforge run --file keywords.csv")
	}

	a, err := buildApp(flags)
	if err != nil {
		return err
	}
	defer a.store.Close()

	ctx := context.Background()
	batchID, err := a.runner.Run(ctx, flags.userID, rawKeywords, source)
	if err != nil {
		if batchID != "" {
			return fmt.Errorf("batch %s failed: %w", batchID, err)
		}
		return err
	}

	fmt.Printf("Batch %s completed\n\n", batchID)
	return printBatch(ctx, a.store, batchID)
}

func runBatches(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	a, err := buildApp(flags)
	if err != nil {
		return err
	}
	defer a.store.Close()

	ctx := context.Background()
	user, err := a.store.GetOrCreateUser(ctx, flags.userID)
	if err != nil {
		return err
	}
	batches, err := a.store.ListBatches(ctx, user.ID, flags.limit)
	if err != nil {
		return err
	}
	if len(batches) == 0 {
		fmt.Println("No batches yet. Start one with: kwforge run \"keyword1, keyword2\"")
		return nil
	}

	for _, b := range batches {
		line := fmt.Sprintf("%s  %-10s  %3d keywords  %s",
			b.ID, b.Status, b.KeywordCount, b.CreatedAt.Format("2006-01-02 15:04"))
		if b.ErrorMessage != "" {
			line += "  (" + b.ErrorMessage + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runShow(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(flags.args) != 1 {
		return fmt.Errorf("usage: kwforge show <batch-id>")
	}

	a, err := buildApp(flags)
	if err != nil {
		return err
	}
	defer a.store.Close()

	return printBatch(context.Background(), a.store, flags.args[0])
}

func printBatch(ctx context.Context, st store.Store, batchID string) error {
	batch, err := st.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}

	fmt.Printf("Batch %s\n", batch.ID)
	fmt.Printf("  Status:   %s\n", batch.Status)
	fmt.Printf("  Keywords: %d (%d raw)\n", batch.KeywordCount, len(batch.RawKeywords))
	fmt.Printf("  Created:  %s\n", batch.CreatedAt.Format(time.RFC3339))
	if batch.ErrorMessage != "" {
		fmt.Printf("  Error:    %s\n", batch.ErrorMessage)
	}

	clusters, err := st.ListClusters(ctx, batchID)
	if err != nil {
		return err
	}
	for _, c := range clusters {
		fmt.Printf("\n  Cluster %d: %s (%d keywords)\n", c.ClusterNumber, c.ClusterName, c.KeywordCount)
		fmt.Printf("    Keywords: %s\n", strings.Join(c.Keywords, ", "))
		if c.IdeaTitle != "" {
			fmt.Printf("    Idea:     %s\n", c.IdeaTitle)
		}
	}
	return nil
}

func runRegenerate(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(flags.args) < 1 {
		return fmt.Errorf("usage: kwforge regenerate <batch-id> [cluster-number ...]")
	}

	batchID := flags.args[0]
	var numbers []int
	for _, raw := range flags.args[1:] {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid cluster number %q", raw)
		}
		numbers = append(numbers, n)
	}

	a, err := buildApp(flags)
	if err != nil {
		return err
	}
	defer a.store.Close()

	ctx := context.Background()
	if err := a.runner.Regenerate(ctx, batchID, numbers); err != nil {
		return err
	}

	fmt.Println("Regeneration complete")
	return printBatch(ctx, a.store, batchID)
}

func runMCP(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	a, err := buildApp(flags)
	if err != nil {
		return err
	}
	defer a.store.Close()

	srv := kwmcp.NewServer(kwmcp.ServerConfig{
		Store:   a.store,
		Runner:  a.runner,
		Version: version,
	})

	fmt.Fprintln(os.Stderr, "kwforge MCP server listening on stdio")
	return server.ServeStdio(srv)
}

func printUsage() {
	fmt.Printf(`kwforge %s - keyword-to-content-strategy pipeline

Usage:
  kwforge <command> [arguments]

Commands:
  run <keywords>        Process keywords into clusters, outlines and ideas
  batches               List recent batches
  show <batch-id>       Show a batch with its clusters
  regenerate <batch-id> [n ...]
                        Regenerate artifacts for clusters of a completed batch
  mcp                   Serve the pipeline over MCP on stdio
  version               Print version

Run Flags:
  -f, --file <path>     Read keywords from a CSV file (keyword column or first column)
  -u, --user <id>       User identity for the batch (default: cli-user)

Flags:
      --config <path>   Config file (default: ~/.kwforge/config.yaml)
      --db <path>       Database path
      --llm <p/m>       LLM provider/model (e.g. groq/llama-3.1-8b-instant)
      --embed <p/m>     Embedding provider/model (e.g. ollama/nomic-embed-text)
  -n, --limit <n>       Max batches to list (default: 10)
  -h, --help            Show this help message
  -v, --version         Print version
`, version)
}
