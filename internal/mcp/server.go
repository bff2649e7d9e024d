// Package mcp exposes the kwforge pipeline over the Model Context
// Protocol so chat clients can trigger keyword processing and read
// results back. Supports stdio transport; kw_process runs the pipeline
// in the background and returns a batch ID for polling.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kwforge/kwforge/internal/normalize"
	"github.com/kwforge/kwforge/internal/pipeline"
	"github.com/kwforge/kwforge/internal/store"
)

const defaultExternalUser = "mcp-user"

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store   store.Store
	Runner  *pipeline.Runner
	Version string
}

// dbMu serializes MCP tool calls that touch the database. The mcp-go
// library dispatches handlers concurrently via goroutines, and SQLite
// supports only one writer at a time.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all kwforge tools.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"kwforge",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	registerProcessTool(s, cfg.Runner)
	registerStatusTool(s, cfg.Store)
	registerClustersTool(s, cfg.Store)
	registerRegenerateTool(s, cfg.Runner)

	registerRecentBatchesResource(s, cfg.Store)

	return s
}

// --- Tools ---

func registerProcessTool(s *server.MCPServer, runner *pipeline.Runner) {
	tool := mcp.NewTool("kw_process",
		mcp.WithDescription("Process a list of keywords into a content strategy: clean, cluster semantically, research top-ranking pages, and generate an outline and post idea per cluster. Runs in the background; returns a batch ID to poll with kw_status."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("keywords",
			mcp.Required(),
			mcp.Description("Keywords to process, comma or newline separated"),
		),
		mcp.WithString("user_id",
			mcp.Description("Identity of the requesting user (e.g. chat user handle). Defaults to 'mcp-user'."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		text, err := req.RequireString("keywords")
		if err != nil {
			return mcp.NewToolResultError("keywords is required"), nil
		}

		rawKeywords := normalize.ParseText(text)
		userID := defaultExternalUser
		if u, err := req.RequireString("user_id"); err == nil && u != "" {
			userID = u
		}

		batchID, err := runner.Start(ctx, userID, rawKeywords, "mcp")
		if err != nil {
			if errors.Is(err, pipeline.ErrNoKeywords) {
				return mcp.NewToolResultError("no usable keywords after cleaning"), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("starting batch: %v", err)), nil
		}

		payload := map[string]interface{}{
			"batch_id":     batchID,
			"raw_keywords": len(rawKeywords),
			"status":       store.StatusProcessing,
			"poll_with":    "kw_status",
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatusTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("kw_status",
		mcp.WithDescription("Get the status of a keyword batch, or list recent batches for a user when no batch_id is given."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("batch_id",
			mcp.Description("Batch ID returned by kw_process. Empty = list recent batches."),
		),
		mcp.WithString("user_id",
			mcp.Description("User whose batches to list when batch_id is empty. Defaults to 'mcp-user'."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum batches to list (default: 10)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if batchID, err := req.RequireString("batch_id"); err == nil && batchID != "" {
			batch, err := st.GetBatch(ctx, batchID)
			if err != nil {
				if errors.Is(err, store.ErrBatchNotFound) {
					return mcp.NewToolResultError(fmt.Sprintf("batch %s not found", batchID)), nil
				}
				return mcp.NewToolResultError(fmt.Sprintf("loading batch: %v", err)), nil
			}
			data, _ := json.MarshalIndent(batch, "", "  ")
			return mcp.NewToolResultText(string(data)), nil
		}

		userID := defaultExternalUser
		if u, err := req.RequireString("user_id"); err == nil && u != "" {
			userID = u
		}
		limit := 10
		if v, err := req.RequireFloat("limit"); err == nil && int(v) > 0 {
			limit = int(v)
		}

		user, err := st.GetOrCreateUser(ctx, userID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("resolving user: %v", err)), nil
		}
		batches, err := st.ListBatches(ctx, user.ID, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("listing batches: %v", err)), nil
		}
		data, _ := json.MarshalIndent(batches, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerClustersTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("kw_clusters",
		mcp.WithDescription("List the clusters of a batch with their keywords, generated post idea and content outline."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("batch_id",
			mcp.Required(),
			mcp.Description("Batch ID returned by kw_process"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		batchID, err := req.RequireString("batch_id")
		if err != nil {
			return mcp.NewToolResultError("batch_id is required"), nil
		}

		if _, err := st.GetBatch(ctx, batchID); err != nil {
			if errors.Is(err, store.ErrBatchNotFound) {
				return mcp.NewToolResultError(fmt.Sprintf("batch %s not found", batchID)), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("loading batch: %v", err)), nil
		}

		clusters, err := st.ListClusters(ctx, batchID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("listing clusters: %v", err)), nil
		}
		data, _ := json.MarshalIndent(clusters, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRegenerateTool(s *server.MCPServer, runner *pipeline.Runner) {
	tool := mcp.NewTool("kw_regenerate",
		mcp.WithDescription("Regenerate the outline and post idea for clusters of a completed batch. Keyword assignments and batch status are untouched."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("batch_id",
			mcp.Required(),
			mcp.Description("Batch ID of a completed batch"),
		),
		mcp.WithString("clusters",
			mcp.Description("Comma-separated cluster numbers to regenerate (e.g. '1,3'). Empty = all clusters."),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		batchID, err := req.RequireString("batch_id")
		if err != nil {
			return mcp.NewToolResultError("batch_id is required"), nil
		}

		var numbers []int
		if raw, err := req.RequireString("clusters"); err == nil && strings.TrimSpace(raw) != "" {
			numbers, err = parseClusterNumbers(raw)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}

		if err := runner.Regenerate(ctx, batchID, numbers); err != nil {
			switch {
			case errors.Is(err, store.ErrBatchNotFound):
				return mcp.NewToolResultError(fmt.Sprintf("batch %s not found", batchID)), nil
			case errors.Is(err, store.ErrBatchNotCompleted):
				return mcp.NewToolResultError("only completed batches can be regenerated"), nil
			case errors.Is(err, store.ErrClusterNotFound):
				return mcp.NewToolResultError("no matching clusters in batch"), nil
			}
			return mcp.NewToolResultError(fmt.Sprintf("regeneration failed: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Regenerated clusters in batch %s", batchID)), nil
	})
}

func parseClusterNumbers(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	numbers := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid cluster number %q", p)
		}
		numbers = append(numbers, n)
	}
	return numbers, nil
}

// --- Resources ---

func registerRecentBatchesResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"kwforge://batches/recent",
		"Recent Batches",
		mcp.WithResourceDescription("The most recent keyword batches across all users, with status and keyword counts."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		sqlStore, ok := st.(*store.SQLiteStore)
		if !ok {
			return nil, fmt.Errorf("recent batches resource requires SQLiteStore")
		}

		type batchInfo struct {
			ID           string `json:"id"`
			Status       string `json:"status"`
			KeywordCount int    `json:"keyword_count"`
			CreatedAt    string `json:"created_at"`
		}

		rows, err := sqlStore.GetDB().QueryContext(ctx,
			`SELECT id, status, keyword_count, created_at
			 FROM batches
			 ORDER BY created_at DESC
			 LIMIT 20`,
		)
		if err != nil {
			return nil, fmt.Errorf("querying recent batches: %w", err)
		}
		defer rows.Close()

		batches := make([]batchInfo, 0, 20)
		for rows.Next() {
			var item batchInfo
			if err := rows.Scan(&item.ID, &item.Status, &item.KeywordCount, &item.CreatedAt); err != nil {
				return nil, fmt.Errorf("scanning batch row: %w", err)
			}
			batches = append(batches, item)
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterating batch rows: %w", err)
		}

		payload := map[string]interface{}{
			"batches": batches,
			"count":   len(batches),
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
