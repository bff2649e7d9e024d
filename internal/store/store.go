// Package store provides the SQLite storage layer for kwforge.
//
// All pipeline state lives in a single SQLite database file, including:
// - Users keyed by their external chat identity
// - Keyword batches with their processing status
// - Clusters with generated outline and idea artifacts
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.kwforge/kwforge.db"

// Batch statuses. A batch starts processing and reaches exactly one of the
// terminal states exactly once.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	// ErrBatchNotFound is returned when a batch ID is unknown.
	ErrBatchNotFound = errors.New("batch not found")
	// ErrBatchNotProcessing is returned when a terminal transition is
	// attempted against a batch that already reached a terminal state.
	ErrBatchNotProcessing = errors.New("batch is not in processing state")
	// ErrBatchNotCompleted is returned when artifact regeneration targets a
	// batch that never completed.
	ErrBatchNotCompleted = errors.New("batch is not completed")
	// ErrClusterNotFound is returned when a cluster number is unknown
	// within a batch.
	ErrClusterNotFound = errors.New("cluster not found")
)

// User is a chat identity mapped to an internal UUID.
type User struct {
	ID           string
	ExternalID   string
	DisplayName  string
	Email        string
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// Batch is one end-to-end processing run for a submitted keyword list.
type Batch struct {
	ID              string
	UserID          string
	Name            string
	Status          string
	RawKeywords     []string
	CleanedKeywords []string
	KeywordCount    int
	SourceType      string
	ErrorMessage    string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// ClusterRecord is a persisted cluster with its generated artifacts.
// OutlineJSON and IdeaJSON carry the structured collaborator payloads.
type ClusterRecord struct {
	ID            int64
	BatchID       string
	ClusterNumber int
	ClusterName   string
	Keywords      []string
	KeywordCount  int
	IdeaTitle     string
	IdeaJSON      string
	OutlineJSON   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the persistence interface the pipeline drives.
type Store interface {
	// Users
	GetOrCreateUser(ctx context.Context, externalID string) (*User, error)
	SetUserEmail(ctx context.Context, userID, email string) error

	// Batches
	CreateBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, batchID string) (*Batch, error)
	ListBatches(ctx context.Context, userID string, limit int) ([]*Batch, error)
	UpdateBatchStatus(ctx context.Context, batchID, status, errorMessage string) error

	// Clusters
	SaveCluster(ctx context.Context, c *ClusterRecord) (int64, error)
	ListClusters(ctx context.Context, batchID string) ([]*ClusterRecord, error)
	UpdateClusterArtifacts(ctx context.Context, batchID string, clusterNumber int, outlineJSON, ideaJSON, ideaTitle string) error

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own database,
	// so in-memory stores must stay on a single connection.
	if cfg.DBPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Enable WAL mode and foreign keys
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:     db,
		dbPath: cfg.DBPath,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetDB exposes the underlying handle for integration surfaces (MCP server).
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
