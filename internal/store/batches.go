package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateBatch inserts a new batch in the processing state. A missing ID is
// generated; a missing name is derived from the creation timestamp.
func (s *SQLiteStore) CreateBatch(ctx context.Context, b *Batch) error {
	if b.UserID == "" {
		return fmt.Errorf("batch user id cannot be empty")
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = StatusProcessing
	}

	now := time.Now().UTC()
	if b.Name == "" {
		b.Name = "Batch_" + now.Format("20060102_150405")
	}
	b.KeywordCount = len(b.CleanedKeywords)

	rawJSON, err := json.Marshal(b.RawKeywords)
	if err != nil {
		return fmt.Errorf("marshaling raw keywords: %w", err)
	}
	cleanedJSON, err := json.Marshal(b.CleanedKeywords)
	if err != nil {
		return fmt.Errorf("marshaling cleaned keywords: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, user_id, batch_name, status, raw_keywords, cleaned_keywords, keyword_count, source_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.UserID, b.Name, b.Status, string(rawJSON), string(cleanedJSON), b.KeywordCount, b.SourceType, now,
	); err != nil {
		return fmt.Errorf("inserting batch: %w", err)
	}

	b.CreatedAt = now
	return nil
}

// GetBatch retrieves a batch by ID.
func (s *SQLiteStore) GetBatch(ctx context.Context, batchID string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, batch_name, status, raw_keywords, cleaned_keywords, keyword_count, source_type, error_message, created_at, completed_at
		 FROM batches WHERE id = ?`, batchID,
	)
	b, err := scanBatch(row)
	if err == sql.ErrNoRows {
		return nil, ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting batch %q: %w", batchID, err)
	}
	return b, nil
}

// ListBatches returns a user's batches, newest first.
func (s *SQLiteStore) ListBatches(ctx context.Context, userID string, limit int) ([]*Batch, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, batch_name, status, raw_keywords, cleaned_keywords, keyword_count, source_type, error_message, created_at, completed_at
		 FROM batches WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing batches for user %q: %w", userID, err)
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// UpdateBatchStatus transitions a batch to a terminal state. The guard
// `status = 'processing'` makes the terminal transition happen exactly once:
// a second call, or a call against an unknown batch, fails.
func (s *SQLiteStore) UpdateBatchStatus(ctx context.Context, batchID, status, errorMessage string) error {
	if status != StatusCompleted && status != StatusFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}

	var completedAt interface{}
	if status == StatusCompleted {
		completedAt = time.Now().UTC()
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE batches SET status = ?, error_message = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		status, nullable(errorMessage), completedAt, batchID, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("updating batch %q status: %w", batchID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking status update: %w", err)
	}
	if rows == 0 {
		if _, err := s.GetBatch(ctx, batchID); err != nil {
			return err
		}
		return ErrBatchNotProcessing
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBatch(row scanner) (*Batch, error) {
	b := &Batch{}
	var rawJSON, cleanedJSON string
	var sourceType, errorMessage sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&b.ID, &b.UserID, &b.Name, &b.Status, &rawJSON, &cleanedJSON,
		&b.KeywordCount, &sourceType, &errorMessage, &b.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(rawJSON), &b.RawKeywords); err != nil {
		return nil, fmt.Errorf("unmarshaling raw keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(cleanedJSON), &b.CleanedKeywords); err != nil {
		return nil, fmt.Errorf("unmarshaling cleaned keywords: %w", err)
	}

	b.SourceType = sourceType.String
	b.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	return b, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
