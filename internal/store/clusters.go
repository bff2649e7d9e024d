package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SaveCluster persists one cluster with its artifacts. Clusters are written
// once during the clustering stage; later changes go through
// UpdateClusterArtifacts only.
func (s *SQLiteStore) SaveCluster(ctx context.Context, c *ClusterRecord) (int64, error) {
	if c.BatchID == "" {
		return 0, fmt.Errorf("cluster batch id cannot be empty")
	}
	if c.ClusterNumber < 1 {
		return 0, fmt.Errorf("cluster number must be 1-based, got %d", c.ClusterNumber)
	}

	keywordsJSON, err := json.Marshal(c.Keywords)
	if err != nil {
		return 0, fmt.Errorf("marshaling cluster keywords: %w", err)
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO clusters (batch_id, cluster_number, cluster_name, keywords, keyword_count, idea_title, idea_json, outline_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.BatchID, c.ClusterNumber, c.ClusterName, string(keywordsJSON), len(c.Keywords),
		c.IdeaTitle, c.IdeaJSON, c.OutlineJSON, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting cluster %d for batch %q: %w", c.ClusterNumber, c.BatchID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting cluster insert id: %w", err)
	}

	c.ID = id
	c.KeywordCount = len(c.Keywords)
	c.CreatedAt = now
	c.UpdatedAt = now
	return id, nil
}

// ListClusters returns all clusters for a batch in ascending cluster number
// order, the same order the pipeline enriched and reported them in.
func (s *SQLiteStore) ListClusters(ctx context.Context, batchID string) ([]*ClusterRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_id, cluster_number, cluster_name, keywords, keyword_count, idea_title, idea_json, outline_json, created_at, updated_at
		 FROM clusters WHERE batch_id = ? ORDER BY cluster_number ASC`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing clusters for batch %q: %w", batchID, err)
	}
	defer rows.Close()

	var clusters []*ClusterRecord
	for rows.Next() {
		c := &ClusterRecord{}
		var keywordsJSON string
		var ideaTitle, ideaJSON, outlineJSON sql.NullString
		if err := rows.Scan(&c.ID, &c.BatchID, &c.ClusterNumber, &c.ClusterName, &keywordsJSON,
			&c.KeywordCount, &ideaTitle, &ideaJSON, &outlineJSON, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning cluster: %w", err)
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &c.Keywords); err != nil {
			return nil, fmt.Errorf("unmarshaling cluster keywords: %w", err)
		}
		c.IdeaTitle = ideaTitle.String
		c.IdeaJSON = ideaJSON.String
		c.OutlineJSON = outlineJSON.String
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// UpdateClusterArtifacts replaces a cluster's outline and idea after a
// regeneration request and bumps updated_at. Only clusters of completed
// batches may be regenerated; the batch status itself never changes.
func (s *SQLiteStore) UpdateClusterArtifacts(ctx context.Context, batchID string, clusterNumber int, outlineJSON, ideaJSON, ideaTitle string) error {
	batch, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status != StatusCompleted {
		return fmt.Errorf("%w: batch %q is %s", ErrBatchNotCompleted, batchID, batch.Status)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE clusters SET outline_json = ?, idea_json = ?, idea_title = ?, updated_at = ?
		 WHERE batch_id = ? AND cluster_number = ?`,
		outlineJSON, ideaJSON, ideaTitle, time.Now().UTC(), batchID, clusterNumber,
	)
	if err != nil {
		return fmt.Errorf("updating cluster %d artifacts: %w", clusterNumber, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking artifact update: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: batch %q cluster %d", ErrClusterNotFound, batchID, clusterNumber)
	}
	return nil
}
