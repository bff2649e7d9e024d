package store

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestBatch(t *testing.T, s Store) *Batch {
	t.Helper()
	ctx := context.Background()

	user, err := s.GetOrCreateUser(ctx, "U12345")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}

	b := &Batch{
		UserID:          user.ID,
		RawKeywords:     []string{"Running Shoes", "running shoes", "Yoga Mats"},
		CleanedKeywords: []string{"running shoes", "yoga mats"},
		SourceType:      "text",
	}
	if err := s.CreateBatch(ctx, b); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	return b
}

func TestGetOrCreateUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreateUser(ctx, "U777")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated user id")
	}

	second, err := s.GetOrCreateUser(ctx, "U777")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("lookup returned different id: %q vs %q", second.ID, first.ID)
	}

	other, err := s.GetOrCreateUser(ctx, "U888")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if other.ID == first.ID {
		t.Error("distinct external ids must map to distinct users")
	}
}

func TestBatchRoundtrip(t *testing.T) {
	s := newTestStore(t)
	b := newTestBatch(t, s)

	if b.ID == "" {
		t.Fatal("expected generated batch id")
	}
	if b.Status != StatusProcessing {
		t.Fatalf("new batch status = %q", b.Status)
	}
	if b.KeywordCount != 2 {
		t.Fatalf("keyword count = %d, want 2", b.KeywordCount)
	}

	got, err := s.GetBatch(context.Background(), b.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if !reflect.DeepEqual(got.CleanedKeywords, b.CleanedKeywords) {
		t.Errorf("cleaned keywords = %v", got.CleanedKeywords)
	}
	if !reflect.DeepEqual(got.RawKeywords, b.RawKeywords) {
		t.Errorf("raw keywords = %v", got.RawKeywords)
	}
	if got.CompletedAt != nil {
		t.Error("new batch should have no completed_at")
	}
}

func TestGetBatchNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetBatch(context.Background(), "nope")
	if !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("err = %v, want ErrBatchNotFound", err)
	}
}

func TestTerminalStatusSetExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	b := newTestBatch(t, s)
	ctx := context.Background()

	if err := s.UpdateBatchStatus(ctx, b.ID, StatusCompleted, ""); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	got, err := s.GetBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %q", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed batch should have completed_at")
	}

	// Second transition must be rejected, in either direction.
	if err := s.UpdateBatchStatus(ctx, b.ID, StatusFailed, "late failure"); !errors.Is(err, ErrBatchNotProcessing) {
		t.Fatalf("second transition err = %v, want ErrBatchNotProcessing", err)
	}
	if err := s.UpdateBatchStatus(ctx, b.ID, StatusCompleted, ""); !errors.Is(err, ErrBatchNotProcessing) {
		t.Fatalf("repeat transition err = %v, want ErrBatchNotProcessing", err)
	}

	got, _ = s.GetBatch(ctx, b.ID)
	if got.Status != StatusCompleted || got.ErrorMessage != "" {
		t.Errorf("terminal state mutated: status=%q error=%q", got.Status, got.ErrorMessage)
	}
}

func TestFailedTransitionRecordsError(t *testing.T) {
	s := newTestStore(t)
	b := newTestBatch(t, s)
	ctx := context.Background()

	if err := s.UpdateBatchStatus(ctx, b.ID, StatusFailed, "embedding provider unreachable"); err != nil {
		t.Fatalf("failing batch: %v", err)
	}

	got, err := s.GetBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.Status != StatusFailed {
		t.Fatalf("status = %q", got.Status)
	}
	if got.ErrorMessage != "embedding provider unreachable" {
		t.Errorf("error message = %q", got.ErrorMessage)
	}
	if got.CompletedAt != nil {
		t.Error("failed batch should not set completed_at")
	}
}

func TestUpdateBatchStatusValidation(t *testing.T) {
	s := newTestStore(t)
	b := newTestBatch(t, s)

	if err := s.UpdateBatchStatus(context.Background(), b.ID, "processing", ""); err == nil {
		t.Fatal("expected rejection of non-terminal target status")
	}
	if err := s.UpdateBatchStatus(context.Background(), "missing", StatusCompleted, ""); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("err = %v, want ErrBatchNotFound", err)
	}
}

func TestListBatchesNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.GetOrCreateUser(ctx, "U1")
	if err != nil {
		t.Fatalf("GetOrCreateUser: %v", err)
	}

	for i := 0; i < 3; i++ {
		b := &Batch{
			UserID:          user.ID,
			Name:            string(rune('a' + i)),
			RawKeywords:     []string{"x"},
			CleanedKeywords: []string{"x"},
		}
		if err := s.CreateBatch(ctx, b); err != nil {
			t.Fatalf("CreateBatch %d: %v", i, err)
		}
	}

	batches, err := s.ListBatches(ctx, user.ID, 2)
	if err != nil {
		t.Fatalf("ListBatches: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("expected limit 2, got %d", len(batches))
	}
}

func TestSaveAndListClusters(t *testing.T) {
	s := newTestStore(t)
	b := newTestBatch(t, s)
	ctx := context.Background()

	// Insert out of order; listing must come back ascending by number.
	for _, num := range []int{2, 1} {
		c := &ClusterRecord{
			BatchID:       b.ID,
			ClusterNumber: num,
			ClusterName:   "Cluster",
			Keywords:      []string{"alpha", "beta"},
			IdeaTitle:     "Idea",
			IdeaJSON:      `{"title":"Idea"}`,
			OutlineJSON:   `{"title":"Outline"}`,
		}
		if _, err := s.SaveCluster(ctx, c); err != nil {
			t.Fatalf("SaveCluster %d: %v", num, err)
		}
	}

	clusters, err := s.ListClusters(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListClusters: %v", err)
	}
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}
	if clusters[0].ClusterNumber != 1 || clusters[1].ClusterNumber != 2 {
		t.Errorf("order = %d, %d", clusters[0].ClusterNumber, clusters[1].ClusterNumber)
	}
	if !reflect.DeepEqual(clusters[0].Keywords, []string{"alpha", "beta"}) {
		t.Errorf("keywords = %v", clusters[0].Keywords)
	}
}

func TestSaveClusterValidation(t *testing.T) {
	s := newTestStore(t)
	b := newTestBatch(t, s)

	_, err := s.SaveCluster(context.Background(), &ClusterRecord{BatchID: b.ID, ClusterNumber: 0})
	if err == nil {
		t.Fatal("expected rejection of 0-based cluster number")
	}
}

func TestRegenerationRequiresCompletedBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := newTestBatch(t, s)
	c := &ClusterRecord{
		BatchID:       b.ID,
		ClusterNumber: 1,
		ClusterName:   "Cluster",
		Keywords:      []string{"alpha"},
		OutlineJSON:   `{"title":"original"}`,
	}
	if _, err := s.SaveCluster(ctx, c); err != nil {
		t.Fatalf("SaveCluster: %v", err)
	}

	// Still processing: rejected, record untouched.
	err := s.UpdateClusterArtifacts(ctx, b.ID, 1, `{"title":"new"}`, `{}`, "New")
	if !errors.Is(err, ErrBatchNotCompleted) {
		t.Fatalf("processing batch err = %v, want ErrBatchNotCompleted", err)
	}
	clusters, _ := s.ListClusters(ctx, b.ID)
	if clusters[0].OutlineJSON != `{"title":"original"}` {
		t.Fatal("rejected regeneration mutated the cluster record")
	}

	// Failed: also rejected.
	if err := s.UpdateBatchStatus(ctx, b.ID, StatusFailed, "x"); err != nil {
		t.Fatalf("failing batch: %v", err)
	}
	err = s.UpdateClusterArtifacts(ctx, b.ID, 1, `{"title":"new"}`, `{}`, "New")
	if !errors.Is(err, ErrBatchNotCompleted) {
		t.Fatalf("failed batch err = %v, want ErrBatchNotCompleted", err)
	}
}

func TestRegenerationOnCompletedBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b := newTestBatch(t, s)
	c := &ClusterRecord{
		BatchID:       b.ID,
		ClusterNumber: 1,
		ClusterName:   "Cluster",
		Keywords:      []string{"alpha"},
		OutlineJSON:   `{"title":"original"}`,
		IdeaTitle:     "Old",
	}
	if _, err := s.SaveCluster(ctx, c); err != nil {
		t.Fatalf("SaveCluster: %v", err)
	}
	if err := s.UpdateBatchStatus(ctx, b.ID, StatusCompleted, ""); err != nil {
		t.Fatalf("completing batch: %v", err)
	}

	if err := s.UpdateClusterArtifacts(ctx, b.ID, 1, `{"title":"fresh"}`, `{"title":"New"}`, "New"); err != nil {
		t.Fatalf("UpdateClusterArtifacts: %v", err)
	}

	clusters, err := s.ListClusters(ctx, b.ID)
	if err != nil {
		t.Fatalf("ListClusters: %v", err)
	}
	if clusters[0].OutlineJSON != `{"title":"fresh"}` || clusters[0].IdeaTitle != "New" {
		t.Errorf("artifacts not replaced: %+v", clusters[0])
	}
	// Batch status untouched by regeneration.
	got, _ := s.GetBatch(ctx, b.ID)
	if got.Status != StatusCompleted {
		t.Errorf("regeneration changed batch status to %q", got.Status)
	}

	// Unknown cluster number.
	if err := s.UpdateClusterArtifacts(ctx, b.ID, 99, "{}", "{}", ""); !errors.Is(err, ErrClusterNotFound) {
		t.Errorf("unknown cluster err = %v, want ErrClusterNotFound", err)
	}
}
