package vectorstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func sampleRecords() []Record {
	return []Record{
		{ID: RecordID(1, FieldOverview), MovieID: 1, Field: FieldOverview, Genres: []string{"Action"}, Embedding: []float32{1, 0, 0}},
		{ID: RecordID(1, FieldKeywords), MovieID: 1, Field: FieldKeywords, Genres: []string{"Action"}, Embedding: []float32{0.9, 0.1, 0}},
		{ID: RecordID(2, FieldOverview), MovieID: 2, Field: FieldOverview, Genres: []string{"Drama"}, Embedding: []float32{0, 1, 0}},
		{ID: RecordID(2, FieldKeywords), MovieID: 2, Field: FieldKeywords, Embedding: []float32{0, 0, 1}},
	}
}

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	ok, err := s.Exists(ctx)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatal("expected no collection before Replace")
	}
	if _, err := s.Query(ctx, []float32{1, 0, 0}, 5); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("Query before build: err = %v, want ErrCollectionNotFound", err)
	}
	if _, err := s.GetByMovie(ctx, 1); !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("GetByMovie before build: err = %v, want ErrCollectionNotFound", err)
	}

	if err := s.Replace(ctx, sampleRecords()); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if ok, _ := s.Exists(ctx); !ok {
		t.Fatal("expected collection after Replace")
	}
	if n, _ := s.Count(ctx); n != 4 {
		t.Errorf("Count = %d, want 4", n)
	}

	recs, err := s.GetByMovie(ctx, 1)
	if err != nil {
		t.Fatalf("GetByMovie: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("GetByMovie returned %d records, want 2", len(recs))
	}
	if recs[0].ID != "1_keywords" || recs[1].ID != "1_overview" {
		t.Errorf("GetByMovie order = %s, %s", recs[0].ID, recs[1].ID)
	}
	if len(recs[1].Embedding) != 3 || recs[1].Embedding[0] != 1 {
		t.Errorf("embedding not preserved: %v", recs[1].Embedding)
	}
	if len(recs[0].Genres) != 1 || recs[0].Genres[0] != "Action" {
		t.Errorf("genres not preserved: %v", recs[0].Genres)
	}

	none, err := s.GetByMovie(ctx, 99)
	if err != nil {
		t.Fatalf("GetByMovie(99): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no records for unknown movie, got %d", len(none))
	}

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("Query returned %d matches, want 2", len(matches))
	}
	if matches[0].ID != "1_overview" || matches[1].ID != "1_keywords" {
		t.Errorf("Query order = %s, %s", matches[0].ID, matches[1].ID)
	}
	if matches[0].Distance > 1e-6 {
		t.Errorf("identical vector distance = %f, want 0", matches[0].Distance)
	}
	if matches[0].MovieID != 1 || matches[0].Field != FieldOverview {
		t.Errorf("match metadata = %+v", matches[0])
	}

	all, _ := s.Query(ctx, []float32{1, 0, 0}, 100)
	if len(all) != 4 {
		t.Errorf("Query with k > size returned %d, want 4", len(all))
	}

	// Replace again with a smaller set: nothing from the old collection survives.
	if err := s.Replace(ctx, sampleRecords()[2:]); err != nil {
		t.Fatalf("second Replace: %v", err)
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Errorf("Count after second Replace = %d, want 2", n)
	}
	if recs, _ := s.GetByMovie(ctx, 1); len(recs) != 0 {
		t.Errorf("stale records survived Replace: %v", recs)
	}

	if err := s.Upsert(ctx, []Record{{ID: "3_overview", MovieID: 3, Field: FieldOverview, Embedding: []float32{0, 1, 1}}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if n, _ := s.Count(ctx); n != 3 {
		t.Errorf("Count after Upsert = %d, want 3", n)
	}

	if err := s.Drop(ctx); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if ok, _ := s.Exists(ctx); ok {
		t.Error("expected no collection after Drop")
	}
	if err := s.Drop(ctx); err != nil {
		t.Errorf("Drop of missing collection: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "index.db"), "")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStoreInMemory(t *testing.T) {
	s, err := NewSQLiteStore(":memory:", "movies")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Replace(ctx, sampleRecords()); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewSQLiteStore(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if n, err := s.Count(ctx); err != nil || n != 4 {
		t.Errorf("Count after reopen = %d, %v", n, err)
	}
}

func TestSQLiteStoreInvalidCollection(t *testing.T) {
	if _, err := NewSQLiteStore(":memory:", "movies; DROP TABLE x"); err == nil {
		t.Error("expected error for unsafe collection name")
	}
}

func TestSnapshotStorePersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := NewSnapshotStore(dir, "movies")
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	if ok, _ := s.Exists(ctx); ok {
		t.Fatal("new snapshot store should have no collection")
	}
	if err := s.Replace(ctx, sampleRecords()); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	reopened, err := NewSnapshotStore(dir, "movies")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if ok, _ := reopened.Exists(ctx); !ok {
		t.Fatal("snapshot not loaded")
	}
	if n, _ := reopened.Count(ctx); n != 4 {
		t.Errorf("Count = %d, want 4", n)
	}
	if reopened.Dimension() != 3 {
		t.Errorf("Dimension = %d, want 3", reopened.Dimension())
	}

	if err := reopened.Drop(ctx); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	again, err := NewSnapshotStore(dir, "movies")
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := again.Exists(ctx); ok {
		t.Error("snapshot survived Drop")
	}
}

func TestReplaceRejectsMixedDimensions(t *testing.T) {
	s := NewMemoryStore()
	recs := []Record{
		{ID: "1_overview", MovieID: 1, Field: FieldOverview, Embedding: []float32{1, 0}},
		{ID: "2_overview", MovieID: 2, Field: FieldOverview, Embedding: []float32{1, 0, 0}},
	}
	err := s.Replace(context.Background(), recs)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
	if ok, _ := s.Exists(context.Background()); ok {
		t.Error("failed Replace must not create the collection")
	}
}

func TestUpsertWithoutCollection(t *testing.T) {
	s := NewMemoryStore()
	err := s.Upsert(context.Background(), sampleRecords())
	if !errors.Is(err, ErrCollectionNotFound) {
		t.Errorf("err = %v, want ErrCollectionNotFound", err)
	}
}

func TestQueryEmptyEmbedding(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Replace(ctx, sampleRecords()); err != nil {
		t.Fatal(err)
	}
	matches, err := s.Query(ctx, nil, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches for empty query, got %d", len(matches))
	}
}

func TestRecordID(t *testing.T) {
	if got := RecordID(42, FieldKeywords); got != "42_keywords" {
		t.Errorf("RecordID = %q", got)
	}
}
