package vectorstore

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	// Same vector → 1.0
	if s := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}); math.Abs(s-1.0) > 0.001 {
		t.Errorf("expected ~1.0, got %f", s)
	}
	// Orthogonal → 0.0
	if s := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(s) > 0.001 {
		t.Errorf("expected ~0.0, got %f", s)
	}
	// Opposite → -1.0
	if s := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); math.Abs(s+1.0) > 0.001 {
		t.Errorf("expected ~-1.0, got %f", s)
	}
	// Length mismatch and zero vectors → 0
	if s := CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}); s != 0 {
		t.Errorf("expected 0 for mismatched lengths, got %f", s)
	}
	if s := CosineSimilarity([]float32{0, 0}, []float32{1, 0}); s != 0 {
		t.Errorf("expected 0 for zero vector, got %f", s)
	}
}

func TestCosineDistance(t *testing.T) {
	if d := CosineDistance([]float32{1, 0}, []float32{-1, 0}); math.Abs(d-2) > 0.001 {
		t.Errorf("opposite distance = %f, want 2", d)
	}
	if d := CosineDistance([]float32{3, 4}, []float32{6, 8}); math.Abs(d) > 0.001 {
		t.Errorf("parallel distance = %f, want 0", d)
	}
}

func TestRankMatchesTieBreak(t *testing.T) {
	ms := []Match{
		{ID: "2_overview", Distance: 0.5},
		{ID: "1_overview", Distance: 0.5},
		{ID: "3_overview", Distance: 0.1},
	}
	got := rankMatches(ms, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "3_overview" || got[1].ID != "1_overview" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	v := []float32{0.25, -1.5, 3e-7, 0}
	got, err := decodeVector(encodeVector(v))
	if err != nil {
		t.Fatal(err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("component %d = %v, want %v", i, got[i], v[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestPgEmbeddingFormat(t *testing.T) {
	s := formatEmbedding([]float32{0.5, -1, 2})
	if s != "[0.5,-1,2]" {
		t.Errorf("formatEmbedding = %q", s)
	}
	v, err := parseEmbedding(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(v) != 3 || v[0] != 0.5 || v[1] != -1 || v[2] != 2 {
		t.Errorf("parseEmbedding = %v", v)
	}
	if _, err := parseEmbedding("[1,x]"); err == nil {
		t.Error("expected error for malformed component")
	}
}

func TestEfSearchCoversK(t *testing.T) {
	tests := map[int]int{
		1:    40,
		40:   40,
		200:  200,
		1000: 1000,
		5000: 1000,
	}
	for k, want := range tests {
		if got := efSearch(k); got != want {
			t.Errorf("efSearch(%d) = %d, want %d", k, got, want)
		}
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := Open("memory", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("memory dsn gave %T", s)
	}

	dir := t.TempDir()
	s, err = Open(filepath.Join(dir, "index.gob"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("gob dsn gave %T", s)
	}

	s, err = Open(filepath.Join(dir, "index.db"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("file dsn gave %T", s)
	}

	if _, err := Open("", Options{}); err == nil {
		t.Error("expected error for empty dsn")
	}
}

func TestOpenSnapshotNamedByFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movies.gob")
	s, err := Open(path, Options{Collection: "ignored"})
	if err != nil {
		t.Fatal(err)
	}
	rec := Record{ID: RecordID(1, FieldOverview), MovieID: 1, Field: FieldOverview, Embedding: []float32{1, 0}}
	if err := s.Replace(context.Background(), []Record{rec}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("snapshot not written at dsn path: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "ignored.gob")); !os.IsNotExist(err) {
		t.Errorf("snapshot written under the option name: %v", err)
	}

	reopened, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if n, err := reopened.Count(context.Background()); err != nil || n != 1 {
		t.Errorf("reopened Count = %d, %v; want 1", n, err)
	}
}
