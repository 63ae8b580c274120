package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/duyhunghd6/movierec/internal/cache"
)

// MemoryStore is an in-memory vector collection. When created with
// NewSnapshotStore, every write is persisted as a gob snapshot and the
// snapshot is loaded on open.
type MemoryStore struct {
	mu      sync.RWMutex
	exists  bool
	records map[string]Record // record ID → record
	dim     int

	snapshots  *cache.IndexCache
	collection string
}

// NewMemoryStore creates a store whose collection does not exist yet.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]Record),
		collection: DefaultCollection,
	}
}

// NewSnapshotStore creates a memory store backed by a snapshot file in dir.
// An existing snapshot is loaded; a missing one leaves the collection absent.
func NewSnapshotStore(dir, collection string) (*MemoryStore, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	s := NewMemoryStore()
	s.collection = collection
	s.snapshots = cache.NewIndexCache(dir)

	if !s.snapshots.Exists(collection) {
		return s, nil
	}
	snap, err := s.snapshots.Load(collection)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	for _, cr := range snap.Records {
		r := Record{
			ID:        cr.ID,
			MovieID:   cr.MovieID,
			Field:     Field(cr.Field),
			Genres:    cr.Genres,
			Embedding: cr.Embedding,
		}
		s.records[r.ID] = r
		if s.dim == 0 {
			s.dim = len(r.Embedding)
		}
	}
	s.exists = true
	return s, nil
}

// Exists reports whether the collection has been created.
func (s *MemoryStore) Exists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists, nil
}

// Replace swaps in a new collection holding exactly records.
func (s *MemoryStore) Replace(ctx context.Context, records []Record) error {
	dim, err := checkDimensions(records)
	if err != nil {
		return err
	}

	next := make(map[string]Record, len(records))
	for _, r := range records {
		next[r.ID] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(next); err != nil {
		return err
	}
	s.records = next
	s.dim = dim
	s.exists = true
	return nil
}

// Upsert stores records, updating existing ones by ID.
func (s *MemoryStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	dim, err := checkDimensions(records)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists {
		return ErrCollectionNotFound
	}
	if s.dim != 0 && len(s.records) > 0 && dim != s.dim {
		return fmt.Errorf("%w (%d != %d)", ErrDimensionMismatch, dim, s.dim)
	}

	next := make(map[string]Record, len(s.records)+len(records))
	for id, r := range s.records {
		next[id] = r
	}
	for _, r := range records {
		next[r.ID] = r
	}
	if err := s.persist(next); err != nil {
		return err
	}
	s.records = next
	s.dim = dim
	return nil
}

// Drop removes the collection.
func (s *MemoryStore) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshots != nil && s.snapshots.Exists(s.collection) {
		if err := s.snapshots.Delete(s.collection); err != nil {
			return fmt.Errorf("delete snapshot: %w", err)
		}
	}
	s.records = make(map[string]Record)
	s.dim = 0
	s.exists = false
	return nil
}

// GetByMovie returns the records of one movie ordered by ID.
func (s *MemoryStore) GetByMovie(ctx context.Context, movieID int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.exists {
		return nil, ErrCollectionNotFound
	}
	var out []Record
	for _, r := range s.records {
		if r.MovieID == movieID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Query finds the k records nearest to embedding by brute-force cosine distance.
func (s *MemoryStore) Query(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.exists {
		return nil, ErrCollectionNotFound
	}
	if len(s.records) == 0 || len(embedding) == 0 {
		return nil, nil
	}

	matches := make([]Match, 0, len(s.records))
	for _, r := range s.records {
		matches = append(matches, Match{
			ID:       r.ID,
			MovieID:  r.MovieID,
			Field:    r.Field,
			Genres:   r.Genres,
			Distance: CosineDistance(embedding, r.Embedding),
		})
	}
	return rankMatches(matches, k), nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.exists {
		return 0, ErrCollectionNotFound
	}
	return len(s.records), nil
}

// Dimension returns the dimension of stored vectors.
func (s *MemoryStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Close is a no-op; snapshots are written on every change.
func (s *MemoryStore) Close() error {
	return nil
}

// persist writes records as the new snapshot. Callers hold the write lock.
func (s *MemoryStore) persist(records map[string]Record) error {
	if s.snapshots == nil {
		return nil
	}
	snap := &cache.CachedIndex{
		Collection: s.collection,
		SavedAt:    time.Now().UTC(),
		Records:    make([]cache.CachedRecord, 0, len(records)),
	}
	for _, r := range records {
		snap.Records = append(snap.Records, cache.CachedRecord{
			ID:        r.ID,
			MovieID:   r.MovieID,
			Field:     string(r.Field),
			Genres:    r.Genres,
			Embedding: r.Embedding,
		})
	}
	sort.Slice(snap.Records, func(i, j int) bool { return snap.Records[i].ID < snap.Records[j].ID })
	if err := s.snapshots.Save(s.collection, snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
