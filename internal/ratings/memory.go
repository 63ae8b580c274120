package ratings

import (
	"context"
	"sync"

	"github.com/duyhunghd6/movierec/internal/types"
)

// MemoryStore keeps ratings in a slice.
type MemoryStore struct {
	mu      sync.RWMutex
	ratings []types.Rating
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) ForUser(ctx context.Context, userID int) ([]types.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Rating
	for _, r := range s.ratings {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, userID, movieID int) (types.Rating, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.ratings {
		if r.UserID == userID && r.MovieID == movieID {
			return r, true, nil
		}
	}
	return types.Rating{}, false, nil
}

func (s *MemoryStore) ForMovie(ctx context.Context, movieID int) ([]types.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []types.Rating
	for _, r := range s.ratings {
		if r.MovieID == movieID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *MemoryStore) Append(ctx context.Context, r types.Rating) error {
	if err := Validate(r); err != nil {
		return err
	}
	s.mu.Lock()
	s.ratings = append(s.ratings, r)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ratings), nil
}

func (s *MemoryStore) Close() error { return nil }
