// Package ratings stores user ratings. The log is append-only: a new rating
// for an already rated movie is another entry, never an overwrite.
package ratings

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/duyhunghd6/movierec/internal/types"
)

const (
	MinRating = 0.5
	MaxRating = 5.0
)

// ErrInvalidRating is returned by Append for NaN or values outside [MinRating, MaxRating].
var ErrInvalidRating = errors.New("invalid rating")

// Store is an append-only ratings log. Every read reflects all prior appends.
type Store interface {
	// ForUser returns the user's ratings in insertion order.
	ForUser(ctx context.Context, userID int) ([]types.Rating, error)
	// Get returns the user's first rating of a movie, if any.
	Get(ctx context.Context, userID, movieID int) (types.Rating, bool, error)
	// ForMovie returns every rating of a movie in insertion order.
	ForMovie(ctx context.Context, movieID int) ([]types.Rating, error)
	Append(ctx context.Context, r types.Rating) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// Validate checks a rating before it is appended.
func Validate(r types.Rating) error {
	if math.IsNaN(r.Value) || r.Value < MinRating || r.Value > MaxRating {
		return fmt.Errorf("%w: %.1f not in [%.1f, %.1f]", ErrInvalidRating, r.Value, MinRating, MaxRating)
	}
	return nil
}

// Average returns the mean value of rs, or false when rs is empty.
func Average(rs []types.Rating) (float64, bool) {
	if len(rs) == 0 {
		return 0, false
	}
	var sum float64
	for _, r := range rs {
		sum += r.Value
	}
	return sum / float64(len(rs)), true
}

// Open creates a store based on the DSN.
//   - "memory": in-process, lost on exit
//   - anything else: SQLite file at the given path
func Open(dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	switch dsn {
	case "":
		return nil, fmt.Errorf("empty ratings dsn")
	case "memory":
		return NewMemoryStore(), nil
	}
	return NewSQLiteStore(dsn)
}
