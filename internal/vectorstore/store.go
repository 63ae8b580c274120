// Package vectorstore holds per-movie content embeddings and answers
// nearest-neighbor queries by cosine distance.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// Field names the text a vector was embedded from.
type Field string

const (
	FieldOverview Field = "overview"
	FieldKeywords Field = "keywords"
)

// DefaultCollection is the collection name used when none is configured.
const DefaultCollection = "movies"

var (
	// ErrCollectionNotFound is returned when the collection has not been built.
	ErrCollectionNotFound = errors.New("vector collection not found")
	// ErrDimensionMismatch is returned when vectors in one write differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Record is one stored vector with its metadata.
type Record struct {
	ID        string    `json:"id"` // "{movieID}_{field}"
	MovieID   int       `json:"movie_id"`
	Field     Field     `json:"field"`
	Genres    []string  `json:"genres,omitempty"`
	Embedding []float32 `json:"embedding"`
}

// Match is a nearest-neighbor result. Smaller Distance means more similar.
type Match struct {
	ID       string   `json:"id"`
	MovieID  int      `json:"movie_id"`
	Field    Field    `json:"field"`
	Genres   []string `json:"genres,omitempty"`
	Distance float64  `json:"distance"`
}

// Store is a named vector collection.
//
// Replace drops the collection and recreates it holding exactly the given
// records. Implementations apply it atomically: readers see either the old
// collection or the complete new one, never a partially written one.
type Store interface {
	// Exists reports whether the collection has been created.
	Exists(ctx context.Context) (bool, error)

	// Replace drops and recreates the collection with records.
	Replace(ctx context.Context, records []Record) error

	// Upsert inserts records, overwriting existing ones by ID.
	Upsert(ctx context.Context, records []Record) error

	// Drop deletes the collection. Dropping a missing collection is not an error.
	Drop(ctx context.Context) error

	// GetByMovie returns every record whose metadata movie id matches, ordered by ID.
	GetByMovie(ctx context.Context, movieID int) ([]Record, error)

	// Query returns up to k records nearest to embedding, ascending by cosine distance.
	Query(ctx context.Context, embedding []float32, k int) ([]Match, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}

// RecordID builds the record id for a movie field.
func RecordID(movieID int, field Field) string {
	return strconv.Itoa(movieID) + "_" + string(field)
}

// checkDimensions verifies every record carries a vector of one length and
// returns that length.
func checkDimensions(records []Record) (int, error) {
	dim := 0
	for _, r := range records {
		if len(r.Embedding) == 0 {
			return 0, fmt.Errorf("record %s: empty embedding", r.ID)
		}
		if dim == 0 {
			dim = len(r.Embedding)
			continue
		}
		if len(r.Embedding) != dim {
			return 0, fmt.Errorf("record %s: %w (%d != %d)", r.ID, ErrDimensionMismatch, len(r.Embedding), dim)
		}
	}
	return dim, nil
}

var collectionNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// validCollection reports whether name is safe to use as a SQL table name.
func validCollection(name string) error {
	if !collectionNameRe.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	return nil
}
