// Package catalog holds the read-only movie table and the attribute search
// over it.
package catalog

import (
	"errors"
	"sort"
	"strings"

	"github.com/duyhunghd6/movierec/internal/types"
)

// ErrMovieNotFound is returned by lookups for ids absent from the catalog.
var ErrMovieNotFound = errors.New("movie not found")

// Catalog is an immutable, load-ordered movie table indexed by id.
// It is safe for concurrent readers.
type Catalog struct {
	movies []types.Movie
	byID   map[int]int // movie ID → index in movies
}

// New builds a catalog. Later duplicates of an id are ignored.
func New(movies []types.Movie) *Catalog {
	c := &Catalog{
		movies: make([]types.Movie, 0, len(movies)),
		byID:   make(map[int]int, len(movies)),
	}
	for _, m := range movies {
		if _, dup := c.byID[m.ID]; dup {
			continue
		}
		c.byID[m.ID] = len(c.movies)
		c.movies = append(c.movies, m)
	}
	return c
}

// Movie returns the movie with the given id.
func (c *Catalog) Movie(id int) (types.Movie, bool) {
	i, ok := c.byID[id]
	if !ok {
		return types.Movie{}, false
	}
	return c.movies[i], true
}

// Get is Movie with an error for absent ids.
func (c *Catalog) Get(id int) (types.Movie, error) {
	m, ok := c.Movie(id)
	if !ok {
		return types.Movie{}, ErrMovieNotFound
	}
	return m, nil
}

// Movies returns all movies in load order.
func (c *Catalog) Movies() []types.Movie {
	out := make([]types.Movie, len(c.movies))
	copy(out, c.movies)
	return out
}

// Len returns the number of movies.
func (c *Catalog) Len() int {
	return len(c.movies)
}

// Genres returns the distinct genre names, sorted.
func (c *Catalog) Genres() []string {
	seen := make(map[string]bool)
	var genres []string
	for _, m := range c.movies {
		for _, g := range m.Genres {
			if !seen[g] {
				seen[g] = true
				genres = append(genres, g)
			}
		}
	}
	sort.Strings(genres)
	return genres
}

// Years returns the distinct known release years, newest first.
func (c *Catalog) Years() []int {
	seen := make(map[int]bool)
	var years []int
	for _, m := range c.movies {
		if m.Year != nil && !seen[*m.Year] {
			seen[*m.Year] = true
			years = append(years, *m.Year)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// genreText is the serialized genre representation matched by the genre filter.
func genreText(m types.Movie) string {
	return strings.Join(m.Genres, ", ")
}
