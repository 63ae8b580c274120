package catalog

import (
	"sort"
	"strings"

	"github.com/duyhunghd6/movierec/internal/types"
)

// Filter selects movies by attributes. Zero-valued fields do not filter.
type Filter struct {
	Query string // case-insensitive title substring
	Genre string // case-insensitive substring of the joined genre names
	Year  *int   // exact release year; movies without a year never match
	Limit int    // 0 means no limit
}

// Search returns the movies matching every set filter, newest release year
// first. Query and Genre match as given, whitespace included. Movies without a year sort last; equal years keep catalog order.
func (c *Catalog) Search(f Filter) []types.Movie {
	query := strings.ToLower(f.Query)
	genre := strings.ToLower(f.Genre)

	var out []types.Movie
	for _, m := range c.movies {
		if query != "" && !strings.Contains(strings.ToLower(m.Title), query) {
			continue
		}
		if genre != "" && !strings.Contains(strings.ToLower(genreText(m)), genre) {
			continue
		}
		if f.Year != nil && (m.Year == nil || *m.Year != *f.Year) {
			continue
		}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return yearKey(out[i]) > yearKey(out[j])
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func yearKey(m types.Movie) int {
	if m.Year == nil {
		return -1 << 31
	}
	return *m.Year
}
