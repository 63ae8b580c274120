package types

import "time"

// Movie is a catalog item. Movies are loaded once and never mutated.
type Movie struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	ReleaseDate string   `json:"release_date,omitempty"`
	Year        *int     `json:"release_year,omitempty"` // nil when the release date did not parse
	Genres      []string `json:"genres,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Overview    string   `json:"overview,omitempty"`
}

// HasYear reports whether the release year is known.
func (m Movie) HasYear() bool {
	return m.Year != nil
}

// Rating is one entry of the append-only ratings log.
type Rating struct {
	UserID    int       `json:"user_id"`
	MovieID   int       `json:"movie_id"`
	Value     float64   `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// ScoredMovie is a recommendation candidate resolved back to its catalog entry.
type ScoredMovie struct {
	Movie
	VectorSimilarity float64 `json:"vector_similarity"`
	GenreSimilarity  float64 `json:"genre_similarity"`
	Score            float64 `json:"score"`
}

// MovieDetail is the detail view of one movie.
type MovieDetail struct {
	Movie
	AverageRating *float64 `json:"average_rating,omitempty"`
	RatingCount   int      `json:"rating_count"`
	UserRating    *float64 `json:"user_rating,omitempty"`
}

// HomeFeed is the personalized-or-fallback listing, the genre rails, and the
// result of the search filter the feed was requested with.
type HomeFeed struct {
	UserID       int                `json:"user_id,omitempty"`
	Personalized bool               `json:"personalized"`
	Recommended  []ScoredMovie      `json:"recommended"`
	Rails        map[string][]Movie `json:"rails"`
	RailGenres   []string           `json:"rail_genres"`
	Results      []Movie            `json:"results"`
}
