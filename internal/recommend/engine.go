package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/duyhunghd6/movierec/internal/logging"
	"github.com/duyhunghd6/movierec/internal/types"
	"github.com/duyhunghd6/movierec/internal/vectorstore"
	"github.com/rs/zerolog"
)

const (
	// LikedThreshold is the minimum rating that counts as liked.
	LikedThreshold = 3.5
	// WeightOffset is subtracted from a liked rating to get its profile weight.
	WeightOffset = 2.5
	// CandidatePool is the number of nearest records fetched per request.
	CandidatePool = 200
	// DefaultTopN is the list length used when topN <= 0.
	DefaultTopN = 20
)

// ErrIndexNotBuilt is returned by NewEngine when the vector collection is missing.
var ErrIndexNotBuilt = errors.New("vector index not built: run `movierec index` first")

// Catalog resolves movie ids to catalog entries.
type Catalog interface {
	Movie(id int) (types.Movie, bool)
}

// RatingsReader returns a user's ratings.
type RatingsReader interface {
	ForUser(ctx context.Context, userID int) ([]types.Rating, error)
}

// Engine produces personalized recommendations. It holds no per-user state:
// every call rereads the user's ratings.
type Engine struct {
	catalog Catalog
	store   vectorstore.Store
	ratings RatingsReader
	log     zerolog.Logger
}

// NewEngine checks that the collection exists and returns an engine over it.
func NewEngine(ctx context.Context, catalog Catalog, store vectorstore.Store, ratings RatingsReader) (*Engine, error) {
	ok, err := store.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check index: %w", err)
	}
	if !ok {
		return nil, ErrIndexNotBuilt
	}
	return &Engine{
		catalog: catalog,
		store:   store,
		ratings: ratings,
		log:     logging.With("recommend"),
	}, nil
}

// Recommend returns up to topN unrated movies ranked by blended score. A user
// with no liked movie, or whose liked movies have no stored vectors, gets an
// empty list and a nil error.
func (e *Engine) Recommend(ctx context.Context, userID, topN int) ([]types.ScoredMovie, error) {
	if topN <= 0 {
		topN = DefaultTopN
	}

	rated, err := e.ratings.ForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}

	var liked []types.Rating
	ratedIDs := make(map[int]struct{}, len(rated))
	for _, r := range rated {
		ratedIDs[r.MovieID] = struct{}{}
		if r.Value >= LikedThreshold {
			liked = append(liked, r)
		}
	}
	if len(liked) == 0 {
		e.log.Debug().Int("user", userID).Msg("no liked movies")
		return []types.ScoredMovie{}, nil
	}

	profile, used, err := e.Profile(ctx, liked)
	if err != nil {
		return nil, err
	}
	if used == 0 {
		e.log.Debug().Int("user", userID).Msg("no liked movie is indexed")
		return []types.ScoredMovie{}, nil
	}

	matches, err := e.store.Query(ctx, profile, CandidatePool)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	userGenres := e.likedGenres(liked)
	best := make(map[int]types.ScoredMovie)
	for _, m := range matches {
		if _, seen := ratedIDs[m.MovieID]; seen {
			continue
		}
		movie, ok := e.catalog.Movie(m.MovieID)
		if !ok {
			continue
		}

		vecSim := 1 - m.Distance
		genreSim := GenreSimilarity(movie.Genres, userGenres)
		score := Blend(vecSim, genreSim)

		if cur, ok := best[m.MovieID]; ok && cur.Score >= score {
			continue
		}
		best[m.MovieID] = types.ScoredMovie{
			Movie:            movie,
			VectorSimilarity: vecSim,
			GenreSimilarity:  genreSim,
			Score:            score,
		}
	}

	out := make([]types.ScoredMovie, 0, len(best))
	for _, sm := range best {
		out = append(out, sm)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > topN {
		out = out[:topN]
	}

	e.log.Debug().
		Int("user", userID).
		Int("liked", len(liked)).
		Int("profile_movies", used).
		Int("candidates", len(matches)).
		Int("results", len(out)).
		Msg("recommendations computed")
	return out, nil
}

// Profile builds the weighted mean of the liked movies' vectors. Each movie's
// vector is the mean of all its stored records; its weight is rating minus
// WeightOffset. Movies without stored vectors are skipped. The second return
// value is the number of movies that contributed.
func (e *Engine) Profile(ctx context.Context, liked []types.Rating) ([]float32, int, error) {
	var (
		acc    []float64
		total  float64
		used   int
		expect int
	)
	for _, r := range liked {
		recs, err := e.store.GetByMovie(ctx, r.MovieID)
		if err != nil {
			return nil, 0, fmt.Errorf("fetch vectors for movie %d: %w", r.MovieID, err)
		}
		vec := meanVector(recs)
		if vec == nil {
			continue
		}
		if acc == nil {
			expect = len(vec)
			acc = make([]float64, expect)
		}
		if len(vec) != expect {
			return nil, 0, fmt.Errorf("movie %d: %w", r.MovieID, vectorstore.ErrDimensionMismatch)
		}

		w := r.Value - WeightOffset
		for i, v := range vec {
			acc[i] += w * v
		}
		total += w
		used++
	}
	if used == 0 {
		return nil, 0, nil
	}

	profile := make([]float32, len(acc))
	for i, v := range acc {
		profile[i] = float32(v / total)
	}
	return profile, used, nil
}

// meanVector averages the embeddings of recs, or returns nil when there are none.
func meanVector(recs []vectorstore.Record) []float64 {
	var sum []float64
	n := 0
	for _, r := range recs {
		if len(r.Embedding) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(r.Embedding))
		}
		if len(r.Embedding) != len(sum) {
			continue
		}
		for i, v := range r.Embedding {
			sum[i] += float64(v)
		}
		n++
	}
	if n == 0 {
		return nil
	}
	for i := range sum {
		sum[i] /= float64(n)
	}
	return sum
}

// likedGenres is the union of the liked movies' catalog genres.
func (e *Engine) likedGenres(liked []types.Rating) []string {
	var out []string
	seen := make(map[int]struct{}, len(liked))
	for _, r := range liked {
		if _, dup := seen[r.MovieID]; dup {
			continue
		}
		seen[r.MovieID] = struct{}{}
		if m, ok := e.catalog.Movie(r.MovieID); ok {
			out = append(out, m.Genres...)
		}
	}
	return out
}
