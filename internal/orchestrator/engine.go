package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/duyhunghd6/movierec/internal/catalog"
	"github.com/duyhunghd6/movierec/internal/config"
	"github.com/duyhunghd6/movierec/internal/index"
	"github.com/duyhunghd6/movierec/internal/llm"
	"github.com/duyhunghd6/movierec/internal/logging"
	"github.com/duyhunghd6/movierec/internal/ratings"
	"github.com/duyhunghd6/movierec/internal/recommend"
	"github.com/duyhunghd6/movierec/internal/types"
	"github.com/duyhunghd6/movierec/internal/vectorstore"
	"github.com/rs/zerolog"
)

// Embedder kinds.
const (
	EmbedderAPI  = "api"
	EmbedderHash = "hash"
)

// FeedSize is the length of the home list and of each genre rail.
const FeedSize = 20

// RailGenres are the genres shown as rails on the home feed, in order.
var RailGenres = []string{"Action", "Horror", "Romance"}

// Engine is the top-level orchestrator. It owns the catalog and the store
// handles for the lifetime of the process.
type Engine struct {
	cfg      Config
	catalog  *catalog.Catalog
	store    vectorstore.Store
	ratings  ratings.Store
	embedder index.TextEmbedder
	builder  *index.Builder
	log      zerolog.Logger

	mu          sync.Mutex
	recommender *recommend.Engine
}

// Config holds engine configuration.
type Config struct {
	DataDir        string
	VectorDSN      string
	RatingsDSN     string
	Collection     string
	Embedder       string // "api", "hash", or "" to pick api when an API key is set
	EmbeddingModel string
	EmbeddingDim   int
	BatchSize      int
}

// DefaultConfig returns the default engine configuration, overridden by
// environment variables.
func DefaultConfig() Config {
	dataDir := getEnvOr(config.EnvDataDir, filepath.Join("data", "processed"))
	dim, _ := strconv.Atoi(os.Getenv(config.EnvEmbeddingDim))
	return Config{
		DataDir:        dataDir,
		VectorDSN:      getEnvOr(config.EnvVectorDSN, filepath.Join("data", "index.db")),
		RatingsDSN:     getEnvOr(config.EnvRatingsDSN, filepath.Join("data", "ratings.db")),
		Collection:     vectorstore.DefaultCollection,
		Embedder:       strings.ToLower(os.Getenv(config.EnvEmbedder)),
		EmbeddingModel: getEnvOr(config.EnvEmbeddingModel, llm.DefaultEmbeddingModel),
		EmbeddingDim:   dim,
		BatchSize:      32,
	}
}

// NewEngine loads the catalog, opens both stores, and seeds the ratings store
// from Ratings.csv when it is empty.
func NewEngine(ctx context.Context, cfg Config) (*Engine, error) {
	log := logging.With("engine")

	cat, err := catalog.LoadDir(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	log.Info().Int("movies", cat.Len()).Str("dir", cfg.DataDir).Msg("catalog loaded")

	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	store, err := vectorstore.Open(cfg.VectorDSN, vectorstore.Options{
		Collection: cfg.Collection,
		Dimension:  vectorDimension(cfg, emb),
	})
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	rs, err := ratings.Open(cfg.RatingsDSN)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open ratings store: %w", err)
	}
	if _, err := ratings.Seed(ctx, rs, filepath.Join(cfg.DataDir, ratings.RatingsFile)); err != nil {
		store.Close()
		rs.Close()
		return nil, fmt.Errorf("seed ratings: %w", err)
	}

	return New(cat, store, rs, emb, cfg), nil
}

// New assembles an engine from already-open handles.
func New(cat *catalog.Catalog, store vectorstore.Store, rs ratings.Store, emb index.TextEmbedder, cfg Config) *Engine {
	return &Engine{
		cfg:      cfg,
		catalog:  cat,
		store:    store,
		ratings:  rs,
		embedder: emb,
		builder:  index.NewBuilder(cat, store, emb),
		log:      logging.With("engine"),
	}
}

func newEmbedder(cfg Config) (index.TextEmbedder, error) {
	client := llm.NewClient()
	switch cfg.Embedder {
	case EmbedderHash:
		return llm.NewHashEmbedder(cfg.EmbeddingDim), nil
	case EmbedderAPI:
		if client.APIKey == "" {
			return nil, fmt.Errorf("embedder %q requires %s", EmbedderAPI, config.EnvAPIKey)
		}
		return llm.NewEmbedder(client, cfg.EmbeddingModel, cfg.BatchSize), nil
	case "":
		if client.APIKey != "" {
			return llm.NewEmbedder(client, cfg.EmbeddingModel, cfg.BatchSize), nil
		}
		logging.Warn().Msg("no API key set, using the offline hashing embedder")
		return llm.NewHashEmbedder(cfg.EmbeddingDim), nil
	}
	return nil, fmt.Errorf("unknown embedder %q (want %s or %s)", cfg.Embedder, EmbedderAPI, EmbedderHash)
}

// vectorDimension is the configured dimension, or the embedder's own when it
// has a fixed one. Zero leaves the store to take it from the first rebuild.
func vectorDimension(cfg Config, emb index.TextEmbedder) int {
	if cfg.EmbeddingDim > 0 {
		return cfg.EmbeddingDim
	}
	if d, ok := emb.(interface{ Dimension() int }); ok {
		return d.Dimension()
	}
	return 0
}

// Catalog returns the loaded catalog.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// Close releases the store handles.
func (e *Engine) Close() error {
	return errors.Join(e.store.Close(), e.ratings.Close())
}

// Index builds the vector collection. Without force an existing collection is kept.
func (e *Engine) Index(ctx context.Context, force bool) (*index.BuildResult, error) {
	res, err := e.builder.Build(ctx, force)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.recommender = nil
	e.mu.Unlock()
	return res, nil
}

// recommendEngine returns the recommendation engine, creating it on first use.
// It fails with recommend.ErrIndexNotBuilt until the collection exists.
func (e *Engine) recommendEngine(ctx context.Context) (*recommend.Engine, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.recommender != nil {
		return e.recommender, nil
	}
	r, err := recommend.NewEngine(ctx, e.catalog, e.store, e.ratings)
	if err != nil {
		return nil, err
	}
	e.recommender = r
	return r, nil
}

// Recommend returns personalized recommendations for a user.
func (e *Engine) Recommend(ctx context.Context, userID, topN int) ([]types.ScoredMovie, error) {
	r, err := e.recommendEngine(ctx)
	if err != nil {
		return nil, err
	}
	return r.Recommend(ctx, userID, topN)
}

// Search filters the catalog.
func (e *Engine) Search(f catalog.Filter) []types.Movie {
	return e.catalog.Search(f)
}

// Genres lists the distinct genre names.
func (e *Engine) Genres() []string {
	return e.catalog.Genres()
}

// Years lists the distinct release years, newest first.
func (e *Engine) Years() []int {
	return e.catalog.Years()
}

// RateResult is the outcome of a rating: the stored entry and the refreshed list.
type RateResult struct {
	Rating          types.Rating        `json:"rating"`
	Recommendations []types.ScoredMovie `json:"recommendations"`
}

// Rate appends a rating and recomputes the user's recommendations.
func (e *Engine) Rate(ctx context.Context, userID, movieID int, value float64) (*RateResult, error) {
	if _, err := e.catalog.Get(movieID); err != nil {
		return nil, err
	}
	r := types.Rating{
		UserID:    userID,
		MovieID:   movieID,
		Value:     value,
		Timestamp: time.Now().UTC(),
	}
	if err := e.ratings.Append(ctx, r); err != nil {
		return nil, fmt.Errorf("append rating: %w", err)
	}
	e.log.Info().Int("user", userID).Int("movie", movieID).Float64("rating", value).Msg("rating stored")

	recs, err := e.Recommend(ctx, userID, FeedSize)
	if err != nil {
		return nil, err
	}
	return &RateResult{Rating: r, Recommendations: recs}, nil
}

// Home builds the home feed. A user id of 0 or a user without recommendations
// gets the first FeedSize movies of an unfiltered search instead. Results
// holds the catalog search for f.
func (e *Engine) Home(ctx context.Context, userID int, f catalog.Filter) (*types.HomeFeed, error) {
	feed := &types.HomeFeed{
		UserID:     userID,
		Rails:      make(map[string][]types.Movie, len(RailGenres)),
		RailGenres: RailGenres,
		Results:    e.catalog.Search(f),
	}

	if userID != 0 {
		recs, err := e.Recommend(ctx, userID, FeedSize)
		if err != nil {
			return nil, err
		}
		if len(recs) > 0 {
			feed.Personalized = true
			feed.Recommended = recs
		}
	}
	if !feed.Personalized {
		for _, m := range e.catalog.Search(catalog.Filter{Limit: FeedSize}) {
			feed.Recommended = append(feed.Recommended, types.ScoredMovie{Movie: m})
		}
	}

	for _, g := range RailGenres {
		feed.Rails[g] = e.catalog.Search(catalog.Filter{Genre: g, Limit: FeedSize})
	}
	return feed, nil
}

// Show returns the detail view of a movie. A userID of 0 skips the user's rating.
func (e *Engine) Show(ctx context.Context, movieID, userID int) (*types.MovieDetail, error) {
	m, err := e.catalog.Get(movieID)
	if err != nil {
		return nil, err
	}

	all, err := e.ratings.ForMovie(ctx, movieID)
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	d := &types.MovieDetail{Movie: m, RatingCount: len(all)}
	if avg, ok := ratings.Average(all); ok {
		rounded := math.Round(avg*10) / 10
		d.AverageRating = &rounded
	}

	if userID != 0 {
		r, ok, err := e.ratings.Get(ctx, userID, movieID)
		if err != nil {
			return nil, fmt.Errorf("load user rating: %w", err)
		}
		if ok {
			v := r.Value
			d.UserRating = &v
		}
	}
	return d, nil
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
