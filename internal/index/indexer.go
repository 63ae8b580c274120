// Package index derives per-movie texts, embeds them, and populates the vector
// collection.
package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/duyhunghd6/movierec/internal/logging"
	"github.com/duyhunghd6/movierec/internal/types"
	"github.com/duyhunghd6/movierec/internal/vectorstore"
	"github.com/rs/zerolog"
)

// TextEmbedder maps texts to equal-length vectors, index-aligned with the input.
// Model names the embedding model; vectors from different models must not share
// a collection.
type TextEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type dimensioner interface {
	Dimension() int
}

// MovieSource lists the movies to index.
type MovieSource interface {
	Movies() []types.Movie
}

// Features are the texts embedded for one movie.
type Features struct {
	MovieID      int
	OverviewText string
	KeywordsText string
	Genres       []string
}

// BuildFeatures derives the overview and keywords texts of each movie.
// A missing overview or keyword list yields "".
func BuildFeatures(movies []types.Movie) []Features {
	out := make([]Features, len(movies))
	for i, m := range movies {
		out[i] = Features{
			MovieID:      m.ID,
			OverviewText: m.Overview,
			KeywordsText: strings.Join(m.Keywords, " "),
			Genres:       m.Genres,
		}
	}
	return out
}

// BuildResult summarizes an index build.
type BuildResult struct {
	Movies    int           `json:"movies"`
	Records   int           `json:"records"`
	Dimension int           `json:"dimension"`
	Model     string        `json:"model,omitempty"`
	Skipped   bool          `json:"skipped"` // collection already present, nothing embedded
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Builder populates a vector store from a movie source.
type Builder struct {
	movies   MovieSource
	store    vectorstore.Store
	embedder TextEmbedder
	log      zerolog.Logger
}

// NewBuilder creates an index builder.
func NewBuilder(movies MovieSource, store vectorstore.Store, embedder TextEmbedder) *Builder {
	return &Builder{
		movies:   movies,
		store:    store,
		embedder: embedder,
		log:      logging.With("index"),
	}
}

// Build rebuilds the collection unless it already exists and force is false.
func (b *Builder) Build(ctx context.Context, force bool) (*BuildResult, error) {
	if !force {
		ok, err := b.store.Exists(ctx)
		if err != nil {
			return nil, fmt.Errorf("check index: %w", err)
		}
		if ok {
			n, err := b.store.Count(ctx)
			if err != nil {
				return nil, fmt.Errorf("count index: %w", err)
			}
			b.log.Info().Int("records", n).Msg("index present, skipping rebuild")
			res := &BuildResult{Movies: n / 2, Records: n, Skipped: true}
			if d, ok := b.store.(dimensioner); ok {
				res.Dimension = d.Dimension()
			}
			return res, nil
		}
	}
	return b.Rebuild(ctx)
}

// Rebuild embeds both texts of every movie and replaces the collection with
// the resulting records. Embedding happens before the store is touched, so a
// failed run leaves the previous collection as it was.
func (b *Builder) Rebuild(ctx context.Context) (*BuildResult, error) {
	start := time.Now()
	features := BuildFeatures(b.movies.Movies())

	texts := make([]string, 0, 2*len(features))
	for _, f := range features {
		texts = append(texts, f.OverviewText, f.KeywordsText)
	}

	b.log.Info().Int("movies", len(features)).Int("texts", len(texts)).Str("model", b.embedder.Model()).Msg("embedding movie texts")
	vectors, err := b.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed texts: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embed texts: got %d vectors for %d texts", len(vectors), len(texts))
	}

	records := make([]vectorstore.Record, 0, len(texts))
	for i, f := range features {
		records = append(records,
			newRecord(f, vectorstore.FieldOverview, vectors[2*i]),
			newRecord(f, vectorstore.FieldKeywords, vectors[2*i+1]),
		)
	}

	if err := b.store.Replace(ctx, records); err != nil {
		return nil, fmt.Errorf("replace collection: %w", err)
	}

	res := &BuildResult{
		Movies:  len(features),
		Records: len(records),
		Model:   b.embedder.Model(),
		Elapsed: time.Since(start),
	}
	if len(vectors) > 0 {
		res.Dimension = len(vectors[0])
	}
	b.log.Info().
		Int("movies", res.Movies).
		Int("records", res.Records).
		Int("dim", res.Dimension).
		Str("model", res.Model).
		Dur("elapsed", res.Elapsed).
		Msg("index rebuilt")
	return res, nil
}

func newRecord(f Features, field vectorstore.Field, vec []float32) vectorstore.Record {
	return vectorstore.Record{
		ID:        vectorstore.RecordID(f.MovieID, field),
		MovieID:   f.MovieID,
		Field:     field,
		Genres:    f.Genres,
		Embedding: vec,
	}
}
