package recommend

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/duyhunghd6/movierec/internal/catalog"
	"github.com/duyhunghd6/movierec/internal/ratings"
	"github.com/duyhunghd6/movierec/internal/types"
	"github.com/duyhunghd6/movierec/internal/vectorstore"
)

func TestGenreSimilarity(t *testing.T) {
	a := []string{"Action", "Drama"}
	b := []string{"action", "Comedy"}

	if s := GenreSimilarity(a, b); math.Abs(s-1.0/3.0) > 1e-9 {
		t.Errorf("GenreSimilarity = %f, want 1/3", s)
	}
	if GenreSimilarity(a, b) != GenreSimilarity(b, a) {
		t.Error("GenreSimilarity is not symmetric")
	}
	if s := GenreSimilarity(a, a); s != 1 {
		t.Errorf("identical sets = %f, want 1", s)
	}
	if s := GenreSimilarity(nil, a); s != 0 {
		t.Errorf("empty side = %f, want 0", s)
	}
	if s := GenreSimilarity(a, []string{}); s != 0 {
		t.Errorf("empty side = %f, want 0", s)
	}
	if s := GenreSimilarity([]string{"Drama", "drama", "DRAMA"}, []string{"Drama"}); s != 1 {
		t.Errorf("duplicates = %f, want 1", s)
	}
}

func TestBlend(t *testing.T) {
	if b := Blend(1, 1); math.Abs(b-1) > 1e-9 {
		t.Errorf("Blend(1,1) = %f", b)
	}
	if b := Blend(0, 0); b != 0 {
		t.Errorf("Blend(0,0) = %f", b)
	}
	if b := Blend(1, 0); math.Abs(b-0.8) > 1e-9 {
		t.Errorf("Blend(1,0) = %f", b)
	}
	if b := Blend(0, 1); math.Abs(b-0.2) > 1e-9 {
		t.Errorf("Blend(0,1) = %f", b)
	}
	if Blend(0.5, 0.3) >= Blend(0.6, 0.3) {
		t.Error("Blend not increasing in vector similarity")
	}
	if Blend(0.5, 0.3) >= Blend(0.5, 0.4) {
		t.Error("Blend not increasing in genre similarity")
	}
	if b := Blend(-0.5, 0); b >= 0 {
		t.Errorf("Blend should not clamp negatives, got %f", b)
	}
}

func intPtr(v int) *int { return &v }

type fixture struct {
	cat     *catalog.Catalog
	store   *vectorstore.MemoryStore
	ratings *ratings.MemoryStore
}

func newFixture(t *testing.T, movies []types.Movie, vecs map[int][]float32) *fixture {
	t.Helper()
	var recs []vectorstore.Record
	for _, m := range movies {
		v, ok := vecs[m.ID]
		if !ok {
			continue
		}
		recs = append(recs,
			vectorstore.Record{ID: vectorstore.RecordID(m.ID, vectorstore.FieldOverview), MovieID: m.ID, Field: vectorstore.FieldOverview, Genres: m.Genres, Embedding: v},
			vectorstore.Record{ID: vectorstore.RecordID(m.ID, vectorstore.FieldKeywords), MovieID: m.ID, Field: vectorstore.FieldKeywords, Genres: m.Genres, Embedding: v},
		)
	}
	store := vectorstore.NewMemoryStore()
	if err := store.Replace(context.Background(), recs); err != nil {
		t.Fatal(err)
	}
	return &fixture{cat: catalog.New(movies), store: store, ratings: ratings.NewMemoryStore()}
}

func (f *fixture) rate(t *testing.T, user, movie int, value float64) {
	t.Helper()
	if err := f.ratings.Append(context.Background(), types.Rating{UserID: user, MovieID: movie, Value: value}); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) engine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), f.cat, f.store, f.ratings)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestNewEngineIndexNotBuilt(t *testing.T) {
	_, err := NewEngine(context.Background(), catalog.New(nil), vectorstore.NewMemoryStore(), ratings.NewMemoryStore())
	if !errors.Is(err, ErrIndexNotBuilt) {
		t.Fatalf("err = %v, want ErrIndexNotBuilt", err)
	}
}

func TestRecommendAlphaBeta(t *testing.T) {
	movies := []types.Movie{
		{ID: 1, Title: "Alpha", Year: intPtr(2000), Genres: []string{"Action"}},
		{ID: 2, Title: "Beta", Year: intPtr(2001), Genres: []string{"Action", "Drama"}},
		{ID: 3, Title: "Gamma", Year: intPtr(2002), Genres: []string{"Romance"}},
	}
	f := newFixture(t, movies, map[int][]float32{
		1: {1, 0, 0},
		2: {0.9, 0.1, 0},
		3: {0, 0, 1},
	})
	f.rate(t, 42, 1, 5.0)

	got, err := f.engine(t).Recommend(context.Background(), 42, 1)
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].ID != 2 || got[0].Title != "Beta" {
		t.Errorf("top result = %d %q, want 2 Beta", got[0].ID, got[0].Title)
	}
	if math.Abs(got[0].GenreSimilarity-0.5) > 1e-9 {
		t.Errorf("genre similarity = %f, want 0.5", got[0].GenreSimilarity)
	}
	want := Blend(got[0].VectorSimilarity, 0.5)
	if math.Abs(got[0].Score-want) > 1e-9 {
		t.Errorf("score = %f, want %f", got[0].Score, want)
	}
}

func TestRecommendExcludesRated(t *testing.T) {
	movies := []types.Movie{
		{ID: 1, Title: "A", Genres: []string{"Action"}},
		{ID: 2, Title: "B", Genres: []string{"Action"}},
		{ID: 3, Title: "C", Genres: []string{"Drama"}},
		{ID: 4, Title: "D", Genres: []string{"Action"}},
	}
	f := newFixture(t, movies, map[int][]float32{
		1: {1, 0}, 2: {0.95, 0.05}, 3: {0, 1}, 4: {0.7, 0.3},
	})
	f.rate(t, 1, 1, 4.5)
	f.rate(t, 1, 2, 1.0) // disliked but rated: still excluded

	got, err := f.engine(t).Recommend(context.Background(), 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	for _, sm := range got {
		if sm.ID == 1 || sm.ID == 2 {
			t.Errorf("rated movie %d recommended", sm.ID)
		}
	}
	if got[0].ID != 4 || got[1].ID != 3 {
		t.Errorf("order = %d, %d; want 4, 3", got[0].ID, got[1].ID)
	}
	if got[0].Score < got[1].Score {
		t.Error("results not sorted by score")
	}
}

func TestRecommendNoRatings(t *testing.T) {
	f := newFixture(t, []types.Movie{{ID: 1, Title: "A"}}, map[int][]float32{1: {1, 0}})
	got, err := f.engine(t).Recommend(context.Background(), 7, 5)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("got %v, want empty non-nil slice", got)
	}
}

func TestRecommendOnlyDisliked(t *testing.T) {
	f := newFixture(t, []types.Movie{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}}, map[int][]float32{1: {1, 0}, 2: {0, 1}})
	f.rate(t, 7, 1, 3.0)
	got, err := f.engine(t).Recommend(context.Background(), 7, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results for a user with no liked movies", len(got))
	}
}

func TestRecommendLikedNotIndexed(t *testing.T) {
	movies := []types.Movie{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}}
	f := newFixture(t, movies, map[int][]float32{2: {0, 1}})
	f.rate(t, 7, 1, 5.0)

	got, err := f.engine(t).Recommend(context.Background(), 7, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d results when the only liked movie is unindexed", len(got))
	}
}

func TestRecommendDropsMoviesMissingFromCatalog(t *testing.T) {
	movies := []types.Movie{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}}
	f := newFixture(t, movies, map[int][]float32{1: {1, 0}, 2: {0.9, 0.1}})
	ctx := context.Background()
	if err := f.store.Upsert(ctx, []vectorstore.Record{{ID: "99_overview", MovieID: 99, Field: vectorstore.FieldOverview, Embedding: []float32{1, 0}}}); err != nil {
		t.Fatal(err)
	}
	f.rate(t, 7, 1, 5.0)

	got, err := f.engine(t).Recommend(ctx, 7, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("got %+v, want only movie 2", got)
	}
}

func TestRecommendTieBreakByID(t *testing.T) {
	movies := []types.Movie{{ID: 1, Title: "A"}, {ID: 5, Title: "E"}, {ID: 3, Title: "C"}}
	f := newFixture(t, movies, map[int][]float32{1: {1, 0}, 5: {0, 1}, 3: {0, 1}})
	f.rate(t, 7, 1, 5.0)

	got, err := f.engine(t).Recommend(context.Background(), 7, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 3 || got[1].ID != 5 {
		t.Errorf("got %v, want ids 3 then 5", got)
	}
}

func TestRecommendSeesNewRatings(t *testing.T) {
	movies := []types.Movie{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}, {ID: 3, Title: "C"}}
	f := newFixture(t, movies, map[int][]float32{1: {1, 0}, 2: {0.9, 0.1}, 3: {0, 1}})
	e := f.engine(t)
	ctx := context.Background()

	if got, _ := e.Recommend(ctx, 7, 5); len(got) != 0 {
		t.Fatalf("expected no results before rating, got %d", len(got))
	}
	f.rate(t, 7, 1, 5.0)
	got, err := e.Recommend(ctx, 7, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 2 {
		t.Errorf("after rating got %v, want movie 2 first", got)
	}
}

func TestProfileWeightedMean(t *testing.T) {
	v1 := []float32{1, 0, 2}
	v2 := []float32{0, 4, 2}
	movies := []types.Movie{{ID: 1, Title: "A"}, {ID: 2, Title: "B"}}
	f := newFixture(t, movies, map[int][]float32{1: v1, 2: v2})
	e := f.engine(t)

	profile, used, err := e.Profile(context.Background(), []types.Rating{
		{UserID: 1, MovieID: 1, Value: 5.0},
		{UserID: 1, MovieID: 2, Value: 4.0},
	})
	if err != nil {
		t.Fatal(err)
	}
	if used != 2 {
		t.Errorf("used = %d, want 2", used)
	}
	for i := range profile {
		want := (2.5*float64(v1[i]) + 1.5*float64(v2[i])) / 4.0
		if math.Abs(float64(profile[i])-want) > 1e-6 {
			t.Errorf("profile[%d] = %f, want %f", i, profile[i], want)
		}
	}
}

func TestProfileAveragesFields(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	ctx := context.Background()
	err := store.Replace(ctx, []vectorstore.Record{
		{ID: "1_keywords", MovieID: 1, Field: vectorstore.FieldKeywords, Embedding: []float32{0, 2}},
		{ID: "1_overview", MovieID: 1, Field: vectorstore.FieldOverview, Embedding: []float32{2, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(ctx, catalog.New(nil), store, ratings.NewMemoryStore())
	if err != nil {
		t.Fatal(err)
	}

	profile, used, err := e.Profile(ctx, []types.Rating{{MovieID: 1, Value: 4}})
	if err != nil {
		t.Fatal(err)
	}
	if used != 1 || profile[0] != 1 || profile[1] != 1 {
		t.Errorf("profile = %v (used %d), want [1 1]", profile, used)
	}
}

func TestRecommendKeepsBestField(t *testing.T) {
	ctx := context.Background()
	movies := []types.Movie{
		{ID: 1, Title: "Liked", Genres: []string{"Action"}},
		{ID: 2, Title: "Split", Genres: []string{"Drama"}},
	}
	store := vectorstore.NewMemoryStore()
	err := store.Replace(ctx, []vectorstore.Record{
		{ID: "1_overview", MovieID: 1, Field: vectorstore.FieldOverview, Genres: movies[0].Genres, Embedding: []float32{1, 0}},
		{ID: "1_keywords", MovieID: 1, Field: vectorstore.FieldKeywords, Genres: movies[0].Genres, Embedding: []float32{1, 0}},
		{ID: "2_overview", MovieID: 2, Field: vectorstore.FieldOverview, Genres: movies[1].Genres, Embedding: []float32{0, 1}},
		{ID: "2_keywords", MovieID: 2, Field: vectorstore.FieldKeywords, Genres: movies[1].Genres, Embedding: []float32{1, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	rs := ratings.NewMemoryStore()
	if err := rs.Append(ctx, types.Rating{UserID: 7, MovieID: 1, Value: 5}); err != nil {
		t.Fatal(err)
	}
	e, err := NewEngine(ctx, catalog.New(movies), store, rs)
	if err != nil {
		t.Fatal(err)
	}

	got, err := e.Recommend(ctx, 7, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("got %+v, want movie 2 once", got)
	}
	// Keywords match the profile exactly, overview is orthogonal: 0.8, not the 0.4 average.
	if math.Abs(got[0].Score-0.8) > 1e-6 {
		t.Errorf("score = %f, want 0.8", got[0].Score)
	}
	if math.Abs(got[0].VectorSimilarity-1) > 1e-6 {
		t.Errorf("vector similarity = %f, want 1", got[0].VectorSimilarity)
	}
}

type failingStore struct {
	*vectorstore.MemoryStore
	err error
}

func (s failingStore) Query(ctx context.Context, embedding []float32, k int) ([]vectorstore.Match, error) {
	return nil, s.err
}

func TestRecommendPropagatesStoreError(t *testing.T) {
	movies := []types.Movie{{ID: 1, Title: "A"}}
	f := newFixture(t, movies, map[int][]float32{1: {1, 0}})
	f.rate(t, 7, 1, 5.0)

	boom := errors.New("store offline")
	e, err := NewEngine(context.Background(), f.cat, failingStore{f.store, boom}, f.ratings)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.Recommend(context.Background(), 7, 5); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped store error", err)
	}
}
