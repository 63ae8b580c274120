package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PgVectorStore is a PostgreSQL collection using the pgvector extension with an
// HNSW cosine index.
type PgVectorStore struct {
	db         *sql.DB
	collection string
	dimension  int
}

// NewPgVectorStore connects to dsn. The dimension is the embedding length used
// when the table is (re)created.
func NewPgVectorStore(dsn, collection string, dimension int) (*PgVectorStore, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if err := validCollection(collection); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pgvector: %w", err)
	}

	return &PgVectorStore{db: db, collection: collection, dimension: dimension}, nil
}

// Exists reports whether the collection table exists.
func (s *PgVectorStore) Exists(ctx context.Context) (bool, error) {
	var name sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT to_regclass($1)::text`, s.collection).Scan(&name); err != nil {
		return false, fmt.Errorf("check collection: %w", err)
	}
	return name.Valid, nil
}

// Replace drops and recreates the table with records in one transaction.
func (s *PgVectorStore) Replace(ctx context.Context, records []Record) error {
	dim, err := checkDimensions(records)
	if err != nil {
		return err
	}
	if dim == 0 {
		dim = s.dimension
	}
	if dim <= 0 {
		return fmt.Errorf("%w: unknown dimension for empty collection", ErrDimensionMismatch)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.collection),
		fmt.Sprintf(`CREATE TABLE %s (
			id TEXT PRIMARY KEY,
			movie_id INTEGER NOT NULL,
			field TEXT NOT NULL,
			genres JSONB NOT NULL DEFAULT '[]',
			embedding vector(%d) NOT NULL
		)`, s.collection, dim),
		fmt.Sprintf(`CREATE INDEX idx_%s_movie_id ON %s (movie_id)`, s.collection, s.collection),
		fmt.Sprintf(`CREATE INDEX idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops)`, s.collection, s.collection),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("recreate collection: %w", err)
		}
	}

	if err := s.insert(ctx, tx, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild: %w", err)
	}
	s.dimension = dim
	return nil
}

// Upsert stores records, updating existing ones by ID.
func (s *PgVectorStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := checkDimensions(records); err != nil {
		return err
	}
	if err := s.requireCollection(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	if err := s.insert(ctx, tx, records); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PgVectorStore) insert(ctx context.Context, tx *sql.Tx, records []Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, movie_id, field, genres, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			movie_id = EXCLUDED.movie_id,
			field = EXCLUDED.field,
			genres = EXCLUDED.genres,
			embedding = EXCLUDED.embedding`, s.collection)

	for _, r := range records {
		genres, err := marshalGenres(r.Genres)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, r.ID, r.MovieID, string(r.Field), genres, formatEmbedding(r.Embedding)); err != nil {
			return fmt.Errorf("upsert record %s: %w", r.ID, err)
		}
	}
	return nil
}

// Drop deletes the collection table.
func (s *PgVectorStore) Drop(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.collection)); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	return nil
}

// GetByMovie returns the records of one movie ordered by ID.
func (s *PgVectorStore) GetByMovie(ctx context.Context, movieID int) ([]Record, error) {
	if err := s.requireCollection(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, movie_id, field, genres::text, embedding::text FROM %s WHERE movie_id = $1 ORDER BY id`, s.collection), movieID)
	if err != nil {
		return nil, fmt.Errorf("query movie vectors: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r         Record
			field     string
			genres    string
			embedding string
		)
		if err := rows.Scan(&r.ID, &r.MovieID, &field, &genres, &embedding); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Field = Field(field)
		r.Genres = unmarshalGenres(genres)
		if r.Embedding, err = parseEmbedding(embedding); err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Query returns the k nearest records using the <=> cosine distance operator.
func (s *PgVectorStore) Query(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if err := s.requireCollection(ctx); err != nil {
		return nil, err
	}
	if len(embedding) == 0 || k <= 0 {
		return nil, nil
	}

	// An HNSW scan returns at most hnsw.ef_search rows, so widen it to k for
	// this transaction only.
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin query: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`SET LOCAL hnsw.ef_search = %d`, efSearch(k))); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, movie_id, field, genres::text, embedding <=> $1 AS distance
		FROM %s
		ORDER BY embedding <=> $1, id
		LIMIT $2`, s.collection), formatEmbedding(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m      Match
			field  string
			genres string
		)
		if err := rows.Scan(&m.ID, &m.MovieID, &field, &genres, &m.Distance); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		m.Field = Field(field)
		m.Genres = unmarshalGenres(genres)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return matches, tx.Commit()
}

// Count returns the number of stored records.
func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	if err := s.requireCollection(ctx); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.collection)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *PgVectorStore) Close() error {
	return s.db.Close()
}

func (s *PgVectorStore) requireCollection(ctx context.Context) error {
	ok, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCollectionNotFound
	}
	return nil
}

// formatEmbedding renders a vector in pgvector text format: "[0.1,0.2,0.3]".
func formatEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseEmbedding converts pgvector text format back to a vector.
func parseEmbedding(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	out := make([]float32, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector component %q: %w", p, err)
		}
		out[i] = float32(v)
	}
	return out, nil
}

// pgvector bounds hnsw.ef_search to [1, 1000]; 40 is its default.
const (
	defaultEfSearch = 40
	maxEfSearch     = 1000
)

// efSearch is the HNSW candidate list size needed to return k rows.
func efSearch(k int) int {
	return min(max(k, defaultEfSearch), maxEfSearch)
}
