package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the collection in a SQLite table and answers queries by
// scanning it. Replace runs inside one transaction, so an interrupted rebuild
// leaves the previous table in place.
type SQLiteStore struct {
	db         *sql.DB
	collection string
}

// NewSQLiteStore opens (creating if needed) the SQLite database at path.
func NewSQLiteStore(path, collection string) (*SQLiteStore, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if err := validCollection(collection); err != nil {
		return nil, err
	}

	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, collection: collection}, nil
}

// Exists reports whether the collection table exists.
func (s *SQLiteStore) Exists(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, s.collection).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check collection: %w", err)
	}
	return n > 0, nil
}

// Replace drops and recreates the table with records in one transaction.
func (s *SQLiteStore) Replace(ctx context.Context, records []Record) error {
	if _, err := checkDimensions(records); err != nil {
		return err
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
			genres TEXT NOT NULL DEFAULT '[]',
			embedding BLOB NOT NULL
		)`, s.collection),
		fmt.Sprintf(`CREATE INDEX idx_%s_movie_id ON %s (movie_id)`, s.collection, s.collection),
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
	return nil
}

// Upsert stores records, updating existing ones by ID.
func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if _, err := checkDimensions(records); err != nil {
		return err
	}
	ok, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCollectionNotFound
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

func (s *SQLiteStore) insert(ctx context.Context, tx *sql.Tx, records []Record) error {
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, movie_id, field, genres, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			movie_id = excluded.movie_id,
			field = excluded.field,
			genres = excluded.genres,
			embedding = excluded.embedding`, s.collection))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		genres, err := marshalGenres(r.Genres)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.MovieID, string(r.Field), genres, encodeVector(r.Embedding)); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}
	return nil
}

// Drop deletes the collection table.
func (s *SQLiteStore) Drop(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.collection)); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	return nil
}

// GetByMovie returns the records of one movie ordered by ID.
func (s *SQLiteStore) GetByMovie(ctx context.Context, movieID int) ([]Record, error) {
	if err := s.requireCollection(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, movie_id, field, genres, embedding FROM %s WHERE movie_id = ? ORDER BY id`, s.collection), movieID)
	if err != nil {
		return nil, fmt.Errorf("query movie vectors: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Query scans the collection and returns the k nearest records.
func (s *SQLiteStore) Query(ctx context.Context, embedding []float32, k int) ([]Match, error) {
	if err := s.requireCollection(ctx); err != nil {
		return nil, err
	}
	if len(embedding) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, movie_id, field, genres, embedding FROM %s`, s.collection))
	if err != nil {
		return nil, fmt.Errorf("scan collection: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{
			ID:       r.ID,
			MovieID:  r.MovieID,
			Field:    r.Field,
			Genres:   r.Genres,
			Distance: CosineDistance(embedding, r.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankMatches(matches, k), nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) requireCollection(ctx context.Context) error {
	ok, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrCollectionNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r      Record
		field  string
		genres string
		blob   []byte
	)
	if err := row.Scan(&r.ID, &r.MovieID, &field, &genres, &blob); err != nil {
		return r, fmt.Errorf("scan record: %w", err)
	}
	r.Field = Field(field)
	r.Genres = unmarshalGenres(genres)
	vec, err := decodeVector(blob)
	if err != nil {
		return r, fmt.Errorf("record %s: %w", r.ID, err)
	}
	r.Embedding = vec
	return r, nil
}

func marshalGenres(genres []string) (string, error) {
	if genres == nil {
		genres = []string{}
	}
	b, err := json.Marshal(genres)
	if err != nil {
		return "", fmt.Errorf("marshal genres: %w", err)
	}
	return string(b), nil
}

// unmarshalGenres tolerates malformed metadata as an empty genre list.
func unmarshalGenres(s string) []string {
	var genres []string
	if err := json.Unmarshal([]byte(s), &genres); err != nil || len(genres) == 0 {
		return nil
	}
	return genres
}
