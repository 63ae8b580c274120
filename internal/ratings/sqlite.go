package ratings

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/duyhunghd6/movierec/internal/ratings/migrations"
	"github.com/duyhunghd6/movierec/internal/types"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the ratings database at path, creating it if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		dsn = path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	data, err := migrations.SQLite.ReadFile("sqlite/001_init.sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.Exec(string(data)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ForUser(ctx context.Context, userID int) ([]types.Rating, error) {
	return s.query(ctx, `
		SELECT user_id, movie_id, rating, timestamp FROM ratings
		WHERE user_id = ? ORDER BY seq`, userID)
}

func (s *SQLiteStore) ForMovie(ctx context.Context, movieID int) ([]types.Rating, error) {
	return s.query(ctx, `
		SELECT user_id, movie_id, rating, timestamp FROM ratings
		WHERE movie_id = ? ORDER BY seq`, movieID)
}

func (s *SQLiteStore) Get(ctx context.Context, userID, movieID int) (types.Rating, bool, error) {
	rs, err := s.query(ctx, `
		SELECT user_id, movie_id, rating, timestamp FROM ratings
		WHERE user_id = ? AND movie_id = ? ORDER BY seq LIMIT 1`, userID, movieID)
	if err != nil || len(rs) == 0 {
		return types.Rating{}, false, err
	}
	return rs[0], true, nil
}

func (s *SQLiteStore) Append(ctx context.Context, r types.Rating) error {
	if err := Validate(r); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ratings (user_id, movie_id, rating, timestamp)
		VALUES (?, ?, ?, ?)`,
		r.UserID, r.MovieID, r.Value, unixNano(r.Timestamp))
	if err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}
	return nil
}

// AppendBatch inserts ratings in one transaction. Used for CSV seeding.
func (s *SQLiteStore) AppendBatch(ctx context.Context, rs []types.Rating) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ratings (user_id, movie_id, rating, timestamp)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rs {
		if err := Validate(r); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, r.UserID, r.MovieID, r.Value, unixNano(r.Timestamp)); err != nil {
			return fmt.Errorf("insert rating: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ratings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ratings: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]types.Rating, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query ratings: %w", err)
	}
	defer rows.Close()

	var out []types.Rating
	for rows.Next() {
		var (
			r  types.Rating
			ts int64
		)
		if err := rows.Scan(&r.UserID, &r.MovieID, &r.Value, &ts); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		if ts != 0 {
			r.Timestamp = time.Unix(0, ts).UTC()
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// unixNano stores the zero time as 0.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
