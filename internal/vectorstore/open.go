package vectorstore

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Options configures Open.
type Options struct {
	Collection string
	// Dimension is only used by backends that declare a column width.
	Dimension int
}

// Open creates a store based on the DSN.
//   - "memory": in-process, not persisted
//   - path ending in .gob: in-process, persisted as a gob snapshot
//   - postgres:// or postgresql://: PostgreSQL with pgvector
//   - anything else: SQLite file at the given path
//
// opts.Collection names the table of the SQLite and PostgreSQL backends.
// A memory store holds exactly one unnamed collection, and a snapshot store's
// collection is the file name without .gob, so both ignore opts.Collection.
func Open(dsn string, opts Options) (Store, error) {
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}

	switch {
	case dsn == "memory":
		return NewMemoryStore(), nil
	case strings.HasSuffix(dsn, ".gob"):
		s, err := NewSnapshotStore(filepath.Dir(dsn), strings.TrimSuffix(filepath.Base(dsn), ".gob"))
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		return s, nil
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		s, err := NewPgVectorStore(dsn, opts.Collection, opts.Dimension)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return s, nil
	case dsn == "":
		return nil, fmt.Errorf("empty vector store dsn")
	}

	return NewSQLiteStore(dsn, opts.Collection)
}
