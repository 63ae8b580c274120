package cache

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// IndexCache persists vector collection snapshots to disk as gob files.
type IndexCache struct {
	CacheDir string
}

// NewIndexCache creates a new cache manager.
func NewIndexCache(cacheDir string) *IndexCache {
	return &IndexCache{CacheDir: cacheDir}
}

// CachedRecord is the serializable form of one stored vector.
type CachedRecord struct {
	ID        string
	MovieID   int
	Field     string
	Genres    []string
	Embedding []float32
}

// CachedIndex is a full snapshot of one collection.
type CachedIndex struct {
	Collection string
	SavedAt    time.Time
	Records    []CachedRecord
}

// Save writes the snapshot to disk. The file is written under a temporary
// name and renamed into place, so a crash leaves the previous snapshot intact.
func (c *IndexCache) Save(name string, data *CachedIndex) error {
	if err := os.MkdirAll(c.CacheDir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	path := c.cachePath(name)
	f, err := os.CreateTemp(c.CacheDir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	tmp := f.Name()

	enc := gob.NewEncoder(f)
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode cache: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("install cache file: %w", err)
	}

	return nil
}

// Load reads a snapshot from disk.
func (c *IndexCache) Load(name string) (*CachedIndex, error) {
	path := c.cachePath(name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cache file: %w", err)
	}
	defer f.Close()

	var data CachedIndex
	dec := gob.NewDecoder(f)
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode cache: %w", err)
	}

	return &data, nil
}

// Exists returns true if a snapshot exists for name.
func (c *IndexCache) Exists(name string) bool {
	_, err := os.Stat(c.cachePath(name))
	return err == nil
}

// Delete removes the snapshot for name.
func (c *IndexCache) Delete(name string) error {
	return os.Remove(c.cachePath(name))
}

func (c *IndexCache) cachePath(name string) string {
	return filepath.Join(c.CacheDir, name+".gob")
}
