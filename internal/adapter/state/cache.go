// internal/adapter/state/cache.go

package state

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"trendagg/internal/domain/trend"
)

// cacheEnvelope is the on-disk layout of a cache entry.
type cacheEnvelope struct {
	Timestamp string         `json:"timestamp"`
	Results   []trend.Record `json:"results"`
}

// Cache is a file-backed store of normalized result sets keyed by query
// identity, with age-based expiry. Reads never fail: absent, unreadable or
// expired entries are misses. Writes are best-effort and never block the
// retrieval path.
type Cache struct {
	dir    string
	logger *slog.Logger
}

// NewCache creates a cache rooted at dir.
func NewCache(dir string, logger *slog.Logger) *Cache {
	return &Cache{dir: dir, logger: logger}
}

// Get returns the cached payload for key if it exists and is no older than
// maxAge. The second return value reports whether a fresh entry was found.
func (c *Cache) Get(key string, maxAge time.Duration) ([]trend.Record, bool) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}

	var envelope cacheEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logger.Warn("cache entry unreadable, treating as miss", "key", key, "error", err)
		return nil, false
	}

	storedAt, err := time.Parse(time.RFC3339, envelope.Timestamp)
	if err != nil {
		c.logger.Warn("cache entry has invalid timestamp, treating as miss", "key", key)
		return nil, false
	}

	age := time.Since(storedAt)
	if age > maxAge {
		c.logger.Debug("cache entry expired", "key", key, "age", age)
		return nil, false
	}

	return envelope.Results, true
}

// Put overwrites the entry for key. Write failures are logged and swallowed.
func (c *Cache) Put(key string, records []trend.Record) {
	envelope := cacheEnvelope{
		Timestamp: time.Now().Format(time.RFC3339),
		Results:   records,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		c.logger.Warn("failed to encode cache entry", "key", key, "error", err)
		return
	}

	if err := atomicWrite(c.path(key), data); err != nil {
		c.logger.Warn("failed to write cache entry", "key", key, "error", err)
	}
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// atomicWrite replaces path with data via a temp file and rename so a
// concurrent reader never observes a partial write.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
