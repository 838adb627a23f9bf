// Package cache provides a small JSON-file-backed key/value cache used for
// ticker and sector reference data. The orchestrator constructs the caches
// once and injects them into the resolution and enrichment components, so
// tests can substitute an in-memory instance without touching disk.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Cache maps string keys to values of type V, with an optional file backing.
// Access is guarded by a mutex so the bounded-concurrency enrichment workers
// can share one instance.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
	path    string // empty = memory only
	loaded  time.Time
}

// New creates a memory-only cache.
func New[V any]() *Cache[V] {
	return &Cache[V]{entries: make(map[string]V)}
}

// NewFileBacked creates a cache persisted at path. The file is not read
// until LoadFromDisk is called.
func NewFileBacked[V any](path string) *Cache[V] {
	return &Cache[V]{entries: make(map[string]V), path: path}
}

// Get returns the cached value for key.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Set stores value under key.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Snapshot returns a copy of the current entries.
func (c *Cache[V]) Snapshot() map[string]V {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]V, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// LoadFromDisk replaces the in-memory map with the file contents. A missing
// file is not an error; the cache just starts empty.
func (c *Cache[V]) LoadFromDisk() error {
	if c.path == "" {
		return nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache file %s: %w", c.path, err)
	}

	entries := make(map[string]V)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse cache file %s: %w", c.path, err)
	}

	c.mu.Lock()
	c.entries = entries
	c.loaded = time.Now()
	c.mu.Unlock()
	return nil
}

// Persist rewrites the whole cache file. Last writer wins; the pipeline is
// single-process so partial/append writes are deliberately avoided.
func (c *Cache[V]) Persist() error {
	if c.path == "" {
		return nil
	}
	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file %s: %w", c.path, err)
	}
	return nil
}

// FileAge returns how old the backing file is, or a zero time.Duration and
// false when there is no readable backing file. Used for TTL checks on the
// ticker reference index.
func (c *Cache[V]) FileAge() (time.Duration, bool) {
	if c.path == "" {
		return 0, false
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return 0, false
	}
	return time.Since(info.ModTime()), true
}
