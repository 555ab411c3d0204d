package dataset

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// Cache keeps loaded datasets in memory and reloads a file only after it changed on disk.
// Cached tables are shared between callers and must be treated as read-only.
type Cache struct {
	entries map[string]*cacheEntry
	mu      sync.RWMutex
}

type cacheEntry struct {
	table   *Table
	sheet   string
	modTime time.Time
	size    int64
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{entries: make(map[string]*cacheEntry)}
}

// Load returns the dataset at path, from memory when modification time and size are unchanged.
// A missing file gives an empty table and nothing is cached.
func (c *Cache) Load(path, sheet string) (*Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.Invalidate(path)
			return NewTable(), nil
		}
		return nil, fmt.Errorf("stat dataset: %w", err)
	}

	c.mu.RLock()
	e, ok := c.entries[path]
	c.mu.RUnlock()
	if ok && e.sheet == sheet && e.modTime.Equal(info.ModTime()) && e.size == info.Size() {
		return e.table, nil
	}

	t, err := Load(path, sheet)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = &cacheEntry{table: t, sheet: sheet, modTime: info.ModTime(), size: info.Size()}
	return t, nil
}

// Invalidate drops the entry for path
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
}

// Len number of cached datasets
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}
