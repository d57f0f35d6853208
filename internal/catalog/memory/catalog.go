// Package memory provides an in-memory catalog for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/sudan-digital-archive/archive-api/internal/archive"
	"github.com/sudan-digital-archive/archive-api/internal/catalog"
)

// Catalog stores archived records in a map keyed by assigned id.
type Catalog struct {
	mu      sync.RWMutex
	nextID  int64
	records map[int64]archive.ArchivedRecord
	byKey   map[string]int64
}

// New creates an empty in-memory catalog.
func New() *Catalog {
	return &Catalog{
		nextID:  1,
		records: make(map[int64]archive.ArchivedRecord),
		byKey:   make(map[string]int64),
	}
}

// WriteRecord stores the record and returns its id. A record whose
// storage key was already written is rejected with catalog.ErrDuplicate,
// mirroring the unique constraint the Postgres catalog enforces.
func (c *Catalog) WriteRecord(_ context.Context, record archive.ArchivedRecord) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byKey[record.StorageKey]; ok {
		return 0, catalog.ErrDuplicate
	}
	id := c.nextID
	c.nextID++
	c.records[id] = record
	c.byKey[record.StorageKey] = id
	return id, nil
}

// GetRecord returns the record stored under id.
func (c *Catalog) GetRecord(_ context.Context, id int64) (archive.ArchivedRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	record, ok := c.records[id]
	if !ok {
		return archive.ArchivedRecord{}, catalog.ErrNotFound
	}
	return record, nil
}

// Len reports how many records are stored.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}
