// Package results holds the in-memory result set of a classification run and
// persists it as a JSON document.
package results

import (
	"maps"

	"imagetagger/types"
)

// Store maps a key (the file's base name by default) to its classification record.
// It is owned by a single driver and is not safe for concurrent use.
type Store struct {
	records map[string]types.ImageRecord
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{records: make(map[string]types.ImageRecord)}
}

// Put inserts or overwrites the record under key. When an existing record is
// replaced, the previous value is returned.
func (s *Store) Put(key string, rec types.ImageRecord) (previous *types.ImageRecord) {
	if rec.AITags == nil {
		rec.AITags = []string{}
	}
	if old, ok := s.records[key]; ok {
		previous = &old
	}
	s.records[key] = rec
	return previous
}

// Get returns the record stored under key
func (s *Store) Get(key string) (types.ImageRecord, bool) {
	rec, ok := s.records[key]
	return rec, ok
}

// Len returns the number of stored records
func (s *Store) Len() int {
	return len(s.records)
}

// Records returns a shallow copy of the stored records
func (s *Store) Records() map[string]types.ImageRecord {
	return maps.Clone(s.records)
}
