package room

import (
	"sync"
)

// Storage is the server-mediated shared mutable map for one room:
// annotation id -> field map. It is the cross-client merge point for
// concurrent edits within a live session, independent of the relational
// store. The merge policy is last-writer-wins per field, ordered by
// server receipt; there is no field-level CRDT merge. Accepted as good
// enough for two-to-five concurrent annotators.
type Storage struct {
	mu      sync.RWMutex
	entries map[string]map[string]any
}

// NewStorage creates an empty shared map.
func NewStorage() *Storage {
	return &Storage{entries: make(map[string]map[string]any)}
}

// Set merges fields into the entry for id. Later calls overwrite
// earlier values field by field.
func (s *Storage) Set(id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		entry = make(map[string]any, len(fields))
		s.entries[id] = entry
	}
	for k, v := range fields {
		entry[k] = v
	}
}

// Delete removes the entry for id. Unknown ids are a no-op.
func (s *Storage) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Get returns a copy of one entry's fields.
func (s *Storage) Get(id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(entry))
	for k, v := range entry {
		out[k] = v
	}
	return out, true
}

// Snapshot returns a deep copy of the whole map, used for the join-time
// sync payload.
func (s *Storage) Snapshot() map[string]map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]any, len(s.entries))
	for id, fields := range s.entries {
		entry := make(map[string]any, len(fields))
		for k, v := range fields {
			entry[k] = v
		}
		out[id] = entry
	}
	return out
}

// Len returns the number of entries.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
