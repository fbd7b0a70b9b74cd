// Package index persists the mapping from record id to the page that holds
// the record. A Map is loaded from a Store, mutated in memory, and saved
// back after every mutating operation.
package index

import (
	"context"
	"iter"
	"maps"
	"slices"
)

// Store loads and saves a table's index.
type Store interface {
	// Load returns the persisted map, or an empty map if nothing has been
	// saved yet.
	Load(ctx context.Context) (*Map, error)
	// Save persists m and clears its pending changes.
	Save(ctx context.Context, m *Map) error
	Close() error
}

// Map is the in-memory id to page mapping. It records which ids changed
// since the last save so incremental stores only write those.
type Map struct {
	entries map[string]int64
	pending map[string]struct{}
}

func NewMap() *Map {
	return &Map{
		entries: make(map[string]int64),
		pending: make(map[string]struct{}),
	}
}

// FromEntries returns a map holding entries with no pending changes.
func FromEntries(entries map[string]int64) *Map {
	m := NewMap()
	maps.Copy(m.entries, entries)
	return m
}

func (m *Map) Get(id string) (int64, bool) {
	page, ok := m.entries[id]
	return page, ok
}

func (m *Map) Set(id string, page int64) {
	m.entries[id] = page
	m.pending[id] = struct{}{}
}

func (m *Map) Remove(id string) {
	delete(m.entries, id)
	m.pending[id] = struct{}{}
}

func (m *Map) Len() int {
	return len(m.entries)
}

// MaxPage returns the highest page referenced, or 0 for an empty map.
func (m *Map) MaxPage() int64 {
	var highest int64
	for _, page := range m.entries {
		highest = max(highest, page)
	}
	return highest
}

// All iterates over the entries in id order.
func (m *Map) All() iter.Seq2[string, int64] {
	return func(yield func(string, int64) bool) {
		for _, id := range slices.Sorted(maps.Keys(m.entries)) {
			if !yield(id, m.entries[id]) {
				return
			}
		}
	}
}

// Entries returns a copy of the mapping.
func (m *Map) Entries() map[string]int64 {
	return maps.Clone(m.entries)
}

// Dirty reports whether the map changed since it was loaded or saved.
func (m *Map) Dirty() bool {
	return len(m.pending) > 0
}

// Pending iterates over ids changed since the last save, reporting whether
// each one is still present.
func (m *Map) Pending() iter.Seq2[string, bool] {
	return func(yield func(string, bool) bool) {
		for _, id := range slices.Sorted(maps.Keys(m.pending)) {
			_, ok := m.entries[id]
			if !yield(id, ok) {
				return
			}
		}
	}
}

// Clean forgets pending changes. Stores call it after a successful save.
func (m *Map) Clean() {
	clear(m.pending)
}
