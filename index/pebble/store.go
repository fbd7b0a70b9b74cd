// Package pebble stores a table index in a Pebble database. Saves write only
// the entries changed since the last save, in one synced batch, so the cost
// of a mutation does not grow with the size of the table.
package pebble

import (
	"context"
	"encoding/binary"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/davidvella/pagestore/index"
	"github.com/pkg/errors"
)

var keyPrefix = []byte("id/")

// Store implements index.Store using Pebble.
type Store struct {
	db   *pebble.DB
	path string
}

// StoreOptions configures the store.
type StoreOptions struct {
	Path      string
	CacheSize int64
}

func NewStore(opts StoreOptions) (*Store, error) {
	pebbleOpts := &pebble.Options{}
	if opts.CacheSize > 0 {
		cache := pebble.NewCache(opts.CacheSize)
		defer cache.Unref()
		pebbleOpts.Cache = cache
	}

	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create index dir %s", opts.Path)
	}

	db, err := pebble.Open(opts.Path, pebbleOpts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open index %s", opts.Path)
	}

	return &Store{db: db, path: opts.Path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(_ context.Context) (*index.Map, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: upperBound(keyPrefix),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to iterate over index")
	}
	defer iter.Close()

	entries := make(map[string]int64)
	for iter.First(); iter.Valid(); iter.Next() {
		value := iter.Value()
		if len(value) != 8 {
			return nil, errors.Errorf("corrupt index value for key %q", iter.Key())
		}
		id := string(iter.Key()[len(keyPrefix):])
		entries[id] = int64(binary.BigEndian.Uint64(value))
	}
	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to read index")
	}

	return index.FromEntries(entries), nil
}

func (s *Store) Save(_ context.Context, m *index.Map) error {
	if !m.Dirty() {
		return nil
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for id, present := range m.Pending() {
		key := encodeKey(id)
		if !present {
			if err := batch.Delete(key, nil); err != nil {
				return errors.Wrapf(err, "failed to delete index entry %s", id)
			}
			continue
		}

		page, _ := m.Get(id)
		value := make([]byte, 8)
		binary.BigEndian.PutUint64(value, uint64(page))
		if err := batch.Set(key, value, nil); err != nil {
			return errors.Wrapf(err, "failed to set index entry %s", id)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "failed to commit index batch")
	}
	m.Clean()
	return nil
}

func encodeKey(id string) []byte {
	key := make([]byte, 0, len(keyPrefix)+len(id))
	key = append(key, keyPrefix...)
	return append(key, id...)
}

func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}
