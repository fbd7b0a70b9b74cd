package pagestore

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/davidvella/pagestore/freelist"
	"github.com/davidvella/pagestore/page"
	"github.com/davidvella/pagestore/record"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Engine stores records in tables under a single directory. Tables are
// opened on first use and stay open until Close.
type Engine struct {
	dir    string
	opts   options
	mu     sync.Mutex
	tables map[string]*table
	closed bool
}

// Open returns an engine storing tables in dir, creating dir if needed.
func Open(dir string, opts ...Option) (*Engine, error) {
	// Apply default options
	o := defaultOptions()

	// Apply user options
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create data dir %s", dir)
	}

	return &Engine{
		dir:    dir,
		opts:   o,
		tables: make(map[string]*table),
	}, nil
}

// Dir returns the directory holding the table files.
func (e *Engine) Dir() string {
	return e.dir
}

func validTable(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return errors.Wrapf(ErrInvalidTable, "%q", name)
	}
	return nil
}

// table returns the open table, opening or creating it on first use. The
// returned table is locked.
func (e *Engine) table(ctx context.Context, name string) (*table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validTable(name); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	t, ok := e.tables[name]
	if !ok {
		var err error
		t, err = openTable(ctx, e.dir, name, e.opts)
		if err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.tables[name] = t
	}
	e.mu.Unlock()

	t.mu.Lock()
	if err := t.usable(); err != nil {
		t.mu.Unlock()
		return nil, err
	}
	return t, nil
}

// Insert stores rec in the named table. The record must carry an id not
// already present in the table and must fit in a single page; otherwise
// nothing is written.
func (e *Engine) Insert(ctx context.Context, name string, rec record.Record) error {
	id, err := rec.ID()
	if err != nil {
		return err
	}

	// Size is checked before the table is touched so an oversized record
	// leaves no trace on disk.
	f, err := encodeFrame(id, rec, e.opts.compression)
	if err != nil {
		return err
	}

	t, err := e.table(ctx, name)
	if err != nil {
		return err
	}
	defer t.mu.Unlock()

	if _, ok := t.entries.Get(id); ok {
		return errors.Wrapf(ErrDuplicateID, "table %s id %s", name, id)
	}

	n, off, err := t.place(f)
	if err != nil {
		return err
	}

	t.entries.Set(id, n)
	if err := t.commitIndex(ctx); err != nil {
		t.entries.Remove(id)
		t.entries.Clean()
		t.discard(n, off)
		return err
	}

	t.log.WithFields(logrus.Fields{"id": id, "page": n, "offset": off}).Debug("record inserted")
	return nil
}

// Find returns the record with the given id. The boolean is false when the
// table holds no such id. ErrCorruption is returned when the index points to
// a page that does not hold the record.
func (e *Engine) Find(ctx context.Context, name, id string) (record.Record, bool, error) {
	t, err := e.table(ctx, name)
	if err != nil {
		return nil, false, err
	}
	defer t.mu.Unlock()

	n, ok := t.entries.Get(id)
	if !ok {
		return nil, false, nil
	}

	_, _, f, err := t.locate(id, n)
	if err != nil {
		return nil, false, err
	}

	r, err := decodeFrame(f)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// Update lays fields over the stored record and returns the result. The
// boolean is false when the table holds no such id. The previous version of
// the record is removed; no stale copy is left in the page file.
func (e *Engine) Update(ctx context.Context, name, id string, fields record.Record) (record.Record, bool, error) {
	t, err := e.table(ctx, name)
	if err != nil {
		return nil, false, err
	}
	defer t.mu.Unlock()

	n, ok := t.entries.Get(id)
	if !ok {
		return nil, false, nil
	}

	if v, ok := fields[record.IDField]; ok {
		if fid, err := record.FormatID(v); err != nil || fid != id {
			return nil, false, errors.Wrapf(ErrIDMismatch, "table %s id %s", name, id)
		}
	}

	p, off, old, err := t.locate(id, n)
	if err != nil {
		return nil, false, err
	}

	current, err := decodeFrame(old)
	if err != nil {
		return nil, false, err
	}
	merged := current.Merge(fields)

	f, err := t.encode(id, merged)
	if err != nil {
		return nil, false, err
	}

	log := t.log.WithFields(logrus.Fields{"id": id, "page": n, "offset": off})

	// Rewrite in place when the new version fits the old slot.
	if f.Size() <= old.Slot {
		f.Slot = old.Slot
		if _, err := p.Tombstone(off); err != nil {
			return nil, false, err
		}
		if err := p.Put(off, f); err != nil {
			return nil, false, err
		}
		if err := t.writePage(n, p); err != nil {
			return nil, false, err
		}
		log.Debug("record updated in place")
		return merged, true, nil
	}

	oldExtent := freelist.Extent{Page: n, Offset: off, Len: old.Slot}
	ext, fresh := t.allocate(f.Size())

	// Same page: tombstone and write the new version in one page write.
	if ext.Page == n {
		rest, err := fit(p, ext, f)
		if err == nil {
			_, err = p.Tombstone(off)
		}
		if err == nil {
			err = t.writePage(n, p)
		}
		if err != nil {
			t.cancel(ext, fresh)
			return nil, false, err
		}
		t.free.Release(rest)
		t.free.Release(oldExtent)
		log.WithField("new_offset", ext.Offset).Debug("record moved within page")
		return merged, true, nil
	}

	newPage, newOff, err := t.placeAt(ext, fresh, f)
	if err != nil {
		return nil, false, err
	}

	t.entries.Set(id, newPage)
	if err := t.commitIndex(ctx); err != nil {
		t.entries.Set(id, n)
		t.entries.Clean()
		t.discard(newPage, newOff)
		return nil, false, err
	}

	// The index no longer points at the old frame; if this write is lost the
	// frame is an orphan and is removed on the next open.
	if err := t.tombstone(n, off); err != nil {
		return nil, false, err
	}
	log.WithFields(logrus.Fields{"new_page": newPage, "new_offset": newOff}).Debug("record moved")
	return merged, true, nil
}

// Delete removes the record with the given id. Other records on the same
// page are untouched. The boolean is false when the table holds no such id.
func (e *Engine) Delete(ctx context.Context, name, id string) (bool, error) {
	t, err := e.table(ctx, name)
	if err != nil {
		return false, err
	}
	defer t.mu.Unlock()

	n, ok := t.entries.Get(id)
	if !ok {
		return false, nil
	}

	p, err := t.readPage(n)
	if err != nil {
		return false, err
	}
	off, _, found, err := p.Find(id)
	if err != nil {
		return false, errors.Wrapf(ErrCorruption, "table %s page %d: %v", name, n, err)
	}

	// The index goes first: a frame the index does not reference is rolled
	// back on the next open, whereas the reverse order would leave a
	// dangling index entry.
	t.entries.Remove(id)
	if err := t.saveIndex(ctx); err != nil {
		t.entries.Set(id, n)
		t.entries.Clean()
		return false, err
	}

	log := t.log.WithFields(logrus.Fields{"id": id, "page": n})
	if !found {
		log.Warn("deleted index entry without a record")
		return true, nil
	}

	if err := t.tombstone(n, off); err != nil {
		return false, err
	}
	log.WithField("offset", off).Debug("record deleted")
	return true, nil
}

// tombstone deletes the frame at (n, off) and frees its slot.
func (t *table) tombstone(n int64, off int) error {
	p, err := t.readPage(n)
	if err != nil {
		return err
	}
	f, err := p.Tombstone(off)
	if err != nil {
		return errors.Wrapf(ErrCorruption, "table %s page %d: %v", t.name, n, err)
	}
	if err := t.writePage(n, p); err != nil {
		return err
	}
	t.free.Release(freelist.Extent{Page: n, Offset: off, Len: f.Slot})
	return nil
}

// NextID returns a new numeric id for the named table. Ids are strictly
// increasing and never lower than the largest numeric id in the table.
func (e *Engine) NextID(ctx context.Context, name string) (int64, error) {
	t, err := e.table(ctx, name)
	if err != nil {
		return 0, err
	}
	defer t.mu.Unlock()

	return t.ids.Next(), nil
}

// Check scans the named table and reports its integrity. It does not
// modify the table.
func (e *Engine) Check(ctx context.Context, name string) (Report, error) {
	t, err := e.table(ctx, name)
	if err != nil {
		return Report{}, err
	}
	defer t.mu.Unlock()

	report, _, err := t.scan(false)
	return report, err
}

// Close closes every open table. The engine cannot be used afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	e.closed = true

	var firstErr error
	for name, t := range e.tables {
		t.mu.Lock()
		if err := t.close(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "failed to close table %s", name)
		}
		t.mu.Unlock()
	}
	return firstErr
}

// Report describes the state of a table as found by Check.
type Report struct {
	Table string
	// Pages is the number of pages in the page file.
	Pages int64
	// Live is the number of records reachable through the index.
	Live int
	// Tombstones is the number of deleted frames still occupying space.
	Tombstones int
	// FreeBytes is the space available to new records without growing the file.
	FreeBytes int
	// Orphans are ids of live frames the index does not reference.
	Orphans []string
	// Stranded are ids of live frames kept although the index places the id
	// on another page, which does not hold it.
	Stranded []string
	// Dangling are indexed ids whose page holds no such record.
	Dangling []string
	// CorruptPages failed checksum or frame validation.
	CorruptPages []int64
}

// Healthy reports whether the scan found no inconsistency.
func (r Report) Healthy() bool {
	return len(r.Orphans) == 0 && len(r.Stranded) == 0 && len(r.Dangling) == 0 &&
		len(r.CorruptPages) == 0
}

// MaxRecordSize is the largest encoded record, id and frame header
// included, that fits in a page.
const MaxRecordSize = page.MaxFrame
