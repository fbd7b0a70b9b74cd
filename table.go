package pagestore

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/davidvella/pagestore/freelist"
	"github.com/davidvella/pagestore/idgen"
	"github.com/davidvella/pagestore/index"
	"github.com/davidvella/pagestore/page"
	"github.com/davidvella/pagestore/pagefile"
	"github.com/davidvella/pagestore/record"
	"github.com/davidvella/pagestore/recordio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// table is one open (page file, index) pair. mu guards the whole
// read-index, allocate, write-page, save-index sequence.
type table struct {
	mu      sync.Mutex
	name    string
	pages   *pagefile.File
	store   index.Store
	entries *index.Map
	free    *freelist.List
	ids     *idgen.Generator
	opts    options
	log     logrus.FieldLogger
	closed  bool
}

func openTable(ctx context.Context, dir, name string, opts options) (*table, error) {
	pages, err := pagefile.OpenOrCreate(filepath.Join(dir, name+".dat"))
	if err != nil {
		return nil, err
	}

	store, err := opts.openIndex(ctx, dir, name)
	if err != nil {
		pages.Close()
		return nil, err
	}

	entries, err := store.Load(ctx)
	if err != nil {
		pages.Close()
		store.Close()
		return nil, err
	}

	t := &table{
		name:    name,
		pages:   pages,
		store:   store,
		entries: entries,
		ids:     idgen.New(),
		opts:    opts,
		log:     opts.logger.WithField("table", name),
	}

	if entries.Len() > 0 && entries.MaxPage() >= pages.Pages() {
		t.log.WithFields(logrus.Fields{
			"max_page": entries.MaxPage(),
			"pages":    pages.Pages(),
		}).Warn("index references pages past the end of the page file")
	}

	report, free, err := t.scan(true)
	if err != nil {
		t.close()
		return nil, err
	}
	t.free = free

	if len(report.Orphans) > 0 {
		t.log.WithField("ids", report.Orphans).Warn("rolled back records missing from index")
	}
	if len(report.Stranded) > 0 {
		t.log.WithField("ids", report.Stranded).Warn("kept records whose indexed page does not hold them")
	}
	if len(report.Dangling) > 0 {
		t.log.WithField("ids", report.Dangling).Error("index references records not found in their page")
	}
	if len(report.CorruptPages) > 0 {
		t.log.WithField("pages", report.CorruptPages).Error("pages failed verification")
	}
	t.log.WithFields(logrus.Fields{
		"pages":      report.Pages,
		"records":    report.Live,
		"free_bytes": report.FreeBytes,
	}).Debug("table opened")

	return t, nil
}

// usable must be called with mu held.
func (t *table) usable() error {
	if t.closed {
		return ErrClosed
	}
	return nil
}

func (t *table) close() error {
	t.closed = true
	err := t.pages.Close()
	if serr := t.store.Close(); err == nil {
		err = serr
	}
	return err
}

// scan walks every page, rebuilding the free list. A live frame that the
// index does not place on its page is an orphan left by an interrupted
// operation when its id is not indexed at all, or when the indexed page
// holds a live copy; with repair set orphans are tombstoned. A frame whose
// id is indexed on a page without a live copy may be the only copy left and
// is kept.
func (t *table) scan(repair bool) (Report, *freelist.List, error) {
	report := Report{Table: t.name, Pages: t.pages.Pages()}
	free := freelist.New()

	// First pass: find the ids whose indexed page holds a live frame.
	holds := make(map[string]bool, t.entries.Len())
	corrupt := make(map[int64]bool)
	for n := range t.pages.Pages() {
		p, err := t.pages.ReadPage(n)
		if err != nil {
			return report, nil, err
		}
		if err := p.Verify(); err != nil {
			corrupt[n] = true
			continue
		}
		err = p.Scan(func(_ int, f recordio.Frame) error {
			if indexed, ok := t.entries.Get(f.ID); ok && indexed == n && !f.Deleted() {
				holds[f.ID] = true
			}
			return nil
		})
		if err != nil {
			corrupt[n] = true
		}
	}

	seen := make(map[string]bool, len(holds))
	for n := range t.pages.Pages() {
		if corrupt[n] {
			report.CorruptPages = append(report.CorruptPages, n)
			continue
		}
		p, err := t.pages.ReadPage(n)
		if err != nil {
			return report, nil, err
		}

		var (
			extents []freelist.Extent
			orphans []int
			live    []string
		)
		err = p.Scan(func(off int, f recordio.Frame) error {
			if f.Deleted() {
				extents = append(extents, freelist.Extent{Page: n, Offset: off, Len: f.Slot})
				return nil
			}
			indexed, ok := t.entries.Get(f.ID)
			switch {
			case ok && indexed == n && !seen[f.ID]:
				seen[f.ID] = true
				live = append(live, f.ID)
			case !ok || holds[f.ID]:
				orphans = append(orphans, off)
				report.Orphans = append(report.Orphans, f.ID)
			default:
				report.Stranded = append(report.Stranded, f.ID)
				t.observe(f.ID)
			}
			return nil
		})
		if err != nil {
			return report, nil, err
		}

		tombstones := len(extents)
		if repair && len(orphans) > 0 {
			for _, off := range orphans {
				f, err := p.Tombstone(off)
				if err != nil {
					return report, nil, err
				}
				extents = append(extents, freelist.Extent{Page: n, Offset: off, Len: f.Slot})
			}
			if err := t.writePage(n, p); err != nil {
				return report, nil, err
			}
		}

		for _, e := range extents {
			free.Release(e)
		}
		free.Release(freelist.Extent{Page: n, Offset: p.Used(), Len: p.Free()})

		report.Live += len(live)
		report.Tombstones += tombstones
		for _, id := range live {
			t.observe(id)
		}
	}

	for id := range t.entries.All() {
		if !holds[id] {
			report.Dangling = append(report.Dangling, id)
		}
	}
	report.FreeBytes = free.Bytes()

	return report, free, nil
}

// observe keeps generated ids above numeric ids already stored.
func (t *table) observe(id string) {
	if v, err := strconv.ParseInt(id, 10, 64); err == nil {
		t.ids.Observe(v)
	}
}

// allocate reserves an extent of at least n bytes, appending a page when no
// free extent fits. fresh is true for an extent on a page not yet written.
func (t *table) allocate(n int) (ext freelist.Extent, fresh bool) {
	if ext, ok := t.free.Allocate(n); ok {
		return ext, false
	}
	return freelist.Extent{Page: t.pages.Pages(), Offset: page.HeaderSize, Len: page.MaxFrame}, true
}

// cancel returns an unused allocation to the free list.
func (t *table) cancel(ext freelist.Extent, fresh bool) {
	if !fresh {
		t.free.Release(ext)
	}
}

// fit writes f into ext on p and returns the part of ext left free.
func fit(p *page.Page, ext freelist.Extent, f recordio.Frame) (freelist.Extent, error) {
	need := f.Size()
	rest := freelist.Extent{Page: ext.Page, Offset: ext.Offset + need, Len: ext.Len - need}

	switch {
	case ext.End() == page.Size:
		// Page tail: everything past the frame becomes unused space.
		f.Slot = need
		if err := p.Put(ext.Offset, f); err != nil {
			return freelist.Extent{}, err
		}
		p.SetUsed(ext.Offset + need)
		return rest, nil
	case rest.Len >= recordio.HeaderSize:
		f.Slot = need
		if err := p.Put(rest.Offset, recordio.Filler(rest.Len)); err != nil {
			return freelist.Extent{}, err
		}
		return rest, p.Put(ext.Offset, f)
	default:
		// Too little left for a filler frame; the slot absorbs it.
		f.Slot = ext.Len
		return freelist.Extent{}, p.Put(ext.Offset, f)
	}
}

// place allocates space for f, writes it and returns its location.
func (t *table) place(f recordio.Frame) (int64, int, error) {
	ext, fresh := t.allocate(f.Size())
	return t.placeAt(ext, fresh, f)
}

// placeAt writes f into an extent obtained from allocate.
func (t *table) placeAt(ext freelist.Extent, fresh bool, f recordio.Frame) (int64, int, error) {
	p, err := t.pages.ReadPage(ext.Page)
	if err != nil {
		t.cancel(ext, fresh)
		return 0, 0, err
	}

	rest, err := fit(p, ext, f)
	if err != nil {
		t.cancel(ext, fresh)
		return 0, 0, err
	}
	if err := t.writePage(ext.Page, p); err != nil {
		t.cancel(ext, fresh)
		return 0, 0, err
	}

	t.free.Release(rest)
	return ext.Page, ext.Offset, nil
}

// discard tombstones the frame at (n, off). It is used to undo a placement
// whose index update failed; failures are logged since recovery on the next
// open removes the frame anyway.
func (t *table) discard(n int64, off int) {
	p, err := t.pages.ReadPage(n)
	if err == nil {
		var f recordio.Frame
		if f, err = p.Tombstone(off); err == nil {
			if err = t.writePage(n, p); err == nil {
				t.free.Release(freelist.Extent{Page: n, Offset: off, Len: f.Slot})
				return
			}
		}
	}
	t.log.WithError(err).WithFields(logrus.Fields{"page": n, "offset": off}).
		Warn("failed to discard frame")
}

func (t *table) readPage(n int64) (*page.Page, error) {
	p, err := t.pages.ReadPage(n)
	if err != nil {
		return nil, err
	}
	if err := p.Verify(); err != nil {
		return nil, errors.Wrapf(ErrCorruption, "table %s page %d: %v", t.name, n, err)
	}
	return p, nil
}

func (t *table) writePage(n int64, p *page.Page) error {
	p.Seal()
	if err := t.pages.WritePage(n, p); err != nil {
		return err
	}
	if t.opts.sync {
		return t.pages.Sync()
	}
	return nil
}

// locate finds the live frame of id on page n. A missing frame means the
// index and the page file have drifted apart.
func (t *table) locate(id string, n int64) (*page.Page, int, recordio.Frame, error) {
	p, err := t.readPage(n)
	if err != nil {
		return nil, 0, recordio.Frame{}, err
	}

	off, f, ok, err := p.Find(id)
	if err != nil {
		return nil, 0, recordio.Frame{}, errors.Wrapf(ErrCorruption, "table %s page %d: %v", t.name, n, err)
	}
	if !ok {
		return nil, 0, recordio.Frame{}, errors.Wrapf(ErrCorruption, "table %s: record %s not found on indexed page %d", t.name, id, n)
	}
	return p, off, f, nil
}

func (t *table) encode(id string, r record.Record) (recordio.Frame, error) {
	return encodeFrame(id, r, t.opts.compression)
}

func encodeFrame(id string, r record.Record, c recordio.Compression) (recordio.Frame, error) {
	payload, err := record.Encode(r)
	if err != nil {
		return recordio.Frame{}, err
	}

	payload, applied, err := recordio.Compress(c, payload)
	if err != nil {
		return recordio.Frame{}, err
	}

	f := recordio.Frame{ID: id, Payload: payload}
	if f.Size() > page.MaxFrame {
		return f, errors.Wrapf(ErrSizeExceeded, "record %s needs %d bytes, a page holds %d", id, f.Size(), page.MaxFrame)
	}
	return f.WithCompression(applied), nil
}

func decodeFrame(f recordio.Frame) (record.Record, error) {
	payload, err := recordio.Decompress(f.Compression(), f.Payload)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruption, "record %s: %v", f.ID, err)
	}

	r, err := record.Decode(payload)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruption, "record %s: %v", f.ID, err)
	}
	return r, nil
}

// commitIndex saves the index after making the page writes it refers to
// durable, so the index never points at a page write that can still be lost.
func (t *table) commitIndex(ctx context.Context) error {
	if !t.opts.sync {
		if err := t.pages.Sync(); err != nil {
			return err
		}
	}
	return t.saveIndex(ctx)
}

func (t *table) saveIndex(ctx context.Context) error {
	if !t.entries.Dirty() {
		return nil
	}
	return t.store.Save(ctx, t.entries)
}
