// Package legacy reads tables written in the baseline layout, where records
// are JSON objects packed back to back from the start of each page with no
// framing, page header or checksum, and moves them into an engine.
//
// Free space in a baseline page is found by scanning for the first zero
// byte, and a record is located by decoding its whole page. Both are
// heuristics; the package only reads such tables and never writes them.
package legacy

import (
	"context"
	"iter"
	"os"
	"path/filepath"

	"github.com/davidvella/pagestore"
	"github.com/davidvella/pagestore/index"
	"github.com/davidvella/pagestore/page"
	"github.com/davidvella/pagestore/pagefile"
	"github.com/davidvella/pagestore/record"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Table is an open baseline table.
type Table struct {
	name    string
	pages   *pagefile.File
	entries *index.Map
}

// Open opens the baseline table name in dir. Both the page file and the
// index must exist.
func Open(ctx context.Context, dir, name string) (*Table, error) {
	idx := index.NewFileStore(filepath.Join(dir, name+".idx"))
	if _, err := os.Stat(idx.Path()); err != nil {
		return nil, errors.Wrapf(err, "failed to open legacy index for %s", name)
	}

	entries, err := idx.Load(ctx)
	if err != nil {
		return nil, err
	}

	pages, err := pagefile.Open(filepath.Join(dir, name+".dat"))
	if err != nil {
		return nil, err
	}

	return &Table{name: name, pages: pages, entries: entries}, nil
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Len returns the number of indexed records.
func (t *Table) Len() int {
	return t.entries.Len()
}

// Find returns the record with the given id. The boolean is false when the
// index has no such id, or when its page no longer holds it. When the page
// holds several versions of the record, the last one is returned.
func (t *Table) Find(ctx context.Context, id string) (record.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	n, ok := t.entries.Get(id)
	if !ok {
		return nil, false, nil
	}

	p, err := t.pages.ReadPage(n)
	if err != nil {
		return nil, false, err
	}
	r, ok, err := record.FindPacked(p.Bytes(), id)
	if err != nil {
		return nil, false, errors.Wrapf(err, "table %s page %d", t.name, n)
	}
	return r, ok, nil
}

// Records yields every indexed record in id order. Copies left by baseline
// updates, on other pages or earlier on the same page, are not yielded. Ids whose page does not hold
// them yield a nil record and an error.
func (t *Table) Records(ctx context.Context) iter.Seq2[record.Record, error] {
	return func(yield func(record.Record, error) bool) {
		decoded := make(map[int64][]record.Record)

		for id, n := range t.entries.All() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			records, ok := decoded[n]
			if !ok {
				var err error
				if records, err = t.decodePage(n); err != nil {
					if !yield(nil, err) {
						return
					}
					continue
				}
				decoded[n] = records
			}

			r := record.Latest(records, id)
			if r == nil {
				if !yield(nil, errors.Errorf("table %s: record %s not found on page %d", t.name, id, n)) {
					return
				}
				continue
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (t *Table) decodePage(n int64) ([]record.Record, error) {
	p, err := t.pages.ReadPage(n)
	if err != nil {
		return nil, err
	}
	records, err := record.DecodePacked(p.Bytes())
	if err != nil {
		return nil, errors.Wrapf(err, "table %s page %d", t.name, n)
	}
	return records, nil
}

// PageUsage is the space a baseline page appears to use.
type PageUsage struct {
	Page int64
	Used int
	Full bool
}

// Occupancy reports, for every page, the offset of its first zero byte.
// A page without one is reported as full.
func (t *Table) Occupancy(ctx context.Context) ([]PageUsage, error) {
	usage := make([]PageUsage, 0, t.pages.Pages())
	for n := range t.pages.Pages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		off, ok, err := t.pages.FindFreeOffset(n)
		if err != nil {
			return nil, err
		}
		if !ok {
			usage = append(usage, PageUsage{Page: n, Used: page.Size, Full: true})
			continue
		}
		usage = append(usage, PageUsage{Page: n, Used: off})
	}
	return usage, nil
}

func (t *Table) Close() error {
	return t.pages.Close()
}

// MigrateStats summarizes a migration.
type MigrateStats struct {
	Migrated int
	// Existing counts records already present in the destination table.
	Existing int
	// Missing counts indexed ids that could not be read from their page.
	Missing int
}

// Migrate inserts every indexed record of src into table on dst. Records
// already present in dst are left as they are, so an interrupted migration
// can be run again.
func Migrate(ctx context.Context, src *Table, dst *pagestore.Engine, table string, log logrus.FieldLogger) (MigrateStats, error) {
	var stats MigrateStats
	log = log.WithFields(logrus.Fields{"source": src.name, "table": table})

	for r, err := range src.Records(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return stats, err
			}
			log.WithError(err).Warn("skipping unreadable record")
			stats.Missing++
			continue
		}

		err := dst.Insert(ctx, table, r)
		switch {
		case err == nil:
			stats.Migrated++
		case errors.Is(err, pagestore.ErrDuplicateID):
			stats.Existing++
		default:
			id, _ := r.ID()
			return stats, errors.Wrapf(err, "failed to migrate record %s", id)
		}
	}

	log.WithFields(logrus.Fields{
		"migrated": stats.Migrated,
		"existing": stats.Existing,
		"missing":  stats.Missing,
	}).Info("migration finished")
	return stats, nil
}
