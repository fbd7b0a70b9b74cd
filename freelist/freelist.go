// Package freelist tracks reclaimed byte extents inside table pages and
// hands them out best-fit.
//
// Every extent is indexed twice: by size, to find the smallest extent that
// fits, and by position, to merge an extent with its free neighbours when it
// is released. An extent ending at the page size is the page tail.
package freelist

import (
	"cmp"

	"github.com/google/btree"
)

const degree = 8

// Extent is a run of free bytes within one page.
type Extent struct {
	Page   int64
	Offset int
	Len    int
}

// End returns the offset one past the extent.
func (e Extent) End() int {
	return e.Offset + e.Len
}

func bySize(a, b Extent) bool {
	if c := cmp.Compare(a.Len, b.Len); c != 0 {
		return c < 0
	}
	return byPos(a, b)
}

func byPos(a, b Extent) bool {
	if c := cmp.Compare(a.Page, b.Page); c != 0 {
		return c < 0
	}
	return a.Offset < b.Offset
}

// List is a set of non-overlapping free extents.
type List struct {
	size  *btree.BTreeG[Extent]
	pos   *btree.BTreeG[Extent]
	bytes int
}

func New() *List {
	return &List{
		size: btree.NewG[Extent](degree, bySize),
		pos:  btree.NewG[Extent](degree, byPos),
	}
}

// Len returns the number of extents.
func (l *List) Len() int {
	return l.pos.Len()
}

// Bytes returns the total number of free bytes.
func (l *List) Bytes() int {
	return l.bytes
}

// Allocate removes and returns the smallest extent of at least n bytes.
// Ties go to the lowest page and offset.
func (l *List) Allocate(n int) (Extent, bool) {
	var (
		found Extent
		ok    bool
	)
	l.size.AscendGreaterOrEqual(Extent{Len: n, Page: -1}, func(e Extent) bool {
		found, ok = e, true
		return false
	})
	if ok {
		l.remove(found)
	}
	return found, ok
}

// Release returns e to the list, merging it with adjacent free extents on
// the same page. The merged extent is returned.
func (l *List) Release(e Extent) Extent {
	if e.Len <= 0 {
		return e
	}

	var (
		prev    Extent
		hasPrev bool
	)
	l.pos.DescendLessOrEqual(e, func(p Extent) bool {
		prev, hasPrev = p, p.Page == e.Page && p.End() == e.Offset
		return false
	})
	if hasPrev {
		l.remove(prev)
		e = Extent{Page: e.Page, Offset: prev.Offset, Len: prev.Len + e.Len}
	}

	if next, ok := l.pos.Get(Extent{Page: e.Page, Offset: e.End()}); ok {
		l.remove(next)
		e.Len += next.Len
	}

	l.size.ReplaceOrInsert(e)
	l.pos.ReplaceOrInsert(e)
	l.bytes += e.Len
	return e
}

// Page returns the extents of page n in offset order.
func (l *List) Page(n int64) []Extent {
	var out []Extent
	l.pos.AscendRange(Extent{Page: n}, Extent{Page: n + 1}, func(e Extent) bool {
		out = append(out, e)
		return true
	})
	return out
}

// All returns every extent in position order.
func (l *List) All() []Extent {
	out := make([]Extent, 0, l.pos.Len())
	l.pos.Ascend(func(e Extent) bool {
		out = append(out, e)
		return true
	})
	return out
}

func (l *List) remove(e Extent) {
	l.size.Delete(e)
	l.pos.Delete(e)
	l.bytes -= e.Len
}
