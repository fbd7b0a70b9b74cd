// Package pagefile provides fixed-size page access to a table's backing
// file. Pages are addressed by index; page n lives at byte offset
// n*page.Size. The file only grows, one page at a time.
package pagefile

import (
	"bytes"
	"io"
	"os"

	"github.com/davidvella/pagestore/page"
	"github.com/pkg/errors"
)

// File is a page file opened for reading and writing.
type File struct {
	f     *os.File
	path  string
	pages int64
}

// OpenOrCreate opens the page file at path, creating it with one
// zero-filled page if it does not exist. It is idempotent.
func OpenOrCreate(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open page file %s", path)
	}

	pf, err := newFile(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}

	if pf.pages == 0 {
		var empty page.Page
		if err := pf.WritePage(0, &empty); err != nil {
			f.Close()
			return nil, err
		}
	}
	return pf, nil
}

// Open opens an existing page file for reading only. WritePage on the
// returned file fails.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open page file %s", path)
	}

	pf, err := newFile(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return pf, nil
}

func newFile(f *os.File, path string) (*File, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat page file %s", path)
	}

	// A trailing partial page counts as a page; its missing bytes read as zero.
	pages := (info.Size() + page.Size - 1) / page.Size

	return &File{f: f, path: path, pages: pages}, nil
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Pages returns the number of pages in the file.
func (f *File) Pages() int64 {
	return f.pages
}

// ReadPage reads page n. Bytes beyond the end of the file read as zero.
func (f *File) ReadPage(n int64) (*page.Page, error) {
	if n < 0 {
		return nil, errors.Errorf("invalid page index %d", n)
	}

	var p page.Page
	_, err := f.f.ReadAt(p[:], n*page.Size)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrapf(err, "failed to read page %d of %s", n, f.path)
	}
	return &p, nil
}

// WritePage writes p as page n, extending the file if needed.
func (f *File) WritePage(n int64, p *page.Page) error {
	if n < 0 {
		return errors.Errorf("invalid page index %d", n)
	}

	if _, err := f.f.WriteAt(p[:], n*page.Size); err != nil {
		return errors.Wrapf(err, "failed to write page %d of %s", n, f.path)
	}
	if n >= f.pages {
		f.pages = n + 1
	}
	return nil
}

// FindFreeOffset returns the offset of the first zero byte in page n, or
// false if the page has none. Everything before that byte is assumed to be
// densely packed records, which only holds for pages written back to back
// with records that never contain a zero byte.
func (f *File) FindFreeOffset(n int64) (int, bool, error) {
	p, err := f.ReadPage(n)
	if err != nil {
		return 0, false, err
	}

	off := bytes.IndexByte(p[:], 0)
	if off < 0 {
		return 0, false, nil
	}
	return off, true, nil
}

// Sync commits the file contents to stable storage.
func (f *File) Sync() error {
	if err := f.f.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync page file %s", f.path)
	}
	return nil
}

func (f *File) Close() error {
	return f.f.Close()
}
