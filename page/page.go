// Package page defines the fixed-size page used by table files.
//
// Page layout:
//
//	[0:4)     checksum  xxhash32 of bytes [4:Size), zero on a never-written page
//	[4:6)     used      end of the last frame; zero reads as HeaderSize
//	[6:8)     live      number of live frames
//	[8:16)    reserved
//	[16:used) frames, see package recordio
//
// Bytes in [used:Size) are free. A page whose checksum and used fields are
// both zero is a valid empty page, which covers freshly allocated file space.
package page

import (
	"bytes"
	"encoding/binary"

	"github.com/OneOfOne/xxhash"
	"github.com/davidvella/pagestore/recordio"
	"github.com/pkg/errors"
)

const (
	// Size is the size of every page in bytes. Changing it requires
	// migrating existing table files.
	Size       = 4096
	HeaderSize = 16
	// MaxFrame is the largest frame that fits in an empty page.
	MaxFrame = Size - HeaderSize

	checksumOffset = 0
	usedOffset     = 4
	liveOffset     = 6
)

var (
	ErrChecksum     = errors.New("page: checksum mismatch")
	ErrOutOfBounds  = errors.New("page: frame outside page bounds")
	ErrNotLive      = errors.New("page: frame already deleted")
	ErrCorruptFrame = errors.New("page: corrupt frame")
)

// Page is a raw page buffer.
type Page [Size]byte

// Bytes returns the page contents.
func (p *Page) Bytes() []byte {
	return p[:]
}

// Used returns the offset of the first free byte after the last frame.
func (p *Page) Used() int {
	used := int(binary.LittleEndian.Uint16(p[usedOffset:]))
	if used < HeaderSize {
		return HeaderSize
	}
	return used
}

// SetUsed moves the end of the frame area. Frames past used are discarded.
func (p *Page) SetUsed(used int) {
	binary.LittleEndian.PutUint16(p[usedOffset:], uint16(used))
}

// Free returns the number of bytes after the last frame.
func (p *Page) Free() int {
	return Size - p.Used()
}

// Live returns the number of live frames on the page.
func (p *Page) Live() int {
	return int(binary.LittleEndian.Uint16(p[liveOffset:]))
}

func (p *Page) setLive(n int) {
	binary.LittleEndian.PutUint16(p[liveOffset:], uint16(n))
}

// Empty reports whether the page has never been sealed.
func (p *Page) Empty() bool {
	return binary.LittleEndian.Uint32(p[checksumOffset:]) == 0 &&
		binary.LittleEndian.Uint16(p[usedOffset:]) == 0
}

// Seal stores the checksum of the page body in the header.
func (p *Page) Seal() {
	binary.LittleEndian.PutUint32(p[checksumOffset:], xxhash.Checksum32(p[usedOffset:]))
}

// Verify checks the page checksum.
func (p *Page) Verify() error {
	if p.Empty() {
		return nil
	}
	want := binary.LittleEndian.Uint32(p[checksumOffset:])
	if got := xxhash.Checksum32(p[usedOffset:]); got != want {
		return errors.Wrapf(ErrChecksum, "stored %08x, computed %08x", want, got)
	}
	return nil
}

// Put writes f at off, zeroing the rest of its slot. The used counter grows
// to cover the slot and live frames are counted.
func (p *Page) Put(off int, f recordio.Frame) error {
	slot := f.SlotSize()
	if off < HeaderSize || off+slot > Size {
		return errors.Wrapf(ErrOutOfBounds, "offset %d slot %d", off, slot)
	}

	var buf bytes.Buffer
	if _, err := recordio.Write(&buf, f); err != nil {
		return err
	}
	n := copy(p[off:], buf.Bytes())
	clear(p[off+n : off+slot])

	if end := off + slot; end > p.Used() {
		p.SetUsed(end)
	}
	if !f.Deleted() {
		p.setLive(p.Live() + 1)
	}
	return nil
}

// Frame reads the frame stored at off.
func (p *Page) Frame(off int) (recordio.Frame, error) {
	used := p.Used()
	if off < HeaderSize || off+recordio.HeaderSize > used {
		return recordio.Frame{}, errors.Wrapf(ErrOutOfBounds, "offset %d", off)
	}
	f, err := recordio.ReadFrame(bytes.NewReader(p[off:used]))
	if err != nil {
		return recordio.Frame{}, errors.Wrapf(ErrCorruptFrame, "offset %d: %v", off, err)
	}
	if off+f.Slot > used {
		return recordio.Frame{}, errors.Wrapf(recordio.ErrShortFrame, "offset %d slot %d", off, f.Slot)
	}
	return f, nil
}

// Tombstone marks the frame at off as deleted and returns it.
func (p *Page) Tombstone(off int) (recordio.Frame, error) {
	f, err := p.Frame(off)
	if err != nil {
		return f, err
	}
	if f.Deleted() {
		return f, ErrNotLive
	}
	p[off] |= byte(recordio.FlagTombstone)
	p.setLive(p.Live() - 1)
	f.Flags |= recordio.FlagTombstone
	return f, nil
}

// Scan calls fn for every frame between the header and used, in offset
// order. Scanning stops at the first error returned by fn.
func (p *Page) Scan(fn func(off int, f recordio.Frame) error) error {
	used := p.Used()
	for off := HeaderSize; off < used; {
		f, err := p.Frame(off)
		if err != nil {
			return err
		}
		if err := fn(off, f); err != nil {
			return err
		}
		off += f.Slot
	}
	return nil
}

var errStop = errors.New("stop")

// Find returns the live frame with the given id.
func (p *Page) Find(id string) (int, recordio.Frame, bool, error) {
	var (
		at    int
		found recordio.Frame
		ok    bool
	)
	err := p.Scan(func(off int, f recordio.Frame) error {
		if f.Deleted() || f.ID != id {
			return nil
		}
		at, found, ok = off, f, true
		return errStop
	})
	if err != nil && !errors.Is(err, errStop) {
		return 0, recordio.Frame{}, false, err
	}
	return at, found, ok, nil
}
