package recordio

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var (
	Uint8Size  = binary.Size(uint8(0))
	Uint16Size = binary.Size(uint16(0))
	// HeaderSize is the fixed part of a frame: flags, slot, id length and
	// payload length.
	HeaderSize = Uint8Size + 3*Uint16Size
	// MaxFieldSize is the largest id or payload a frame can describe.
	MaxFieldSize = int(^uint16(0))

	ErrShortFrame   = errors.New("recordio: frame extends past end of buffer")
	ErrSlotTooSmall = errors.New("recordio: slot smaller than encoded frame")
	ErrFieldTooLong = errors.New("recordio: field exceeds maximum frame field size")
)

// Flag holds the per-frame flag bits.
type Flag uint8

const (
	FlagTombstone Flag = 1 << 0

	compressionShift      = 1
	compressionMask  Flag = 0b11 << compressionShift
)

// Frame is a single record as laid out inside a page. Slot is the number of
// bytes reserved for the frame, header included; zero means Size().
type Frame struct {
	Flags   Flag
	Slot    int
	ID      string
	Payload []byte
}

// Filler returns a tombstone frame that only reserves slot bytes.
func Filler(slot int) Frame {
	return Frame{Flags: FlagTombstone, Slot: slot}
}

// Size is the number of bytes the frame encodes to, excluding padding.
func (f Frame) Size() int {
	return Size(f.ID, f.Payload)
}

// SlotSize is the number of bytes the frame occupies in a page.
func (f Frame) SlotSize() int {
	if f.Slot == 0 {
		return f.Size()
	}
	return f.Slot
}

func (f Frame) Deleted() bool {
	return f.Flags&FlagTombstone != 0
}

func (f Frame) Compression() Compression {
	return Compression((f.Flags & compressionMask) >> compressionShift)
}

// WithCompression returns a copy of f marked as compressed with c.
func (f Frame) WithCompression(c Compression) Frame {
	f.Flags = f.Flags&^compressionMask | Flag(c)<<compressionShift&compressionMask
	return f
}

// Size calculates the number of bytes a frame with the given id and payload
// occupies when written.
func Size(id string, payload []byte) int {
	return HeaderSize + len(id) + len(payload)
}

// BinaryWriter handles writing binary data with error handling.
type BinaryWriter struct {
	w io.Writer
}

func NewBinaryWriter(w io.Writer) BinaryWriter {
	return BinaryWriter{w: w}
}

func (bw BinaryWriter) WriteUint8(v uint8) (int64, error) {
	if err := binary.Write(bw.w, binary.LittleEndian, v); err != nil {
		return 0, err
	}
	return int64(Uint8Size), nil
}

func (bw BinaryWriter) WriteUint16(v uint16) (int64, error) {
	if err := binary.Write(bw.w, binary.LittleEndian, v); err != nil {
		return 0, err
	}
	return int64(Uint16Size), nil
}

func (bw BinaryWriter) WriteString(s string) (int64, error) {
	return bw.WriteBytes([]byte(s))
}

func (bw BinaryWriter) WriteBytes(b []byte) (int64, error) {
	if len(b) > MaxFieldSize {
		return 0, ErrFieldTooLong
	}

	if err := binary.Write(bw.w, binary.LittleEndian, uint16(len(b))); err != nil {
		return 0, errors.Wrap(err, "error writing length")
	}

	n, err := bw.w.Write(b)
	if err != nil {
		return int64(Uint16Size), errors.Wrap(err, "error writing content")
	}

	return int64(Uint16Size + n), nil
}

// BinaryReader handles reading binary data with error handling.
type BinaryReader struct {
	r io.Reader
}

func NewBinaryReader(r io.Reader) BinaryReader {
	return BinaryReader{r: r}
}

func (br BinaryReader) ReadUint8() (uint8, error) {
	var v uint8
	err := binary.Read(br.r, binary.LittleEndian, &v)
	return v, err
}

func (br BinaryReader) ReadUint16() (uint16, error) {
	var v uint16
	err := binary.Read(br.r, binary.LittleEndian, &v)
	return v, err
}

func (br BinaryReader) ReadString() (string, error) {
	b, err := br.ReadBytes()
	return string(b), err
}

func (br BinaryReader) ReadBytes() ([]byte, error) {
	var length uint16
	if err := binary.Read(br.r, binary.LittleEndian, &length); err != nil {
		return nil, errors.Wrap(err, "error reading length")
	}

	b := make([]byte, length)
	if _, err := io.ReadFull(br.r, b); err != nil {
		return nil, errors.Wrap(err, "error reading content")
	}
	return b, nil
}

// Write writes a single frame to the writer. Padding up to the slot size is
// not written; callers placing frames in a page own the bytes after it.
func Write(w io.Writer, f Frame) (int64, error) {
	slot := f.SlotSize()
	if slot < f.Size() {
		return 0, ErrSlotTooSmall
	}
	if slot > MaxFieldSize {
		return 0, ErrFieldTooLong
	}

	var (
		totalBytes int64
		n          int64
		err        error
	)

	bw := NewBinaryWriter(w)

	n, err = bw.WriteUint8(uint8(f.Flags))
	if err != nil {
		return totalBytes, errors.Wrap(err, "error writing flags")
	}
	totalBytes += n

	n, err = bw.WriteUint16(uint16(slot))
	if err != nil {
		return totalBytes, errors.Wrap(err, "error writing slot")
	}
	totalBytes += n

	n, err = bw.WriteString(f.ID)
	totalBytes += n
	if err != nil {
		return totalBytes, errors.Wrap(err, "error writing ID")
	}

	n, err = bw.WriteBytes(f.Payload)
	totalBytes += n
	if err != nil {
		return totalBytes, errors.Wrap(err, "error writing payload")
	}

	return totalBytes, nil
}

// ReadFrame reads a single frame from the reader. The reader is left
// positioned after the payload, not after the slot.
func ReadFrame(r io.Reader) (Frame, error) {
	br := NewBinaryReader(r)

	flags, err := br.ReadUint8()
	if err != nil {
		return Frame{}, errors.Wrap(err, "error reading flags")
	}

	slot, err := br.ReadUint16()
	if err != nil {
		return Frame{}, errors.Wrap(err, "error reading slot")
	}

	id, err := br.ReadString()
	if err != nil {
		return Frame{}, errors.Wrap(err, "error reading ID")
	}

	payload, err := br.ReadBytes()
	if err != nil {
		return Frame{}, errors.Wrap(err, "error reading payload")
	}

	f := Frame{
		Flags:   Flag(flags),
		Slot:    int(slot),
		ID:      id,
		Payload: payload,
	}
	if f.Slot < f.Size() {
		return Frame{}, ErrSlotTooSmall
	}
	return f, nil
}
