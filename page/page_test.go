package page

import (
	"testing"

	"github.com/davidvella/pagestore/recordio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(id, payload string) recordio.Frame {
	return recordio.Frame{ID: id, Payload: []byte(payload)}
}

func TestPage_Empty(t *testing.T) {
	var p Page

	assert.True(t, p.Empty())
	assert.NoError(t, p.Verify())
	assert.Equal(t, HeaderSize, p.Used())
	assert.Equal(t, MaxFrame, p.Free())
	assert.Equal(t, 0, p.Live())

	calls := 0
	require.NoError(t, p.Scan(func(int, recordio.Frame) error {
		calls++
		return nil
	}))
	assert.Zero(t, calls)
}

func TestPage_PutAndFind(t *testing.T) {
	var p Page

	first := frame("1", `{"id":1,"name":"A"}`)
	second := frame("2", `{"id":2,"name":"B"}`)

	require.NoError(t, p.Put(HeaderSize, first))
	require.NoError(t, p.Put(HeaderSize+first.Size(), second))

	assert.Equal(t, HeaderSize+first.Size()+second.Size(), p.Used())
	assert.Equal(t, 2, p.Live())

	off, got, ok, err := p.Find("2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, HeaderSize+first.Size(), off)
	assert.Equal(t, second.Payload, got.Payload)

	_, _, ok, err = p.Find("3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPage_PutOutOfBounds(t *testing.T) {
	var p Page

	assert.ErrorIs(t, p.Put(0, frame("1", "x")), ErrOutOfBounds)
	assert.ErrorIs(t, p.Put(Size-4, frame("1", "x")), ErrOutOfBounds)
}

func TestPage_PutPaddedSlot(t *testing.T) {
	var p Page

	f := frame("1", "abc")
	f.Slot = 64
	require.NoError(t, p.Put(HeaderSize, f))
	require.NoError(t, p.Put(HeaderSize+64, frame("2", "def")))

	var offsets []int
	require.NoError(t, p.Scan(func(off int, f recordio.Frame) error {
		offsets = append(offsets, off)
		return nil
	}))
	assert.Equal(t, []int{HeaderSize, HeaderSize + 64}, offsets)
}

func TestPage_Tombstone(t *testing.T) {
	var p Page

	first := frame("1", `{"id":1}`)
	require.NoError(t, p.Put(HeaderSize, first))
	require.NoError(t, p.Put(HeaderSize+first.Size(), frame("2", `{"id":2}`)))

	f, err := p.Tombstone(HeaderSize)
	require.NoError(t, err)
	assert.True(t, f.Deleted())
	assert.Equal(t, 1, p.Live())

	_, err = p.Tombstone(HeaderSize)
	assert.ErrorIs(t, err, ErrNotLive)

	_, _, ok, err := p.Find("1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, ok, err = p.Find("2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPage_SealAndVerify(t *testing.T) {
	var p Page
	require.NoError(t, p.Put(HeaderSize, frame("1", `{"id":1}`)))
	p.Seal()

	assert.False(t, p.Empty())
	require.NoError(t, p.Verify())

	p[HeaderSize+10] ^= 0xFF
	assert.ErrorIs(t, p.Verify(), ErrChecksum)
}

func TestPage_SetUsedDiscardsFrames(t *testing.T) {
	var p Page

	first := frame("1", `{"id":1}`)
	require.NoError(t, p.Put(HeaderSize, first))
	require.NoError(t, p.Put(HeaderSize+first.Size(), frame("2", `{"id":2}`)))

	p.SetUsed(HeaderSize + first.Size())

	_, _, ok, err := p.Find("2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPage_ScanCorruptSlot(t *testing.T) {
	var p Page

	require.NoError(t, p.Put(HeaderSize, frame("1", `{"id":1}`)))
	// slot field of the first frame now points past used
	p[HeaderSize+1] = 0xFF
	p[HeaderSize+2] = 0x0F

	err := p.Scan(func(int, recordio.Frame) error { return nil })
	assert.ErrorIs(t, err, recordio.ErrShortFrame)
}
