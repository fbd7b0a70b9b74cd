package freelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_AllocateBestFit(t *testing.T) {
	l := New()
	l.Release(Extent{Page: 0, Offset: 100, Len: 50})
	l.Release(Extent{Page: 1, Offset: 16, Len: 30})
	l.Release(Extent{Page: 2, Offset: 16, Len: 30})
	l.Release(Extent{Page: 3, Offset: 500, Len: 3596})

	tests := []struct {
		name   string
		n      int
		want   Extent
		wantOK bool
	}{
		{name: "smallest fitting, lowest page", n: 20, want: Extent{Page: 1, Offset: 16, Len: 30}, wantOK: true},
		{name: "tie goes to next page", n: 30, want: Extent{Page: 2, Offset: 16, Len: 30}, wantOK: true},
		{name: "larger hole", n: 31, want: Extent{Page: 0, Offset: 100, Len: 50}, wantOK: true},
		{name: "tail", n: 1000, want: Extent{Page: 3, Offset: 500, Len: 3596}, wantOK: true},
		{name: "nothing left", n: 10, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := l.Allocate(tt.n)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Zero(t, l.Len())
	assert.Zero(t, l.Bytes())
}

func TestList_ReleaseCoalesces(t *testing.T) {
	tests := []struct {
		name    string
		release []Extent
		want    []Extent
	}{
		{
			name: "merge with previous",
			release: []Extent{
				{Page: 0, Offset: 16, Len: 20},
				{Page: 0, Offset: 36, Len: 10},
			},
			want: []Extent{{Page: 0, Offset: 16, Len: 30}},
		},
		{
			name: "merge with next",
			release: []Extent{
				{Page: 0, Offset: 36, Len: 10},
				{Page: 0, Offset: 16, Len: 20},
			},
			want: []Extent{{Page: 0, Offset: 16, Len: 30}},
		},
		{
			name: "merge both sides",
			release: []Extent{
				{Page: 0, Offset: 16, Len: 20},
				{Page: 0, Offset: 56, Len: 4040},
				{Page: 0, Offset: 36, Len: 20},
			},
			want: []Extent{{Page: 0, Offset: 16, Len: 4080}},
		},
		{
			name: "gap keeps extents apart",
			release: []Extent{
				{Page: 0, Offset: 16, Len: 20},
				{Page: 0, Offset: 40, Len: 10},
			},
			want: []Extent{{Page: 0, Offset: 16, Len: 20}, {Page: 0, Offset: 40, Len: 10}},
		},
		{
			name: "pages never merge",
			release: []Extent{
				{Page: 0, Offset: 4000, Len: 96},
				{Page: 1, Offset: 16, Len: 10},
			},
			want: []Extent{{Page: 0, Offset: 4000, Len: 96}, {Page: 1, Offset: 16, Len: 10}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			total := 0
			for _, e := range tt.release {
				l.Release(e)
				total += e.Len
			}
			assert.Equal(t, tt.want, l.All())
			assert.Equal(t, total, l.Bytes())
		})
	}
}

func TestList_ReleaseReturnsMerged(t *testing.T) {
	l := New()
	l.Release(Extent{Page: 2, Offset: 100, Len: 3996})

	merged := l.Release(Extent{Page: 2, Offset: 60, Len: 40})
	assert.Equal(t, Extent{Page: 2, Offset: 60, Len: 4036}, merged)
	assert.Equal(t, 4096, merged.End())

	// The merged extent is allocatable as one unit.
	got, ok := l.Allocate(4000)
	require.True(t, ok)
	assert.Equal(t, merged, got)
}

func TestList_Page(t *testing.T) {
	l := New()
	l.Release(Extent{Page: 1, Offset: 200, Len: 10})
	l.Release(Extent{Page: 0, Offset: 16, Len: 10})
	l.Release(Extent{Page: 1, Offset: 16, Len: 10})
	l.Release(Extent{Page: 2, Offset: 16, Len: 10})

	assert.Equal(t, []Extent{
		{Page: 1, Offset: 16, Len: 10},
		{Page: 1, Offset: 200, Len: 10},
	}, l.Page(1))
	assert.Empty(t, l.Page(5))
}

func TestList_ReleaseEmpty(t *testing.T) {
	l := New()
	l.Release(Extent{Page: 0, Offset: 16, Len: 0})
	assert.Zero(t, l.Len())
}
