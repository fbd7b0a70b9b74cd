package record_test

import (
	"encoding/json"
	"testing"

	"github.com/davidvella/pagestore/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_ID(t *testing.T) {
	tests := []struct {
		name    string
		record  record.Record
		want    string
		wantErr error
	}{
		{name: "int", record: record.Record{"id": 1}, want: "1"},
		{name: "int64", record: record.Record{"id": int64(1700000000000)}, want: "1700000000000"},
		{name: "json number", record: record.Record{"id": json.Number("42")}, want: "42"},
		{name: "integral float", record: record.Record{"id": float64(7)}, want: "7"},
		{name: "string", record: record.Record{"id": "abc"}, want: "abc"},
		{name: "missing", record: record.Record{"name": "A"}, wantErr: record.ErrMissingID},
		{name: "null", record: record.Record{"id": nil}, wantErr: record.ErrMissingID},
		{name: "empty string", record: record.Record{"id": ""}, wantErr: record.ErrInvalidID},
		{name: "fraction", record: record.Record{"id": 1.5}, wantErr: record.ErrInvalidID},
		{name: "fractional json number", record: record.Record{"id": json.Number("1.5")}, wantErr: record.ErrInvalidID},
		{name: "object", record: record.Record{"id": map[string]any{}}, wantErr: record.ErrInvalidID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.record.ID()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecord_Merge(t *testing.T) {
	original := record.Record{"id": json.Number("1"), "name": "A", "email": "a@x.com"}

	merged := original.Merge(record.Record{"name": "Z"})

	assert.Equal(t, record.Record{"id": json.Number("1"), "name": "Z", "email": "a@x.com"}, merged)
	assert.Equal(t, "A", original["name"], "merge must not modify the original")
}

func TestEncodeDecode(t *testing.T) {
	r := record.Record{"id": json.Number("1"), "name": "A", "email": "a@x.com"}

	b, err := record.Encode(r)
	require.NoError(t, err)
	assert.Equal(t, `{"email":"a@x.com","id":1,"name":"A"}`, string(b))

	got, err := record.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, r, got)
}

func TestDecodeRejectsNonObjects(t *testing.T) {
	_, err := record.Decode([]byte(`null`))
	assert.ErrorIs(t, err, record.ErrNotObject)

	_, err = record.Decode([]byte(`[1,2]`))
	assert.Error(t, err)
}

func TestSplitPacked(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantErr bool
	}{
		{
			name: "single record",
			raw:  `{"id":1,"name":"A"}`,
			want: []string{`{"id":1,"name":"A"}`},
		},
		{
			name: "two records with trailing zeros",
			raw:  `{"id":1,"name":"A"}{"id":2,"name":"B"}` + "\x00\x00\x00",
			want: []string{`{"id":1,"name":"A"}`, `{"id":2,"name":"B"}`},
		},
		{
			name: "braces inside strings",
			raw:  `{"id":1,"name":"}{"}{"id":2,"name":"\"{"}`,
			want: []string{`{"id":1,"name":"}{"}`, `{"id":2,"name":"\"{"}`},
		},
		{
			name: "empty page",
			raw:  "\x00\x00",
			want: nil,
		},
		{
			name:    "truncated",
			raw:     `{"id":1}{"id":2`,
			want:    []string{`{"id":1}`},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, err := record.SplitPacked([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, record.ErrUnbalanced)
			} else {
				require.NoError(t, err)
			}

			var got []string
			for _, p := range parts {
				got = append(got, string(p))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindPacked(t *testing.T) {
	raw := []byte(`{"id":1,"name":"A","email":"a@x.com"}{"id":2,"name":"B","email":"b@x.com"}` + "\x00\x00")

	r, ok, err := record.FindPacked(raw, "2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", r["name"])

	_, ok, err = record.FindPacked(raw, "3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFindPacked_LatestVersion(t *testing.T) {
	raw := []byte(`{"id":1,"name":"A"}{"id":2,"name":"B"}{"id":1,"name":"C"}`)

	r, ok, err := record.FindPacked(raw, "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "C", r["name"])

	assert.Nil(t, record.Latest(nil, "1"))
}
