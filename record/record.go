// Package record defines the flat, JSON-object shaped records kept in a
// table, and their textual encoding.
//
// Numbers decode as json.Number so integer ids and values come back exactly
// as written.
package record

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// IDField is the name of the field every record must carry.
const IDField = "id"

var (
	ErrMissingID = errors.New("record: missing id field")
	ErrInvalidID = errors.New("record: id must be a string or an integer")
	ErrNotObject = errors.New("record: value is not a JSON object")
)

// Record is a single flat record.
type Record map[string]any

// ID returns the string form of the record's id field.
func (r Record) ID() (string, error) {
	v, ok := r[IDField]
	if !ok || v == nil {
		return "", ErrMissingID
	}
	return FormatID(v)
}

// FormatID returns the canonical string form of an id value. Integers of any
// Go type and their json.Number form share the same representation, so
// records created in memory and records read back from disk agree.
func FormatID(v any) (string, error) {
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", ErrInvalidID
		}
		return id, nil
	case json.Number:
		if i, err := id.Int64(); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		return "", errors.Wrapf(ErrInvalidID, "%s", id)
	case int:
		return strconv.FormatInt(int64(id), 10), nil
	case int32:
		return strconv.FormatInt(int64(id), 10), nil
	case int64:
		return strconv.FormatInt(id, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(id), 10), nil
	case uint64:
		return strconv.FormatUint(id, 10), nil
	case float64:
		if id != math.Trunc(id) || math.Abs(id) >= math.MaxInt64 {
			return "", errors.Wrapf(ErrInvalidID, "%v", id)
		}
		return strconv.FormatInt(int64(id), 10), nil
	default:
		return "", errors.Wrapf(ErrInvalidID, "%T", v)
	}
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with every field of fields laid over it.
func (r Record) Merge(fields Record) Record {
	out := r.Clone()
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Encode serializes r as compact JSON with sorted keys.
func Encode(r Record) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "encode record")
	}
	return b, nil
}

// Decode parses a single JSON object.
func Decode(b []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var r Record
	if err := dec.Decode(&r); err != nil {
		return nil, errors.Wrap(err, "decode record")
	}
	if r == nil {
		return nil, ErrNotObject
	}
	return r, nil
}
