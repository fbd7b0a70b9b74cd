package record

import (
	"bytes"

	"github.com/pkg/errors"
)

var ErrUnbalanced = errors.New("record: unbalanced object in packed page")

// SplitPacked splits raw page bytes holding JSON objects written back to back
// with no separator. Trailing zero bytes are trimmed first. Boundaries are
// found by matching top-level braces, skipping braces inside strings.
func SplitPacked(raw []byte) ([][]byte, error) {
	raw = bytes.TrimRight(raw, "\x00")

	var (
		out      [][]byte
		depth    int
		start    int
		inString bool
		escaped  bool
	)
	for i, c := range raw {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth < 0 {
				return out, errors.Wrapf(ErrUnbalanced, "offset %d", i)
			}
			if depth == 0 {
				out = append(out, raw[start:i+1])
			}
		}
	}
	if depth != 0 || inString {
		return out, errors.Wrapf(ErrUnbalanced, "offset %d", start)
	}
	return out, nil
}

// DecodePacked decodes every record in a packed page.
func DecodePacked(raw []byte) ([]Record, error) {
	parts, err := SplitPacked(raw)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(parts))
	for _, part := range parts {
		r, err := Decode(part)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// FindPacked returns the record in a packed page whose id is id. Updates in
// the packed layout append the new version after the old one, so when the
// id occurs more than once the last occurrence is the current record.
func FindPacked(raw []byte, id string) (Record, bool, error) {
	records, err := DecodePacked(raw)
	if err != nil {
		return nil, false, err
	}

	r := Latest(records, id)
	return r, r != nil, nil
}

// Latest returns the last record in records whose id is id, or nil.
func Latest(records []Record, id string) Record {
	for i := len(records) - 1; i >= 0; i-- {
		if got, err := records[i].ID(); err == nil && got == id {
			return records[i]
		}
	}
	return nil
}
