package recordio

import (
	"encoding/binary"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Compression identifies how a frame payload is stored.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionSnappy
	CompressionLZ4
)

var (
	ErrUnknownCompression = errors.New("recordio: unknown compression")
	ErrDecodedSize        = errors.New("recordio: implausible decoded size")
)

// maxRatio bounds the expansion of a compressed payload. Neither lz4 blocks
// nor snappy can expand data by more than this.
const maxRatio = 255

func checkDecodedLen(n uint64, compressed int) error {
	if n > uint64(compressed)*maxRatio {
		return errors.Wrapf(ErrDecodedSize, "%d bytes from %d", n, compressed)
	}
	return nil
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// ParseCompression maps a configuration name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return CompressionNone, errors.Wrapf(ErrUnknownCompression, "%q", name)
	}
}

// Compress encodes payload with c. The returned Compression is the one
// actually applied: when c does not shrink the payload it is stored as is.
func Compress(c Compression, payload []byte) ([]byte, Compression, error) {
	switch c {
	case CompressionNone:
		return payload, CompressionNone, nil
	case CompressionSnappy:
		out := snappy.Encode(nil, payload)
		if len(out) >= len(payload) {
			return payload, CompressionNone, nil
		}
		return out, CompressionSnappy, nil
	case CompressionLZ4:
		// lz4 blocks do not carry their decoded size.
		prefix := make([]byte, binary.MaxVarintLen64)
		pn := binary.PutUvarint(prefix, uint64(len(payload)))

		out := make([]byte, pn+lz4.CompressBlockBound(len(payload)))
		copy(out, prefix[:pn])
		n, err := lz4.CompressBlock(payload, out[pn:], nil)
		if err != nil {
			return nil, CompressionNone, errors.Wrap(err, "lz4 compress")
		}
		if n == 0 || pn+n >= len(payload) {
			return payload, CompressionNone, nil
		}
		return out[:pn+n], CompressionLZ4, nil
	default:
		return nil, CompressionNone, ErrUnknownCompression
	}
}

// Decompress reverses Compress.
func Decompress(c Compression, payload []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return payload, nil
	case CompressionSnappy:
		n, err := snappy.DecodedLen(payload)
		if err != nil {
			return nil, errors.Wrap(err, "snappy decompress")
		}
		if err := checkDecodedLen(uint64(n), len(payload)); err != nil {
			return nil, err
		}
		out, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, errors.Wrap(err, "snappy decompress")
		}
		return out, nil
	case CompressionLZ4:
		size, pn := binary.Uvarint(payload)
		if pn <= 0 {
			return nil, errors.New("lz4 decompress: bad size prefix")
		}
		if err := checkDecodedLen(size, len(payload)-pn); err != nil {
			return nil, err
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(payload[pn:], out)
		if err != nil {
			return nil, errors.Wrap(err, "lz4 decompress")
		}
		return out[:n], nil
	default:
		return nil, ErrUnknownCompression
	}
}
