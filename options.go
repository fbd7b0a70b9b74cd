package pagestore

import (
	"context"
	"io"
	"path/filepath"

	"github.com/davidvella/pagestore/index"
	"github.com/davidvella/pagestore/index/pebble"
	"github.com/davidvella/pagestore/recordio"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// IndexBackend selects where table indexes are persisted.
type IndexBackend int

const (
	// IndexFile keeps each index in a JSON file next to the page file.
	IndexFile IndexBackend = iota
	// IndexPebble keeps each index in a Pebble database directory.
	IndexPebble
)

var ErrUnknownBackend = errors.New("pagestore: unknown index backend")

func (b IndexBackend) String() string {
	switch b {
	case IndexFile:
		return "file"
	case IndexPebble:
		return "pebble"
	default:
		return "unknown"
	}
}

// ParseIndexBackend maps a configuration name to an IndexBackend.
func ParseIndexBackend(name string) (IndexBackend, error) {
	switch name {
	case "", "file":
		return IndexFile, nil
	case "pebble":
		return IndexPebble, nil
	default:
		return IndexFile, errors.Wrapf(ErrUnknownBackend, "%q", name)
	}
}

// options defines all configuration options for the engine.
type options struct {
	logger       logrus.FieldLogger
	indexBackend IndexBackend
	compression  recordio.Compression
	sync         bool // fsync the page file after every page write
	cacheSize    int64
}

// Option is a function that configures the engine options.
type Option func(*options)

// WithLogger sets the logger used for table lifecycle and integrity events.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithIndexBackend sets the index backend for tables opened by the engine.
func WithIndexBackend(backend IndexBackend) Option {
	return func(o *options) {
		o.indexBackend = backend
	}
}

// WithCompression sets the payload compression for newly written records.
// Records already on disk keep the compression they were written with.
func WithCompression(c recordio.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithSync makes every page write wait for the data to reach stable storage.
// Without it the page file is still synced before an insert or a move to
// another page is recorded in the index.
func WithSync(sync bool) Option {
	return func(o *options) {
		o.sync = sync
	}
}

// WithPebbleCacheSize sets the block cache size of Pebble indexes.
func WithPebbleCacheSize(size int64) Option {
	return func(o *options) {
		o.cacheSize = size
	}
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return options{
		logger:       logger,
		indexBackend: IndexFile,
		compression:  recordio.CompressionNone,
		sync:         false,
		cacheSize:    8 << 20,
	}
}

func (o options) openIndex(ctx context.Context, dir, table string) (index.Store, error) {
	switch o.indexBackend {
	case IndexFile:
		s := index.NewFileStore(filepath.Join(dir, table+".idx"), index.WithLogger(o.logger.WithField("table", table)))
		if err := s.Init(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case IndexPebble:
		return pebble.NewStore(pebble.StoreOptions{
			Path:      filepath.Join(dir, table+".pebble"),
			CacheSize: o.cacheSize,
		})
	default:
		return nil, ErrUnknownBackend
	}
}
