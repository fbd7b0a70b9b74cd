package index

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FileStore keeps the index as a single JSON object mapping string ids to
// page numbers, e.g. {"1":0,"2":0}. Every save rewrites the whole file
// through a temporary file and a rename, so a crash leaves either the old or
// the new index, never a torn one.
type FileStore struct {
	path string
	log  logrus.FieldLogger
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithLogger sets the logger used for failures that do not fail a save.
func WithLogger(logger logrus.FieldLogger) FileStoreOption {
	return func(s *FileStore) {
		s.log = logger
	}
}

func NewFileStore(path string, opts ...FileStoreOption) *FileStore {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := &FileStore{path: path, log: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *FileStore) Path() string {
	return s.path
}

// Init writes an empty index if none exists yet.
func (s *FileStore) Init(ctx context.Context) error {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "failed to stat index %s", s.path)
	}
	return s.Save(ctx, NewMap())
}

func (s *FileStore) Load(_ context.Context) (*Map, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewMap(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read index %s", s.path)
	}

	entries := make(map[string]int64)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, errors.Wrapf(err, "failed to parse index %s", s.path)
		}
	}
	return FromEntries(entries), nil
}

func (s *FileStore) Save(_ context.Context, m *Map) error {
	data, err := json.Marshal(m.entries)
	if err != nil {
		return errors.Wrap(err, "failed to encode index")
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return err
	}
	m.Clean()

	// The new index is in place once the rename succeeds; a failed directory
	// sync only weakens durability of the rename itself.
	if err := syncDir(filepath.Dir(s.path)); err != nil {
		s.log.WithError(err).WithField("path", s.path).Warn("failed to sync index directory")
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary index in %s", dir)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", tmp.Name())
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to sync %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to replace index %s", path)
	}
	return nil
}

var syncDir = func(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", dir)
	}
	defer d.Close()

	if err := d.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync %s", dir)
	}
	return nil
}
