package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/davidvella/pagestore"
	"github.com/davidvella/pagestore/recordio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	want := &Config{
		DataDir:         "/var/lib/pagestore",
		IndexBackend:    "pebble",
		Compression:     "snappy",
		Sync:            true,
		PebbleCacheSize: 1024,
		Log:             LogConfig{Level: "debug", Format: "json"},
	}

	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "pagestore.yaml",
			content: `data_dir: /var/lib/pagestore
index_backend: pebble
compression: snappy
sync: true
pebble_cache_size: 1024
log:
  level: debug
  format: json
`,
		},
		{
			name: "toml",
			file: "pagestore.toml",
			content: `data_dir = "/var/lib/pagestore"
index_backend = "pebble"
compression = "snappy"
sync = true
pebble_cache_size = 1024

[log]
level = "debug"
format = "json"
`,
		},
		{
			name: "ini",
			file: "pagestore.ini",
			content: `[engine]
data_dir = /var/lib/pagestore
index_backend = pebble
compression = snappy
sync = true
pebble_cache_size = 1024

[log]
level = debug
format = json
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, want, cfg)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load(writeConfig(t, "partial.yml", "data_dir: /tmp/x\n"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", cfg.DataDir)
	assert.Equal(t, "file", cfg.IndexBackend)
	assert.Equal(t, "none", cfg.Compression)
	assert.Equal(t, int64(8<<20), cfg.PebbleCacheSize)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(writeConfig(t, "pagestore.json", "{}"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeConfig(t, "bad.yaml", "data_dir: [unterminated"))
	assert.Error(t, err)
}

func TestConfig_Options(t *testing.T) {
	cfg := Default()
	cfg.IndexBackend = "pebble"
	cfg.Compression = "lz4"

	opts, err := cfg.Options(nil)
	require.NoError(t, err)
	assert.Len(t, opts, 4)

	// The options must be accepted by the engine.
	e, err := pagestore.Open(t.TempDir(), opts...)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	cfg.Compression = "zstd"
	_, err = cfg.Options(nil)
	assert.ErrorIs(t, err, recordio.ErrUnknownCompression)

	cfg.Compression = "none"
	cfg.IndexBackend = "bolt"
	_, err = cfg.Options(nil)
	assert.ErrorIs(t, err, pagestore.ErrUnknownBackend)
}
