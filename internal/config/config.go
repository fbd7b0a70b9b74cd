// Package config loads the command line tool's settings.
//
// The file format is chosen by extension:
//   - .yaml, .yml  YAML
//   - .toml        TOML
//   - .ini         INI, with engine keys in an [engine] section
//
// All formats use the same key names, e.g. data_dir, index_backend,
// compression, sync, pebble_cache_size, and log.level / log.format.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/davidvella/pagestore"
	"github.com/davidvella/pagestore/recordio"
	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// Config holds the settings of the command line tool.
type Config struct {
	DataDir         string    `yaml:"data_dir" toml:"data_dir"`
	IndexBackend    string    `yaml:"index_backend" toml:"index_backend"`
	Compression     string    `yaml:"compression" toml:"compression"`
	Sync            bool      `yaml:"sync" toml:"sync"`
	PebbleCacheSize int64     `yaml:"pebble_cache_size" toml:"pebble_cache_size"`
	Log             LogConfig `yaml:"log" toml:"log"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir:         "./data",
		IndexBackend:    "file",
		Compression:     "none",
		PebbleCacheSize: 8 << 20,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration file at path. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	var (
		cfg Config
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = loadYAML(path, &cfg)
	case ".toml":
		err = loadTOML(path, &cfg)
	case ".ini":
		err = loadINI(path, &cfg)
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%q", ext)
	}
	if err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrap(err, "parse config")
	}
	return nil
}

func loadTOML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config")
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return errors.Wrap(err, "parse config")
	}
	return nil
}

func loadINI(path string, cfg *Config) error {
	f, err := ini.Load(path)
	if err != nil {
		return errors.Wrap(err, "parse config")
	}

	engine := f.Section("engine")
	cfg.DataDir = engine.Key("data_dir").String()
	cfg.IndexBackend = engine.Key("index_backend").String()
	cfg.Compression = engine.Key("compression").String()
	cfg.Sync = engine.Key("sync").MustBool(false)
	cfg.PebbleCacheSize = engine.Key("pebble_cache_size").MustInt64(0)

	log := f.Section("log")
	cfg.Log.Level = log.Key("level").String()
	cfg.Log.Format = log.Key("format").String()
	return nil
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	d := Default()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.IndexBackend == "" {
		c.IndexBackend = d.IndexBackend
	}
	if c.Compression == "" {
		c.Compression = d.Compression
	}
	if c.PebbleCacheSize <= 0 {
		c.PebbleCacheSize = d.PebbleCacheSize
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
}

// Options converts the configuration into engine options.
func (c *Config) Options(logger logrus.FieldLogger) ([]pagestore.Option, error) {
	backend, err := pagestore.ParseIndexBackend(c.IndexBackend)
	if err != nil {
		return nil, err
	}
	compression, err := recordio.ParseCompression(c.Compression)
	if err != nil {
		return nil, err
	}

	opts := []pagestore.Option{
		pagestore.WithIndexBackend(backend),
		pagestore.WithCompression(compression),
		pagestore.WithSync(c.Sync),
		pagestore.WithPebbleCacheSize(c.PebbleCacheSize),
	}
	if logger != nil {
		opts = append(opts, pagestore.WithLogger(logger))
	}
	return opts, nil
}
