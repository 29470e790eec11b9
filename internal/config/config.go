package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sdrees/vernemq/internal/msgstore"
	pebblestore "github.com/sdrees/vernemq/internal/storage/pebble"
)

// Config is the top-level node configuration loaded from file/env.
type Config struct {
	NodeName      string         `json:"nodeName" yaml:"nodeName"`
	MetricsListen string         `json:"metricsListen" yaml:"metricsListen"`
	Log           LogConfig      `json:"log" yaml:"log"`
	MsgStore      MsgStoreConfig `json:"msgStore" yaml:"msgStore"`
}

// LogConfig selects log level, format, and output destination.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	Output string `json:"output" yaml:"output"`
}

// MsgStoreConfig configures the offline message store. Durations are
// expressed in milliseconds, sizes in bytes.
type MsgStoreConfig struct {
	StoreDir           string `json:"storeDir" yaml:"storeDir"`
	Buckets            int    `json:"buckets" yaml:"buckets"`
	StagingTables      int    `json:"stagingTables" yaml:"stagingTables"`
	WriteBufferSizeMin uint64 `json:"writeBufferSizeMin" yaml:"writeBufferSizeMin"`
	WriteBufferSizeMax uint64 `json:"writeBufferSizeMax" yaml:"writeBufferSizeMax"`
	OpenRetries        int    `json:"openRetries" yaml:"openRetries"`
	OpenRetryDelayMs   int    `json:"openRetryDelayMs" yaml:"openRetryDelayMs"`
	Fsync              string `json:"fsync" yaml:"fsync"`
	FsyncIntervalMs    int    `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		NodeName:      "vernemq",
		MetricsListen: "",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "console",
		},
		MsgStore: MsgStoreConfig{
			StoreDir:           filepath.Join(DefaultDataDir(), "msgstore"),
			Buckets:            msgstore.DefaultBuckets,
			StagingTables:      msgstore.DefaultStagingTables,
			WriteBufferSizeMin: msgstore.DefaultWriteBufferMin,
			WriteBufferSizeMax: msgstore.DefaultWriteBufferMax,
			OpenRetries:        msgstore.DefaultOpenRetries,
			OpenRetryDelayMs:   int(msgstore.DefaultOpenRetryDelay / time.Millisecond),
			Fsync:              "interval",
			FsyncIntervalMs:    5,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// ParseFsyncMode maps the configured fsync string onto the backend policy.
func ParseFsyncMode(s string) (pebblestore.FsyncMode, error) {
	switch s {
	case "", "interval":
		return pebblestore.FsyncModeInterval, nil
	case "always":
		return pebblestore.FsyncModeAlways, nil
	case "never":
		return pebblestore.FsyncModeNever, nil
	default:
		return pebblestore.FsyncModeUnspecified, fmt.Errorf("unknown fsync mode %q", s)
	}
}

// StoreOptions maps the msgstore section onto store options. Logger and
// metrics hook are filled in by the runtime.
func (c MsgStoreConfig) StoreOptions() (msgstore.Options, error) {
	fsync, err := ParseFsyncMode(c.Fsync)
	if err != nil {
		return msgstore.Options{}, err
	}
	return msgstore.Options{
		StoreDir:       c.StoreDir,
		Buckets:        c.Buckets,
		StagingTables:  c.StagingTables,
		WriteBufferMin: c.WriteBufferSizeMin,
		WriteBufferMax: c.WriteBufferSizeMax,
		OpenRetries:    c.OpenRetries,
		OpenRetryDelay: time.Duration(c.OpenRetryDelayMs) * time.Millisecond,
		Fsync:          fsync,
		FsyncInterval:  time.Duration(c.FsyncIntervalMs) * time.Millisecond,
	}, nil
}
