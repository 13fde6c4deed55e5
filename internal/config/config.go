package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	logpkg "github.com/rzbill/dispatch/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Log     logpkg.Config `json:"log" yaml:"log"`

	// SubscriberBuffer is the per-subscription channel size used by the
	// transports. A full buffer drops messages for that subscriber.
	SubscriberBuffer int `json:"subscriberBuffer" yaml:"subscriberBuffer"`
}

// EngineConfig tunes the dispatch engine.
type EngineConfig struct {
	MaxQueueCapacity int  `json:"maxQueueCapacity" yaml:"maxQueueCapacity"`
	EvictIdle        bool `json:"evictIdle" yaml:"evictIdle"`
	EvictIntervalMs  int  `json:"evictIntervalMs" yaml:"evictIntervalMs"`

	// PublishRate caps accepted publishes per second across all keys; 0
	// disables the limit. PublishBurst defaults to one second's worth.
	PublishRate  float64 `json:"publishRate" yaml:"publishRate"`
	PublishBurst int     `json:"publishBurst" yaml:"publishBurst"`
}

// JournalConfig selects keys whose deliveries are recorded to disk.
type JournalConfig struct {
	Keys       []string `json:"keys" yaml:"keys"`
	MaxEntries int      `json:"maxEntries" yaml:"maxEntries"`
}

// StorageConfig controls the Pebble store.
type StorageConfig struct {
	Fsync           string `json:"fsync" yaml:"fsync"`
	FsyncIntervalMs int    `json:"fsyncIntervalMs" yaml:"fsyncIntervalMs"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Engine: EngineConfig{
			MaxQueueCapacity: 10000,
			EvictIntervalMs:  60000,
		},
		Journal: JournalConfig{
			MaxEntries: 100000,
		},
		Storage: StorageConfig{
			Fsync:           "interval",
			FsyncIntervalMs: 5,
		},
		Log: logpkg.Config{
			Level:  "info",
			Format: "text",
		},
		SubscriberBuffer: 1024,
	}
}

// EvictInterval returns Engine.EvictIntervalMs as a duration.
func (c Config) EvictInterval() time.Duration {
	return time.Duration(c.Engine.EvictIntervalMs) * time.Millisecond
}

// FsyncInterval returns Storage.FsyncIntervalMs as a duration.
func (c Config) FsyncInterval() time.Duration {
	return time.Duration(c.Storage.FsyncIntervalMs) * time.Millisecond
}

// Validate rejects values the runtime cannot use.
func (c Config) Validate() error {
	var errs []error
	if c.Engine.MaxQueueCapacity < 0 {
		errs = append(errs, errors.New("engine.maxQueueCapacity must be >= 0"))
	}
	if c.Engine.EvictIdle && c.Engine.EvictIntervalMs <= 0 {
		errs = append(errs, errors.New("engine.evictIntervalMs must be > 0 when evictIdle is set"))
	}
	if c.Engine.PublishRate < 0 || c.Engine.PublishBurst < 0 {
		errs = append(errs, errors.New("engine.publishRate and engine.publishBurst must be >= 0"))
	}
	if c.SubscriberBuffer <= 0 {
		errs = append(errs, errors.New("subscriberBuffer must be > 0"))
	}
	if c.Journal.MaxEntries < 0 {
		errs = append(errs, errors.New("journal.maxEntries must be >= 0"))
	}
	for _, k := range c.Journal.Keys {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, errors.New("journal.keys must not contain empty keys"))
			break
		}
	}
	switch strings.ToLower(c.Storage.Fsync) {
	case "", "always", "interval", "never":
	default:
		errs = append(errs, fmt.Errorf("storage.fsync %q is not one of always, interval, never", c.Storage.Fsync))
	}
	return errors.Join(errs...)
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}
