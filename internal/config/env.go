package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays DISPATCH_* environment variables onto cfg. Unparseable
// values are ignored.
func FromEnv(cfg *Config) {
	envInt("DISPATCH_MAX_QUEUE", &cfg.Engine.MaxQueueCapacity)
	envBool("DISPATCH_EVICT_IDLE", &cfg.Engine.EvictIdle)
	envInt("DISPATCH_EVICT_INTERVAL_MS", &cfg.Engine.EvictIntervalMs)
	envFloat("DISPATCH_PUBLISH_RATE", &cfg.Engine.PublishRate)
	envInt("DISPATCH_PUBLISH_BURST", &cfg.Engine.PublishBurst)
	envInt("DISPATCH_SUB_BUF", &cfg.SubscriberBuffer)
	envInt("DISPATCH_JOURNAL_MAX_ENTRIES", &cfg.Journal.MaxEntries)
	if v := os.Getenv("DISPATCH_JOURNAL_KEYS"); v != "" {
		cfg.Journal.Keys = SplitList(v)
	}
	if v := os.Getenv("DISPATCH_FSYNC"); v != "" {
		cfg.Storage.Fsync = v
	}
	envInt("DISPATCH_FSYNC_INTERVAL_MS", &cfg.Storage.FsyncIntervalMs)
	if v := os.Getenv("DISPATCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("DISPATCH_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
