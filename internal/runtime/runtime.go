package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cfgpkg "github.com/rzbill/dispatch/internal/config"
	"github.com/rzbill/dispatch/internal/journal"
	"github.com/rzbill/dispatch/internal/metrics"
	pebblestore "github.com/rzbill/dispatch/internal/storage/pebble"
	logpkg "github.com/rzbill/dispatch/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
	// Metrics is created when nil.
	Metrics *metrics.Metrics
}

// Runtime owns the process-wide resources shared by services: the Pebble
// store, the delivery journal on top of it, metrics and configuration.
type Runtime struct {
	db      *pebblestore.DB
	journal *journal.Journal
	metrics *metrics.Metrics
	config  cfgpkg.Config
	logger  logpkg.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open initializes storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("runtime: invalid config: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	fsync := opts.Fsync
	if fsync == pebblestore.FsyncModeUnspecified {
		parsed, err := pebblestore.ParseFsyncMode(opts.Config.Storage.Fsync)
		if err != nil {
			return nil, err
		}
		fsync = parsed
	}
	interval := opts.FsyncInterval
	if interval <= 0 {
		interval = opts.Config.FsyncInterval()
	}

	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         fsync,
		FsyncInterval: interval,
		Metrics:       m,
	})
	if err != nil {
		return nil, err
	}
	j := journal.Open(db, journal.Options{
		MaxEntries: opts.Config.Journal.MaxEntries,
		Logger:     logger.With(logpkg.Component("journal")),
	})
	logger.Debug("runtime.open", logpkg.Str("data_dir", opts.DataDir), logpkg.Str("fsync", fsync.String()))
	return &Runtime{db: db, journal: j, metrics: m, config: opts.Config, logger: logger}, nil
}

// Close closes the store. Services using the journal must be closed first.
func (r *Runtime) Close() error {
	r.closeOnce.Do(func() {
		if r.db != nil {
			r.closeErr = r.db.Close()
		}
	})
	return r.closeErr
}

// CheckHealth verifies the store answers reads.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.db == nil {
		return errors.New("db not open")
	}
	return r.db.Ping()
}

func (r *Runtime) DB() *pebblestore.DB        { return r.db }
func (r *Runtime) Journal() *journal.Journal  { return r.journal }
func (r *Runtime) Metrics() *metrics.Metrics  { return r.metrics }
func (r *Runtime) Config() cfgpkg.Config      { return r.config }
func (r *Runtime) Logger() logpkg.Logger      { return r.logger }
