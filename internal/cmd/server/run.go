package serverrun

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/dispatch/internal/config"
	"github.com/rzbill/dispatch/internal/runtime"
	grpcserver "github.com/rzbill/dispatch/internal/server/grpc"
	httpserver "github.com/rzbill/dispatch/internal/server/http"
	dispatchsvc "github.com/rzbill/dispatch/internal/services/dispatch"
	pebblestore "github.com/rzbill/dispatch/internal/storage/pebble"
	logpkg "github.com/rzbill/dispatch/pkg/log"
)

type Options struct {
	DataDir       string
	GRPCAddr      string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
}

// storeDir returns where the Pebble store lives under the data directory.
func (o Options) storeDir() string {
	dir := o.DataDir
	if dir == "" {
		dir = cfgpkg.DefaultDataDir()
	}
	return filepath.Join(dir, "store")
}

// newLogger builds the process logger from cfg, falling back to a text
// logger at the parsed (or info) level.
func newLogger(cfg logpkg.Config) logpkg.Logger {
	l, err := logpkg.ApplyConfig(&cfg)
	if err == nil {
		return l
	}
	lvl := logpkg.InfoLevel
	if parsed, e := logpkg.ParseLevel(cfg.Level); e == nil {
		lvl = parsed
	}
	return logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
}

// Run starts the dispatch service with gRPC and HTTP servers and blocks until
// ctx is cancelled or a listener fails. Shutdown closes the service first so
// subscribers receive the final sweep, then the servers, then storage.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(opts.Config.Log)
	// Pebble and grpc-go log through the standard logger.
	logpkg.RedirectStdLog(logger)

	rt, err := runtime.Open(runtime.Options{
		DataDir:       opts.storeDir(),
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        logger.With(logpkg.Component("runtime")),
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("Starting dispatch server",
		logpkg.Str("grpc", opts.GRPCAddr),
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", opts.storeDir()),
		logpkg.Int("max_queue", opts.Config.Engine.MaxQueueCapacity),
		logpkg.Int("sub_buf", opts.Config.SubscriberBuffer),
		logpkg.Any("journal_keys", opts.Config.Journal.Keys),
		logpkg.Str("level", opts.Config.Log.Level),
		logpkg.Str("format", opts.Config.Log.Format),
	)

	svc := dispatchsvc.NewWithLogger(rt, logger.With(logpkg.Component("dispatch")))
	gsrv := grpcserver.New(rt, svc, logger.With(logpkg.Component("grpc")))
	hsrv := httpserver.New(rt, svc, logger.With(logpkg.Component("http")))

	g, gctx := errgroup.WithContext(sctx)
	if opts.GRPCAddr != "" {
		g.Go(func() error { return gsrv.ListenAndServe(gctx, opts.GRPCAddr) })
	}
	if opts.HTTPAddr != "" {
		g.Go(func() error { return hsrv.ListenAndServe(gctx, opts.HTTPAddr) })
	}
	g.Go(func() error {
		<-gctx.Done()
		svc.Close()
		gsrv.Close()
		hsrv.Close()
		return nil
	})
	err = g.Wait()
	if err != nil {
		logger.Error("server stopped", logpkg.Err(err))
	} else {
		logger.Info("server stopped")
	}
	return err
}
