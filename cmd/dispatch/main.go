package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/dispatch/internal/cmd/client"
	serverrun "github.com/rzbill/dispatch/internal/cmd/server"
	cfgpkg "github.com/rzbill/dispatch/internal/config"
	logpkg "github.com/rzbill/dispatch/pkg/log"
)

func main() {
	// CLI logger; the server builds its own from config.
	level := os.Getenv("DISPATCH_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Keyed dispatch server and client",
		Long:  "dispatch routes messages published to a key to the single consumer subscribed to it, queueing per key until one is.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverCmd.AddCommand(newServerStartCommand())
	rootCmd.AddCommand(serverCmd)

	clientcmd.AddCommands(rootCmd, apiURL)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServerStartCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the dispatch server (gRPC and HTTP)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			dataDir, _ := cmd.Flags().GetString("data-dir")
			grpcAddr, _ := cmd.Flags().GetString("grpc")
			httpAddr, _ := cmd.Flags().GetString("http")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:  dataDir,
				GRPCAddr: grpcAddr,
				HTTPAddr: httpAddr,
				Config:   cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	f.String("grpc", ":50051", "gRPC listen address (empty disables)")
	f.String("http", ":8080", "HTTP listen address (empty disables)")
	f.String("config", os.Getenv("DISPATCH_CONFIG"), "Config file (.json, .yaml or .yml)")
	f.Int("max-queue", 0, "Per-key queue capacity (default 10000)")
	f.Int("sub-buf", 0, "Per-subscriber buffer size (default 1024)")
	f.StringSlice("journal-keys", nil, "Keys whose deliveries are journaled to disk")
	f.Float64("publish-rate", 0, "Max accepted publishes per second (0 = unlimited)")
	f.Bool("evict-idle", false, "Periodically drop keys with no consumer and an empty queue")
	f.String("fsync", "", "Fsync mode: always|interval|never (default interval)")
	f.Int("fsync-interval-ms", 0, "When --fsync=interval, group-commit window in ms (default 5)")
	f.String("log-level", "", "Log level: debug|info|warn|error")
	f.String("log-format", "", "Log format: text|json (default text)")
	return cmd
}

// loadConfig layers defaults, the config file, DISPATCH_* env vars and then
// explicitly set flags.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)

	f := cmd.Flags()
	if f.Changed("max-queue") {
		cfg.Engine.MaxQueueCapacity, _ = f.GetInt("max-queue")
	}
	if f.Changed("sub-buf") {
		cfg.SubscriberBuffer, _ = f.GetInt("sub-buf")
	}
	if f.Changed("journal-keys") {
		cfg.Journal.Keys, _ = f.GetStringSlice("journal-keys")
	}
	if f.Changed("publish-rate") {
		cfg.Engine.PublishRate, _ = f.GetFloat64("publish-rate")
	}
	if f.Changed("evict-idle") {
		cfg.Engine.EvictIdle, _ = f.GetBool("evict-idle")
	}
	if f.Changed("fsync") {
		cfg.Storage.Fsync, _ = f.GetString("fsync")
	}
	if f.Changed("fsync-interval-ms") {
		cfg.Storage.FsyncIntervalMs, _ = f.GetInt("fsync-interval-ms")
	}
	if f.Changed("log-level") {
		cfg.Log.Level, _ = f.GetString("log-level")
	}
	if f.Changed("log-format") {
		cfg.Log.Format, _ = f.GetString("log-format")
	}
	return cfg, cfg.Validate()
}

func apiURL() string {
	if v := os.Getenv("DISPATCH_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
