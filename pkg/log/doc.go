// Package log is the structured logging facade used across dispatch.
//
// The Logger interface exposes leveled methods taking Field values. It is
// backed by log/slog through a bridge handler that renders entries with a
// Formatter (text or JSON) and writes them to one or more Outputs.
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("dispatcher"))
//	l.Info("engine started", log.Int("max_queue", 10000))
//
// ApplyConfig builds a logger from a declarative Config. RedirectStdLog routes
// the standard library logger (used by Pebble and grpc internals) through a
// Logger.
package log
