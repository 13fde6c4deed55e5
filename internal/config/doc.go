// Package config loads server configuration.
//
// Precedence, lowest first: Default(), a JSON or YAML file passed to Load,
// DISPATCH_* environment variables applied by FromEnv, then CLI flags.
//
//	cfg, err := config.Load("/etc/dispatch.yaml")
//	if err != nil { /* handle */ }
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil { /* handle */ }
package config
