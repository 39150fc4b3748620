// Package main is the entry point of the gridsync relay server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/gridsync/internal/app"
	"github.com/dshills/gridsync/internal/config"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	configPath string
	addr       string
	logLevel   string
	watch      bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logConfig := app.DefaultLoggerConfig()
	logConfig.Level = app.ParseLogLevel(cfg.Log.Level)
	logConfig.Prefix = "gridsync-server"
	logger := app.NewLogger(logConfig)
	app.SetLogger(logger)

	application, err := app.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.watch {
		err := config.Watch(ctx, opts.configPath, application.ApplyConfig, func(err error) {
			logger.Warn("configuration reload failed", "path", opts.configPath, "error", err)
		})
		if err != nil {
			logger.Warn("configuration not watched", "path", opts.configPath, "error", err)
		}
	}

	logger.Info("starting", "version", version, "addr", cfg.Server.Addr, "store", cfg.Store.Driver)
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	logger.Info("stopped")
	return 0
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", config.DefaultPath, "Path to configuration file (shorthand)")
	flag.StringVar(&opts.addr, "addr", "", "Listen address, overrides server.addr")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.watch, "watch", true, "Reload the configuration file when it changes")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "gridsync-server - relay for collaborative spreadsheets\n\n")
		fmt.Fprintf(os.Stderr, "Usage: gridsync-server [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nSettings are read from the configuration file, then from\n")
		fmt.Fprintf(os.Stderr, "%s* environment variables (GRIDSYNC_SERVER_ADDR, ...).\n", config.EnvPrefix)
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("gridsync-server %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.logLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.logLevel)
		os.Exit(1)
	}

	return opts
}
