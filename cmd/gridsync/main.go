// Package main is a headless gridsync client.
//
// It joins a document, reads commands from standard input, one per line,
// and prints the results and the updates of the document to standard
// output as JSON lines. See shell for the input syntax.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"

	"github.com/dshills/gridsync/internal/app"
	"github.com/dshills/gridsync/internal/config"
	"github.com/dshills/gridsync/internal/model"
	"github.com/dshills/gridsync/internal/session"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// errReload asks for a new replica of the document.
var errReload = errors.New("document out of sync")

type options struct {
	configPath string
	document   string
	url        string
	name       string
	transport  string
	logLevel   string
	readOnly   bool
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
	opts.apply(cfg)

	logConfig := app.DefaultLoggerConfig()
	logConfig.Level = app.ParseLogLevel(cfg.Log.Level)
	logger := app.NewLogger(logConfig)
	app.SetLogger(logger)

	specs, err := plugins(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: plugins: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &client{
		id:     uuid.NewString(),
		specs:  specs,
		logger: logger,
		shell:  newShell(os.Stdout),
		lines:  readLines(ctx),
	}
	c.config.Store(cfg)

	err = config.Watch(ctx, opts.configPath, func(next *config.Config) {
		opts.apply(next)
		c.reconfigure(next)
	}, func(err error) {
		logger.Warn("configuration reload failed", "path", opts.configPath, "error", err)
	})
	if err != nil {
		logger.Debug("configuration not watched", "path", opts.configPath, "error", err)
	}

	for {
		err := c.session(ctx)
		if errors.Is(err, errReload) {
			logger.Warn("reloading document", "document", cfg.Session.Document)
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
}

// client runs successive replicas of the document over the same input.
type client struct {
	id     string
	specs  []model.PluginSpec
	logger *app.Logger
	shell  *shell
	lines  <-chan string

	config  atomic.Pointer[config.Config]
	current atomic.Pointer[model.Model]
}

// reconfigure applies the settings that may change at run time.
func (c *client) reconfigure(cfg *config.Config) {
	prev := c.config.Swap(cfg)
	c.logger.SetLevel(app.ParseLogLevel(cfg.Log.Level))
	if m := c.current.Load(); m != nil && prev.Session.ReadOnly != cfg.Session.ReadOnly {
		m.SetReadOnly(cfg.Session.ReadOnly)
		c.logger.Info("read-only mode changed", "readOnly", cfg.Session.ReadOnly)
	}
}

func (c *client) name() string {
	if name := c.config.Load().Session.ClientName; name != "" {
		return name
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return c.id[:8]
}

// session joins the document and executes input until the input ends, ctx
// is done or the replica must be reloaded, in which case it returns
// errReload.
func (c *client) session(ctx context.Context) error {
	cfg := c.config.Load()

	lost := make(chan error, 1)
	conn, err := connect(ctx, cfg, c.id, c.logger, func(err error) {
		select {
		case lost <- err:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	m, err := newReplica(cfg, conn, &session.Client{ID: c.id, Name: c.name()}, c.specs, c.logger)
	if err != nil {
		return err
	}
	defer m.Close()
	c.current.Store(m)
	defer c.current.Store(nil)

	c.logger.Info("joined", "document", cfg.Session.Document, "client", c.id, "revision", m.RevisionID())

	stopWatch := c.shell.watch(m)
	defer stopWatch()

	outOfSync := make(chan struct{}, 1)
	sub := m.OnUnexpectedRevision(func(e session.Event) {
		c.logger.Error("unexpected revision", "revision", e.RevisionID, "client", e.ClientID)
		select {
		case outOfSync <- struct{}{}:
		default:
		}
	})
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			m.Leave()
			return nil
		case err := <-lost:
			return fmt.Errorf("connection lost: %w", err)
		case <-outOfSync:
			return errReload
		case line, ok := <-c.lines:
			if !ok {
				m.Leave()
				return nil
			}
			if err := c.shell.execute(m, line); errors.Is(err, errQuit) {
				m.Leave()
				return nil
			}
		}
	}
}

// readLines sends the lines of standard input until it ends or ctx is done.
func readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// apply overrides the settings given on the command line.
func (o options) apply(cfg *config.Config) {
	if o.document != "" {
		cfg.Session.Document = o.document
	}
	if o.url != "" {
		cfg.Session.URL = o.url
	}
	if o.name != "" {
		cfg.Session.ClientName = o.name
	}
	if o.transport != "" {
		cfg.Session.Transport = o.transport
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.readOnly {
		cfg.Session.ReadOnly = true
	}
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", config.DefaultPath, "Path to configuration file (shorthand)")
	flag.StringVar(&opts.document, "doc", "", "Document to join, overrides session.document")
	flag.StringVar(&opts.url, "url", "", "Server URL, overrides session.url")
	flag.StringVar(&opts.name, "name", "", "Name shown to the other users")
	flag.StringVar(&opts.transport, "transport", "", "Transport (websocket, redis)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.readOnly, "readonly", false, "Refuse local changes")
	flag.BoolVar(&opts.readOnly, "R", false, "Refuse local changes (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "gridsync - headless collaborative spreadsheet client\n\n")
		fmt.Fprintf(os.Stderr, "Usage: gridsync [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nInput, one per line:\n")
		fmt.Fprintf(os.Stderr, "  {\"type\":\"UPDATE_CELL\",...}   dispatch a command\n")
		fmt.Fprintf(os.Stderr, "  export | clients | revision   print the document, users or revision\n")
		fmt.Fprintf(os.Stderr, "  snapshot                      compact the revision log\n")
		fmt.Fprintf(os.Stderr, "  stats                         print dispatch counters\n")
		fmt.Fprintf(os.Stderr, "  readonly on|off               switch read-only mode\n")
		fmt.Fprintf(os.Stderr, "  quit                          leave the document\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("gridsync %s\n", version)
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
	switch opts.transport {
	case "", config.TransportWebsocket, config.TransportRedis:
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid transport %q (must be websocket or redis)\n", opts.transport)
		os.Exit(1)
	}

	return opts
}
