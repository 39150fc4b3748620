// Package app provides the gridsync server application. It wires the
// revision store, the optional Redis fan-out, the document hub and the HTTP
// server, and manages their lifecycle.
package app

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dshills/gridsync/internal/config"
	"github.com/dshills/gridsync/internal/server"
	"github.com/dshills/gridsync/internal/store"
)

// Application is the gridsync server.
type Application struct {
	mu sync.RWMutex

	config *config.Config
	logger *Logger

	store  store.Store
	redis  goredis.UniversalClient
	hub    *server.Hub
	server *server.Server
	http   *http.Server

	metrics *Metrics

	// listener is set while running.
	listener net.Listener

	running  atomic.Bool
	stopping atomic.Bool
	done     chan struct{}
}

// New creates an application from cfg. A nil logger uses GetLogger.
func New(cfg *config.Config, logger *Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = GetLogger()
	}
	app := &Application{
		config:  cfg,
		logger:  logger,
		metrics: NewMetrics(),
		done:    make(chan struct{}),
	}
	if err := newBootstrapper(app).bootstrap(); err != nil {
		return nil, err
	}
	return app, nil
}

// IsRunning returns true if the application is serving.
func (app *Application) IsRunning() bool {
	return app.running.Load()
}

// Config returns the configuration the application was created with, or
// the last one applied.
func (app *Application) Config() *config.Config {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.config
}

// Logger returns the application logger.
func (app *Application) Logger() *Logger {
	return app.logger
}

// Store returns the revision store.
func (app *Application) Store() store.Store {
	return app.store
}

// Hub returns the document hub.
func (app *Application) Hub() *server.Hub {
	return app.hub
}

// Server returns the HTTP handler.
func (app *Application) Server() *server.Server {
	return app.server
}

// Addr returns the address the application listens on, or "" when it is
// not running.
func (app *Application) Addr() string {
	app.mu.RLock()
	defer app.mu.RUnlock()
	if app.listener == nil {
		return ""
	}
	return app.listener.Addr().String()
}
