package app

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/dshills/gridsync/internal/config"
)

// Run listens on the configured address and serves until ctx is done or
// Shutdown is called, then shuts down gracefully.
func (app *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", app.Config().Server.Addr)
	if err != nil {
		return &InitError{Component: "listener", Err: err}
	}
	return app.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (app *Application) Serve(ctx context.Context, ln net.Listener) error {
	if app.stopping.Load() {
		ln.Close()
		return ErrNotRunning
	}
	if !app.running.CompareAndSwap(false, true) {
		ln.Close()
		return ErrAlreadyRunning
	}
	defer app.running.Store(false)

	app.mu.Lock()
	app.listener = ln
	app.mu.Unlock()
	app.logger.Info("listening", "addr", ln.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.http.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			app.shutdown()
			return componentError("server", "serve", err)
		}
	case <-ctx.Done():
	case <-app.done:
	}
	return app.shutdown()
}

// Shutdown stops a running application. It is safe to call more than once.
func (app *Application) Shutdown() {
	if app.stopping.CompareAndSwap(false, true) {
		close(app.done)
		if !app.running.Load() {
			app.shutdown()
		}
	}
}

// shutdown performs cleanup in reverse initialization order, within the
// configured shutdown timeout.
func (app *Application) shutdown() error {
	app.stopping.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), app.Config().Server.ShutdownTimeout.Std())
	defer cancel()

	errs := NewErrorList()
	if app.http != nil {
		// Websockets are hijacked: the HTTP server does not track them.
		if err := app.http.Shutdown(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = ErrShutdownTimeout
			}
			errs.Add(componentError("server", "shutdown", err))
		}
	}
	if app.server != nil {
		app.server.Close()
	}
	if app.hub != nil {
		errs.Add(componentError("hub", "close", app.hub.Close()))
	}
	if app.redis != nil {
		errs.Add(componentError("redis", "close", app.redis.Close()))
	}
	if app.store != nil {
		errs.Add(componentError("store", "close", app.store.Close()))
	}
	app.http, app.server, app.hub, app.redis, app.store = nil, nil, nil, nil, nil

	app.mu.Lock()
	app.listener = nil
	app.mu.Unlock()
	app.logger.Info("stopped", "errors", errs.Len())
	return errs.AsError()
}

// ApplyConfig applies the reloadable settings of cfg: the log level. Other
// changes need a restart and are reported.
func (app *Application) ApplyConfig(cfg *config.Config) {
	app.mu.Lock()
	old := app.config
	app.config = cfg
	app.mu.Unlock()

	level := ParseLogLevel(cfg.Log.Level)
	if level != app.logger.Level() {
		app.logger.SetLevel(level)
		app.logger.Info("log level changed", "level", level)
	}
	if old.Server.Addr != cfg.Server.Addr || old.Store != cfg.Store || old.Redis != cfg.Redis {
		app.logger.Warn("configuration change needs a restart", "path", cfg.Path())
	}
}
