package app

import (
	"context"
	"fmt"
	"net/http"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dshills/gridsync/internal/config"
	"github.com/dshills/gridsync/internal/relay"
	"github.com/dshills/gridsync/internal/server"
	"github.com/dshills/gridsync/internal/store"
	"github.com/dshills/gridsync/internal/store/bolt"
	"github.com/dshills/gridsync/internal/store/postgres"
	redisdoc "github.com/dshills/gridsync/internal/transport/redis"
)

// bootstrapper handles component initialization with proper cleanup on failure.
type bootstrapper struct {
	app       *Application
	initOrder []string
}

// newBootstrapper creates a new bootstrapper for the application.
func newBootstrapper(app *Application) *bootstrapper {
	return &bootstrapper{
		app:       app,
		initOrder: make([]string, 0, 4),
	}
}

// bootstrap initializes all components in dependency order.
// On failure, it cleans up already-initialized components.
func (b *bootstrapper) bootstrap() error {
	for _, step := range []func() error{
		b.initStore,
		b.initRedis,
		b.initHub,
		b.initServer,
	} {
		if err := step(); err != nil {
			b.cleanup()
			return err
		}
	}
	return nil
}

// initStore opens the revision store of the configured driver.
func (b *bootstrapper) initStore() error {
	cfg := b.app.config.Store
	var (
		st  store.Store
		err error
	)
	switch cfg.Driver {
	case config.DriverMemory:
		st = store.NewMemory()
	case config.DriverBolt:
		st, err = bolt.Open(cfg.Path)
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), b.app.config.Server.ShutdownTimeout.Std())
		defer cancel()
		st, err = postgres.Open(ctx, cfg.DSN)
	default:
		err = fmt.Errorf("unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return &InitError{Component: "store", Err: err}
	}
	b.app.store = st
	b.app.logger.Info("store opened", "driver", cfg.Driver)
	b.initOrder = append(b.initOrder, "store")
	return nil
}

// initRedis connects to Redis when documents are shared through it.
func (b *bootstrapper) initRedis() error {
	cfg := b.app.config.Redis
	if !cfg.Enabled {
		return nil
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), b.app.config.Server.ShutdownTimeout.Std())
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return &InitError{Component: "redis", Err: err}
	}
	b.app.redis = client
	b.app.logger.Info("redis connected", "addr", cfg.Addr)
	b.initOrder = append(b.initOrder, "redis")
	return nil
}

// initHub creates the hub opening documents from Redis or the store.
func (b *bootstrapper) initHub() error {
	logger := b.app.logger.WithComponent("relay")
	open := func(ctx context.Context, docID string) (relay.Document, error) {
		return relay.Open(ctx, docID, b.app.store, logger.WithField("doc", docID))
	}
	if b.app.redis != nil {
		client, prefix := b.app.redis, b.app.config.Redis.ChannelPrefix
		open = func(ctx context.Context, docID string) (relay.Document, error) {
			return redisdoc.Open(ctx, client, docID,
				redisdoc.WithPrefix(prefix),
				redisdoc.WithLogger(logger.WithField("doc", docID)))
		}
	}
	b.app.hub = server.NewHub(open, b.app.logger.WithComponent("hub"))
	b.initOrder = append(b.initOrder, "hub")
	return nil
}

// initServer creates the HTTP server.
func (b *bootstrapper) initServer() error {
	cfg := b.app.config.Server
	scfg := server.DefaultConfig()
	scfg.AllowedOrigins = cfg.AllowedOrigins
	scfg.WriteTimeout = cfg.WriteTimeout.Std()
	scfg.PingInterval = cfg.PingInterval.Std()
	scfg.MaxMessageSize = cfg.MaxMessageSize

	srv := server.New(b.app.hub, scfg, b.app.logger.WithComponent("server"))
	srv.Use(recoverMiddleware(b.app.logger, b.app.metrics), metricsMiddleware(b.app.metrics))
	srv.Handle("/metrics", http.HandlerFunc(b.app.handleMetrics))
	b.app.server = srv
	b.app.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv,
		ReadHeaderTimeout: cfg.WriteTimeout.Std(),
	}
	b.initOrder = append(b.initOrder, "server")
	return nil
}

// cleanup releases initialized components in reverse order.
func (b *bootstrapper) cleanup() {
	for i := len(b.initOrder) - 1; i >= 0; i-- {
		b.cleanupComponent(b.initOrder[i])
	}
}

// cleanupComponent releases a single component.
func (b *bootstrapper) cleanupComponent(name string) {
	switch name {
	case "store":
		if b.app.store != nil {
			_ = b.app.store.Close()
			b.app.store = nil
		}
	case "redis":
		if b.app.redis != nil {
			_ = b.app.redis.Close()
			b.app.redis = nil
		}
	case "hub":
		if b.app.hub != nil {
			_ = b.app.hub.Close()
			b.app.hub = nil
		}
	case "server":
		if b.app.server != nil {
			b.app.server.Close()
			b.app.server = nil
		}
		b.app.http = nil
	}
}
