package main

import (
	"context"
	"fmt"
	"io"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dshills/gridsync/internal/app"
	"github.com/dshills/gridsync/internal/config"
	"github.com/dshills/gridsync/internal/model"
	"github.com/dshills/gridsync/internal/plugins/script"
	"github.com/dshills/gridsync/internal/plugins/selection"
	"github.com/dshills/gridsync/internal/plugins/sheet"
	"github.com/dshills/gridsync/internal/relay"
	"github.com/dshills/gridsync/internal/session"
	redisdoc "github.com/dshills/gridsync/internal/transport/redis"
	"github.com/dshills/gridsync/internal/transport/websocket"
)

// connection is a transport together with the backlog it was opened with.
type connection struct {
	transport session.Transport
	backlog   *relay.Backlog
	closers   []io.Closer
}

func (c *connection) Close() error {
	errs := app.NewErrorList()
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs.Add(c.closers[i].Close())
	}
	return errs.AsError()
}

// connect opens the transport selected by cfg.Session.Transport.
// disconnected is called when the connection is lost for good.
func connect(ctx context.Context, cfg *config.Config, clientID string, logger *app.Logger, disconnected func(error)) (*connection, error) {
	s := cfg.Session
	switch s.Transport {
	case config.TransportRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.Redis.Addr, err)
		}
		doc, err := redisdoc.Open(ctx, client, s.Document,
			redisdoc.WithPrefix(cfg.Redis.ChannelPrefix),
			redisdoc.WithLogger(logger.WithComponent("redis")),
		)
		if err != nil {
			client.Close()
			return nil, err
		}
		conn, backlog, err := relay.Connect(ctx, doc, clientID)
		if err != nil {
			doc.Close()
			client.Close()
			return nil, err
		}
		return &connection{transport: conn, backlog: backlog, closers: []io.Closer{client, doc, conn}}, nil

	default:
		tr, backlog, err := websocket.Dial(ctx, s.URL, s.Document, clientID, websocket.Options{
			ReconnectTimeout: s.ReconnectTimeout.Std(),
			OnReconnect: func(b *relay.Backlog) {
				logger.Info("reconnected", "document", s.Document, "messages", len(b.Messages))
			},
			OnDisconnect: disconnected,
			Logger:       logger.WithComponent("websocket"),
		})
		if err != nil {
			return nil, err
		}
		return &connection{transport: tr, backlog: backlog, closers: []io.Closer{tr}}, nil
	}
}

// plugins returns the built-in plugins followed by the script plugins of
// cfg.Plugins.Dir.
func plugins(cfg *config.Config) ([]model.PluginSpec, error) {
	specs := []model.PluginSpec{sheet.Spec(), selection.Spec()}
	if cfg.Plugins.Dir == "" {
		return specs, nil
	}
	scripts, err := script.LoadDir(cfg.Plugins.Dir, script.WithExecutionTimeout(cfg.Plugins.Timeout.Std()))
	if err != nil {
		return nil, err
	}
	return append(specs, scripts...), nil
}

// newReplica creates the model of the document over conn.
func newReplica(cfg *config.Config, conn *connection, client *session.Client, specs []model.PluginSpec, logger *app.Logger) (*model.Model, error) {
	data := conn.backlog.Data()
	if data == nil {
		data = sheet.DefaultData()
	}
	return model.New(model.Config{
		Plugins:   specs,
		Transport: conn.transport,
		Client:    client,
		Data:      data,
		Messages:  conn.backlog.Messages,
		ReadOnly:  cfg.Session.ReadOnly,
		Logger:    logger.WithComponent("model"),
	})
}
