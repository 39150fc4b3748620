package config

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/gridsync/internal/config/loader"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "gridsync.toml"

// EnvPrefix prefixes the environment variables overriding settings.
const EnvPrefix = "GRIDSYNC_"

// Config holds every setting.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Redis   RedisConfig   `toml:"redis"`
	Session SessionConfig `toml:"session"`
	Log     LogConfig     `toml:"log"`
	Plugins PluginsConfig `toml:"plugins"`

	path string
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			AllowedOrigins:  []string{},
			ShutdownTimeout: Duration(10 * time.Second),
			WriteTimeout:    Duration(10 * time.Second),
			PingInterval:    Duration(30 * time.Second),
			MaxMessageSize:  1 << 20,
		},
		Store: StoreConfig{
			Driver: DriverMemory,
			Path:   "gridsync.db",
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			ChannelPrefix: "gridsync",
		},
		Session: SessionConfig{
			URL:              "ws://localhost:8080",
			Document:         "default",
			Transport:        TransportWebsocket,
			ReconnectTimeout: Duration(2 * time.Minute),
		},
		Log: LogConfig{
			Level: "info",
		},
		Plugins: PluginsConfig{
			Timeout: Duration(time.Second),
		},
	}
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Load reads the file at path over the defaults, then applies the
// environment. A missing file is not an error. The result is validated.
func Load(path string) (*Config, error) {
	return load(loader.NewTOMLLoader(path), path, nil)
}

// load merges the sources and decodes the result. env replaces the
// environment loader when not nil.
func load(file loader.Loader, path string, env loader.Loader) (*Config, error) {
	defaults, err := toMap(Default())
	if err != nil {
		return nil, err
	}
	if env == nil {
		env = loader.NewEnvLoader(EnvPrefix, loader.Clone(defaults))
	}

	merged := defaults
	for _, src := range []struct {
		name string
		l    loader.Loader
	}{
		{path, file},
		{"environment", env},
	} {
		m, err := src.l.Load()
		if err != nil {
			return nil, err
		}
		if unknown := unknownPaths(defaults, m, ""); len(unknown) > 0 {
			return nil, &UnknownSettingsError{Source: src.name, Paths: unknown}
		}
		merged = loader.DeepMerge(merged, m)
	}

	cfg, err := decode(merged)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.path = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// toMap converts cfg to the map form produced by the loaders.
func toMap(cfg *Config) (map[string]any, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return m, nil
}

func decode(m map[string]any) (*Config, error) {
	data, err := toml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	cfg := &Config{}
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var sme *toml.StrictMissingError
		if errors.As(err, &sme) {
			var paths []string
			for _, e := range sme.Errors {
				paths = append(paths, strings.Join(e.Key(), "."))
			}
			return nil, &UnknownSettingsError{Source: "settings", Paths: paths}
		}
		return nil, err
	}
	return cfg, nil
}

// unknownPaths lists the leaves of m absent from known, sorted.
func unknownPaths(known, m map[string]any, prefix string) []string {
	var out []string
	for k, v := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		kv, ok := known[k]
		if !ok {
			out = append(out, path)
			continue
		}
		sub, isMap := v.(map[string]any)
		ksub, knownMap := kv.(map[string]any)
		if isMap && knownMap {
			out = append(out, unknownPaths(ksub, sub, path)...)
		}
	}
	slices.Sort(out)
	return out
}

// Validate checks the settings, returning every ValidationError found.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(path, msg string, value any) {
		errs = append(errs, &ValidationError{Path: path, Message: msg, Value: value})
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverBolt:
		if c.Store.Path == "" {
			invalid("store.path", "required by the bolt driver", c.Store.Path)
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			invalid("store.dsn", "required by the postgres driver", c.Store.DSN)
		}
	default:
		invalid("store.driver", "must be memory, bolt or postgres", c.Store.Driver)
	}

	switch c.Session.Transport {
	case TransportWebsocket, TransportRedis:
	default:
		invalid("session.transport", "must be websocket or redis", c.Session.Transport)
	}
	if c.Session.Document == "" {
		invalid("session.document", "must not be empty", c.Session.Document)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		invalid("log.level", "must be debug, info, warn or error", c.Log.Level)
	}

	if c.Server.ShutdownTimeout <= 0 {
		invalid("server.shutdownTimeout", "must be positive", c.Server.ShutdownTimeout.Std())
	}
	if c.Server.WriteTimeout <= 0 {
		invalid("server.writeTimeout", "must be positive", c.Server.WriteTimeout.Std())
	}
	if c.Server.PingInterval < 0 {
		invalid("server.pingInterval", "must not be negative", c.Server.PingInterval.Std())
	}
	if c.Server.MaxMessageSize <= 0 {
		invalid("server.maxMessageSize", "must be positive", c.Server.MaxMessageSize)
	}
	if c.Session.ReconnectTimeout < 0 {
		invalid("session.reconnectTimeout", "must not be negative", c.Session.ReconnectTimeout.Std())
	}
	if c.Plugins.Timeout < 0 {
		invalid("plugins.timeout", "must not be negative", c.Plugins.Timeout.Std())
	}
	if c.Redis.DB < 0 {
		invalid("redis.db", "must not be negative", c.Redis.DB)
	}

	return errors.Join(errs...)
}
