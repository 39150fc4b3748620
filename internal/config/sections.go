package config

import (
	"fmt"
	"time"
)

// Duration is a time.Duration written as a string ("10s", "500ms") in
// configuration files.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q", text)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerConfig configures gridsync-server.
type ServerConfig struct {
	// Addr is the address the HTTP server listens on.
	Addr string `toml:"addr"`

	// AllowedOrigins lists the origins allowed to open a websocket. Empty
	// allows same-origin requests only; "*" allows any origin.
	AllowedOrigins []string `toml:"allowedOrigins"`

	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout Duration `toml:"shutdownTimeout"`

	// WriteTimeout bounds a single websocket write.
	WriteTimeout Duration `toml:"writeTimeout"`

	// PingInterval is the websocket keep-alive period.
	PingInterval Duration `toml:"pingInterval"`

	// MaxMessageSize is the largest message accepted from a client, in bytes.
	MaxMessageSize int64 `toml:"maxMessageSize"`
}

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
)

// StoreConfig selects where the server keeps revision logs and snapshots.
type StoreConfig struct {
	// Driver is one of "memory", "bolt" or "postgres".
	Driver string `toml:"driver"`

	// Path is the bolt database file.
	Path string `toml:"path"`

	// DSN is the postgres connection string.
	DSN string `toml:"dsn"`
}

// RedisConfig configures the redis fan-out between server instances and
// the redis client transport.
type RedisConfig struct {
	// Enabled bridges the relays of the server through redis.
	Enabled bool `toml:"enabled"`

	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`

	// ChannelPrefix namespaces the channels and keys: the messages of
	// document d are published on <prefix>:doc:<d>.
	ChannelPrefix string `toml:"channelPrefix"`
}

// Client transports.
const (
	TransportWebsocket = "websocket"
	TransportRedis     = "redis"
)

// SessionConfig configures the gridsync client.
type SessionConfig struct {
	// URL is the base URL of the server, e.g. ws://localhost:8080.
	URL string `toml:"url"`

	// Document is the id of the document to join.
	Document string `toml:"document"`

	// ClientName is shown to the other users. Defaults to the user name.
	ClientName string `toml:"clientName"`

	// Transport is "websocket" or "redis".
	Transport string `toml:"transport"`

	// ReadOnly refuses every local change. Reloaded at run time.
	ReadOnly bool `toml:"readOnly"`

	// ReconnectTimeout bounds the reconnection attempts of the websocket
	// transport. Zero retries forever.
	ReconnectTimeout Duration `toml:"reconnectTimeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn or error. Reloaded at run time.
	Level string `toml:"level"`
}

// PluginsConfig configures the script plugins of the client.
type PluginsConfig struct {
	// Dir holds the plugins. Empty disables them.
	Dir string `toml:"dir"`

	// Timeout bounds a single call into a script.
	Timeout Duration `toml:"timeout"`
}
