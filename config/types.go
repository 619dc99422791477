package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

const (
	// DefaultTenantHeader is the request header carrying the tenant identifier.
	DefaultTenantHeader = "_db"
	// DefaultTenantID is used when a request carries no tenant identifier.
	DefaultTenantID = "default_db"
)

// Config is the root configuration of the records service.
type Config struct {
	App         AppConfig         `koanf:"app" json:"app" yaml:"app"`
	Server      ServerConfig      `koanf:"server" json:"server" yaml:"server"`
	MongoDB     MongoConfig       `koanf:"mongodb" json:"mongodb" yaml:"mongodb"`
	Multitenant MultitenantConfig `koanf:"multitenant" json:"multitenant" yaml:"multitenant"`
	Log         LogConfig         `koanf:"log" json:"log" yaml:"log"`

	// k holds the underlying koanf instance for sections owned by other packages
	k *koanf.Koanf `json:"-" yaml:"-"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name    string     `koanf:"name" json:"name" yaml:"name"`
	Version string     `koanf:"version" json:"version" yaml:"version"`
	Env     string     `koanf:"env" json:"env" yaml:"env"`
	Rate    RateConfig `koanf:"rate" json:"rate" yaml:"rate"`
}

// RateConfig holds per-tenant rate limiting settings. A zero Limit disables limiting.
type RateConfig struct {
	Limit int `koanf:"limit" json:"limit" yaml:"limit"`
	Burst int `koanf:"burst" json:"burst" yaml:"burst"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host    string        `koanf:"host" json:"host" yaml:"host"`
	Port    int           `koanf:"port" json:"port" yaml:"port"`
	Timeout TimeoutConfig `koanf:"timeout" json:"timeout" yaml:"timeout"`
	Path    PathConfig    `koanf:"path" json:"path" yaml:"path"`
	Body    BodyConfig    `koanf:"body" json:"body" yaml:"body"`
}

// TimeoutConfig holds the server timeouts.
type TimeoutConfig struct {
	Read       time.Duration `koanf:"read" json:"read" yaml:"read"`
	Write      time.Duration `koanf:"write" json:"write" yaml:"write"`
	Idle       time.Duration `koanf:"idle" json:"idle" yaml:"idle"`
	Middleware time.Duration `koanf:"middleware" json:"middleware" yaml:"middleware"`
	Shutdown   time.Duration `koanf:"shutdown" json:"shutdown" yaml:"shutdown"`
}

// PathConfig holds probe endpoint paths.
type PathConfig struct {
	Health string `koanf:"health" json:"health" yaml:"health"`
	Ready  string `koanf:"ready" json:"ready" yaml:"ready"`
}

// BodyConfig limits request body size (echo notation, e.g. "1M").
type BodyConfig struct {
	Limit string `koanf:"limit" json:"limit" yaml:"limit"`
}

// MongoConfig holds the shared MongoDB client settings.
type MongoConfig struct {
	// URI is the connection string. Required.
	URI            string            `koanf:"uri" json:"uri" yaml:"uri"`
	Connect        MongoConnect      `koanf:"connect" json:"connect" yaml:"connect"`
	Ping           MongoPing         `koanf:"ping" json:"ping" yaml:"ping"`
	Pool           MongoPool         `koanf:"pool" json:"pool" yaml:"pool"`
	ReadPreference string            `koanf:"readpreference" json:"readpreference" yaml:"readpreference"`
	WriteConcern   string            `koanf:"writeconcern" json:"writeconcern" yaml:"writeconcern"`
	TLS            MongoTLS          `koanf:"tls" json:"tls" yaml:"tls"`
	Options        map[string]string `koanf:"options" json:"options" yaml:"options"`
}

// MongoConnect bounds client connection and per-tenant handle construction.
type MongoConnect struct {
	Timeout time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
}

// MongoPing controls whether new tenant handles are pinged before use.
type MongoPing struct {
	Enabled bool `koanf:"enabled" json:"enabled" yaml:"enabled"`
}

// MongoPool holds connection pool settings of the shared client.
type MongoPool struct {
	Max  uint64        `koanf:"max" json:"max" yaml:"max"`
	Min  uint64        `koanf:"min" json:"min" yaml:"min"`
	Idle time.Duration `koanf:"idle" json:"idle" yaml:"idle"`
}

// MongoTLS enables TLS for the client connection.
type MongoTLS struct {
	Enabled            bool `koanf:"enabled" json:"enabled" yaml:"enabled"`
	InsecureSkipVerify bool `koanf:"insecureskipverify" json:"insecureskipverify" yaml:"insecureskipverify"`
}

// MultitenantConfig holds tenant resolution and handle cache settings.
type MultitenantConfig struct {
	Header  string        `koanf:"header" json:"header" yaml:"header"`
	Tenant  TenantConfig  `koanf:"tenant" json:"tenant" yaml:"tenant"`
	Idle    IdleConfig    `koanf:"idle" json:"idle" yaml:"idle"`
	Cleanup CleanupConfig `koanf:"cleanup" json:"cleanup" yaml:"cleanup"`
	Max     MaxConfig     `koanf:"max" json:"max" yaml:"max"`
}

// TenantConfig holds the fallback tenant identifier.
type TenantConfig struct {
	Default string `koanf:"default" json:"default" yaml:"default"`
}

// IdleConfig holds the idle window after which a tenant handle is evicted.
type IdleConfig struct {
	TTL time.Duration `koanf:"ttl" json:"ttl" yaml:"ttl"`
}

// CleanupConfig holds the background sweep interval. Zero disables the sweeper.
type CleanupConfig struct {
	Interval time.Duration `koanf:"interval" json:"interval" yaml:"interval"`
}

// MaxConfig bounds the number of cached tenant handles. Zero means unbounded.
type MaxConfig struct {
	Tenants int `koanf:"tenants" json:"tenants" yaml:"tenants"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}
