// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Server        ServerConfig            `mapstructure:"server"`
	Observability ObservabilityConfig     `mapstructure:"observability"`
	Matching      MatchingConfig          `mapstructure:"matching"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	URL        string   `mapstructure:"url"` // Single URL for backwards compatibility
}

// GetURL returns the first address or the URL field
func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ServerConfig is the health / metrics / admin HTTP listener.
type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout int `mapstructure:"write_timeout"` // milliseconds
}

type ObservabilityConfig struct {
	ServiceName    string  `mapstructure:"service_name"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"` // empty disables tracing export
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

// --- Matching engine ---

type MatchingConfig struct {
	DefaultStrategy string            `mapstructure:"default_strategy"`
	Cache           CacheConfig       `mapstructure:"cache"`
	Dispatcher      DispatcherConfig  `mapstructure:"dispatcher"`
	Persistence     PersistenceConfig `mapstructure:"persistence"`
	Profiles        ProfilesConfig    `mapstructure:"profiles"`
}

type CacheConfig struct {
	TTL                  int `mapstructure:"ttl"` // milliseconds
	MaxEntries           int `mapstructure:"max_entries"`
	SweepInterval        int `mapstructure:"sweep_interval"` // milliseconds
	FrequentHitThreshold int `mapstructure:"frequent_hit_threshold"`
}

type DispatcherConfig struct {
	Window    int `mapstructure:"window"` // milliseconds
	MaxBatch  int `mapstructure:"max_batch"`
	Workers   int `mapstructure:"workers"` // 0 runs batches inline
	QueueSize int `mapstructure:"queue_size"`
}

// Persistence backends.
const (
	BackendNone     = "none"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendTiered   = "tiered"
)

type PersistenceConfig struct {
	Backend      string `mapstructure:"backend"`
	MaxAge       int    `mapstructure:"max_age"`       // milliseconds
	WriteTimeout int    `mapstructure:"write_timeout"` // milliseconds
	RedisTTL     int    `mapstructure:"redis_ttl"`     // milliseconds
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// Profile sources.
const (
	SourcePostgres      = "postgres"
	SourceElasticsearch = "elasticsearch"
)

type ProfilesConfig struct {
	Source        string `mapstructure:"source"`
	CacheTTL      int    `mapstructure:"cache_ttl"` // milliseconds, 0 disables the redis read cache
	ProviderIndex string `mapstructure:"provider_index"`
	SeekerIndex   string `mapstructure:"seeker_index"`
}

// UsesPostgres reports whether any configured component needs a postgres connection.
func (c *Config) UsesPostgres() bool {
	b := c.Matching.Persistence.Backend
	return b == BackendPostgres || b == BackendTiered || c.Matching.Profiles.Source == SourcePostgres
}

// UsesRedis reports whether any configured component needs a redis connection.
func (c *Config) UsesRedis() bool {
	b := c.Matching.Persistence.Backend
	return b == BackendRedis || b == BackendTiered ||
		(c.Matching.Profiles.Source == SourcePostgres && c.Matching.Profiles.CacheTTL > 0)
}

// UsesElasticsearch reports whether profiles are read from elasticsearch.
func (c *Config) UsesElasticsearch() bool {
	return c.Matching.Profiles.Source == SourceElasticsearch
}

// AnyWorkerEnabled reports whether at least one job worker should be started.
func (c *Config) AnyWorkerEnabled() bool {
	for _, w := range c.Workers {
		if w.Enabled {
			return true
		}
	}
	return false
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
