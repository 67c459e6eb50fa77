package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Config is the complete pipeline configuration. Every section maps to one
// stage or collaborator of the HTTP client.
type Config struct {
	Client       ClientConfig       `koanf:"client" json:"client" yaml:"client"`
	Retry        RetryConfig        `koanf:"retry" json:"retry" yaml:"retry"`
	Cache        CacheConfig        `koanf:"cache" json:"cache" yaml:"cache"`
	Redis        RedisConfig        `koanf:"redis" json:"redis" yaml:"redis"`
	Auth         AuthConfig         `koanf:"auth" json:"auth" yaml:"auth"`
	Connectivity ConnectivityConfig `koanf:"connectivity" json:"connectivity" yaml:"connectivity"`
	Breaker      BreakerConfig      `koanf:"breaker" json:"breaker" yaml:"breaker"`
	Throttle     ThrottleConfig     `koanf:"throttle" json:"throttle" yaml:"throttle"`
	Log          LogConfig          `koanf:"log" json:"log" yaml:"log"`

	k *koanf.Koanf `json:"-" yaml:"-"`
}

// ClientConfig holds transport-level settings.
type ClientConfig struct {
	BaseURL   string        `koanf:"base_url" json:"base_url" yaml:"base_url" validate:"omitempty,url"`
	Timeout   time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout" validate:"gt=0"`
	UserAgent string        `koanf:"user_agent" json:"user_agent" yaml:"user_agent"`

	// LogPayloads adds truncated request and response bodies to debug logs.
	LogPayloads        bool `koanf:"log_payloads" json:"log_payloads" yaml:"log_payloads"`
	MaxPayloadLogBytes int  `koanf:"max_payload_log_bytes" json:"max_payload_log_bytes" yaml:"max_payload_log_bytes" validate:"gte=0"`
}

// RetryConfig controls the retry stage.
type RetryConfig struct {
	Enabled    bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	MaxRetries int           `koanf:"max_retries" json:"max_retries" yaml:"max_retries" validate:"gte=0,lte=10"`
	BaseDelay  time.Duration `koanf:"base_delay" json:"base_delay" yaml:"base_delay" validate:"gt=0"`
	MaxBackoff time.Duration `koanf:"max_backoff" json:"max_backoff" yaml:"max_backoff" validate:"gtefield=BaseDelay"`
	Statuses   []int         `koanf:"statuses" json:"statuses" yaml:"statuses" validate:"dive,gte=100,lte=599"`

	// RetryRateLimited decides whether 429 is retried or surfaced as a
	// rate-limit failure right away.
	RetryRateLimited bool `koanf:"retry_rate_limited" json:"retry_rate_limited" yaml:"retry_rate_limited"`
}

// CacheConfig controls the response cache stage.
type CacheConfig struct {
	Enabled         bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Backend         string        `koanf:"backend" json:"backend" yaml:"backend" validate:"oneof=memory redis"`
	DefaultTTL      time.Duration `koanf:"default_ttl" json:"default_ttl" yaml:"default_ttl" validate:"gte=0"`
	DefaultMaxStale time.Duration `koanf:"default_max_stale" json:"default_max_stale" yaml:"default_max_stale" validate:"gte=0"`
	MaxEntries      int           `koanf:"max_entries" json:"max_entries" yaml:"max_entries" validate:"gt=0"`
	AsyncWrites     bool          `koanf:"async_writes" json:"async_writes" yaml:"async_writes"`
}

// RedisConfig is used when the cache backend is redis.
type RedisConfig struct {
	Host         string        `koanf:"host" json:"host" yaml:"host"`
	Port         int           `koanf:"port" json:"port" yaml:"port" validate:"gte=1,lte=65535"`
	Password     string        `koanf:"password" json:"password" yaml:"password"` //nolint:gosec // loaded from env
	Database     int           `koanf:"database" json:"database" yaml:"database" validate:"gte=0,lte=15"`
	PoolSize     int           `koanf:"pool_size" json:"pool_size" yaml:"pool_size" validate:"gt=0"`
	KeyPrefix    string        `koanf:"key_prefix" json:"key_prefix" yaml:"key_prefix"`
	DialTimeout  time.Duration `koanf:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout" validate:"gte=0"`
	ReadTimeout  time.Duration `koanf:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
}

// AuthConfig controls the token lifecycle stage.
type AuthConfig struct {
	Enabled        bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	RefreshPath    string        `koanf:"refresh_path" json:"refresh_path" yaml:"refresh_path" validate:"required,startswith=/"`
	AuthPaths      []string      `koanf:"auth_paths" json:"auth_paths" yaml:"auth_paths"`
	RefreshTimeout time.Duration `koanf:"refresh_timeout" json:"refresh_timeout" yaml:"refresh_timeout" validate:"gt=0"`
}

// ConnectivityConfig controls the offline gate.
type ConnectivityConfig struct {
	Enabled      bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Interval     time.Duration `koanf:"interval" json:"interval" yaml:"interval" validate:"gt=0"`
	ProbeHosts   []string      `koanf:"probe_hosts" json:"probe_hosts" yaml:"probe_hosts" validate:"dive,hostname_port"`
	ProbeTimeout time.Duration `koanf:"probe_timeout" json:"probe_timeout" yaml:"probe_timeout" validate:"gt=0"`
}

// BreakerConfig controls the circuit breaker around the transport.
type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	FailureThreshold uint32        `koanf:"failure_threshold" json:"failure_threshold" yaml:"failure_threshold" validate:"gte=1"`
	Timeout          time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout" validate:"gt=0"`
	Interval         time.Duration `koanf:"interval" json:"interval" yaml:"interval" validate:"gte=0"`
	MaxRequests      uint32        `koanf:"max_requests" json:"max_requests" yaml:"max_requests" validate:"gte=1"`
}

// ThrottleConfig controls client-side rate limiting.
type ThrottleConfig struct {
	Enabled bool    `koanf:"enabled" json:"enabled" yaml:"enabled"`
	RPS     float64 `koanf:"rps" json:"rps" yaml:"rps" validate:"gt=0"`
	Burst   int     `koanf:"burst" json:"burst" yaml:"burst" validate:"gte=1"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}
