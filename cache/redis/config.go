package redis

import (
	"fmt"
	"time"

	"github.com/ridewave/httppipe/cache"
)

// DefaultKeyPrefix namespaces response cache keys inside a shared Redis.
const DefaultKeyPrefix = "httppipe:cache:"

// Config holds Redis connection settings for the response cache.
type Config struct {
	// Host is the Redis server hostname or IP address.
	Host string

	// Port is the Redis server port.
	Port int

	// Password for Redis authentication (optional).
	Password string //nolint:gosec // G117 - config field, loaded from env

	// Database number to use, 0-15.
	Database int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// KeyPrefix is prepended to every cache key. Clear only removes keys
	// under this prefix.
	KeyPrefix string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration // -1 disables the timeout
	WriteTimeout time.Duration // -1 disables the timeout

	// MaxRetries is the driver-level retry count. -1 disables retries.
	MaxRetries int
}

// DefaultConfig returns settings for a local Redis.
func DefaultConfig() *Config {
	return &Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		KeyPrefix:    DefaultKeyPrefix,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	}
}

// Validate performs fail-fast validation of the configuration.
func (c *Config) Validate() error {
	if c.Host == "" {
		return cache.NewConfigError("redis.host", "host is required", nil)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return cache.NewConfigError("redis.port", fmt.Sprintf("invalid port: %d", c.Port), nil)
	}

	if c.Database < 0 || c.Database > 15 {
		return cache.NewConfigError("redis.database", fmt.Sprintf("invalid database number: %d (must be 0-15)", c.Database), nil)
	}

	if c.PoolSize <= 0 {
		return cache.NewConfigError("redis.pool_size", fmt.Sprintf("invalid pool size: %d (must be > 0)", c.PoolSize), nil)
	}

	if c.DialTimeout < 0 {
		return cache.NewConfigError("redis.dial_timeout", "dial timeout cannot be negative", nil)
	}

	if c.ReadTimeout < -1 {
		return cache.NewConfigError("redis.read_timeout", "read timeout cannot be less than -1", nil)
	}

	if c.WriteTimeout < -1 {
		return cache.NewConfigError("redis.write_timeout", "write timeout cannot be less than -1", nil)
	}

	return nil
}

// Address returns the server address in "host:port" format.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
