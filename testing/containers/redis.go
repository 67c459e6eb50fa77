//go:build integration

// Package containers starts throwaway backing services for integration tests.
package containers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// RedisContainerConfig holds configuration for the Redis test container.
type RedisContainerConfig struct {
	// ImageTag selects the Redis image (default: "7.4-alpine").
	ImageTag string
	// StartupTimeout bounds container readiness (default: 60s).
	StartupTimeout time.Duration
}

// DefaultRedisConfig returns the configuration used when none is given.
func DefaultRedisConfig() *RedisContainerConfig {
	return &RedisContainerConfig{
		ImageTag:       "7.4-alpine",
		StartupTimeout: 60 * time.Second,
	}
}

// RedisContainer is a running Redis reachable from the test process.
type RedisContainer struct {
	container *redis.RedisContainer
	host      string
	port      int
}

// StartRedisContainer starts Redis and resolves its mapped address. The test
// is skipped when Docker is unavailable.
func StartRedisContainer(ctx context.Context, t *testing.T, cfg *RedisContainerConfig) (*RedisContainer, error) {
	t.Helper()

	if cfg == nil {
		cfg = DefaultRedisConfig()
	}

	if !isDockerAvailable(ctx) {
		t.Skip("Docker is not available - skipping integration test")
		return nil, nil
	}

	c, err := redis.Run(ctx,
		"redis:"+cfg.ImageTag,
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(cfg.StartupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start Redis container: %w", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("failed to get Redis host: %w", err)
	}

	mapped, err := c.MappedPort(ctx, "6379/tcp")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("failed to get Redis port: %w", err)
	}

	t.Logf("Redis container listening on %s:%d", host, mapped.Int())

	return &RedisContainer{container: c, host: host, port: mapped.Int()}, nil
}

// MustStartRedisContainer is StartRedisContainer that fails the test on error.
func MustStartRedisContainer(ctx context.Context, t *testing.T, cfg *RedisContainerConfig) *RedisContainer {
	t.Helper()

	c, err := StartRedisContainer(ctx, t, cfg)
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	return c
}

func (r *RedisContainer) Host() string { return r.host }

func (r *RedisContainer) Port() int { return r.port }

// Address returns host:port.
func (r *RedisContainer) Address() string {
	return net.JoinHostPort(r.host, strconv.Itoa(r.port))
}

// Terminate stops and removes the container.
func (r *RedisContainer) Terminate(ctx context.Context) error {
	if r.container == nil {
		return nil
	}
	return r.container.Terminate(ctx)
}

// WithCleanup terminates the container when the test finishes.
func (r *RedisContainer) WithCleanup(t *testing.T) *RedisContainer {
	t.Helper()
	t.Cleanup(func() {
		if err := r.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate Redis container: %v", err)
		}
	})
	return r
}
