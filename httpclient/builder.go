package httpclient

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ridewave/httppipe/auth"
	"github.com/ridewave/httppipe/cache"
	"github.com/ridewave/httppipe/cache/memory"
	redisstore "github.com/ridewave/httppipe/cache/redis"
	"github.com/ridewave/httppipe/config"
	"github.com/ridewave/httppipe/connectivity"
	"github.com/ridewave/httppipe/logger"
)

// DefaultTimeout is the default per-attempt timeout of the HTTP transport
const DefaultTimeout = 30 * time.Second

type throttleSettings struct {
	rps   float64
	burst int
}

// Builder provides a fluent interface for configuring the client. Stages
// are always assembled in the order throttle, connectivity, auth, cache,
// retry; unconfigured stages are left out.
type Builder struct {
	logger logger.Logger

	baseURL        string
	timeout        time.Duration
	httpClient     *http.Client
	transport      Transport
	defaultHeaders map[string]string

	logPayloads        bool
	maxPayloadLogBytes int

	throttle     *throttleSettings
	connectivity ConnectivityChecker
	tokenStore   auth.TokenStore
	authOpts     AuthOptions
	cacheStore   cache.Store
	cacheOpts    CacheOptions
	retry        *RetryPolicy
	breaker      *BreakerSettings

	closers []func() error
	err     error
}

// NewBuilder creates a new client builder
func NewBuilder(log logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{
		logger:         log,
		timeout:        DefaultTimeout,
		defaultHeaders: make(map[string]string),
	}
}

// WithBaseURL sets the URL relative request paths are resolved against
func (b *Builder) WithBaseURL(baseURL string) *Builder {
	b.baseURL = baseURL
	return b
}

// WithTimeout sets the per-attempt timeout of the default HTTP transport
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	b.timeout = timeout
	return b
}

// WithHTTPClient replaces the *http.Client used by the default transport
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithTransport replaces the transport. Default headers, base URL and
// timeout do not apply to a custom transport.
func (b *Builder) WithTransport(t Transport) *Builder {
	b.transport = t
	return b
}

// WithDefaultHeader adds a default header that will be sent with all requests
func (b *Builder) WithDefaultHeader(key, value string) *Builder {
	b.defaultHeaders[key] = value
	return b
}

// WithUserAgent sets the User-Agent default header
func (b *Builder) WithUserAgent(ua string) *Builder {
	return b.WithDefaultHeader("User-Agent", ua)
}

// WithPayloadLogging enables debug payload previews of up to maxBytes
func (b *Builder) WithPayloadLogging(enabled bool, maxBytes int) *Builder {
	b.logPayloads = enabled
	b.maxPayloadLogBytes = maxBytes
	return b
}

// WithThrottle limits attempts to rps per second with the given burst
func (b *Builder) WithThrottle(rps float64, burst int) *Builder {
	b.throttle = &throttleSettings{rps: rps, burst: burst}
	return b
}

// WithConnectivity enables the offline gate
func (b *Builder) WithConnectivity(checker ConnectivityChecker) *Builder {
	b.connectivity = checker
	return b
}

// WithAuth enables bearer tokens with single-flight refresh
func (b *Builder) WithAuth(store auth.TokenStore, opts AuthOptions) *Builder {
	b.tokenStore = store
	b.authOpts = opts
	return b
}

// WithSessionExpired registers a hook that runs when a refresh fails
func (b *Builder) WithSessionExpired(fn func(err error)) *Builder {
	b.authOpts.OnSessionExpired = fn
	return b
}

// WithCache enables response caching over store
func (b *Builder) WithCache(store cache.Store, opts CacheOptions) *Builder {
	b.cacheStore = store
	b.cacheOpts = opts
	return b
}

// WithRetry enables retries with the given policy
func (b *Builder) WithRetry(policy RetryPolicy) *Builder {
	b.retry = &policy
	return b
}

// WithBreaker wraps the transport in a circuit breaker
func (b *Builder) WithBreaker(settings BreakerSettings) *Builder {
	b.breaker = &settings
	return b
}

// WithCloser registers fn to run when the built client is closed, after
// pending cache writes finish. It also runs if Build fails.
func (b *Builder) WithCloser(fn func() error) *Builder {
	b.closers = append(b.closers, fn)
	return b
}

// FromConfig applies every section of cfg. Stores and monitors it needs are
// created here and released by Client.Close.
func (b *Builder) FromConfig(cfg *config.Config) *Builder {
	b.WithBaseURL(cfg.Client.BaseURL).
		WithTimeout(cfg.Client.Timeout).
		WithPayloadLogging(cfg.Client.LogPayloads, cfg.Client.MaxPayloadLogBytes)
	if cfg.Client.UserAgent != "" {
		b.WithUserAgent(cfg.Client.UserAgent)
	}

	if cfg.Throttle.Enabled {
		b.WithThrottle(cfg.Throttle.RPS, cfg.Throttle.Burst)
	}

	if cfg.Connectivity.Enabled {
		monitor := connectivity.NewMonitor(
			connectivity.NewDialProbe(cfg.Connectivity.ProbeHosts, cfg.Connectivity.ProbeTimeout),
			connectivity.WithInterval(cfg.Connectivity.Interval),
			connectivity.WithLogger(b.logger),
		)
		monitor.Start(context.Background())
		b.closers = append(b.closers, func() error {
			monitor.Stop()
			return nil
		})
		b.WithConnectivity(monitor)
	}

	if cfg.Auth.Enabled {
		store := b.tokenStore
		if store == nil {
			store = auth.NewMemoryStore(auth.TokenPair{})
		}
		b.WithAuth(store, AuthOptions{
			RefreshPath:      cfg.Auth.RefreshPath,
			RefreshTimeout:   cfg.Auth.RefreshTimeout,
			AuthPaths:        cfg.Auth.AuthPaths,
			OnSessionExpired: b.authOpts.OnSessionExpired,
		})
	}

	if cfg.Cache.Enabled {
		store, err := b.cacheStoreFromConfig(cfg)
		if err != nil {
			b.err = err
			return b
		}
		b.WithCache(store, CacheOptions{
			DefaultTTL:      cfg.Cache.DefaultTTL,
			DefaultMaxStale: cfg.Cache.DefaultMaxStale,
			AsyncWrites:     cfg.Cache.AsyncWrites,
		})
	}

	if cfg.Retry.Enabled {
		b.WithRetry(RetryPolicy{
			MaxRetries:       cfg.Retry.MaxRetries,
			BaseDelay:        cfg.Retry.BaseDelay,
			MaxBackoff:       cfg.Retry.MaxBackoff,
			Statuses:         cfg.Retry.Statuses,
			RetryRateLimited: cfg.Retry.RetryRateLimited,
		})
	}

	if cfg.Breaker.Enabled {
		b.WithBreaker(BreakerSettings{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Timeout:          cfg.Breaker.Timeout,
			Interval:         cfg.Breaker.Interval,
			MaxRequests:      cfg.Breaker.MaxRequests,
		})
	}
	return b
}

func (b *Builder) cacheStoreFromConfig(cfg *config.Config) (cache.Store, error) {
	if b.cacheStore != nil {
		return b.cacheStore, nil
	}

	if cfg.Cache.Backend == config.BackendRedis {
		rc := redisstore.DefaultConfig()
		rc.Host = cfg.Redis.Host
		rc.Port = cfg.Redis.Port
		rc.Password = cfg.Redis.Password
		rc.Database = cfg.Redis.Database
		rc.PoolSize = cfg.Redis.PoolSize
		if cfg.Redis.KeyPrefix != "" {
			rc.KeyPrefix = cfg.Redis.KeyPrefix
		}
		rc.DialTimeout = cfg.Redis.DialTimeout
		rc.ReadTimeout = cfg.Redis.ReadTimeout
		rc.WriteTimeout = cfg.Redis.WriteTimeout

		store, err := redisstore.NewStore(rc)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, store.Close)
		return store, nil
	}

	store, err := memory.New(cfg.Cache.MaxEntries)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Build creates the client with the configured options
func (b *Builder) Build() (Client, error) {
	if b.err != nil {
		b.closeAll()
		return nil, b.err
	}

	c := &client{
		transport:          b.buildTransport(),
		logger:             b.logger,
		logPayloads:        b.logPayloads,
		maxPayloadLogBytes: b.maxPayloadLogBytes,
		closers:            b.closers,
	}

	if b.throttle != nil {
		c.stages = append(c.stages, NewThrottleStage(b.throttle.rps, b.throttle.burst))
	}
	if b.connectivity != nil {
		c.stages = append(c.stages, NewConnectivityStage(b.connectivity))
	}
	if b.tokenStore != nil {
		tokens := NewTokenManager(b.tokenStore, b.logger, b.authOpts)
		tokens.send = c.send
		c.stages = append(c.stages, NewAuthStage(tokens))
	}
	if b.cacheStore != nil {
		c.cache = NewCacheStage(b.cacheStore, b.logger, b.cacheOpts)
		c.stages = append(c.stages, c.cache)
	}
	if b.retry != nil {
		c.stages = append(c.stages, NewRetryStage(*b.retry, b.logger))
	}
	return c, nil
}

func (b *Builder) buildTransport() Transport {
	transport := b.transport
	if transport == nil {
		hc := b.httpClient
		if hc == nil {
			hc = &http.Client{Timeout: b.timeout}
		}
		ht := NewHTTPTransport(b.baseURL, hc)
		for key, value := range b.defaultHeaders {
			ht.WithDefaultHeader(key, value)
		}
		transport = ht
	}

	if b.breaker != nil {
		settings := *b.breaker
		if settings.OnStateChange == nil {
			log := b.logger
			settings.OnStateChange = func(name string, from, to gobreaker.State) {
				log.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("Circuit breaker state changed")
			}
		}
		transport = NewBreakerTransport(transport, settings)
	}
	return transport
}

func (b *Builder) closeAll() {
	for _, closeFn := range b.closers {
		_ = closeFn()
	}
	b.closers = nil
}
