package config

// Cache backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

func defaults() map[string]any {
	return map[string]any{
		"client.base_url":              "",
		"client.timeout":               "30s",
		"client.user_agent":            "httppipe/1.0",
		"client.log_payloads":          false,
		"client.max_payload_log_bytes": 1024,

		"retry.enabled":            true,
		"retry.max_retries":        3,
		"retry.base_delay":         "1s",
		"retry.max_backoff":        "30s",
		"retry.statuses":           []int{408, 429, 500, 502, 503, 504},
		"retry.retry_rate_limited": true,

		"cache.enabled":           true,
		"cache.backend":           BackendMemory,
		"cache.default_ttl":       "5m",
		"cache.default_max_stale": "0s",
		"cache.max_entries":       1000,
		"cache.async_writes":      false,

		"redis.host":          "localhost",
		"redis.port":          6379,
		"redis.database":      0,
		"redis.pool_size":     10,
		"redis.key_prefix":    "httppipe:cache:",
		"redis.dial_timeout":  "5s",
		"redis.read_timeout":  "3s",
		"redis.write_timeout": "3s",

		"auth.enabled":         true,
		"auth.refresh_path":    "/auth/refresh",
		"auth.auth_paths":      []string{"/auth/", "login", "register", "refresh", "verify-otp"},
		"auth.refresh_timeout": "30s",

		"connectivity.enabled":       false,
		"connectivity.interval":      "5s",
		"connectivity.probe_hosts":   []string{"1.1.1.1:53", "8.8.8.8:53"},
		"connectivity.probe_timeout": "2s",

		"breaker.enabled":           false,
		"breaker.failure_threshold": 5,
		"breaker.timeout":           "30s",
		"breaker.interval":          "60s",
		"breaker.max_requests":      1,

		"throttle.enabled": false,
		"throttle.rps":     10.0,
		"throttle.burst":   20,

		"log.level":  "info",
		"log.pretty": false,
	}
}
