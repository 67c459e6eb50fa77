package cache

import (
	"strconv"
	"strings"
	"time"
)

// CacheControl holds the Cache-Control directives the pipeline acts on.
type CacheControl struct {
	MaxAge                  time.Duration
	HasMaxAge               bool
	StaleWhileRevalidate    time.Duration
	HasStaleWhileRevalidate bool
	NoStore                 bool
	NoCache                 bool
}

// ParseCacheControl parses a Cache-Control header value. Unknown directives
// and malformed durations are ignored.
func ParseCacheControl(header string) CacheControl {
	var cc CacheControl
	for _, part := range strings.Split(header, ",") {
		name, value, _ := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.Trim(strings.TrimSpace(value), `"`)

		switch name {
		case "no-store":
			cc.NoStore = true
		case "no-cache":
			cc.NoCache = true
		case "max-age":
			if d, ok := parseSeconds(value); ok {
				cc.MaxAge, cc.HasMaxAge = d, true
			}
		case "stale-while-revalidate":
			if d, ok := parseSeconds(value); ok {
				cc.StaleWhileRevalidate, cc.HasStaleWhileRevalidate = d, true
			}
		}
	}
	return cc
}

func parseSeconds(v string) (time.Duration, bool) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
