package cache

import (
	"net/http"
	"slices"
	"time"
)

// Freshness classifies an entry at a given instant.
type Freshness int

const (
	// Fresh entries are served without contacting the server.
	Fresh Freshness = iota
	// StaleUsable entries are revalidated but may be served on failure.
	StaleUsable
	// Expired entries are never served.
	Expired
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case StaleUsable:
		return "stale"
	default:
		return "expired"
	}
}

// Entry is a cached response together with its freshness bookkeeping.
type Entry struct {
	StatusCode   int           `cbor:"1,keyasint"`
	Headers      http.Header   `cbor:"2,keyasint,omitempty"`
	Body         []byte        `cbor:"3,keyasint,omitempty"`
	CachedAt     time.Time     `cbor:"4,keyasint"`
	MaxAge       time.Duration `cbor:"5,keyasint"`
	MaxStale     time.Duration `cbor:"6,keyasint,omitempty"`
	ETag         string        `cbor:"7,keyasint,omitempty"`
	LastModified string        `cbor:"8,keyasint,omitempty"`
}

// Age is the time elapsed since the entry was cached.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}

// Freshness returns exactly one classification for the entry at now:
// fresh while age < MaxAge, stale-but-usable while age < MaxAge+MaxStale,
// expired afterwards.
func (e *Entry) Freshness(now time.Time) Freshness {
	age := e.Age(now)
	switch {
	case age < e.MaxAge:
		return Fresh
	case age < e.MaxAge+e.MaxStale:
		return StaleUsable
	default:
		return Expired
	}
}

// IsFresh reports age < MaxAge.
func (e *Entry) IsFresh(now time.Time) bool { return e.Freshness(now) == Fresh }

// IsStaleButUsable reports MaxAge <= age < MaxAge+MaxStale.
func (e *Entry) IsStaleButUsable(now time.Time) bool { return e.Freshness(now) == StaleUsable }

// IsExpired reports age >= MaxAge+MaxStale.
func (e *Entry) IsExpired(now time.Time) bool { return e.Freshness(now) == Expired }

// Lifetime is how long the entry stays servable in some form.
func (e *Entry) Lifetime() time.Duration {
	return e.MaxAge + e.MaxStale
}

// ExpiresAt is the instant the entry becomes expired.
func (e *Entry) ExpiresAt() time.Time {
	return e.CachedAt.Add(e.Lifetime())
}

// HasValidators reports whether the entry can be revalidated conditionally.
func (e *Entry) HasValidators() bool {
	return e.ETag != "" || e.LastModified != ""
}

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Headers = e.Headers.Clone()
	c.Body = slices.Clone(e.Body)
	return &c
}
