// Package ratelimit implements the per-host token bucket the Resource
// Manager consults before admitting a fetch (spec §4.3).
package ratelimit

import (
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// bucket is one host's token bucket state.
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	lastFill time.Time
}

// Limiter enforces requests-per-second with burst per host (or per
// registrable domain when GroupByETLD1 is set), with a small random
// jitter added to the computed retry-after so synchronized callers don't
// all retry in lockstep — the same throttle-plus-jitter shape the
// original domain scheduler used per-domain.
type Limiter struct {
	mu            sync.Mutex
	buckets       map[string]*bucket
	rate          float64 // tokens per second
	burst         float64
	jitterMax     time.Duration
	groupByETLD1  bool
	logger        *slog.Logger
}

// New creates a Limiter admitting rate requests/sec per key, with burst
// capacity, adding up to jitterMax of random delay to retry-after
// estimates. When groupByETLD1 is true, keys are collapsed to their
// registrable domain (e.g. "a.example.com" and "b.example.com" share one
// bucket for "example.com").
func New(rate float64, burst int, jitterMax time.Duration, groupByETLD1 bool, logger *slog.Logger) *Limiter {
	return &Limiter{
		buckets:      make(map[string]*bucket),
		rate:         rate,
		burst:        float64(burst),
		jitterMax:    jitterMax,
		groupByETLD1: groupByETLD1,
		logger:       logger.With("component", "rate_limiter"),
	}
}

// Rate returns the configured requests-per-second per host, for
// capabilities/health reporting.
func (l *Limiter) Rate() float64 { return l.rate }

// Allow reports whether a token is available for host right now. If not,
// retryAfter is the estimated wait plus jitter.
func (l *Limiter) Allow(host string) (bool, time.Duration) {
	key := l.keyFor(host)
	b := l.bucketFor(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastFill).Seconds()
	b.lastFill = now
	b.tokens = min(l.burst, b.tokens+elapsed*l.rate)

	if b.tokens >= 1.0 {
		b.tokens -= 1.0
		return true, 0
	}

	deficit := 1.0 - b.tokens
	wait := time.Duration(deficit/l.rate*float64(time.Second))
	if l.jitterMax > 0 {
		wait += time.Duration(rand.Int63n(int64(l.jitterMax) + 1))
	}
	return false, wait
}

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.burst, lastFill: time.Now()}
		l.buckets[key] = b
	}
	return b
}

// keyFor collapses host to its registrable domain when GroupByETLD1 is
// enabled, otherwise returns host unchanged.
func (l *Limiter) keyFor(host string) string {
	if !l.groupByETLD1 {
		return host
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}

// HostFromURL extracts the bucketing key a caller should pass to Allow
// for the given absolute URL.
func HostFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}

// Reset drops a host's bucket, used by tests and by admin tooling that
// wants to clear an artificially depressed bucket.
func (l *Limiter) Reset(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, l.keyFor(host))
}
