// Package ratelimit provides per-client rate limiting using a token bucket algorithm.
package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Rule limits one route. A Path ending in "/" matches by prefix.
type Rule struct {
	Method string
	Path   string
	Limit  int           // requests per Window; zero or less means unlimited
	Window time.Duration
	Burst  int // bucket capacity; defaults to Limit
}

// Config holds the rules and the fallback applied to unmatched routes.
type Config struct {
	Rules   []Rule
	Default Rule
	// IdleTTL drops buckets that have not been used for this long.
	IdleTTL time.Duration
}

// Info describes the outcome of one Allow call.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// tokenBucket gains one token per interval, up to capacity.
type tokenBucket struct {
	capacity   float64
	interval   time.Duration
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(capacity int, interval time.Duration, now time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:   float64(capacity),
		interval:   interval,
		tokens:     float64(capacity),
		lastRefill: now,
	}
}

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+float64(elapsed)/float64(b.interval))
		b.lastRefill = now
	}
}

// take consumes a token when one is available and reports how long until the next one.
func (b *tokenBucket) take(now time.Time) (bool, time.Duration) {
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	return false, time.Duration((1 - b.tokens) * float64(b.interval))
}

// Limiter tracks one bucket per client and rule.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	buckets  map[string]*tokenBucket
	lastSeen map[string]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// NewLimiter creates a limiter for cfg. An IdleTTL of zero defaults to one hour.
func NewLimiter(cfg Config, opts ...Option) *Limiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = time.Hour
	}
	l := &Limiter{
		cfg:      cfg,
		now:      time.Now,
		buckets:  make(map[string]*tokenBucket),
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Match returns the rule for method and path, falling back to the default rule.
func (l *Limiter) Match(method, path string) Rule {
	for _, r := range l.cfg.Rules {
		if r.Method == method && r.Path == path {
			return r
		}
	}
	for _, r := range l.cfg.Rules {
		if r.Method == method && strings.HasSuffix(r.Path, "/") && strings.HasPrefix(path, r.Path) {
			return r
		}
	}
	return l.cfg.Default
}

// Allow consumes a token for clientID on the rule matching method and path.
func (l *Limiter) Allow(clientID, method, path string) Info {
	rule := l.Match(method, path)
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Info{Allowed: true}
	}
	capacity := rule.Burst
	if capacity <= 0 {
		capacity = rule.Limit
	}

	key := clientID + "|" + rule.Method + " " + rule.Path
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = newTokenBucket(capacity, rule.Window/time.Duration(rule.Limit), now)
		l.buckets[key] = b
	}
	l.lastSeen[key] = now

	allowed, retryAfter := b.take(now)
	return Info{
		Allowed:    allowed,
		Limit:      rule.Limit,
		Remaining:  int(b.tokens),
		RetryAfter: retryAfter,
	}
}

// Prune drops buckets idle for longer than IdleTTL and returns how many were removed.
func (l *Limiter) Prune() int {
	cutoff := l.now().Add(-l.cfg.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, seen := range l.lastSeen {
		if seen.Before(cutoff) {
			delete(l.buckets, key)
			delete(l.lastSeen, key)
			removed++
		}
	}
	return removed
}

// Run prunes idle buckets every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

// Size reports the number of live buckets.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
