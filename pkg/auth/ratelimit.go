package auth

import (
	"context"
	"sync"
	"time"
)

// RateLimiter checks whether a request should be allowed based on the
// identity's service tier.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// TierConfig holds rate limit settings for a service tier.
type TierConfig struct {
	RequestsPerMinute int
}

// InProcessLimiter is a fixed one-minute window limiter keyed by subject
// and tier. Counts are per process.
type InProcessLimiter struct {
	tiers      map[string]TierConfig
	defaultRPM int
	now        func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
	sweptAt  time.Time
}

type counter struct {
	count    int
	windowAt time.Time
}

// NewInProcessLimiter creates a limiter with per-tier limits. A tier
// without an entry uses defaultRPM; zero or negative means unlimited.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:      tiers,
		defaultRPM: defaultRPM,
		now:        time.Now,
		counters:   make(map[string]*counter),
	}
}

// Allow returns ErrTooManyRequests when the identity exceeded its tier.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	if identity == nil {
		return nil
	}
	tier := TierOf(identity)

	rpm := l.defaultRPM
	if tc, ok := l.tiers[tier]; ok {
		rpm = tc.RequestsPerMinute
	}
	if rpm <= 0 {
		return nil
	}

	key := identity.Subject + ":" + tier

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	c, ok := l.counters[key]
	if !ok || now.Sub(c.windowAt) >= time.Minute {
		l.counters[key] = &counter{count: 1, windowAt: now}
		return nil
	}

	c.count++
	if c.count > rpm {
		return ErrTooManyRequests
	}
	return nil
}

// sweep drops expired windows at most once per minute.
// Must be called with mu held.
func (l *InProcessLimiter) sweep(now time.Time) {
	if now.Sub(l.sweptAt) < time.Minute {
		return
	}
	for key, c := range l.counters {
		if now.Sub(c.windowAt) >= time.Minute {
			delete(l.counters, key)
		}
	}
	l.sweptAt = now
}

// TierOf returns the identity's tier, "default" when unset.
func TierOf(identity *Identity) string {
	if identity == nil || identity.ServiceTier == "" {
		return "default"
	}
	return identity.ServiceTier
}
