package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter meters request weight per API host. Each host gets its own token bucket
// refilled at perSecond; a host that answered 429/418 is additionally held back
// until its penalty expires.
type Limiter struct {
	mu        sync.RWMutex
	buckets   map[string]*rate.Limiter
	penalties map[string]time.Time
	perSecond rate.Limit
	burst     int
	now       func() time.Time
}

// NewLimiter creates a limiter refilling perSecond weight units up to burst per host
func NewLimiter(perSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		buckets:   make(map[string]*rate.Limiter),
		penalties: make(map[string]time.Time),
		perSecond: rate.Limit(perSecond),
		burst:     burst,
		now:       time.Now,
	}
}

// PerMinute converts a venue's per-minute weight budget to a limiter
func PerMinute(weight, burst int) *Limiter {
	return NewLimiter(float64(weight)/60, burst)
}

func (l *Limiter) bucket(host string) *rate.Limiter {
	l.mu.RLock()
	b, ok := l.buckets[host]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[host]; ok {
		return b
	}
	b = rate.NewLimiter(l.perSecond, l.burst)
	l.buckets[host] = b
	return b
}

// clamp keeps n within what a bucket can ever hold; rate.Limiter rejects n > burst outright
func (l *Limiter) clamp(n int) int {
	switch {
	case n < 1:
		return 1
	case n > l.burst:
		return l.burst
	}
	return n
}

// Allow reports whether a unit-weight request to host may go out now
func (l *Limiter) Allow(host string) bool {
	return l.AllowN(host, 1)
}

// AllowN reports whether a request of the given weight may go out now, consuming it if so
func (l *Limiter) AllowN(host string, weight int) bool {
	if l.penaltyLeft(host) > 0 {
		return false
	}
	return l.bucket(host).AllowN(l.now(), l.clamp(weight))
}

// Wait blocks until a unit-weight request to host may go out
func (l *Limiter) Wait(ctx context.Context, host string) error {
	return l.WaitN(ctx, host, 1)
}

// WaitN blocks until host is out of its penalty window and weight units are available
func (l *Limiter) WaitN(ctx context.Context, host string, weight int) error {
	if d := l.penaltyLeft(host); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.bucket(host).WaitN(ctx, l.clamp(weight))
}

// Penalize holds every request to host back for d. A shorter penalty never shortens an existing one.
func (l *Limiter) Penalize(host string, d time.Duration) {
	if d <= 0 {
		return
	}
	until := l.now().Add(d)

	l.mu.Lock()
	defer l.mu.Unlock()
	if current, ok := l.penalties[host]; !ok || until.After(current) {
		l.penalties[host] = until
	}
}

func (l *Limiter) penaltyLeft(host string) time.Duration {
	l.mu.RLock()
	until, ok := l.penalties[host]
	l.mu.RUnlock()
	if !ok {
		return 0
	}
	return until.Sub(l.now())
}

// Stats returns a snapshot per host seen so far
func (l *Limiter) Stats() map[string]LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	stats := make(map[string]LimiterStats, len(l.buckets))
	for host, b := range l.buckets {
		s := LimiterStats{
			Host:            host,
			PerSecond:       float64(b.Limit()),
			Burst:           b.Burst(),
			TokensAvailable: b.TokensAt(now),
		}
		if until, ok := l.penalties[host]; ok && until.After(now) {
			s.BlockedUntil = until
		}
		stats[host] = s
	}
	return stats
}

// LimiterStats describes one host's bucket
type LimiterStats struct {
	Host            string    `json:"host"`
	PerSecond       float64   `json:"per_second"`
	Burst           int       `json:"burst"`
	TokensAvailable float64   `json:"tokens_available"`
	BlockedUntil    time.Time `json:"blocked_until,omitempty"`
}

// IsThrottled returns true while the host is serving a penalty
func (s LimiterStats) IsThrottled() bool {
	return !s.BlockedUntil.IsZero()
}
