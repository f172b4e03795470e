// Package ratelimit enforces the minimum interval between outbound HTTP
// calls a GameSession is allowed to make, so the agent doesn't trip the
// game server's anti-bot detection.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter blocks callers until at least MinInterval has elapsed since the
// previous permitted call. Unlike a token-bucket limiter this tracks a
// single "last call" instant under one mutex (spec.md §4.1: "single mutable
// field... the monotonic timestamp of the last permitted call").
type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	last        time.Time
	now         func() time.Time
}

// New creates a Limiter with the given minimum interval between calls.
func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		minInterval: minInterval,
		now:         time.Now,
	}
}

// Acquire blocks until it is safe to issue the next outbound call, or ctx is
// done. Call this immediately before each HTTP request (spec.md §4.1).
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		wait := l.minInterval - now.Sub(l.last)
		if wait <= 0 {
			l.last = now
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// MinInterval reports the configured minimum interval, for diagnostics.
func (l *Limiter) MinInterval() time.Duration {
	return l.minInterval
}
