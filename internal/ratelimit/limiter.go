// Package ratelimit implements per-key sliding-window admission control.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultMaxCalls = 3
	DefaultPeriod   = 5 * time.Second

	// Interval between Allow polls in Wait. Busy-polling is fine at the
	// expected call volumes (a few calls per multi-second window).
	pollInterval = 100 * time.Millisecond
)

// Limiter bounds calls to at most maxCalls per trailing period window,
// tracked independently per key. A single mutex guards all keys; lock
// hold time is just a prune plus a possible append, so the coarse lock
// is not a bottleneck here.
type Limiter struct {
	maxCalls int
	period   time.Duration

	mu    sync.Mutex
	calls map[string][]time.Time

	// now is swappable in tests.
	now func() time.Time
}

// New returns a Limiter admitting maxCalls per period window per key.
// Non-positive arguments fall back to the defaults (3 calls / 5s).
func New(maxCalls int, period time.Duration) *Limiter {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Limiter{
		maxCalls: maxCalls,
		period:   period,
		calls:    make(map[string][]time.Time),
		now:      time.Now,
	}
}

// Allow reports whether a call for key is admitted right now.
// Timestamps older than the window are pruned first; on admission the
// current time is recorded, otherwise nothing is.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.period)

	kept := l.calls[key][:0]
	for _, ts := range l.calls[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.maxCalls {
		l.calls[key] = kept
		return false
	}

	l.calls[key] = append(kept, now)
	return true
}

// Wait blocks until a call for key is admitted or ctx is done.
// The lock is not held between polls.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	for {
		if l.Allow(key) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
