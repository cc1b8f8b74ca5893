// Package ratelimit implements a token-bucket limiter used to cap aggregate
// transfer throughput across all of a transfer's workers (spec.md §4.4's
// limit_rate option). It mirrors the clock-driven, mutex-protected accounting
// style internal/security's AuthRateLimiter uses for failure tracking, but
// the unit of account here is bytes instead of auth attempts.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/acolita/fastcp/internal/adapters/realclock"
	"github.com/acolita/fastcp/internal/ports"
)

// Limiter throttles byte throughput to a target rate, shared across
// concurrently running workers. A Limiter with a zero rate never blocks.
type Limiter struct {
	mu           sync.Mutex
	clock        ports.Clock
	ratePerSec   float64
	burst        float64
	tokens       float64
	lastRefill   time.Time
	unrestricted bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock injects a ports.Clock, for deterministic tests.
func WithClock(clock ports.Clock) Option {
	return func(l *Limiter) { l.clock = clock }
}

// New creates a Limiter capped at ratePerSec bytes/second with a burst
// allowance of burstBytes (typically one chunk's worth of data, so a single
// chunk read never gets throttled mid-read). A ratePerSec of 0 disables
// limiting entirely.
func New(ratePerSec int64, burstBytes int64, opts ...Option) *Limiter {
	l := &Limiter{
		ratePerSec:   float64(ratePerSec),
		burst:        float64(burstBytes),
		unrestricted: ratePerSec <= 0,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.clock == nil {
		l.clock = realclock.New()
	}
	l.tokens = l.burst
	l.lastRefill = l.clock.Now()
	return l
}

// WaitN blocks until n bytes' worth of tokens are available, consumes them,
// and returns. It returns early with ctx.Err() if the context is cancelled
// while waiting.
func (l *Limiter) WaitN(ctx context.Context, n int64) error {
	if l.unrestricted || n <= 0 {
		return nil
	}

	for {
		wait, ok := l.reserve(float64(n))
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}

// reserve attempts to consume want tokens. On success it returns (0, true).
// On failure it refills from elapsed time, then reports how long the caller
// must wait before retrying.
func (l *Limiter) reserve(want float64) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed > 0 {
		l.tokens += elapsed * l.ratePerSec
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
		l.lastRefill = now
	}

	if l.tokens >= want {
		l.tokens -= want
		return 0, true
	}

	deficit := want - l.tokens
	waitSecs := deficit / l.ratePerSec
	return time.Duration(waitSecs * float64(time.Second)), false
}

// SetRate changes the limiter's target rate at runtime, without resetting
// accumulated tokens. A rate of 0 or less disables limiting.
func (l *Limiter) SetRate(ratePerSec int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ratePerSec = float64(ratePerSec)
	l.unrestricted = ratePerSec <= 0
}
