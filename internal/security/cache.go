// Package security provides secure credential handling for fastcp.
package security

import (
	"sync"
	"time"

	"github.com/acolita/fastcp/internal/adapters/realclock"
	"github.com/acolita/fastcp/internal/ports"
)

// SecureCache stores a sensitive byte value with TTL-based expiration. It
// backs KeyringStore's in-process fallback for hosts without an OS keyring.
type SecureCache struct {
	data      []byte
	createdAt time.Time
	ttl       time.Duration
	mu        sync.Mutex
	cleared   bool
	clock     ports.Clock
}

// SecureCacheOption configures a SecureCache.
type SecureCacheOption func(*SecureCache)

// WithClock sets the clock used by SecureCache.
func WithClock(clock ports.Clock) SecureCacheOption {
	return func(sc *SecureCache) {
		sc.clock = clock
	}
}

// NewSecureCache creates a new secure cache with the given TTL.
func NewSecureCache(data []byte, ttl time.Duration, opts ...SecureCacheOption) *SecureCache {
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	sc := &SecureCache{
		data:  dataCopy,
		ttl:   ttl,
		clock: realclock.New(),
	}

	for _, opt := range opts {
		opt(sc)
	}

	sc.createdAt = sc.clock.Now()

	return sc
}

// Get returns the cached data if still valid, or nil if expired.
func (sc *SecureCache) Get() []byte {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.cleared || sc.data == nil {
		return nil
	}

	if sc.clock.Now().Sub(sc.createdAt) > sc.ttl {
		sc.clear()
		return nil
	}

	result := make([]byte, len(sc.data))
	copy(result, sc.data)
	return result
}

// IsValid returns true if the cache contains valid data.
func (sc *SecureCache) IsValid() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.cleared || sc.data == nil {
		return false
	}

	if sc.clock.Now().Sub(sc.createdAt) > sc.ttl {
		sc.clear()
		return false
	}

	return true
}

// ExpiresIn returns the duration until expiration.
func (sc *SecureCache) ExpiresIn() time.Duration {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.cleared || sc.data == nil {
		return 0
	}

	remaining := sc.ttl - sc.clock.Now().Sub(sc.createdAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clear securely wipes and clears the cached data.
func (sc *SecureCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.clear()
}

// clear performs the actual clearing (must be called with lock held).
func (sc *SecureCache) clear() {
	if sc.data != nil {
		WipeBytes(sc.data)
		sc.data = nil
	}
	sc.cleared = true
}

// WipeBytes zeroes a byte slice in place, best-effort defense against a
// credential lingering in memory after its cache entry expires.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// DefaultMemCacheTTL is how long an SSH credential is kept in the
// in-process fallback cache when the OS keyring is unavailable.
const DefaultMemCacheTTL = 5 * time.Minute
