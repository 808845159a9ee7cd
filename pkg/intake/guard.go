package intake

import (
	"sync"
	"time"
)

// MemoryGuard is an in-process Guard. With a zero TTL a token is remembered
// for the lifetime of the process and the set only grows; a positive TTL
// bounds it by forgetting tokens after they expire.
type MemoryGuard struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	seen      map[string]time.Time // token -> expiry (zero when ttl is 0)
	lastSweep time.Time
}

// GuardOption configures a MemoryGuard
type GuardOption func(*MemoryGuard)

// WithGuardTTL sets how long a token is remembered
func WithGuardTTL(ttl time.Duration) GuardOption {
	return func(g *MemoryGuard) {
		g.ttl = ttl
	}
}

// WithGuardClock overrides the clock used for expiry
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *MemoryGuard) {
		if now != nil {
			g.now = now
		}
	}
}

// NewMemoryGuard creates an empty guard
func NewMemoryGuard(opts ...GuardOption) *MemoryGuard {
	g := &MemoryGuard{
		now:  time.Now,
		seen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ShouldProcess implements Guard. The membership check and the insert
// happen under one lock, so concurrent callers with the same fresh token
// see exactly one true.
func (g *MemoryGuard) ShouldProcess(token string) bool {
	if token == "" {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if expiry, ok := g.seen[token]; ok {
		if g.ttl <= 0 || now.Before(expiry) {
			return false
		}
	}

	var expiry time.Time
	if g.ttl > 0 {
		expiry = now.Add(g.ttl)
		g.sweep(now)
	}
	g.seen[token] = expiry
	return true
}

// Forget implements Guard
func (g *MemoryGuard) Forget(token string) {
	if token == "" {
		return
	}
	g.mu.Lock()
	delete(g.seen, token)
	g.mu.Unlock()
}

// Len returns the number of remembered tokens
func (g *MemoryGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

// sweep drops expired tokens at most once per TTL. Caller holds mu.
func (g *MemoryGuard) sweep(now time.Time) {
	if now.Sub(g.lastSweep) < g.ttl {
		return
	}
	for token, expiry := range g.seen {
		if !now.Before(expiry) {
			delete(g.seen, token)
		}
	}
	g.lastSweep = now
}
