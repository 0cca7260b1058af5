package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a simple refilling bucket. One bucket guards one
// class of exchange endpoints.
type TokenBucket struct {
	capacity   int
	tokens     int
	refillRate int // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket returns a full bucket refilling at refillRate per second.
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	add := int(now.Sub(tb.lastRefill).Seconds()) * tb.refillRate
	if add > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+add)
		tb.lastRefill = now
	}
}

// Allow consumes a token if one is available.
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		if tb.Allow() {
			return nil
		}
		pause := 100 * time.Millisecond
		if tb.refillRate > 0 {
			pause = time.Second / time.Duration(tb.refillRate)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

// Remaining reports the tokens currently available.
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refill()
	return tb.tokens
}

// Endpoint classes for the exchange REST API.
const (
	ClassRead  = "read"  // market data, balance
	ClassOrder = "order" // order create/cancel
)

// Manager holds one bucket per endpoint class.
type Manager struct {
	limiters map[string]*TokenBucket
	mu       sync.RWMutex
}

// NewManager seeds buckets at the exchange's documented basic-tier
// limits: 10 reads/s and 5 order actions/s, with short bursts.
func NewManager() *Manager {
	return &Manager{
		limiters: map[string]*TokenBucket{
			ClassRead:  NewTokenBucket(20, 10),
			ClassOrder: NewTokenBucket(10, 5),
		},
	}
}

// Wait blocks until the class's bucket grants a token.
func (m *Manager) Wait(ctx context.Context, class string) error {
	return m.bucket(class).Wait(ctx)
}

// Allow reports whether the class's bucket would grant a token now.
func (m *Manager) Allow(class string) bool {
	return m.bucket(class).Allow()
}

func (m *Manager) bucket(class string) *TokenBucket {
	m.mu.RLock()
	tb, ok := m.limiters[class]
	m.mu.RUnlock()
	if ok {
		return tb
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if tb, ok = m.limiters[class]; ok {
		return tb
	}
	tb = NewTokenBucket(20, 10)
	m.limiters[class] = tb
	return tb
}
