package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	sweepInterval  = time.Minute
	staleThreshold = 10 * time.Minute
)

// bucket tracks remaining tokens for one rate-limit key. lastAccess doubles
// as the refill reference point and the staleness marker for eviction.
type bucket struct {
	tokens     float64
	lastAccess time.Time
}

// take refills the bucket for the elapsed time, then tries to consume one
// token.
func (b *bucket) take(now time.Time, rate, burst float64) bool {
	b.tokens += now.Sub(b.lastAccess).Seconds() * rate
	if b.tokens > burst {
		b.tokens = burst
	}
	b.lastAccess = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// MemoryLimiter is a per-key token bucket held entirely in memory. It is the
// default limiter for the agent proposal endpoint; keys are caller-defined
// (the HTTP middleware uses the client IP).
//
// Buckets refill continuously at rate tokens per second up to the burst
// capacity. A sweep goroutine drops keys idle past staleThreshold so the map
// stays bounded; Close stops it.
type MemoryLimiter struct {
	rate  float64
	burst float64

	mu      sync.Mutex
	buckets map[string]*bucket

	stopOnce sync.Once
	done     chan struct{}
}

// NewMemoryLimiter creates a token bucket limiter allowing rate sustained
// requests per second per key with bursts up to burst.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	m := &MemoryLimiter{
		rate:    rate,
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go m.sweep()
	return m
}

// Allow reports whether key may proceed, consuming one token if so.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: m.burst, lastAccess: now}
		m.buckets[key] = b
	}
	return b.take(now, m.rate, m.burst), nil
}

// Close stops the sweep goroutine. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.done) })
	return nil
}

func (m *MemoryLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.evictStale()
		}
	}
}

func (m *MemoryLimiter) evictStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-staleThreshold)
	for key, b := range m.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(m.buckets, key)
		}
	}
}
