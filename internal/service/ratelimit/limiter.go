package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// Limiter is a per-key token bucket. Keys are created on first use and
// pruned once idle longer than staleAfter.
type Limiter struct {
	mu         sync.Mutex
	m          map[string]*bucket
	staleAfter time.Duration
}

func New() *Limiter {
	return &Limiter{m: make(map[string]*bucket), staleAfter: 10 * time.Minute}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		if len(l.m) > 10000 {
			l.prune(now)
		}
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}

	elapsed := now.Sub(b.last).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.refillRate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.last = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// prune drops buckets idle past staleAfter. Caller holds the lock.
func (l *Limiter) prune(now time.Time) {
	for k, b := range l.m {
		if now.Sub(b.last) > l.staleAfter {
			delete(l.m, k)
		}
	}
}
