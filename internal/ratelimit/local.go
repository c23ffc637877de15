package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/springcloudnative/edge-service/internal/config"
)

// LocalLimiter is the in-process token bucket for single-instance
// deployments. Buckets are created lazily per key and evicted after a
// period of inactivity.
type LocalLimiter struct {
	rate      rate.Limit
	burst     int
	requested int

	mu      sync.Mutex
	buckets map[string]*localBucket

	done      chan struct{}
	closeOnce sync.Once
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates an in-memory token bucket limiter.
func NewLocalLimiter(cfg config.RateLimitConfig) *LocalLimiter {
	requested := cfg.RequestedTokens
	if requested <= 0 {
		requested = 1
	}
	l := &LocalLimiter{
		rate:      rate.Limit(cfg.ReplenishRate),
		burst:     cfg.BurstCapacity,
		requested: requested,
		buckets:   make(map[string]*localBucket),
		done:      make(chan struct{}),
	}
	go l.evictLoop()
	return l
}

// Close stops the eviction goroutine. Safe to call more than once;
// Allow keeps working on a closed limiter.
func (l *LocalLimiter) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

// Done is closed once the limiter has been stopped.
func (l *LocalLimiter) Done() <-chan struct{} {
	return l.done
}

// Allow checks admission for one request against the bucket for key.
func (l *LocalLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := time.Now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	allowed := b.limiter.AllowN(now, l.requested)
	remaining := int(b.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: allowed, Remaining: remaining}, nil
}

// Burst returns the bucket capacity.
func (l *LocalLimiter) Burst() int {
	return l.burst
}

func (l *LocalLimiter) evictLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			l.mu.Lock()
			for key, b := range l.buckets {
				if b.lastSeen.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
