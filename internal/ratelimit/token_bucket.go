package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket approximates the request window with a per-subject token bucket:
// burst equals the window limit and tokens refill at limit/window.
type TokenBucket struct {
	mu      sync.Mutex
	entries map[string]*bucketEntry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type bucketEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewTokenBucket(limit int, window time.Duration) (*TokenBucket, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	return &TokenBucket{
		entries: make(map[string]*bucketEntry),
		limit:   rate.Limit(float64(limit) / window.Seconds()),
		burst:   limit,
		idleTTL: 2 * window,
		now:     time.Now,
	}, nil
}

func (b *TokenBucket) Allow(_ context.Context, subject string) (Decision, error) {
	now := b.now()
	lim := b.limiter(normalizeSubject(subject), now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false}, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}

	remaining := int64(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Remaining: remaining}, nil
}

func (b *TokenBucket) limiter(subject string, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ent, ok := b.entries[subject]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(b.limit, b.burst)
	b.entries[subject] = &bucketEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup removes subjects idle long enough for their bucket to be full again.
func (b *TokenBucket) Cleanup() {
	cutoff := b.now().Add(-b.idleTTL)

	b.mu.Lock()
	defer b.mu.Unlock()

	for k, ent := range b.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(b.entries, k)
		}
	}
}

func (b *TokenBucket) StartJanitor(ctx context.Context, every time.Duration) {
	startJanitor(ctx, every, b.Cleanup)
}
