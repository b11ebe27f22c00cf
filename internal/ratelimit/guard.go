package ratelimit

import (
	"context"
	"fmt"
	"time"
)

const (
	ReasonConcurrency = "concurrency"
	ReasonRate        = "rate"
)

// Guard is the admission gate in front of the render pipeline: a per-subject
// in-flight cap plus a per-subject request rate cap.
type Guard struct {
	concurrency *ConcurrencyLimiter
	limiter     Limiter
}

func NewGuard(concurrency *ConcurrencyLimiter, limiter Limiter) *Guard {
	return &Guard{concurrency: concurrency, limiter: limiter}
}

// Admission is the outcome of Admit. Remaining is -1 when no rate decision
// was made.
type Admission struct {
	Allowed    bool
	Reason     string
	Remaining  int64
	RetryAfter time.Duration
	release    func()
}

// Release frees the concurrency slot. Safe on rejected admissions and safe to
// call more than once.
func (a Admission) Release() {
	if a.release != nil {
		a.release()
	}
}

// Admit checks both caps for subject. A rejected admission holds no slot. When
// the rate limiter itself fails, the request is admitted and the error is
// returned alongside so the caller can log it.
func (g *Guard) Admit(ctx context.Context, subject string) (Admission, error) {
	release := func() {}
	if g.concurrency != nil {
		r, ok := g.concurrency.Acquire(subject)
		if !ok {
			return Admission{Allowed: false, Reason: ReasonConcurrency, Remaining: -1, RetryAfter: time.Second}, nil
		}
		release = r
	}

	if g.limiter == nil {
		return Admission{Allowed: true, Remaining: -1, release: release}, nil
	}

	decision, err := g.limiter.Allow(ctx, subject)
	if err != nil {
		return Admission{Allowed: true, Remaining: -1, release: release}, fmt.Errorf("rate limiter check: %w", err)
	}
	if !decision.Allowed {
		release()
		return Admission{
			Allowed:    false,
			Reason:     ReasonRate,
			Remaining:  decision.Remaining,
			RetryAfter: decision.RetryAfter,
		}, nil
	}

	return Admission{
		Allowed:   true,
		Remaining: decision.Remaining,
		release:   release,
	}, nil
}
