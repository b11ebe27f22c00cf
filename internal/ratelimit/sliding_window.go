package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SlidingWindow admits at most limit requests per subject within any window
// ending now. Each subject keeps the timestamps of its admitted requests.
type SlidingWindow struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string][]time.Time
	now     func() time.Time
}

func NewSlidingWindow(limit int, window time.Duration) (*SlidingWindow, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive")
	}
	return &SlidingWindow{
		limit:   limit,
		window:  window,
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}, nil
}

func (w *SlidingWindow) Allow(_ context.Context, subject string) (Decision, error) {
	subject = normalizeSubject(subject)
	now := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	hits := prune(w.entries[subject], now.Add(-w.window))
	if len(hits) >= w.limit {
		w.entries[subject] = hits
		retryAfter := hits[0].Add(w.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	hits = append(hits, now)
	w.entries[subject] = hits
	return Decision{Allowed: true, Remaining: int64(w.limit - len(hits))}, nil
}

// Cleanup drops subjects with no hits inside the current window.
func (w *SlidingWindow) Cleanup() {
	cutoff := w.now().Add(-w.window)

	w.mu.Lock()
	defer w.mu.Unlock()

	for subject, hits := range w.entries {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(w.entries, subject)
		}
	}
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (w *SlidingWindow) StartJanitor(ctx context.Context, every time.Duration) {
	startJanitor(ctx, every, w.Cleanup)
}

func (w *SlidingWindow) subjects() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// prune drops timestamps at or before cutoff, reusing the backing array.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}

func startJanitor(ctx context.Context, every time.Duration, cleanup func()) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				cleanup()
			}
		}
	}()
}
