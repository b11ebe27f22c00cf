package ratelimit

import (
	"sync"
)

// ConcurrencyLimiter caps in-flight requests per subject. A subject's entry is
// removed once its last request is released, so the map only holds subjects
// with work in flight.
type ConcurrencyLimiter struct {
	mu     sync.Mutex
	max    int
	active map[string]int
}

func NewConcurrencyLimiter(max int) *ConcurrencyLimiter {
	return &ConcurrencyLimiter{
		max:    max,
		active: make(map[string]int),
	}
}

// Acquire reserves a slot for subject. The returned release func is safe to
// call more than once; only the first call frees the slot.
func (c *ConcurrencyLimiter) Acquire(subject string) (func(), bool) {
	if c.max <= 0 {
		return func() {}, true
	}
	subject = normalizeSubject(subject)

	c.mu.Lock()
	if c.active[subject] >= c.max {
		c.mu.Unlock()
		return nil, false
	}
	c.active[subject]++
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.release(subject) })
	}, true
}

func (c *ConcurrencyLimiter) release(subject string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch n := c.active[subject]; {
	case n <= 1:
		delete(c.active, subject)
	default:
		c.active[subject] = n - 1
	}
}

// Active reports the in-flight count for subject.
func (c *ConcurrencyLimiter) Active(subject string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[normalizeSubject(subject)]
}

// Subjects reports how many subjects currently hold at least one slot.
func (c *ConcurrencyLimiter) Subjects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}
