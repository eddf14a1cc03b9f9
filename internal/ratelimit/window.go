package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindowCounter approximates a rolling window limit with two fixed
// windows: effective = current + previous × (unexpired share of previous window).
// A nil counter is disabled and allows everything.
type SlidingWindowCounter struct {
	mu          sync.Mutex
	currCount   int
	prevCount   int
	windowStart time.Time
	window      time.Duration
	limit       int
}

// NewSlidingWindowCounter returns nil when limit <= 0.
func NewSlidingWindowCounter(limit int, window time.Duration) *SlidingWindowCounter {
	if limit <= 0 {
		return nil
	}
	return &SlidingWindowCounter{
		windowStart: time.Now(),
		window:      window,
		limit:       limit,
	}
}

// Allow consumes one unit if under the limit.
func (c *SlidingWindowCounter) Allow() bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.effective() >= float64(c.limit) {
		return false
	}
	c.currCount++
	return true
}

// Check reports whether one more unit would be allowed.
func (c *SlidingWindowCounter) Check() bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.effective() < float64(c.limit)
}

// Consume records one unit if still under the limit. Pair with Check.
func (c *SlidingWindowCounter) Consume() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.effective() < float64(c.limit) {
		c.currCount++
	}
}

// Remaining returns the approximate remaining quota, or -1 when disabled.
func (c *SlidingWindowCounter) Remaining() int {
	if c == nil {
		return -1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return max(int(float64(c.limit)-c.effective()), 0)
}

// IsIdle reports whether nothing has been counted in either window.
func (c *SlidingWindowCounter) IsIdle() bool {
	if c == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.effective() == 0
}

// effective rotates expired windows and returns the weighted count.
// Must be called with mu held.
func (c *SlidingWindowCounter) effective() float64 {
	elapsed := time.Since(c.windowStart)
	if elapsed >= c.window {
		passed := int(elapsed / c.window)
		if passed == 1 {
			c.prevCount = c.currCount
		} else {
			c.prevCount = 0
		}
		c.currCount = 0
		c.windowStart = c.windowStart.Add(time.Duration(passed) * c.window)
		elapsed = time.Since(c.windowStart)
	}

	overlap := float64(c.window-elapsed) / float64(c.window)
	overlap = min(max(overlap, 0), 1)
	return float64(c.currCount) + float64(c.prevCount)*overlap
}
