// Package ratelimit holds the per-tab processing cooldown. The record
// is transient by design: it is a rate limit, not a correctness
// guarantee, and starts empty on every process restart.
package ratelimit

import (
	"sync"
	"time"
)

// Cooldown tracks the last completed processing time per tab id and
// enforces a minimum interval between cycles.
type Cooldown struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[int]time.Time
}

func NewCooldown(interval time.Duration) *Cooldown {
	return &Cooldown{
		interval: interval,
		last:     make(map[int]time.Time),
	}
}

// Allow reports whether a tab may be processed at the given time.
// It does not mark the tab; Mark is called only after a cycle
// completes, so failed attempts do not consume the window.
func (c *Cooldown) Allow(tabID int, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.last[tabID]
	if !ok {
		return true
	}
	return now.Sub(last) >= c.interval
}

// Mark records a completed processing cycle.
func (c *Cooldown) Mark(tabID int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last[tabID] = now
}

// Forget drops a tab's record, called when the tab closes.
func (c *Cooldown) Forget(tabID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, tabID)
}
