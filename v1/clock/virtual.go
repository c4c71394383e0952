package clock

import (
	"context"
	"sync"
	"time"
)

// VirtualClock is a deterministic Clock. Time moves only through Sleep and
// Advance. It is safe for concurrent use.
type VirtualClock struct {
	mu      sync.Mutex
	current time.Time
	sleeps  int
}

// Virtual returns a VirtualClock reading start.
func Virtual(start time.Time) *VirtualClock {
	return &VirtualClock{current: start}
}

// Now returns the virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Sleep advances the clock by d and returns immediately. Non-positive
// durations leave the clock untouched.
func (c *VirtualClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.sleeps++
	if d > 0 {
		c.current = c.current.Add(d)
	}
	c.mu.Unlock()
	return nil
}

// Advance moves the clock forward by d without counting as a sleep.
func (c *VirtualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}

// Sleeps returns how many times Sleep has been called.
func (c *VirtualClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}
