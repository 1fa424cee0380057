package lensplay

import (
	"sync"
	"time"
)

// clock is the playback position. It only
// advances while running.
type clock struct {
	mu      sync.Mutex
	now     func() time.Time
	base    time.Duration
	started time.Time
	running bool
}

func newClock(now func() time.Time) *clock {
	if now == nil {
		now = time.Now
	}

	return &clock{now: now}
}

// Position returns the current position.
func (c *clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.position()
}

func (c *clock) position() time.Duration {
	if !c.running {
		return c.base
	}

	return c.base + c.now().Sub(c.started)
}

// Start makes the clock advance.
func (c *clock) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}

	c.started = c.now()
	c.running = true
}

// Stop freezes the clock.
func (c *clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.base = c.position()
	c.running = false
}

// Set moves the clock to pos.
func (c *clock) Set(pos time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.base = pos
	c.started = c.now()
}

// Running reports whether the clock advances.
func (c *clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
