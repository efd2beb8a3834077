// ABOUTME: Transport clock tracking the global timeline position in seconds
// ABOUTME: Accumulates wall time while running and clamps to the session length
package transport

import (
	"sync"
	"time"
)

// Clock is the single source of truth for the playhead. It advances with
// wall time while running and holds its position while paused. Position is
// always clamped to [0, maxPos]; an empty session pins the playhead at zero.
type Clock struct {
	mu      sync.Mutex
	now     func() time.Time
	base    float64 // position at the last resume/rebase
	resumed time.Time
	running bool
	maxPos  float64
}

// NewClock creates a stopped clock at position zero.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

func (c *Clock) positionLocked() float64 {
	pos := c.base
	if c.running {
		pos += c.now().Sub(c.resumed).Seconds()
	}
	if pos < 0 {
		pos = 0
	}
	if pos > c.maxPos {
		pos = c.maxPos
	}
	return pos
}

// Position returns the current playhead position in seconds.
func (c *Clock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

// SetPosition moves the playhead, clamping to the session bounds. The clock
// keeps its running state.
func (c *Clock) SetPosition(pos float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	if pos > c.maxPos {
		pos = c.maxPos
	}
	c.base = pos
	c.resumed = c.now()
}

// Resume starts the clock advancing from its current position.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.resumed = c.now()
	c.running = true
}

// Pause freezes the playhead where it is.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.base = c.positionLocked()
	c.running = false
}

// Running reports whether the clock is advancing.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SetMaxPosition updates the clamp bound (the furthest track end).
func (c *Clock) SetMaxPosition(maxPos float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if maxPos < 0 {
		maxPos = 0
	}
	c.maxPos = maxPos
}

// MaxPosition returns the clamp bound.
func (c *Clock) MaxPosition() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxPos
}
