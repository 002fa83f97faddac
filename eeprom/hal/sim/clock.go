package sim

import (
	"sync"
	"time"
)

// FakeClock is a manual clock. Sleep advances it instead of blocking, which
// makes completion polling deterministic.
type FakeClock struct {
	mutex sync.Mutex
	now   time.Time
}

// NewFakeClock returns a clock starting at an arbitrary fixed instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2012, time.August, 5, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

// Sleep advances the clock by d.
func (c *FakeClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mutex.Lock()
	c.now = c.now.Add(d)
	c.mutex.Unlock()
}
