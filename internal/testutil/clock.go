package testutil

import (
	"sync"
	"time"
)

// Epoch is the time fixture clocks start from.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock hands out monotonically increasing fixture timestamps,
// one step apart, so that test exports have stable, ordered times.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	seq  int64
	step time.Duration
}

// NewDeterministicClock creates a clock whose first Next() is Epoch+step.
// A zero step defaults to one second.
func NewDeterministicClock(step time.Duration) *DeterministicClock {
	if step == 0 {
		step = time.Second
	}
	return &DeterministicClock{step: step}
}

// Next advances the clock and returns the new time.
func (c *DeterministicClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return Epoch.Add(time.Duration(c.seq) * c.step)
}

// Current returns the current time without advancing.
func (c *DeterministicClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Epoch.Add(time.Duration(c.seq) * c.step)
}

// Reset rewinds the clock to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}
