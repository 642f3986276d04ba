// Package state owns the mutable ledgers of the decision core: cooldowns,
// the overshoot sliding window and the pending-limit ledger. All mutations
// happen on the driver goroutine.
package state

import "time"

// SystemClock provides wall-clock time for session gates and a monotonic
// reading for cooldowns and order aging
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock anchored at construction time
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns the current wall-clock time
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// Monotonic returns the time elapsed since the clock was created.
// Go's time.Since reads the runtime monotonic clock, so this value never
// jumps backwards on wall-clock adjustments.
func (c *SystemClock) Monotonic() time.Duration {
	return time.Since(c.start)
}

// FakeClock is a manually advanced clock for tests
type FakeClock struct {
	Wall time.Time
	Mono time.Duration
}

// Now returns the fixed wall time
func (c *FakeClock) Now() time.Time { return c.Wall }

// Monotonic returns the fixed monotonic reading
func (c *FakeClock) Monotonic() time.Duration { return c.Mono }

// Advance moves both clocks forward
func (c *FakeClock) Advance(d time.Duration) {
	c.Wall = c.Wall.Add(d)
	c.Mono += d
}
