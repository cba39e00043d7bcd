package testfixtures

import (
	"context"
	"sync"
	"time"
)

// Clock is a controllable time source. Its Wait method stands in for real
// sleeps: it records the requested duration and advances the clock instead.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	waits   []time.Duration
	// OnWait, when set, runs after each recorded wait. Returning an error
	// aborts the wait with that error.
	OnWait func(n int, d time.Duration) error
}

// NewClock returns a clock initialised to start, or ReferenceTime when start
// is the zero value.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// Now returns the current instant tracked by the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NowFunc exposes Now for dependency injection.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}

// Wait records d, advances the clock by it and returns immediately. It fails
// with ctx.Err() when ctx is already done.
func (c *Clock) Wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.waits = append(c.waits, d)
	n := len(c.waits)
	c.current = c.current.Add(d)
	hook := c.OnWait
	c.mu.Unlock()

	if hook != nil {
		return hook(n, d)
	}
	return nil
}

// Waits returns every duration passed to Wait, in call order.
func (c *Clock) Waits() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}
