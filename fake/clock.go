// Package fake
// Author: momentics <momentics@gmail.com>
//
// Deterministic time source for tests. Sleep advances the clock instead of
// blocking, so polling loops run instantly and reproducibly.

package fake

import (
	"context"
	"sync"
	"time"

	"github.com/momentics/hioload-dsp/api"
)

// Clock is a manually driven api.Clock.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

var _ api.Clock = (*Clock)(nil)

// NewClock returns a clock starting at the Unix epoch.
func NewClock() *Clock {
	return &Clock{now: time.Unix(0, 0).UTC()}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the clock by d and records the request.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

// Advance moves the clock forward without recording a sleep.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sleeps returns every duration passed to Sleep so far.
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}
