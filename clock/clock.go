// Package clock provides the wall-clock time source used by polling loops.
package clock

import (
	"context"
	"time"

	"github.com/momentics/hioload-dsp/api"
)

// System is an api.Clock backed by the runtime clock.
type System struct{}

var _ api.Clock = System{}

// Now returns time.Now.
func (System) Now() time.Time { return time.Now() }

// Sleep blocks for d or until ctx is done.
func (System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
