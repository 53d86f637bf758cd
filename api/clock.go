// Package api
// Author: momentics
//
// Time source contract for polling loops. Injected so acquisition and
// device simulation can run against a deterministic clock in tests.

package api

import (
	"context"
	"time"
)

// Clock abstracts wall time and cooperative sleeping.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses the caller for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}
