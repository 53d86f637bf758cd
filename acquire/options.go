// File: acquire/options.go
// Package acquire defines functional options for acquisitions.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package acquire

import (
	"time"

	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/clock"
)

// Config holds acquisition parameters.
type Config struct {
	Trials             int           // trials to collect
	IntertrialInterval time.Duration // pause before each trigger
	PollInterval       time.Duration // pause between reads
	ResetRead          bool          // rewind the read position to 0 each trial
	Clock              api.Clock
	Observer           func(trial int, s State)
}

// DefaultConfig returns one trial polled every 100ms with reset.
func DefaultConfig() Config {
	return Config{
		Trials:       1,
		PollInterval: 100 * time.Millisecond,
		ResetRead:    true,
		Clock:        clock.System{},
	}
}

// Option customizes an acquisition.
type Option func(*Config)

// WithTrials sets the number of trials.
func WithTrials(n int) Option { return func(c *Config) { c.Trials = n } }

// WithIntertrialInterval sets the pause before each trigger.
func WithIntertrialInterval(d time.Duration) Option {
	return func(c *Config) { c.IntertrialInterval = d }
}

// WithPollInterval sets the pause between reads.
func WithPollInterval(d time.Duration) Option { return func(c *Config) { c.PollInterval = d } }

// WithResetRead controls whether each trial starts reading at position 0.
// Disable it for continuous capture where the device never rewinds.
func WithResetRead(reset bool) Option { return func(c *Config) { c.ResetRead = reset } }

// WithClock injects the time source.
func WithClock(clk api.Clock) Option { return func(c *Config) { c.Clock = clk } }

// WithObserver is called on every state transition.
func WithObserver(fn func(trial int, s State)) Option { return func(c *Config) { c.Observer = fn } }
