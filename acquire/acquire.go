// File: acquire/acquire.go
// Package acquire runs triggered, polled acquisitions on a readable buffer.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Each trial walks Idle -> Triggered -> Polling -> Draining -> Done. All
// waiting goes through the injected api.Clock, so a fake clock drives the
// loop deterministically. Errors abort the acquisition; nothing is
// retried.

package acquire

import (
	"context"
	"fmt"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-dsp/api"
)

// State is the position of a trial in the acquisition state machine.
type State int

const (
	Idle State = iota
	Triggered
	Polling
	Draining
	Done
)

func (s State) String() string {
	switch s {
	case Triggered:
		return "triggered"
	case Polling:
		return "polling"
	case Draining:
		return "draining"
	case Done:
		return "done"
	default:
		return "idle"
	}
}

// Trials is a trial x channel x sample result.
type Trials []api.Block

// Controller acquires trials from one buffer.
type Controller struct {
	buf   api.Readable
	trig  api.Triggerer
	cfg   Config
	state State
}

// New returns a controller reading buf and firing triggers on trig.
func New(buf api.Readable, trig api.Triggerer, opts ...Option) *Controller {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Controller{buf: buf, trig: trig, cfg: cfg}
}

// State returns the state of the current or last trial.
func (c *Controller) State() State { return c.state }

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// AcquireSamples fires trigger and collects exactly n samples per channel
// per trial. n must be a multiple of the buffer block size.
func (c *Controller) AcquireSamples(ctx context.Context, trigger api.TriggerID, n int) (Trials, error) {
	if bs := c.buf.BlockSize(); n <= 0 || n%bs != 0 {
		return nil, api.Errorf(api.ErrCodeInvalidArgument,
			"number of samples (%d) must be a positive multiple of block size (%d)", n, bs)
	}
	return c.run(ctx, trigger, Samples(n), n)
}

// Acquire fires trigger and spools data until cond reports completion.
// A trial may be longer than the buffer as long as polling keeps up.
func (c *Controller) Acquire(ctx context.Context, trigger api.TriggerID, cond Condition) (Trials, error) {
	return c.run(ctx, trigger, cond, 0)
}

func (c *Controller) run(ctx context.Context, trigger api.TriggerID, cond Condition, truncate int) (Trials, error) {
	if err := trigger.Validate(); err != nil {
		return nil, err
	}
	if c.cfg.Trials < 1 {
		return nil, api.Errorf(api.ErrCodeInvalidArgument, "trial count must be positive, got %d", c.cfg.Trials)
	}
	out := make(Trials, 0, c.cfg.Trials)
	for i := 0; i < c.cfg.Trials; i++ {
		blk, err := c.trial(ctx, i, trigger, cond, truncate)
		if err != nil {
			return out, fmt.Errorf("trial %d: %w", i, err)
		}
		out = append(out, blk)
	}
	return out, nil
}

func (c *Controller) trial(ctx context.Context, i int, trigger api.TriggerID, cond Condition, truncate int) (api.Block, error) {
	c.enter(i, Idle)
	if c.cfg.ResetRead {
		c.buf.Reset(0)
	}
	if err := cond.Arm(); err != nil {
		return nil, err
	}
	if c.cfg.IntertrialInterval > 0 {
		if err := c.cfg.Clock.Sleep(ctx, c.cfg.IntertrialInterval); err != nil {
			return nil, err
		}
	}
	if err := c.trig.Trigger(trigger); err != nil {
		return nil, err
	}
	c.enter(i, Triggered)

	blocks := queue.New()
	acquired := 0
	c.enter(i, Polling)
	for {
		done, err := cond.Done(acquired)
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		blk, err := c.buf.Read()
		if err != nil {
			return nil, err
		}
		blocks.Add(blk)
		acquired += blk.Len()
		if err := c.cfg.Clock.Sleep(ctx, c.cfg.PollInterval); err != nil {
			return nil, err
		}
	}

	c.enter(i, Draining)
	blk, err := c.buf.Read()
	if err != nil {
		return nil, err
	}
	blocks.Add(blk)
	acquired += blk.Len()

	out := collect(blocks, c.buf.Channels(), acquired)
	if truncate > 0 && out.Len() > truncate {
		out = out.Slice(0, truncate)
	}
	c.enter(i, Done)
	return out, nil
}

func (c *Controller) enter(trial int, s State) {
	c.state = s
	if c.cfg.Observer != nil {
		c.cfg.Observer(trial, s)
	}
}

// collect concatenates queued blocks along the sample axis.
func collect(q *queue.Queue, channels, n int) api.Block {
	out := api.NewBlock(channels, n)
	pos := 0
	for q.Length() > 0 {
		blk := q.Remove().(api.Block)
		for ch := range out {
			copy(out[ch][pos:], blk[ch])
		}
		pos += blk.Len()
	}
	return out
}
