// File: facade/hioload.go
// Unified facade layer for hioload-dsp.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// This file defines the Circuit facade, which wraps a loaded device program
// (local or remote) together with the control plane. It opens ring buffers
// with metrics and debug probes attached, fires triggers, runs acquisitions
// with hot-reloadable defaults, and owns background monitors so a single
// Shutdown releases everything.

package facade

import (
	"context"
	"io"
	"log"
	"sync"
	"time"

	"github.com/momentics/hioload-dsp/acquire"
	"github.com/momentics/hioload-dsp/adapters"
	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/clock"
	"github.com/momentics/hioload-dsp/control"
	"github.com/momentics/hioload-dsp/ringbuf"
	"github.com/momentics/hioload-dsp/spool"
)

// Config keys mirrored into the control plane. The acquire.* keys are
// hot-reloadable.
const (
	KeyPollInterval       = "acquire.poll_interval"
	KeyIntertrialInterval = "acquire.intertrial_interval"
	KeyTrials             = "acquire.trials"
	KeyResetRead          = "acquire.reset_read"
	KeySpoolFrames        = "spool.frames"
	KeySpoolInterval      = "spool.interval"
)

// Config holds facade parameters. Acquisition defaults may be changed at
// runtime through the Control interface.
type Config struct {
	Trials             int           // default trials per acquisition
	IntertrialInterval time.Duration // default pause before each trigger
	PollInterval       time.Duration // default pause between reads
	ResetRead          bool          // rewind readers to 0 each trial
	SpoolFrames        int           // monitor ring capacity in frames
	SpoolInterval      time.Duration // monitor poll interval
	PinMonitors        bool          // pin monitor goroutines to MonitorCPU
	MonitorCPU         int           // logical CPU for pinned monitors
	Clock              api.Clock     // time source for acquisitions and monitors
	EnableMetrics      bool          // attach buffer transfer counters
	EnableDebug        bool          // register per-buffer debug probes
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		Trials:             1,
		IntertrialInterval: 0,
		PollInterval:       100 * time.Millisecond,
		ResetRead:          true,
		SpoolFrames:        1 << 16,
		SpoolInterval:      50 * time.Millisecond,
		PinMonitors:        false,
		MonitorCPU:         0,
		Clock:              clock.System{},
		EnableMetrics:      true,
		EnableDebug:        true,
	}
}

// Circuit is the main facade type. It is itself an api.Circuit, delegating
// tag access to the wrapped program.
type Circuit struct {
	api.Circuit
	control *adapters.ControlAdapter
	clock   api.Clock
	cpu     int

	mu       sync.RWMutex
	acq      acquire.Config
	spoolCfg struct {
		frames   int
		interval time.Duration
	}
	buffers  map[string]api.Buffer
	monitors []*monitor
	closed   bool
}

type monitor struct {
	s      *spool.Spooler
	cancel context.CancelFunc
	done   chan struct{}
}

var _ api.GracefulShutdown = (*Circuit)(nil)
var _ api.Circuit = (*Circuit)(nil)

// New wraps c with the given configuration.
func New(c api.Circuit, cfg *Config) (*Circuit, error) {
	if c == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "nil circuit")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	h := &Circuit{
		Circuit: c,
		control: adapters.NewControlAdapter(),
		clock:   cfg.Clock,
		cpu:     -1,
		buffers: make(map[string]api.Buffer),
	}
	h.acq = acquire.Config{
		Trials:             cfg.Trials,
		IntertrialInterval: cfg.IntertrialInterval,
		PollInterval:       cfg.PollInterval,
		ResetRead:          cfg.ResetRead,
		Clock:              cfg.Clock,
	}
	if cfg.PinMonitors {
		h.cpu = cfg.MonitorCPU
	}
	h.spoolCfg.frames = cfg.SpoolFrames
	h.spoolCfg.interval = cfg.SpoolInterval

	h.control.OnReload(h.reload)
	h.control.SetConfig(map[string]any{
		KeyPollInterval:       cfg.PollInterval,
		KeyIntertrialInterval: cfg.IntertrialInterval,
		KeyTrials:             cfg.Trials,
		KeyResetRead:          cfg.ResetRead,
		KeySpoolFrames:        cfg.SpoolFrames,
		KeySpoolInterval:      cfg.SpoolInterval,
		"metrics.enabled":     cfg.EnableMetrics,
		"debug.enabled":       cfg.EnableDebug,
		"circuit.sample_rate": c.SampleRate().String(),
	})
	h.control.RegisterDebugProbe("circuit.tags", func() any { return len(c.Tags()) })
	return h, nil
}

// reload pulls hot-reloadable values from the control plane.
func (h *Circuit) reload() {
	cfg := h.control.GetConfig()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.acq.PollInterval = control.Duration(cfg, KeyPollInterval, h.acq.PollInterval)
	h.acq.IntertrialInterval = control.Duration(cfg, KeyIntertrialInterval, h.acq.IntertrialInterval)
	h.acq.Trials = control.Int(cfg, KeyTrials, h.acq.Trials)
	h.acq.ResetRead = control.Bool(cfg, KeyResetRead, h.acq.ResetRead)
	h.spoolCfg.frames = control.Int(cfg, KeySpoolFrames, h.spoolCfg.frames)
	h.spoolCfg.interval = control.Duration(cfg, KeySpoolInterval, h.spoolCfg.interval)
}

// GetBuffer opens the buffer bound to dataTag for dir. Buffers report
// transfer counters to the control plane and expose their attributes as
// the debug probe buffer.<tag>.
func (h *Circuit) GetBuffer(dataTag string, dir api.Direction, opts ...ringbuf.Option) (api.Buffer, error) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "circuit is shut down")
	}
	cfg := h.control.GetConfig()
	all := make([]ringbuf.Option, 0, len(opts)+1)
	if control.Bool(cfg, "metrics.enabled", true) {
		all = append(all, ringbuf.WithMetrics(h.control))
	}
	all = append(all, opts...)

	b, err := ringbuf.Open(h, dataTag, dir, all...)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.buffers[dataTag] = b
	n := len(h.buffers)
	h.mu.Unlock()
	h.control.SetMetric("circuit.buffers", n)
	if a, ok := b.(interface{ Attributes() map[string]any }); ok && control.Bool(cfg, "debug.enabled", true) {
		h.control.RegisterDebugProbe("buffer."+dataTag, func() any { return a.Attributes() })
	}
	return b, nil
}

// Readable opens a device-to-host buffer.
func (h *Circuit) Readable(dataTag string, opts ...ringbuf.Option) (*ringbuf.Readable, error) {
	b, err := h.GetBuffer(dataTag, api.DirectionRead, opts...)
	if err != nil {
		return nil, err
	}
	return b.(*ringbuf.Readable), nil
}

// Writable opens a host-to-device buffer.
func (h *Circuit) Writable(dataTag string, opts ...ringbuf.Option) (*ringbuf.Writable, error) {
	b, err := h.GetBuffer(dataTag, api.DirectionWrite, opts...)
	if err != nil {
		return nil, err
	}
	return b.(*ringbuf.Writable), nil
}

// Buffers returns the buffers opened so far keyed by data tag.
func (h *Circuit) Buffers() map[string]api.Buffer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]api.Buffer, len(h.buffers))
	for k, v := range h.buffers {
		out[k] = v
	}
	return out
}

// Trigger fires id on the wrapped circuit.
func (h *Circuit) Trigger(id api.TriggerID) error {
	if err := h.Circuit.Trigger(id); err != nil {
		return err
	}
	h.control.AddMetric("circuit.triggers", 1)
	return nil
}

// Acquirer returns an acquisition controller seeded with the current
// defaults; opts override them.
func (h *Circuit) Acquirer(buf api.Readable, opts ...acquire.Option) *acquire.Controller {
	h.mu.RLock()
	base := h.acq
	h.mu.RUnlock()
	all := []acquire.Option{
		acquire.WithTrials(base.Trials),
		acquire.WithIntertrialInterval(base.IntertrialInterval),
		acquire.WithPollInterval(base.PollInterval),
		acquire.WithResetRead(base.ResetRead),
		acquire.WithClock(base.Clock),
	}
	return acquire.New(buf, h, append(all, opts...)...)
}

// Acquire triggers and spools buf until cond is met, once per trial.
func (h *Circuit) Acquire(ctx context.Context, buf api.Readable, trigger api.TriggerID, cond acquire.Condition, opts ...acquire.Option) (acquire.Trials, error) {
	trials, err := h.Acquirer(buf, opts...).Acquire(ctx, trigger, cond)
	h.control.AddMetric("acquire.trials", int64(len(trials)))
	if err != nil {
		h.control.AddMetric("acquire.errors", 1)
	}
	return trials, err
}

// AcquireSamples triggers and collects exactly n samples per trial.
func (h *Circuit) AcquireSamples(ctx context.Context, buf api.Readable, trigger api.TriggerID, n int, opts ...acquire.Option) (acquire.Trials, error) {
	trials, err := h.Acquirer(buf, opts...).AcquireSamples(ctx, trigger, n)
	h.control.AddMetric("acquire.trials", int64(len(trials)))
	if err != nil {
		h.control.AddMetric("acquire.errors", 1)
	}
	return trials, err
}

// Monitor starts a background spooler draining buf. It stops on Shutdown.
func (h *Circuit) Monitor(buf api.Readable) (*spool.Spooler, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "circuit is shut down")
	}
	s, err := spool.New(buf, h.spoolCfg.frames, spool.WithClock(h.clock),
		spool.WithMetrics(h.control), spool.WithCPU(h.cpu))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &monitor{s: s, cancel: cancel, done: make(chan struct{})}
	interval := h.spoolCfg.interval
	go func() {
		defer close(m.done)
		if err := s.Run(ctx, interval); err != nil && ctx.Err() == nil {
			log.Printf("[facade] monitor %s stopped: %v", buf.DataTag(), err)
		}
	}()
	h.monitors = append(h.monitors, m)
	return s, nil
}

// GetControl returns the Control interface for dynamic config and metrics.
func (h *Circuit) GetControl() api.Control {
	return h.control
}

// GetDebug returns the debug probe registry.
func (h *Circuit) GetDebug() api.Debug {
	return h.control
}

// RegisterReloadHook adds a callback run after every config change.
func (h *Circuit) RegisterReloadHook(fn func()) {
	h.control.OnReload(fn)
}

// Shutdown stops monitors and closes the wrapped circuit when it owns
// resources. Calling Shutdown twice is a no-op.
func (h *Circuit) Shutdown() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	monitors := h.monitors
	h.monitors = nil
	tags := make([]string, 0, len(h.buffers))
	for tag := range h.buffers {
		tags = append(tags, tag)
	}
	h.mu.Unlock()

	for _, tag := range tags {
		h.control.UnregisterDebugProbe("buffer." + tag)
	}

	for _, m := range monitors {
		m.cancel()
		m.s.Shutdown()
		<-m.done
	}
	h.control.Close()
	if c, ok := h.Circuit.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
