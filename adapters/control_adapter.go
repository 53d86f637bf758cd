// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Control adapter implementing api.Control, api.Debug and api.Metrics using
// control package primitives.

package adapters

import (
	"sync"

	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/control"
)

type ControlAdapter struct {
	config  *control.ConfigStore
	metrics *control.MetricsRegistry
	debug   *control.DebugProbes

	mu     sync.Mutex
	unhook []func()
}

var (
	_ api.Control = (*ControlAdapter)(nil)
	_ api.Debug   = (*ControlAdapter)(nil)
	_ api.Metrics = (*ControlAdapter)(nil)
)

func NewControlAdapter() *ControlAdapter {
	adapter := &ControlAdapter{
		config:  control.NewConfigStore(),
		metrics: control.NewMetricsRegistry(),
		debug:   control.NewDebugProbes(),
	}
	control.RegisterPlatformProbes(adapter.debug)
	return adapter
}

func (c *ControlAdapter) GetConfig() map[string]any {
	return c.config.GetSnapshot()
}
func (c *ControlAdapter) SetConfig(cfg map[string]any) error {
	c.config.SetConfig(cfg)
	return nil
}

// Stats merges config, counters and probe output. Probe keys are prefixed
// with "debug.".
func (c *ControlAdapter) Stats() map[string]any {
	combined := c.config.GetSnapshot()
	for k, v := range c.metrics.GetSnapshot() {
		combined[k] = v
	}
	for k, v := range c.debug.DumpState() {
		combined["debug."+k] = v
	}
	return combined
}

// OnReload registers fn with the store and with the process-wide reload
// hooks until Close.
func (c *ControlAdapter) OnReload(fn func()) {
	c.config.OnReload(fn)
	unregister := control.RegisterReloadHook(fn)
	c.mu.Lock()
	c.unhook = append(c.unhook, unregister)
	c.mu.Unlock()
}

// Close removes every process-wide reload hook added through OnReload.
// Store listeners stay in place.
func (c *ControlAdapter) Close() error {
	c.mu.Lock()
	unhook := c.unhook
	c.unhook = nil
	c.mu.Unlock()
	for _, fn := range unhook {
		fn()
	}
	return nil
}

func (c *ControlAdapter) SetMetric(key string, value any) {
	c.metrics.Set(key, value)
}
func (c *ControlAdapter) AddMetric(key string, delta int64) {
	c.metrics.Add(key, delta)
}

// Add implements api.Metrics.
func (c *ControlAdapter) Add(key string, delta int64) {
	c.metrics.Add(key, delta)
}
func (c *ControlAdapter) RegisterDebugProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}

// UnregisterDebugProbe removes a probe registered earlier.
func (c *ControlAdapter) UnregisterDebugProbe(name string) {
	c.debug.UnregisterProbe(name)
}

// RegisterProbe implements api.Debug.
func (c *ControlAdapter) RegisterProbe(name string, fn func() any) {
	c.debug.RegisterProbe(name, fn)
}

// DumpState implements api.Debug.
func (c *ControlAdapter) DumpState() map[string]any {
	return c.debug.DumpState()
}
