// File: api/control.go
// Package api defines Control interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Control manages dynamic config, runtime counters and debug probes.
type Control interface {
	GetConfig() map[string]any
	SetConfig(cfg map[string]any) error
	Stats() map[string]any
	OnReload(fn func())
	RegisterDebugProbe(name string, fn func() any)

	// AddMetric increments a numeric counter by delta.
	AddMetric(key string, delta int64)
}

// Metrics is the counter sink buffers report transfer statistics to.
type Metrics interface {
	Add(key string, delta int64)
}
