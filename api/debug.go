// Package api
// Author: momentics
//
// Live debug support: buffer and circuit state snapshots on demand.

package api

// Debug exposes runtime introspection.
type Debug interface {
	// DumpState emits a snapshot of all registered probes.
	DumpState() map[string]any

	// RegisterProbe registers a named probe.
	RegisterProbe(name string, fn func() any)
}
