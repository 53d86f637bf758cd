// Package control
// Author: momentics <momentics@gmail.com>
//
// Hot-reload, runtime metrics, configuration control, and debug introspection layer.
//
// Provides concurrent-safe state handling primitives including:
//   - Snapshot config reads and atomic updates
//   - Runtime observers for hot-reload
//   - Transfer and overrun counters
//   - State export, debug hooks, and probe registration
package control
