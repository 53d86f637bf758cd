// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is implemented by long-running services (tag server,
// spooler) that own listeners or goroutines.
type GracefulShutdown interface {
	// Shutdown stops accepting work and releases resources.
	Shutdown() error
}
