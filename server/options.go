// File: server/options.go
// Package server defines functional options for the tag server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/momentics/hioload-dsp/adapters"
	"github.com/momentics/hioload-dsp/api"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithMiddleware attaches middleware in FIFO order, inside the built-in
// recovery and metrics layers.
func WithMiddleware(mw ...func(api.Handler) api.Handler) ServerOption {
	return func(s *Server) {
		s.middleware = append(s.middleware, mw...)
	}
}

// WithControl shares an existing control adapter for metrics and probes.
func WithControl(ctrl *adapters.ControlAdapter) ServerOption {
	return func(s *Server) {
		if ctrl != nil {
			s.control = ctrl
		}
	}
}

// WithListenAddr overrides the bind address.
func WithListenAddr(addr string) ServerOption {
	return func(s *Server) {
		s.cfg.ListenAddr = addr
	}
}
