// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server configuration and state.

package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/momentics/hioload-dsp/adapters"
	"github.com/momentics/hioload-dsp/api"
)

// Config holds all server-side configuration parameters.
type Config struct {
	ListenAddr      string        // TCP bind address, e.g. ":9000"
	Path            string        // WebSocket endpoint path
	ReadLimit       int64         // maximum request size in bytes
	ReadBufferSize  int           // websocket read buffer size
	WriteBufferSize int           // websocket write buffer size
	WriteTimeout    time.Duration // optional per-response write deadline
	ShutdownTimeout time.Duration // graceful shutdown timeout
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":9000",
		Path:            "/tags",
		ReadLimit:       16 << 20,
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		WriteTimeout:    0,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server exposes an api.Circuit over WebSocket.
type Server struct {
	cfg        *Config
	circuit    api.Circuit
	control    *adapters.ControlAdapter
	ownControl bool
	middleware []func(api.Handler) api.Handler
	handler    api.Handler
	upgrader   websocket.Upgrader
	httpSrv    *http.Server

	call sync.Mutex // serializes circuit access

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}
