// File: server/server.go
// Package server serves remote tag access for a circuit over WebSocket.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Requests are decoded per connection and run through the handler chain
// Recovery -> Metrics -> user middleware -> protocol.Handler. Calls from
// every connection are serialized onto the circuit, matching the single
// control channel of real hardware.

package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/momentics/hioload-dsp/adapters"
	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/protocol"
)

var ErrAlreadyRunning = errors.New("server already running")

// NewServer builds a server for circuit.
func NewServer(circuit api.Circuit, cfg *Config, opts ...ServerOption) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		c := *cfg
		cfg = &c
	}
	s := &Server{
		cfg:     cfg,
		circuit: circuit,
		conns:   make(map[*websocket.Conn]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.control == nil {
		s.control = adapters.NewControlAdapter()
		s.ownControl = true
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	chain := adapters.NewMiddlewareHandler(protocol.NewHandler(circuit)).
		Use(adapters.RecoveryMiddleware).
		Use(adapters.MetricsMiddleware(s.control, "server"))
	for _, mw := range s.middleware {
		chain.Use(mw)
	}
	s.handler = chain

	s.control.RegisterDebugProbe("server.connections", func() any {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.conns)
	})
	s.control.SetConfig(map[string]any{
		"server.listen_addr": cfg.ListenAddr,
		"server.path":        cfg.Path,
	})
	return s
}

// ServeHTTP upgrades the request and serves tag calls until the peer
// disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[server] upgrade failed: %v", err)
		return
	}
	if !s.track(conn) {
		conn.Close()
		return
	}
	defer s.untrack(conn)
	conn.SetReadLimit(s.cfg.ReadLimit)
	s.control.AddMetric("server.connections_total", 1)

	for {
		var req protocol.Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[server] %s: read: %v", r.RemoteAddr, err)
			}
			return
		}
		resp := s.handle(&req)
		if s.cfg.WriteTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		}
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("[server] %s: write: %v", r.RemoteAddr, err)
			return
		}
	}
}

func (s *Server) handle(req *protocol.Request) *protocol.Response {
	s.call.Lock()
	defer s.call.Unlock()
	out, err := s.handler.Handle(req)
	resp, ok := out.(*protocol.Response)
	if !ok {
		resp = &protocol.Response{ID: req.ID}
	}
	if err != nil && resp.Error == nil {
		resp.Error = protocol.ErrorFrom(err)
	}
	return resp
}

func (s *Server) track(c *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	c.Close()
}

// ListenAndServe binds cfg.ListenAddr and blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s)
	s.mu.Lock()
	if s.httpSrv != nil {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.httpSrv = &http.Server{Addr: s.cfg.ListenAddr, Handler: mux}
	srv := s.httpSrv
	s.mu.Unlock()

	log.Printf("[server] listening on %s%s", s.cfg.ListenAddr, s.cfg.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener and closes every open connection.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	s.closed = true
	srv := s.httpSrv
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if s.ownControl {
		s.control.Close()
	}
	for _, c := range conns {
		c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(time.Second))
		c.Close()
	}
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// GetControl exposes runtime metrics and debug control.
func (s *Server) GetControl() api.Control {
	return s.control
}

var _ api.GracefulShutdown = (*Server)(nil)
