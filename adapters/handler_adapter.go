// File: adapters/handler_adapter.go
// Package adapters
// Author: momentics <momentics@gmail.com>
//
// HandlerFunc glue and middleware chain for tag server request dispatch.

package adapters

import (
	"fmt"
	"log"

	"github.com/momentics/hioload-dsp/api"
)

// HandlerFunc converts a function into an api.Handler.
type HandlerFunc func(data any) (any, error)

// Handle calls the underlying function.
func (f HandlerFunc) Handle(data any) (any, error) {
	return f(data)
}

// MiddlewareHandler wraps a base Handler and applies middleware in chain.
type MiddlewareHandler struct {
	handler    api.Handler
	middleware []func(api.Handler) api.Handler
	chain      api.Handler
}

// NewMiddlewareHandler creates a new MiddlewareHandler for the given base handler.
func NewMiddlewareHandler(handler api.Handler) *MiddlewareHandler {
	return &MiddlewareHandler{
		handler:    handler,
		middleware: make([]func(api.Handler) api.Handler, 0),
	}
}

// Use appends a middleware to the chain. The first registered middleware
// runs outermost.
func (m *MiddlewareHandler) Use(mw func(api.Handler) api.Handler) *MiddlewareHandler {
	m.middleware = append(m.middleware, mw)
	m.chain = nil
	return m
}

// Handle applies all middleware then calls the base handler.
func (m *MiddlewareHandler) Handle(data any) (any, error) {
	if m.chain == nil {
		h := m.handler
		for i := len(m.middleware) - 1; i >= 0; i-- {
			h = m.middleware[i](h)
		}
		m.chain = h
	}
	return m.chain.Handle(data)
}

// LoggingMiddleware logs handler errors.
func LoggingMiddleware(next api.Handler) api.Handler {
	return HandlerFunc(func(data any) (any, error) {
		out, err := next.Handle(data)
		if err != nil {
			log.Printf("[handler] %v: %v", data, err)
		}
		return out, err
	})
}

// RecoveryMiddleware converts a panic in the handler into an internal error.
func RecoveryMiddleware(next api.Handler) api.Handler {
	return HandlerFunc(func(data any) (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[handler] panic recovered: %v", r)
				out = nil
				err = api.NewError(api.ErrCodeInternal, fmt.Sprintf("panic: %v", r))
			}
		}()
		return next.Handle(data)
	})
}

// MetricsMiddleware counts handled requests and failures under prefix.
func MetricsMiddleware(m api.Metrics, prefix string) func(api.Handler) api.Handler {
	return func(next api.Handler) api.Handler {
		return HandlerFunc(func(data any) (any, error) {
			m.Add(prefix+".requests", 1)
			out, err := next.Handle(data)
			if err != nil {
				m.Add(prefix+".errors", 1)
			}
			return out, err
		})
	}
}
