// File: api/handler.go
// Package api defines Handler interface.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// Handler processes one decoded request and produces its reply payload.
type Handler interface {
	Handle(data any) (any, error)
}
