// File: protocol/messages.go
// Package protocol defines the remote tag access wire format.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One JSON request per WebSocket text message, answered by exactly one
// response carrying the same ID. Errors travel as (code, message) so the
// remote side can rebuild an *api.Error that still matches the api
// sentinels.

package protocol

import (
	"periph.io/x/conn/v3/physic"

	"github.com/momentics/hioload-dsp/api"
)

// Op names a remote operation.
type Op string

const (
	OpTags    Op = "tags"
	OpTag     Op = "tag"
	OpRate    Op = "rate"
	OpGet     Op = "get"
	OpSet     Op = "set"
	OpLength  Op = "length"
	OpRead    Op = "read"
	OpWrite   Op = "write"
	OpTrigger Op = "trigger"
)

// Request is a client call.
type Request struct {
	ID       uint64           `json:"id"`
	Op       Op               `json:"op"`
	Tag      string           `json:"tag,omitempty"`
	Value    float64          `json:"value,omitempty"`
	Offset   int              `json:"offset,omitempty"`
	Length   int              `json:"length,omitempty"`
	Src      api.SampleFormat `json:"src,omitempty"`
	Dst      api.SampleFormat `json:"dst,omitempty"`
	Channels int              `json:"channels,omitempty"`
	Data     []float64        `json:"data,omitempty"`
	Trigger  *api.TriggerID   `json:"trigger,omitempty"`
}

// Error is the wire form of a failed call.
type Error struct {
	Code    api.ErrorCode `json:"code"`
	Message string        `json:"message"`
}

// ErrorFrom converts err for transmission.
func ErrorFrom(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: api.CodeOf(err), Message: err.Error()}
}

// Err rebuilds the structured error.
func (e *Error) Err() error {
	return api.NewError(e.Code, e.Message)
}

// Response answers a Request.
type Response struct {
	ID     uint64           `json:"id"`
	Error  *Error           `json:"error,omitempty"`
	Value  float64          `json:"value,omitempty"`
	Length int              `json:"length,omitempty"`
	Found  bool             `json:"found,omitempty"`
	Info   *api.TagInfo     `json:"info,omitempty"`
	Tags   []api.TagInfo    `json:"tags,omitempty"`
	Rate   physic.Frequency `json:"rate,omitempty"`
	Block  api.Block        `json:"block,omitempty"`
}
