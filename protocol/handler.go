// File: protocol/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Request dispatch onto a local circuit.

package protocol

import (
	"github.com/momentics/hioload-dsp/api"
)

// Handler executes requests against a circuit. It implements api.Handler:
// Handle takes a *Request and always returns a *Response, along with the
// error that was encoded into it.
type Handler struct {
	circuit api.Circuit
}

var _ api.Handler = (*Handler)(nil)

// NewHandler returns a handler serving c.
func NewHandler(c api.Circuit) *Handler {
	return &Handler{circuit: c}
}

// Handle dispatches one request.
func (h *Handler) Handle(data any) (any, error) {
	req, ok := data.(*Request)
	if !ok {
		return nil, api.Errorf(api.ErrCodeInvalidArgument, "unexpected payload %T", data)
	}
	resp := &Response{ID: req.ID}
	err := h.dispatch(req, resp)
	resp.Error = ErrorFrom(err)
	return resp, err
}

func (h *Handler) dispatch(req *Request, resp *Response) (err error) {
	c := h.circuit
	switch req.Op {
	case OpTags:
		resp.Tags = c.Tags()
	case OpTag:
		info, ok := c.Tag(req.Tag)
		resp.Found = ok
		if ok {
			resp.Info = &info
		}
	case OpRate:
		resp.Rate = c.SampleRate()
	case OpGet:
		resp.Value, err = c.GetScalar(req.Tag)
	case OpSet:
		err = c.SetScalar(req.Tag, req.Value)
	case OpLength:
		resp.Length, err = c.RawLength(req.Tag)
	case OpRead:
		resp.Block, err = c.ReadRaw(req.Tag, req.Offset, req.Length, req.Src, req.Dst, req.Channels)
	case OpWrite:
		err = c.WriteRaw(req.Tag, req.Offset, req.Data)
	case OpTrigger:
		if req.Trigger == nil {
			return api.NewError(api.ErrCodeInvalidArgument, "trigger request without trigger")
		}
		err = c.Trigger(*req.Trigger)
	default:
		err = api.Errorf(api.ErrCodeUnsupported, "unknown operation %q", req.Op)
	}
	return err
}
