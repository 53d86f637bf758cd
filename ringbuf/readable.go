// File: ringbuf/readable.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readable buffers: incremental reads behind the device write cursor.

package ringbuf

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/convert"
	"github.com/momentics/hioload-dsp/internal/cursor"
)

// Readable is a buffer the device fills and the host drains.
type Readable struct {
	*ring
}

var _ api.Readable = (*Readable)(nil)

// OpenReadable attaches to a buffer recorded by the device. The local
// position starts at the current hardware write cursor.
func OpenReadable(c api.Circuit, dataTag string, opts ...Option) (*Readable, error) {
	r, err := open(c, dataTag, api.DirectionRead, opts)
	if err != nil {
		return nil, err
	}
	hw, err := r.hwPosition()
	if err != nil {
		return nil, err
	}
	r.cur.Reset(r.cur.SamplePosition(hw))
	return &Readable{ring: r}, nil
}

// Capabilities reports CapRead.
func (r *Readable) Capabilities() api.Capability { return api.CapRead }

// Available returns the number of samples per channel a Read would return.
func (r *Readable) Available() (int, error) {
	hw, err := r.hwPosition()
	if err != nil {
		return 0, err
	}
	n, err := r.cur.Ahead(hw)
	if err != nil {
		return 0, r.overrun(hw, n, err)
	}
	return cursor.Align(n, r.step), nil
}

// Read returns every complete block recorded since the previous call as
// a channels x N block in physical units. N is 0 when nothing is new. On
// overrun the local position is moved to the hardware cursor so the next
// call resumes with fresh data.
func (r *Readable) Read() (api.Block, error) {
	hw, err := r.hwPosition()
	if err != nil {
		return nil, err
	}
	n, err := r.cur.Ahead(hw)
	if err != nil {
		oerr := r.overrun(hw, n, err)
		r.cur.Realign(hw)
		r.addMetric("read_overruns", 1)
		r.log.Printf("[ringbuf] %s: %v", r, oerr)
		return api.NewBlock(r.channels, 0), oerr
	}
	n = cursor.Align(n, r.step)
	block := api.NewBlock(r.channels, n)
	if n == 0 {
		return block, nil
	}
	done := 0
	for _, seg := range cursor.Wrap(r.cur.Offset(), n, r.cur.Size()) {
		r.log.Printf("[ringbuf] %s: read offset %d, read size %d", r, seg.Offset, seg.Length)
		raw, err := r.circuit.ReadRaw(r.dataTag, r.cur.ToSlots(seg.Offset), r.cur.ToSlots(seg.Length), r.src, r.dst, r.channels)
		if err != nil {
			return nil, fmt.Errorf("%s: read: %w", r.dataTag, err)
		}
		if raw.Channels() != r.channels || raw.Len() != seg.Length {
			return nil, api.Errorf(api.ErrCodeDevice, "%s: read returned %dx%d, want %dx%d",
				r.dataTag, raw.Channels(), raw.Len(), r.channels, seg.Length)
		}
		for c := range raw {
			for i, v := range raw[c] {
				block[c][done+i] = convert.ToPhysical(v, r.sf, r.dst)
			}
		}
		done += seg.Length
	}
	r.cur.Advance(n)
	r.total += int64(n)
	r.addMetric("samples_read", int64(n))
	return block, nil
}

// WriteIndex returns the hardware write cursor within the ring, in
// samples per channel.
func (r *Readable) WriteIndex() (int, error) { return r.index() }

// WriteCycle returns the hardware wrap count. ok is false when the device
// does not track cycles.
func (r *Readable) WriteCycle() (cycle int, ok bool, err error) { return r.cycle() }

// TotalSamplesRead returns the samples per channel returned by Read.
func (r *Readable) TotalSamplesRead() int64 { return r.total }

func (r *Readable) overrun(hw cursor.Position, n int, cause error) error {
	e := api.NewError(api.ErrCodeReadOverrun, api.ErrReadOverrun.Message).
		WithContext("tag", r.dataTag).
		WithContext("position", r.cur.Local()).
		WithContext("hardware", r.cur.SamplePosition(hw))
	if errors.Is(cause, cursor.ErrOverrun) {
		e.WithContext("pending", n)
	} else {
		e.Message = "hardware cursor moved behind the read position"
	}
	return e
}
