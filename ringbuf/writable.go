// File: ringbuf/writable.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Writable buffers: incremental writes ahead of the device read cursor.

package ringbuf

import (
	"fmt"

	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/convert"
	"github.com/momentics/hioload-dsp/internal/cursor"
)

// Writable is a buffer the host fills and the device plays.
type Writable struct {
	*ring
}

var _ api.Writable = (*Writable)(nil)

// OpenWritable attaches to a buffer played by the device. The local
// position starts at the current hardware read cursor.
func OpenWritable(c api.Circuit, dataTag string, opts ...Option) (*Writable, error) {
	r, err := open(c, dataTag, api.DirectionWrite, opts)
	if err != nil {
		return nil, err
	}
	hw, err := r.hwPosition()
	if err != nil {
		return nil, err
	}
	r.cur.Reset(r.cur.SamplePosition(hw))
	return &Writable{ring: r}, nil
}

// Capabilities reports CapWrite.
func (w *Writable) Capabilities() api.Capability { return api.CapWrite }

// Available returns how many samples per channel can be written before
// the device would play them.
func (w *Writable) Available() (int, error) {
	hw, err := w.hwPosition()
	if err != nil {
		return 0, err
	}
	queued, err := w.cur.Queued(hw)
	if err != nil {
		return 0, w.underrun(hw)
	}
	return cursor.Align(w.cur.Size()-queued, w.step), nil
}

// Write appends b after the last written sample. It fails if the device
// already played past the last written sample, or if b does not fit in the
// space the device has consumed.
func (w *Writable) Write(b api.Block) error {
	if b.Channels() != w.channels {
		return api.Errorf(api.ErrCodeInvalidArgument, "%s: block has %d channels, buffer has %d",
			w.dataTag, b.Channels(), w.channels)
	}
	n := b.Len()
	if n == 0 {
		return nil
	}
	if q := w.cur.Quantum(); n%q != 0 {
		return api.Errorf(api.ErrCodeInvalidArgument, "%s: %d samples is not a multiple of %d",
			w.dataTag, n, q)
	}
	hw, err := w.hwPosition()
	if err != nil {
		return err
	}
	queued, err := w.cur.Queued(hw)
	if err != nil {
		uerr := w.underrun(hw)
		w.cur.Realign(hw)
		w.addMetric("write_overruns", 1)
		w.log.Printf("[ringbuf] %s: %v", w, uerr)
		return uerr
	}
	if avail := w.cur.Size() - queued; n > avail {
		w.addMetric("write_overruns", 1)
		return api.Errorf(api.ErrCodeWriteOverrun, "attempt to write %d samples failed because only %d are available", n, avail).
			WithContext("tag", w.dataTag)
	}
	done := 0
	for _, seg := range cursor.Wrap(w.cur.Offset(), n, w.cur.Size()) {
		if err := w.transfer(seg.Offset, b.Slice(done, done+seg.Length)); err != nil {
			return err
		}
		done += seg.Length
	}
	w.cur.Advance(n)
	w.total += int64(n)
	w.addMetric("samples_written", int64(n))
	return nil
}

// Set uploads b as a whole epoch starting at offset 0, resizing the buffer
// to fit when a size tag exists. Only F32 device storage is supported.
// Set never returns ErrWriteOverrun: it is meant for a halted device and
// does not check the hardware read cursor.
func (w *Writable) Set(b api.Block) error {
	n := b.Len()
	if n == 0 {
		return nil
	}
	if b.Channels() != w.channels {
		return api.Errorf(api.ErrCodeInvalidArgument, "%s: block has %d channels, buffer has %d",
			w.dataTag, b.Channels(), w.channels)
	}
	if w.src != api.FormatF32 {
		return api.Errorf(api.ErrCodeUnsupported, "%s: set is only implemented for F32 buffers, not %s",
			w.dataTag, w.src)
	}
	if n > w.SizeMax() {
		return api.Errorf(api.ErrCodeInvalidArgument, "%s: cannot write %d samples to buffer", w.dataTag, n)
	}
	if w.sizeTag != "" {
		if err := w.SetSize(w.cur.ToSlots(n)); err != nil {
			return err
		}
	} else if n != w.cur.Size() {
		return api.Errorf(api.ErrCodeConfiguration, "%s: buffer size cannot be configured", w.dataTag)
	}
	if err := w.transfer(0, b); err != nil {
		return err
	}
	w.cur.Reset(0)
	w.cur.Advance(n)
	w.total += int64(n)
	w.addMetric("samples_written", int64(n))
	w.log.Printf("[ringbuf] %s: set buffer with %d samples", w, n)
	return nil
}

// Clear overwrites the whole region with zeros.
func (w *Writable) Clear() error {
	zeros := make([]float64, w.cur.Samples())
	if err := w.circuit.WriteRaw(w.dataTag, 0, zeros); err != nil {
		return fmt.Errorf("%s: clear: %w", w.dataTag, err)
	}
	return nil
}

// ReadIndex returns the hardware read cursor within the ring, in samples
// per channel.
func (w *Writable) ReadIndex() (int, error) { return w.index() }

// ReadCycle returns the hardware wrap count. ok is false when the device
// does not track cycles.
func (w *Writable) ReadCycle() (cycle int, ok bool, err error) { return w.cycle() }

// TotalSamplesWritten returns the samples per channel accepted by Write
// and Set.
func (w *Writable) TotalSamplesWritten() int64 { return w.total }

// transfer interleaves and quantizes b and writes it at sample offset.
func (w *Writable) transfer(offset int, b api.Block) error {
	n := b.Len()
	data := make([]float64, n*w.channels)
	for i := 0; i < n; i++ {
		for c := 0; c < w.channels; c++ {
			data[i*w.channels+c] = convert.ToRaw(b[c][i], w.sf, w.src)
		}
	}
	w.log.Printf("[ringbuf] %s: write %d samples at %d", w, n, offset)
	if err := w.circuit.WriteRaw(w.dataTag, w.cur.ToSlots(offset), data); err != nil {
		return fmt.Errorf("%s: write: %w", w.dataTag, err)
	}
	return nil
}

func (w *Writable) underrun(hw cursor.Position) error {
	return api.NewError(api.ErrCodeWriteOverrun, api.ErrWriteOverrun.Message).
		WithContext("tag", w.dataTag).
		WithContext("position", w.cur.Local()).
		WithContext("hardware", w.cur.SamplePosition(hw))
}
