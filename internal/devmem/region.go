// Package devmem allocates the byte regions backing simulated device
// buffers. On Linux regions are anonymous private mappings so large
// buffers stay outside the Go heap; elsewhere they are plain slices.
package devmem

import (
	"encoding/binary"
	"errors"
	"math"
)

// ErrClosed is returned when accessing a released region.
var ErrClosed = errors.New("devmem: region closed")

// WordBytes is the width of one device slot.
const WordBytes = 4

// Region is a fixed-size block of device memory addressed in 32-bit slots.
type Region struct {
	buf    []byte
	mapped bool
}

// Alloc returns a zero-filled region holding slots 32-bit words.
func Alloc(slots int) (*Region, error) {
	if slots <= 0 {
		return nil, errors.New("devmem: region must hold at least one slot")
	}
	buf, mapped, err := alloc(slots * WordBytes)
	if err != nil {
		return nil, err
	}
	return &Region{buf: buf, mapped: mapped}, nil
}

// Slots returns the region capacity in words.
func (r *Region) Slots() int { return len(r.buf) / WordBytes }

// Bytes exposes the backing storage. The slice is invalid after Close.
func (r *Region) Bytes() []byte { return r.buf }

// Mapped reports whether the region lives in an OS mapping.
func (r *Region) Mapped() bool { return r.mapped }

// Close releases the region. It is safe to call more than once.
func (r *Region) Close() error {
	if r.buf == nil {
		return nil
	}
	buf := r.buf
	r.buf = nil
	if r.mapped {
		return release(buf)
	}
	return nil
}

// PutUint32 stores a little-endian word at byte offset off.
func (r *Region) PutUint32(off int, v uint32) {
	binary.LittleEndian.PutUint32(r.buf[off:], v)
}

// Uint32 loads a little-endian word at byte offset off.
func (r *Region) Uint32(off int) uint32 {
	return binary.LittleEndian.Uint32(r.buf[off:])
}

// PutUint16 stores a little-endian half word at byte offset off.
func (r *Region) PutUint16(off int, v uint16) {
	binary.LittleEndian.PutUint16(r.buf[off:], v)
}

// Uint16 loads a little-endian half word at byte offset off.
func (r *Region) Uint16(off int) uint16 {
	return binary.LittleEndian.Uint16(r.buf[off:])
}

// PutFloat32 stores an IEEE-754 single at byte offset off.
func (r *Region) PutFloat32(off int, v float32) {
	r.PutUint32(off, math.Float32bits(v))
}

// Float32 loads an IEEE-754 single at byte offset off.
func (r *Region) Float32(off int) float32 {
	return math.Float32frombits(r.Uint32(off))
}

// Zero clears the whole region.
func (r *Region) Zero() {
	clear(r.buf)
}
