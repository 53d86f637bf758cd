// Package api
// Author: momentics
//
// Circular device buffer contracts. Buffers are capability-tagged rather
// than arranged in a type hierarchy, so a bidirectional implementation can
// advertise both capabilities.

package api

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

// Block is a channel-major sample array: Block[channel][sample].
type Block [][]float64

// NewBlock allocates a zeroed channels x n block.
func NewBlock(channels, n int) Block {
	b := make(Block, channels)
	for i := range b {
		b[i] = make([]float64, n)
	}
	return b
}

// Channels returns the number of channel rows.
func (b Block) Channels() int { return len(b) }

// Len returns the number of samples per channel.
func (b Block) Len() int {
	if len(b) == 0 {
		return 0
	}
	return len(b[0])
}

// Slice returns samples [from, to) of every channel without copying.
func (b Block) Slice(from, to int) Block {
	out := make(Block, len(b))
	for i := range b {
		out[i] = b[i][from:to]
	}
	return out
}

// Capability flags what a buffer handle can do.
type Capability uint8

const (
	CapRead Capability = 1 << iota
	CapWrite
)

// Has reports whether all bits of c2 are set in c.
func (c Capability) Has(c2 Capability) bool { return c&c2 == c2 }

// Buffer is the direction-independent part of a device ring buffer handle.
type Buffer interface {
	// Capabilities reports which transfer directions the handle supports.
	Capabilities() Capability

	// DataTag is the buffer's data tag name.
	DataTag() string

	// Channels is the interleaved channel count.
	Channels() int

	// BlockSize is the transfer granularity in samples per channel.
	BlockSize() int

	// Size is the current capacity in samples per channel.
	Size() int

	// SizeMax is the maximum capacity in samples per channel.
	SizeMax() int

	// FS is the effective sample rate after decimation.
	FS() physic.Frequency

	// SampleTime is the duration covered by one full buffer.
	SampleTime() time.Duration

	// Available reports how many samples per channel can be transferred
	// now without raising an overrun error.
	Available() (int, error)

	// Position is the cumulative samples per channel transferred by this
	// side since the last Reset.
	Position() int

	// Reset rebinds the local position without touching hardware state.
	Reset(position int)
}

// Readable is a buffer the device fills and the host drains.
type Readable interface {
	Buffer

	// Read returns every complete block produced since the last call.
	Read() (Block, error)
}

// Writable is a buffer the host fills and the device drains.
type Writable interface {
	Buffer

	// Write appends samples after the last written position.
	Write(b Block) error

	// Set uploads an epoch starting at offset 0.
	Set(b Block) error

	// Clear zero-fills the whole region.
	Clear() error
}

// Triggerer fires hardware triggers.
type Triggerer interface {
	Trigger(id TriggerID) error
}
