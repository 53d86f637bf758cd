// File: internal/cursor/cursor.go
// Package cursor implements ring cursor arithmetic for device buffers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A hardware cursor is a (slot index, wrap count) tuple. Geometry converts
// it into a per-channel sample position; Cursor keeps the host side of the
// ring and decides whether a transfer window is still valid. Nothing here
// talks to hardware, so every rule can be tested in isolation.

package cursor

import (
	"errors"
	"fmt"
)

var (
	// ErrOverrun: the span between two marks is larger than the ring.
	ErrOverrun = errors.New("number of slots exceeds buffer size")
	// ErrBackwards: the end mark precedes the start mark.
	ErrBackwards = errors.New("start sample higher than end sample")
)

// Geometry maps hardware slots onto per-channel sample positions.
type Geometry struct {
	Slots       int // current ring length in slots
	Compression int // samples packed per slot
	Channels    int // interleaved channels
}

// Validate checks the static invariants of g.
func (g Geometry) Validate() error {
	switch {
	case g.Channels < 1:
		return fmt.Errorf("channel count must be positive, got %d", g.Channels)
	case g.Compression < 1:
		return fmt.Errorf("compression factor must be positive, got %d", g.Compression)
	case g.Slots < 1:
		return fmt.Errorf("buffer must hold at least one slot, got %d", g.Slots)
	case g.Slots%g.Channels != 0:
		return fmt.Errorf("buffer size (%d slots) must be a multiple of the channel number (%d)", g.Slots, g.Channels)
	}
	return nil
}

// Samples returns the total number of samples the ring holds.
func (g Geometry) Samples() int { return g.Slots * g.Compression }

// Size returns the ring capacity in samples per channel.
func (g Geometry) Size() int { return g.Slots * g.Compression / g.Channels }

// quantum returns the smallest span that starts and ends on both a slot
// boundary and a frame boundary, in slots and in samples per channel.
func (g Geometry) quantum() (slots, samples int) {
	d := gcd(g.Compression, g.Channels)
	return g.Channels / d, g.Compression / d
}

// Quantum is the transfer granularity imposed by packing and interleaving,
// in samples per channel.
func (g Geometry) Quantum() int {
	_, n := g.quantum()
	return n
}

// Step is the transfer granularity for a buffer with the given block size.
func (g Geometry) Step(blockSize int) int {
	if blockSize < 1 {
		blockSize = 1
	}
	return lcm(blockSize, g.Quantum())
}

// Align rounds n down to a multiple of step.
func Align(n, step int) int {
	if step <= 1 {
		return n
	}
	return n - n%step
}

// ToSlots converts a per-channel sample count to slots. n must be a
// multiple of Quantum.
func (g Geometry) ToSlots(n int) int {
	return n * g.Channels / g.Compression
}

// Position is a raw hardware cursor.
type Position struct {
	Index   int  // slot index, wraps at Geometry.Slots
	Cycle   int  // wrap count, valid only when Tracked
	Tracked bool // false when the device exposes no cycle register
}

// Untracked returns a position without wrap information.
func Untracked(index int) Position { return Position{Index: index} }

// Tracked returns a position with a wrap count.
func Tracked(index, cycle int) Position { return Position{Index: index, Cycle: cycle, Tracked: true} }

// SamplePosition converts p to samples per channel:
//
//	(cycle*slots + index) * compression / channels
//
// rounded down to a whole quantum so a half-written frame is never
// exposed. Tracked positions are cumulative, untracked ones lie in
// [0, Size).
func (g Geometry) SamplePosition(p Position) int {
	qs, qn := g.quantum()
	slots := p.Index
	if p.Tracked {
		slots += p.Cycle * g.Slots
	}
	return slots / qs * qn
}

// Span returns the number of samples between the marks (fromCycle,
// fromIndex) and (toCycle, toIndex) of a ring holding size samples.
func Span(fromCycle, fromIndex, toCycle, toIndex, size int) (int, error) {
	start := fromCycle*size + fromIndex
	end := toCycle*size + toIndex
	if start > end {
		return 0, ErrBackwards
	}
	if end-start > size {
		return end - start, ErrOverrun
	}
	return end - start, nil
}

// Pending returns how far newIndex is ahead of oldIndex on a ring of size
// without wrap information. It cannot detect a full lap.
func Pending(oldIndex, newIndex, size int) int {
	if newIndex < oldIndex {
		return size - oldIndex + newIndex
	}
	return newIndex - oldIndex
}

// Segment is one contiguous piece of a transfer.
type Segment struct {
	Offset int
	Length int
}

// Wrap splits a transfer of length samples starting at offset into at most
// two contiguous segments of a ring of size.
func Wrap(offset, length, size int) []Segment {
	if length <= 0 {
		return nil
	}
	if offset+length > size {
		a := size - offset
		return []Segment{{Offset: offset, Length: a}, {Offset: 0, Length: length - a}}
	}
	return []Segment{{Offset: offset, Length: length}}
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	return a / gcd(a, b) * b
}
