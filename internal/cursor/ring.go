// File: internal/cursor/ring.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cursor

// Cursor is the host side of a ring: the cumulative samples per channel
// this side has transferred since the last Reset. It is not safe for
// concurrent use.
type Cursor struct {
	Geometry
	local int
	// hw is the cumulative hardware position last seen through an
	// untracked cursor, accumulated offset by offset.
	hw int
}

// New returns a cursor positioned at 0.
func New(g Geometry) *Cursor {
	return &Cursor{Geometry: g}
}

// Local returns the cumulative local position.
func (c *Cursor) Local() int { return c.local }

// Offset returns the local position within the ring.
func (c *Cursor) Offset() int { return c.local % c.Size() }

// Reset rebinds the local position, rounded down to a whole quantum.
func (c *Cursor) Reset(pos int) {
	if pos < 0 {
		pos = 0
	}
	c.local = Align(pos, c.Quantum())
	c.hw = c.local
}

// Advance moves the local position forward by n samples per channel.
func (c *Cursor) Advance(n int) { c.local += n }

// Ahead returns how many samples per channel the hardware cursor hw has
// produced beyond the local position. With cycle tracking it returns
// ErrOverrun once hw is more than one ring ahead, and ErrBackwards if hw
// lies behind the local position. Without tracking the distance is taken
// modulo the ring and laps go unnoticed.
func (c *Cursor) Ahead(hw Position) (int, error) {
	size := c.Size()
	h := c.SamplePosition(hw)
	if !hw.Tracked {
		return Pending(c.local%size, h%size, size), nil
	}
	return Span(0, c.local, 0, h, size)
}

// Queued returns how many samples per channel lie between the hardware
// consumer hw and the local producer position, i.e. written but not yet
// consumed. It returns ErrBackwards when the consumer has already passed
// the producer. Untracked positions are accumulated onto the last seen
// hardware position, so a full ring reads as Size rather than 0; a
// consumer that laps between two queries goes unnoticed.
func (c *Cursor) Queued(hw Position) (int, error) {
	size := c.Size()
	h := c.SamplePosition(hw)
	if !hw.Tracked {
		c.hw += Pending(c.hw%size, h%size, size)
		h = c.hw
	}
	return Span(0, h, 0, c.local, size)
}

// Realign moves the local position onto the hardware cursor. Only tracked
// positions carry enough information to do so; untracked ones keep the
// local lap and take the hardware offset.
func (c *Cursor) Realign(hw Position) {
	h := c.SamplePosition(hw)
	if hw.Tracked {
		c.local = h
		return
	}
	size := c.Size()
	c.local = c.local - c.local%size + h%size
	if c.local < c.hw {
		c.local += size
	}
	c.hw = c.local
}
