// File: spool/spool.go
// Package spool drains a readable device buffer into a host-side ring.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Spooler polls its source buffer and appends every block it returns to
// a byte ring as interleaved little-endian float32 frames, one frame per
// sample instant. When the ring is full the oldest frames are dropped so
// consumers always see the most recent history.

package spool

import (
	"context"
	"encoding/binary"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/momentics/hioload-dsp/affinity"
	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/clock"
)

// ErrClosed is returned once the spooler has been shut down.
var ErrClosed = errors.New("spooler closed")

// Option customizes a Spooler.
type Option func(*Spooler)

// WithClock sets the time source used by Run.
func WithClock(c api.Clock) Option {
	return func(s *Spooler) { s.clock = c }
}

// WithMetrics reports spooled and dropped frame counts under
// spool.<tag>.frames and spool.<tag>.dropped.
func WithMetrics(m api.Metrics) Option {
	return func(s *Spooler) { s.metrics = m }
}

// WithCPU pins the goroutine running Run to one logical CPU. Run should
// then own its goroutine, which stays locked to the pinned thread.
func WithCPU(cpu int) Option {
	return func(s *Spooler) { s.cpu = cpu }
}

// Spooler buffers the output of one readable device buffer.
type Spooler struct {
	src      api.Readable
	channels int
	frame    int // bytes per frame

	clock   api.Clock
	metrics api.Metrics
	cpu     int

	mu      sync.Mutex
	ring    *ringbuffer.RingBuffer
	dropped int64
	closed  bool
}

var _ api.GracefulShutdown = (*Spooler)(nil)

// New creates a spooler holding up to frames frames of src.
func New(src api.Readable, frames int, opts ...Option) (*Spooler, error) {
	if frames <= 0 {
		return nil, api.Errorf(api.ErrCodeInvalidArgument, "spool capacity must be positive, got %d", frames)
	}
	ch := src.Channels()
	s := &Spooler{
		src:      src,
		channels: ch,
		frame:    ch * 4,
		clock:    clock.System{},
		cpu:      -1,
	}
	for _, o := range opts {
		o(s)
	}
	s.ring = ringbuffer.New(frames * s.frame)
	return s, nil
}

// Poll reads whatever the source has produced and spools it. It returns
// the number of frames appended. A read overrun is returned after the
// source has been realigned; the spooler stays usable.
func (s *Spooler) Poll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	blk, err := s.src.Read()
	if err != nil {
		return 0, err
	}
	n := blk.Len()
	if n == 0 {
		return 0, nil
	}
	s.push(s.encode(blk))
	s.count("frames", int64(n))
	return n, nil
}

func (s *Spooler) encode(blk api.Block) []byte {
	n := blk.Len()
	out := make([]byte, n*s.frame)
	off := 0
	for i := 0; i < n; i++ {
		for c := 0; c < s.channels; c++ {
			binary.LittleEndian.PutUint32(out[off:], math.Float32bits(float32(blk[c][i])))
			off += 4
		}
	}
	return out
}

// push appends whole frames, evicting the oldest ones when needed.
// Callers hold s.mu.
func (s *Spooler) push(data []byte) {
	if c := s.ring.Capacity(); len(data) > c {
		s.drop(int64((len(data) - c) / s.frame))
		data = data[len(data)-c:]
	}
	if free := s.ring.Free(); free < len(data) {
		evict := make([]byte, len(data)-free)
		n, _ := s.ring.Read(evict)
		s.drop(int64(n / s.frame))
	}
	if _, err := s.ring.Write(data); err != nil {
		log.Printf("[spool] %s: write: %v", s.src.DataTag(), err)
	}
}

func (s *Spooler) drop(frames int64) {
	if frames == 0 {
		return
	}
	s.dropped += frames
	s.count("dropped", frames)
}

func (s *Spooler) count(name string, delta int64) {
	if s.metrics != nil {
		s.metrics.Add("spool."+s.src.DataTag()+"."+name, delta)
	}
}

// Read removes up to maxFrames of the oldest spooled frames and returns
// them channel-major. maxFrames <= 0 drains everything.
func (s *Spooler) Read(maxFrames int) (api.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	n := s.ring.Length() / s.frame
	if maxFrames > 0 && maxFrames < n {
		n = maxFrames
	}
	blk := api.NewBlock(s.channels, n)
	if n == 0 {
		return blk, nil
	}
	raw := make([]byte, n*s.frame)
	if _, err := s.ring.Read(raw); err != nil {
		return nil, api.Errorf(api.ErrCodeInternal, "spool read: %v", err)
	}
	off := 0
	for i := 0; i < n; i++ {
		for c := 0; c < s.channels; c++ {
			blk[c][i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw[off:])))
			off += 4
		}
	}
	return blk, nil
}

// Pending returns the number of spooled frames.
func (s *Spooler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Length() / s.frame
}

// Capacity returns the ring size in frames.
func (s *Spooler) Capacity() int {
	return s.ring.Capacity() / s.frame
}

// Dropped returns how many frames were evicted unread.
func (s *Spooler) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Run polls every interval until ctx is done or the spooler is shut down.
// Read overruns are logged and polling continues; other errors stop Run.
func (s *Spooler) Run(ctx context.Context, interval time.Duration) error {
	if s.cpu >= 0 {
		if err := affinity.Pin(s.cpu); err != nil {
			log.Printf("[spool] %s: %v", s.src.DataTag(), err)
		}
	}
	for {
		if _, err := s.Poll(); err != nil {
			switch {
			case errors.Is(err, ErrClosed):
				return nil
			case errors.Is(err, api.ErrReadOverrun):
				log.Printf("[spool] %s: %v", s.src.DataTag(), err)
			default:
				return err
			}
		}
		if err := s.clock.Sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// Shutdown discards spooled data and stops Run at its next poll.
func (s *Spooler) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.ring.Reset()
	return nil
}
