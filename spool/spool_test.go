package spool

import (
	"context"
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/momentics/hioload-dsp/adapters"
	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/fake"
	"github.com/momentics/hioload-dsp/ringbuf"
)

func source(t int64, ch int) float64 { return float64(t)/1024 + float64(ch) }

func setup(t *testing.T, frames int, opts ...Option) (*Spooler, *fake.Clock) {
	t.Helper()
	clk := fake.NewClock()
	dev := fake.NewDevice(clk, physic.KiloHertz)
	t.Cleanup(func() { dev.Close() })
	err := dev.AddBuffer(fake.BufferSpec{Name: "ai", Slots: 200, Channels: 2, Cycle: true, Source: source})
	if err != nil {
		t.Fatal(err)
	}
	rd, err := ringbuf.OpenReadable(dev, "ai", ringbuf.WithChannels(2))
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(rd, frames, opts...)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Trigger(api.SoftTrigger(1)); err != nil {
		t.Fatal(err)
	}
	return s, clk
}

func checkFrames(t *testing.T, blk api.Block, first int) {
	t.Helper()
	if blk.Channels() != 2 {
		t.Fatalf("channels %d", blk.Channels())
	}
	for i := 0; i < blk.Len(); i++ {
		for ch := 0; ch < 2; ch++ {
			if want := source(int64(first+i), ch); blk[ch][i] != want {
				t.Fatalf("frame %d ch %d: %v, want %v", i, ch, blk[ch][i], want)
			}
		}
	}
}

func TestPollAndRead(t *testing.T) {
	s, clk := setup(t, 100)
	clk.Advance(40 * time.Millisecond)
	n, err := s.Poll()
	if err != nil || n != 40 {
		t.Fatalf("poll %d %v", n, err)
	}
	blk, err := s.Read(10)
	if err != nil || blk.Len() != 10 {
		t.Fatalf("read %d %v", blk.Len(), err)
	}
	checkFrames(t, blk, 0)
	if s.Pending() != 30 {
		t.Fatalf("pending %d", s.Pending())
	}
	blk, _ = s.Read(0)
	checkFrames(t, blk, 10)
	if blk.Len() != 30 || s.Pending() != 0 {
		t.Fatalf("drain %d, pending %d", blk.Len(), s.Pending())
	}
	if blk, _ := s.Read(5); blk.Len() != 0 || blk.Channels() != 2 {
		t.Fatalf("empty read %dx%d", blk.Channels(), blk.Len())
	}
}

func TestOldestFramesAreDropped(t *testing.T) {
	s, clk := setup(t, 50)
	for i := 0; i < 2; i++ {
		clk.Advance(40 * time.Millisecond)
		if _, err := s.Poll(); err != nil {
			t.Fatal(err)
		}
	}
	if s.Pending() != 50 || s.Dropped() != 30 {
		t.Fatalf("pending %d dropped %d", s.Pending(), s.Dropped())
	}
	blk, _ := s.Read(0)
	checkFrames(t, blk, 30)
}

func TestSinglePollLargerThanRing(t *testing.T) {
	s, clk := setup(t, 10)
	clk.Advance(60 * time.Millisecond)
	if _, err := s.Poll(); err != nil {
		t.Fatal(err)
	}
	if s.Pending() != 10 || s.Dropped() != 50 || s.Capacity() != 10 {
		t.Fatalf("pending %d dropped %d cap %d", s.Pending(), s.Dropped(), s.Capacity())
	}
	blk, _ := s.Read(0)
	checkFrames(t, blk, 50)
}

func TestOverrunKeepsSpooling(t *testing.T) {
	s, clk := setup(t, 100)
	clk.Advance(250 * time.Millisecond)
	if _, err := s.Poll(); !errors.Is(err, api.ErrReadOverrun) {
		t.Fatalf("expected overrun, got %v", err)
	}
	clk.Advance(20 * time.Millisecond)
	n, err := s.Poll()
	if err != nil || n != 20 {
		t.Fatalf("poll after overrun %d %v", n, err)
	}
}

type stopAfter struct {
	*fake.Clock
	n      int
	cancel context.CancelFunc
}

func (c *stopAfter) Sleep(ctx context.Context, d time.Duration) error {
	err := c.Clock.Sleep(ctx, d)
	if c.n--; c.n == 0 {
		c.cancel()
	}
	return err
}

func TestRunMetricsAndShutdown(t *testing.T) {
	ctrl := adapters.NewControlAdapter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk := &stopAfter{n: 5, cancel: cancel}
	s, fc := setup(t, 100, WithMetrics(ctrl), WithClock(clk))
	clk.Clock = fc

	if err := s.Run(ctx, 10*time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("run: %v", err)
	}
	if s.Pending() != 50 {
		t.Fatalf("pending %d", s.Pending())
	}
	if got := ctrl.Stats()["spool.ai.frames"]; got != int64(50) {
		t.Fatalf("frames metric %v", got)
	}

	if err := s.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Poll(); !errors.Is(err, ErrClosed) {
		t.Fatalf("poll after shutdown: %v", err)
	}
	if err := s.Run(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("run after shutdown: %v", err)
	}
}

func TestNewRejectsEmptyRing(t *testing.T) {
	if _, err := New(nil, 0); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
