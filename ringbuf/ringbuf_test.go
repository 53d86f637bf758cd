package ringbuf

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/control"
	"github.com/momentics/hioload-dsp/fake"
)

type rig struct {
	dev *fake.Device
	clk *fake.Clock
}

func newRig(t *testing.T, specs ...fake.BufferSpec) *rig {
	t.Helper()
	clk := fake.NewClock()
	dev := fake.NewDevice(clk, physic.KiloHertz)
	for _, s := range specs {
		if err := dev.AddBuffer(s); err != nil {
			t.Fatalf("add buffer %s: %v", s.Name, err)
		}
	}
	t.Cleanup(func() { dev.Close() })
	return &rig{dev: dev, clk: clk}
}

func (r *rig) start(t *testing.T) {
	t.Helper()
	if err := r.dev.Trigger(api.BusTrigger("A", api.TriggerHigh)); err != nil {
		t.Fatalf("trigger: %v", err)
	}
}

func ramp(n, from int) api.Block {
	b := api.NewBlock(1, n)
	for i := range b[0] {
		b[0][i] = float64(from+i)/4096 - 0.5
	}
	return b
}

func assertClose(t *testing.T, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length %d, want %d", len(got), len(want))
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > tol {
			t.Fatalf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestOpenConfigurationErrors(t *testing.T) {
	r := newRig(t,
		fake.BufferSpec{Name: "ai", Slots: 1001},
		fake.BufferSpec{Name: "noidx", Slots: 100, NoIndex: true},
	)
	r.dev.AddScalar("gain", 1)
	cases := []struct {
		name string
		tag  string
		opts []Option
	}{
		{"missing data tag", "nope", nil},
		{"scalar data tag", "gain", nil},
		{"missing index", "noidx", nil},
		{"slots not multiple of channels", "ai", []Option{WithChannels(2)}},
		{"decimation without tag", "ai", []Option{WithDecimation(2)}},
		{"missing override", "ai", []Option{WithCycleTag("ai_cycles")}},
		{"bad block size", "ai", []Option{WithBlockSize(0)}},
	}
	for _, c := range cases {
		_, err := OpenReadable(r.dev, c.tag, c.opts...)
		if !errors.Is(err, api.ErrConfiguration) {
			t.Errorf("%s: expected configuration error, got %v", c.name, err)
		}
	}
	if _, err := OpenReadable(r.dev, "ai", WithDecimation(1)); err != nil {
		t.Fatalf("decimation 1 without tag must be a no-op: %v", err)
	}
}

func TestSizeFollowsCompression(t *testing.T) {
	for _, f := range []api.SampleFormat{api.FormatI8, api.FormatI16, api.FormatF32} {
		for _, ch := range []int{1, 2, 4} {
			r := newRig(t, fake.BufferSpec{Name: "ai", Slots: 400, Format: f, Channels: ch})
			b, err := OpenReadable(r.dev, "ai", WithChannels(ch), WithFormats(f, api.FormatF32))
			if err != nil {
				t.Fatalf("%s/%d: %v", f, ch, err)
			}
			want := 400 * (4 / f.Bytes()) / ch
			if b.Size() != want || b.SizeMax() != want {
				t.Errorf("%s/%d: size=%d max=%d, want %d", f, ch, b.Size(), b.SizeMax(), want)
			}
		}
	}
}

func TestReadEmptyIsShaped(t *testing.T) {
	r := newRig(t, fake.BufferSpec{Name: "ai", Slots: 100, Channels: 2})
	b, err := OpenReadable(r.dev, "ai", WithChannels(2))
	if err != nil {
		t.Fatal(err)
	}
	blk, err := b.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if blk.Channels() != 2 || blk.Len() != 0 {
		t.Fatalf("got %dx%d, want 2x0", blk.Channels(), blk.Len())
	}
}

func TestIncrementalWriteRead(t *testing.T) {
	r := newRig(t,
		fake.BufferSpec{Name: "ao", Direction: api.DirectionWrite, Slots: 1000, Cycle: true},
		fake.BufferSpec{Name: "ai", Slots: 1000, Cycle: true},
	)
	if err := r.dev.Loopback("ao", "ai"); err != nil {
		t.Fatal(err)
	}
	w, err := OpenWritable(r.dev, "ao")
	if err != nil {
		t.Fatal(err)
	}
	rd, err := OpenReadable(r.dev, "ai")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(ramp(1000, 0)); err != nil {
		t.Fatalf("initial write: %v", err)
	}
	r.start(t)
	r.clk.Advance(500 * time.Millisecond)

	got, err := rd.Read()
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, got[0], ramp(500, 0)[0], 1e-6)

	if n, err := w.Available(); err != nil || n != 500 {
		t.Fatalf("available=%d err=%v", n, err)
	}
	if err := w.Write(ramp(500, 1000)); err != nil {
		t.Fatalf("second write: %v", err)
	}
	r.clk.Advance(time.Second)
	got, err = rd.Read()
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, got[0], ramp(1000, 500)[0], 1e-6)
	if w.TotalSamplesWritten() != 1500 || rd.TotalSamplesRead() != 1500 {
		t.Fatalf("totals written=%d read=%d", w.TotalSamplesWritten(), rd.TotalSamplesRead())
	}
}

func TestAvailableIsIdempotent(t *testing.T) {
	r := newRig(t, fake.BufferSpec{Name: "ai", Slots: 1000, Cycle: true})
	b, _ := OpenReadable(r.dev, "ai")
	r.start(t)
	r.clk.Advance(300 * time.Millisecond)
	a1, err1 := b.Available()
	a2, err2 := b.Available()
	if a1 != a2 || err1 != nil || err2 != nil || a1 != 300 {
		t.Fatalf("available %d/%v then %d/%v", a1, err1, a2, err2)
	}
}

func TestWriteTooSlow(t *testing.T) {
	r := newRig(t, fake.BufferSpec{Name: "ao", Direction: api.DirectionWrite, Slots: 1000, Cycle: true})
	w, _ := OpenWritable(r.dev, "ao")
	if err := w.Write(ramp(1000, 0)); err != nil {
		t.Fatal(err)
	}
	r.start(t)
	r.clk.Advance(1001 * time.Millisecond)
	err := w.Write(ramp(1000, 0))
	if !errors.Is(err, api.ErrWriteOverrun) {
		t.Fatalf("expected write overrun, got %v", err)
	}
	if !strings.Contains(err.Error(), "old samples were regenerated") {
		t.Fatalf("unexpected message %q", err)
	}
	if err := w.Write(ramp(1000, 0)); err != nil {
		t.Fatalf("buffer must stay usable after underrun: %v", err)
	}
}

func TestMissingInitialWrite(t *testing.T) {
	r := newRig(t, fake.BufferSpec{Name: "ao", Direction: api.DirectionWrite, Slots: 1000, Cycle: true})
	w, _ := OpenWritable(r.dev, "ao")
	r.start(t)
	r.clk.Advance(10 * time.Millisecond)
	if err := w.Write(ramp(1000, 0)); !errors.Is(err, api.ErrWriteOverrun) {
		t.Fatalf("expected write overrun, got %v", err)
	}
}

func TestWriteBeyondSpace(t *testing.T) {
	r := newRig(t, fake.BufferSpec{Name: "ao", Direction: api.DirectionWrite, Slots: 1000, Cycle: true})
	w, _ := OpenWritable(r.dev, "ao")
	if err := w.Write(ramp(1000, 0)); err != nil {
		t.Fatal(err)
	}
	err := w.Write(ramp(1, 0))
	if api.CodeOf(err) != api.ErrCodeWriteOverrun || !strings.Contains(err.Error(), "only 0 are available") {
		t.Fatalf("unexpected error %v", err)
	}
	if w.Position() != 1000 {
		t.Fatalf("failed write moved position to %d", w.Position())
	}
}

func TestUntrackedWriterFull(t *testing.T) {
	r := newRig(t, fake.BufferSpec{Name: "ao", Direction: api.DirectionWrite, Slots: 1000})
	w, err := OpenWritable(r.dev, "ao")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(ramp(1000, 0)); err != nil {
		t.Fatal(err)
	}
	if n, err := w.Available(); err != nil || n != 0 {
		t.Fatalf("available after filling ring: %d err=%v", n, err)
	}
	if err := w.Write(ramp(1, 5000)); !errors.Is(err, api.ErrWriteOverrun) {
		t.Fatalf("expected write overrun, got %v", err)
	}
	if w.Position() != 1000 {
		t.Fatalf("failed write moved position to %d", w.Position())
	}
	r.start(t)
	r.clk.Advance(300 * time.Millisecond)
	if n, err := w.Available(); err != nil || n != 300 {
		t.Fatalf("available after playback: %d err=%v", n, err)
	}
	if err := w.Write(ramp(300, 1000)); err != nil {
		t.Fatal(err)
	}
	if n, _ := w.Available(); n != 0 {
		t.Fatalf("available after refill: %d", n)
	}
}

func TestReadTooSlow(t *testing.T) {
	metrics := control.NewMetricsRegistry()
	r := newRig(t, fake.BufferSpec{Name: "ai", Slots: 1000, Cycle: true, Resizable: true})
	b, err := OpenReadable(r.dev, "ai", WithMetrics(metrics))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.SetSize(500); err != nil {
		t.Fatal(err)
	}
	r.start(t)
	r.clk.Advance(501 * time.Millisecond)
	blk, err := b.Read()
	if !errors.Is(err, api.ErrReadOverrun) {
		t.Fatalf("expected read overrun, got %v", err)
	}
	if blk.Len() != 0 {
		t.Fatalf("overrun returned %d samples", blk.Len())
	}
	r.clk.Advance(100 * time.Millisecond)
	blk, err = b.Read()
	if err != nil || blk.Len() != 100 {
		t.Fatalf("after realign got %d samples, err %v", blk.Len(), err)
	}
	snap := metrics.GetSnapshot()
	if snap["ai.read_overruns"] != int64(1) || snap["ai.samples_read"] != int64(100) {
		t.Fatalf("metrics %v", snap)
	}
}

func TestUntrackedCannotDetectLap(t *testing.T) {
	r := newRig(t, fake.BufferSpec{Name: "ai", Slots: 1000})
	b, _ := OpenReadable(r.dev, "ai")
	r.start(t)
	r.clk.Advance(1001 * time.Millisecond)
	blk, err := b.Read()
	if err != nil || blk.Len() != 1 {
		t.Fatalf("got %d samples, err %v", blk.Len(), err)
	}
	if _, ok, _ := b.WriteCycle(); ok {
		t.Fatal("untracked buffer reported a cycle")
	}
}

func TestDecimation(t *testing.T) {
	for _, dec := range []int{1, 2, 4, 8} {
		r := newRig(t, fake.BufferSpec{
			Name: "ai_dec", Slots: 1000, Decimation: 8, DecimationTag: true,
			Source: func(tick int64, _ int) float64 { return float64(tick) },
		})
		b, err := OpenReadable(r.dev, "ai_dec", WithDecimation(dec))
		if err != nil {
			t.Fatal(err)
		}
		if b.FS() != physic.KiloHertz/physic.Frequency(dec) {
			t.Fatalf("dec %d: fs=%s", dec, b.FS())
		}
		r.start(t)
		r.clk.Advance(80 * time.Millisecond)
		blk, err := b.Read()
		if err != nil {
			t.Fatal(err)
		}
		want := make([]float64, 80/dec)
		for i := range want {
			want[i] = float64(i * dec)
		}
		assertClose(t, blk[0], want, 0)
	}
}

func TestDefaultDecimationDetected(t *testing.T) {
	r := newRig(t, fake.BufferSpec{Name: "ai_dec", Slots: 1000, Decimation: 8, DecimationTag: true})
	b, err := OpenReadable(r.dev, "ai_dec")
	if err != nil {
		t.Fatal(err)
	}
	if b.Decimation() != 8 || b.FS() != 125*physic.Hertz {
		t.Fatalf("dec=%d fs=%s", b.Decimation(), b.FS())
	}
}

func TestPackedInterleavedWrap(t *testing.T) {
	r := newRig(t, fake.BufferSpec{
		Name: "ai", Slots: 100, Format: api.FormatI16, Channels: 2, Scale: 1000,
		Source: func(tick int64, ch int) float64 { return float64(tick)/100 + float64(ch) },
	})
	b, err := OpenReadable(r.dev, "ai", WithChannels(2), WithFormats(api.FormatI16, api.FormatF32))
	if err != nil {
		t.Fatal(err)
	}
	if b.Size() != 100 || b.Compression() != 2 || b.ScaleFactor() != 1000 || b.Resolution() != 1e-3 {
		t.Fatalf("descriptor %v", b.Attributes())
	}
	expect := func(from, n int) api.Block {
		out := api.NewBlock(2, n)
		for ch := range out {
			for i := range out[ch] {
				out[ch][i] = float64(from+i)/100 + float64(ch)
			}
		}
		return out
	}
	r.start(t)
	r.clk.Advance(50 * time.Millisecond)
	blk, err := b.Read()
	if err != nil {
		t.Fatal(err)
	}
	want := expect(0, 50)
	assertClose(t, blk[0], want[0], 1e-6)
	assertClose(t, blk[1], want[1], 1e-6)

	r.clk.Advance(80 * time.Millisecond)
	blk, err = b.Read()
	if err != nil {
		t.Fatal(err)
	}
	want = expect(50, 80)
	assertClose(t, blk[0], want[0], 1e-6)
	assertClose(t, blk[1], want[1], 1e-6)
}

func TestBlockSizeAlignment(t *testing.T) {
	r := newRig(t, fake.BufferSpec{Name: "ai", Slots: 1000, Cycle: true})
	b, _ := OpenReadable(r.dev, "ai", WithBlockSize(100))
	r.start(t)
	r.clk.Advance(250 * time.Millisecond)
	blk, err := b.Read()
	if err != nil || blk.Len() != 200 {
		t.Fatalf("got %d samples, err %v", blk.Len(), err)
	}
	if n, _ := b.Available(); n != 0 {
		t.Fatalf("partial block exposed: %d", n)
	}
	r.clk.Advance(50 * time.Millisecond)
	if n, _ := b.Available(); n != 100 {
		t.Fatalf("available=%d", n)
	}
}

func TestIndexAndCycle(t *testing.T) {
	r := newRig(t, fake.BufferSpec{Name: "ai", Slots: 1000, Cycle: true})
	b, _ := OpenReadable(r.dev, "ai")
	r.start(t)
	r.clk.Advance(1250 * time.Millisecond)
	idx, err := b.WriteIndex()
	if err != nil || idx != 250 {
		t.Fatalf("index=%d err=%v", idx, err)
	}
	c, ok, err := b.WriteCycle()
	if err != nil || !ok || c != 1 {
		t.Fatalf("cycle=%d ok=%v err=%v", c, ok, err)
	}
}

func TestSet(t *testing.T) {
	r := newRig(t,
		fake.BufferSpec{Name: "ao", Direction: api.DirectionWrite, Slots: 1000, Resizable: true},
		fake.BufferSpec{Name: "fixed", Direction: api.DirectionWrite, Slots: 1000},
		fake.BufferSpec{Name: "packed", Direction: api.DirectionWrite, Slots: 1000, Format: api.FormatI16},
	)
	w, err := OpenWritable(r.dev, "ao")
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Set(api.NewBlock(1, 0)); err != nil {
		t.Fatalf("empty set: %v", err)
	}
	if err := w.Set(ramp(400, 0)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if n, _ := r.dev.GetScalar("ao_n"); n != 400 || w.Size() != 400 {
		t.Fatalf("size register %v, size %d", n, w.Size())
	}
	if w.Position() != 400 || w.TotalSamplesWritten() != 400 {
		t.Fatalf("position %d total %d", w.Position(), w.TotalSamplesWritten())
	}
	if err := w.Set(ramp(1001, 0)); api.CodeOf(err) != api.ErrCodeInvalidArgument {
		t.Fatalf("oversized set: %v", err)
	}

	fixed, _ := OpenWritable(r.dev, "fixed")
	if err := fixed.Set(ramp(400, 0)); !errors.Is(err, api.ErrConfiguration) {
		t.Fatalf("fixed size set: %v", err)
	}
	if err := fixed.Set(ramp(1000, 0)); err != nil {
		t.Fatalf("exact fit set: %v", err)
	}

	packed, _ := OpenWritable(r.dev, "packed", WithFormats(api.FormatI16, api.FormatF32))
	if err := packed.Set(ramp(2000, 0)); !errors.Is(err, api.ErrUnsupported) {
		t.Fatalf("packed set: %v", err)
	}
}

func TestClear(t *testing.T) {
	r := newRig(t, fake.BufferSpec{Name: "ao", Direction: api.DirectionWrite, Slots: 64})
	w, _ := OpenWritable(r.dev, "ao")
	ones := api.NewBlock(1, 64)
	for i := range ones[0] {
		ones[0][i] = 1
	}
	if err := w.Write(ones); err != nil {
		t.Fatal(err)
	}
	if err := w.Clear(); err != nil {
		t.Fatal(err)
	}
	mem, _ := r.dev.Memory("ao")
	for i, v := range mem {
		if v != 0 {
			t.Fatalf("byte %d not cleared", i)
		}
	}
}

func TestOpenByDirection(t *testing.T) {
	r := newRig(t,
		fake.BufferSpec{Name: "ai", Slots: 1000},
		fake.BufferSpec{Name: "ao", Direction: api.DirectionWrite, Slots: 1000},
	)
	rb, err := Open(r.dev, "ai", api.DirectionRead)
	if err != nil || !rb.Capabilities().Has(api.CapRead) {
		t.Fatalf("reader %v %v", rb, err)
	}
	wb, err := Open(r.dev, "ao", api.DirectionWrite)
	if err != nil || !wb.Capabilities().Has(api.CapWrite) {
		t.Fatalf("writer %v %v", wb, err)
	}
	if wb.SampleTime() != time.Second {
		t.Fatalf("sample time %v", wb.SampleTime())
	}
	attrs := wb.(*Writable).Attributes()
	if attrs["data_tag"] != "ao" || attrs["size"] != 1000 || attrs["idx_tag"] != "ao_i" {
		t.Fatalf("attributes %v", attrs)
	}
}
