package client

import (
	"context"
	"errors"
	"math"
	"net/http/httptest"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/fake"
	"github.com/momentics/hioload-dsp/ringbuf"
	"github.com/momentics/hioload-dsp/server"
)

type rig struct {
	dev    *fake.Device
	clk    *fake.Clock
	remote *Remote
}

func newRig(t *testing.T) *rig {
	t.Helper()
	clk := fake.NewClock()
	dev := fake.NewDevice(clk, physic.KiloHertz)
	for _, s := range []fake.BufferSpec{
		{Name: "ao", Direction: api.DirectionWrite, Slots: 1000, Cycle: true},
		{Name: "ai", Slots: 1000, Cycle: true},
	} {
		if err := dev.AddBuffer(s); err != nil {
			t.Fatal(err)
		}
	}
	if err := dev.Loopback("ao", "ai"); err != nil {
		t.Fatal(err)
	}
	dev.AddScalar("gain", 1.5)

	srv := server.NewServer(dev, nil)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Shutdown()
		ts.Close()
		dev.Close()
	})

	url := "ws" + ts.URL[len("http"):] + "/tags"
	r, err := Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return &rig{dev: dev, clk: clk, remote: r}
}

func TestMetadataIsCached(t *testing.T) {
	r := newRig(t)
	if r.remote.SampleRate() != physic.KiloHertz {
		t.Fatalf("rate %s", r.remote.SampleRate())
	}
	info, ok := r.remote.Tag("ai")
	if !ok || info.Kind != api.TagBuffer || info.Size != 1000 {
		t.Fatalf("ai: %+v %v", info, ok)
	}
	if _, ok := r.remote.Tag("ai_i"); !ok {
		t.Fatal("companion index tag missing")
	}
	if len(r.remote.Tags()) != len(r.dev.Tags()) {
		t.Fatalf("tags %d, device %d", len(r.remote.Tags()), len(r.dev.Tags()))
	}
}

func TestScalarsAndErrors(t *testing.T) {
	r := newRig(t)
	v, err := r.remote.GetScalar("gain")
	if err != nil || v != 1.5 {
		t.Fatalf("gain %v %v", v, err)
	}
	if err := r.remote.SetScalar("gain", 4); err != nil {
		t.Fatal(err)
	}
	if v, _ := r.dev.GetScalar("gain"); v != 4 {
		t.Fatalf("device gain %v", v)
	}
	if _, err := r.remote.GetScalar("missing"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := r.remote.SetScalar("ai_i", 3); !errors.Is(err, api.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if err := r.remote.Trigger(api.TriggerID{Name: "Z"}); !errors.Is(err, api.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestBuffersOverRemote(t *testing.T) {
	r := newRig(t)
	w, err := ringbuf.OpenWritable(r.remote, "ao")
	if err != nil {
		t.Fatal(err)
	}
	rd, err := ringbuf.OpenReadable(r.remote, "ai")
	if err != nil {
		t.Fatal(err)
	}
	out := api.NewBlock(1, 1000)
	for i := range out[0] {
		out[0][i] = float64(i)/2048 - 0.25
	}
	if err := w.Write(out); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := r.remote.Trigger(api.BusTrigger("A", api.TriggerHigh)); err != nil {
		t.Fatal(err)
	}
	r.clk.Advance(600 * time.Millisecond)

	got, err := rd.Read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Len() != 600 {
		t.Fatalf("read %d samples, want 600", got.Len())
	}
	for i, v := range got[0] {
		if math.Abs(v-out[0][i]) > 1e-6 {
			t.Fatalf("sample %d: %v, want %v", i, v, out[0][i])
		}
	}

	empty, err := rd.Read()
	if err != nil || empty.Channels() != 1 || empty.Len() != 0 {
		t.Fatalf("empty read %dx%d %v", empty.Channels(), empty.Len(), err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r := newRig(t)
	if err := r.remote.Close(); err != nil {
		t.Fatal(err)
	}
	if err := r.remote.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := r.remote.GetScalar("gain"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDialFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HandshakeTimeout = 200 * time.Millisecond
	cfg.ReconnectMax = 1
	cfg.ReconnectDelay = 10 * time.Millisecond
	if _, err := Dial(context.Background(), "ws://127.0.0.1:1/tags", cfg); err == nil {
		t.Fatal("expected dial error")
	}
}
