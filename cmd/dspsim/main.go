// File: cmd/dspsim/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Simulated device served over WebSocket. Exposes a stereo sine recording
// "ai", a played buffer "ao" looped back into "loop", and a "trial_done"
// handshake scalar that flips to 1 one second after every trigger.

package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/momentics/hioload-dsp/adapters"
	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/clock"
	"github.com/momentics/hioload-dsp/control"
	"github.com/momentics/hioload-dsp/fake"
	"github.com/momentics/hioload-dsp/protocol"
	"github.com/momentics/hioload-dsp/server"
)

func main() {
	addr := flag.String("addr", ":9000", "WebSocket listen address")
	slots := flag.Int("slots", 100000, "slots per buffer")
	tone := flag.Float64("tone", 440, "test tone frequency in Hz")
	verbose := flag.Bool("v", false, "log failed requests")
	rate := 25 * physic.KiloHertz
	flag.Var(&rate, "rate", "device master clock rate")
	flag.Parse()

	dev := fake.NewDevice(clock.System{}, rate)
	hz := float64(rate) / float64(physic.Hertz)
	sine := func(t int64, ch int) float64 {
		return math.Sin(2*math.Pi*(*tone)*float64(t)/hz + float64(ch)*math.Pi/2)
	}
	must(dev.AddBuffer(fake.BufferSpec{
		Name: "ai", Slots: *slots, Channels: 2, Format: api.FormatI16, Scale: 32767,
		Cycle: true, Resizable: true, DecimationTag: true, Source: sine,
	}))
	must(dev.AddBuffer(fake.BufferSpec{Name: "ao", Direction: api.DirectionWrite, Slots: *slots, Cycle: true}))
	must(dev.AddBuffer(fake.BufferSpec{Name: "loop", Slots: *slots, Cycle: true}))
	must(dev.Loopback("ao", "loop"))
	must(dev.AddScalar("trial_done", 0))
	defer dev.Close()

	cfg := server.DefaultConfig()
	cfg.ListenAddr = *addr
	opts := []server.ServerOption{server.WithMiddleware(handshake(dev, int64(hz)))}
	if *verbose {
		opts = append(opts, server.WithMiddleware(adapters.LoggingMiddleware))
	}
	srv := server.NewServer(dev, cfg, opts...)
	srv.GetControl().OnReload(func() {
		log.Printf("[dspsim] config reloaded: %v", srv.GetControl().GetConfig())
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		for s := range sig {
			if s == syscall.SIGHUP {
				control.TriggerHotReload()
				continue
			}
			log.Println("[dspsim] shutting down")
			if err := srv.Shutdown(); err != nil {
				log.Printf("[dspsim] shutdown: %v", err)
			}
			return
		}
	}()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			fmt.Printf("ticks=%d stats=%v\n", dev.Ticks(), srv.GetControl().Stats())
		}
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("[dspsim] %v", err)
	}
}

// handshake rearms trial_done on every trigger request.
func handshake(dev *fake.Device, after int64) func(api.Handler) api.Handler {
	return func(next api.Handler) api.Handler {
		return adapters.HandlerFunc(func(data any) (any, error) {
			out, err := next.Handle(data)
			if req, ok := data.(*protocol.Request); ok && req.Op == protocol.OpTrigger && err == nil {
				dev.SetScalar("trial_done", 0)
				dev.SetAfter("trial_done", after, 1)
			}
			return out, err
		})
	}
}

func must(err error) {
	if err != nil {
		log.Fatalf("[dspsim] %v", err)
	}
}
