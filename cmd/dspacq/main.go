// File: cmd/dspacq/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Acquisition client: connects to a tag server, opens one readable buffer
// and runs triggered acquisitions, printing a per-channel summary of each
// trial. With -monitor it instead spools the buffer in the background and
// reports what accumulated.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/momentics/hioload-dsp/acquire"
	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/client"
	"github.com/momentics/hioload-dsp/facade"
	"github.com/momentics/hioload-dsp/ringbuf"
)

type options struct {
	url, tag          string
	channels, block   int
	decimation        int
	samples, trials   int
	poll, iti         time.Duration
	trigger, mode, hs string
	monitor           time.Duration
	format            api.SampleFormat
}

func main() {
	o := options{format: api.FormatI16}
	flag.StringVar(&o.url, "url", "ws://localhost:9000/tags", "tag server URL")
	flag.StringVar(&o.tag, "tag", "ai", "data tag of the buffer to read")
	flag.IntVar(&o.channels, "channels", 2, "interleaved channels")
	flag.IntVar(&o.block, "block", 1, "block size in samples")
	flag.IntVar(&o.decimation, "decimation", 0, "decimation factor (0 = leave as is)")
	flag.IntVar(&o.samples, "samples", 25000, "samples per trial")
	flag.IntVar(&o.trials, "trials", 1, "number of trials")
	flag.DurationVar(&o.poll, "poll", 100*time.Millisecond, "poll interval")
	flag.DurationVar(&o.iti, "iti", 0, "intertrial interval")
	flag.StringVar(&o.trigger, "trigger", "A", "trigger name: 1..9, A or B")
	flag.StringVar(&o.mode, "mode", "high", "bus trigger mode: pulse, high or low")
	flag.StringVar(&o.hs, "handshake", "", "stop each trial when this scalar becomes 1")
	flag.DurationVar(&o.monitor, "monitor", 0, "spool in the background for this long instead of acquiring")
	flag.TextVar(&o.format, "format", o.format, "device sample format (I8, I16, I32, F32)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, o)
	cancel()
	if err != nil {
		log.Fatalf("[dspacq] %v", err)
	}
}

func run(ctx context.Context, o options) error {
	id, err := parseTrigger(o.trigger, o.mode)
	if err != nil {
		return err
	}
	remote, err := client.Dial(ctx, o.url, nil)
	if err != nil {
		return err
	}
	cfg := facade.DefaultConfig()
	cfg.Trials = o.trials
	cfg.PollInterval = o.poll
	cfg.IntertrialInterval = o.iti
	circuit, err := facade.New(remote, cfg)
	if err != nil {
		remote.Close()
		return err
	}
	defer circuit.Shutdown()

	opts := []ringbuf.Option{
		ringbuf.WithChannels(o.channels),
		ringbuf.WithBlockSize(o.block),
		ringbuf.WithFormats(o.format, api.FormatF32),
	}
	if o.decimation > 0 {
		opts = append(opts, ringbuf.WithDecimation(o.decimation))
	}
	buf, err := circuit.Readable(o.tag, opts...)
	if err != nil {
		return fmt.Errorf("open %s: %w", o.tag, err)
	}
	fmt.Printf("%s fs=%s size=%d (%s)\n", buf, buf.FS(), buf.Size(), buf.SampleTime())

	if o.monitor > 0 {
		return runMonitor(ctx, circuit, buf, id, o.monitor)
	}

	var out acquire.Trials
	if o.hs != "" {
		out, err = circuit.Acquire(ctx, buf, id, acquire.HandshakeEquals(circuit, o.hs, 1))
	} else {
		out, err = circuit.AcquireSamples(ctx, buf, id, o.samples)
	}
	for i, blk := range out {
		report(fmt.Sprintf("trial %d", i), blk)
	}
	if err != nil {
		return err
	}
	fmt.Printf("stats: %v\n", circuit.GetControl().Stats())
	return nil
}

func runMonitor(ctx context.Context, circuit *facade.Circuit, buf *ringbuf.Readable, id api.TriggerID, d time.Duration) error {
	if err := circuit.Trigger(id); err != nil {
		return err
	}
	s, err := circuit.Monitor(buf)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
	blk, err := s.Read(0)
	if err != nil {
		return err
	}
	report("monitor", blk)
	fmt.Printf("dropped=%d\n", s.Dropped())
	return nil
}

func parseTrigger(name, mode string) (api.TriggerID, error) {
	name = strings.ToUpper(name)
	if name != "A" && name != "B" {
		id := api.TriggerID{Name: name}
		return id, id.Validate()
	}
	var m api.TriggerMode
	switch strings.ToLower(mode) {
	case "pulse":
		m = api.TriggerPulse
	case "high":
		m = api.TriggerHigh
	case "low":
		m = api.TriggerLow
	default:
		return api.TriggerID{}, fmt.Errorf("unknown trigger mode %q", mode)
	}
	return api.BusTrigger(name, m), nil
}

func report(label string, blk api.Block) {
	fmt.Printf("%s: %d samples\n", label, blk.Len())
	for ch, row := range blk {
		if len(row) == 0 {
			continue
		}
		lo, hi, sq := math.Inf(1), math.Inf(-1), 0.0
		for _, v := range row {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
			sq += v * v
		}
		fmt.Printf("  ch%d min=%.6g max=%.6g rms=%.6g\n", ch, lo, hi, math.Sqrt(sq/float64(len(row))))
	}
}
