// File: ringbuf/descriptor.go
// Package ringbuf attaches to circular sample buffers on a device.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A buffer is described by its data tag plus companion scalar tags found
// by naming convention: <data>_i (index, required), _n (size), _sf (scale),
// _c (wrap counter) and _d (decimation). Missing optional tags degrade to
// defaults. All metadata is resolved once when the buffer is opened;
// cursors are re-queried on every transfer.

package ringbuf

import (
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/convert"
	"github.com/momentics/hioload-dsp/internal/cursor"
)

// Companion tag suffixes.
const (
	SuffixIndex      = "_i"
	SuffixSize       = "_n"
	SuffixScale      = "_sf"
	SuffixCycle      = "_c"
	SuffixDecimation = "_d"
)

// ring holds the descriptor and cursor state shared by both directions.
type ring struct {
	circuit api.Circuit
	dir     api.Direction

	dataTag       string
	indexTag      string
	sizeTag       string
	scaleTag      string
	cycleTag      string
	decimationTag string

	channels   int
	blockSize  int
	src, dst   api.SampleFormat
	comp       int
	sf         float64
	resolution float64
	dec        int
	fs         physic.Frequency
	slotsMax   int
	step       int

	cur     *cursor.Cursor
	total   int64
	log     *log.Logger
	metrics api.Metrics
}

// Open attaches to dataTag on c. DirectionRead returns a *Readable,
// DirectionWrite a *Writable.
func Open(c api.Circuit, dataTag string, dir api.Direction, opts ...Option) (api.Buffer, error) {
	if dir == api.DirectionWrite {
		return OpenWritable(c, dataTag, opts...)
	}
	return OpenReadable(c, dataTag, opts...)
}

func open(c api.Circuit, dataTag string, dir api.Direction, opts []Option) (*ring, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	r := &ring{
		circuit:   c,
		dir:       dir,
		dataTag:   dataTag,
		channels:  cfg.channels,
		blockSize: cfg.blockSize,
		src:       cfg.src,
		dst:       cfg.dst,
		log:       cfg.logger,
		metrics:   cfg.metrics,
	}

	info, ok := c.Tag(dataTag)
	if !ok {
		return nil, r.configErr("circuit does not have data tag %s", dataTag)
	}
	if info.Kind != api.TagBuffer {
		return nil, r.configErr("tag %s is not a buffer tag", dataTag)
	}
	if r.channels < 1 {
		return nil, r.configErr("channel count must be positive, got %d", r.channels)
	}
	if r.blockSize < 1 {
		return nil, r.configErr("block size must be positive, got %d", r.blockSize)
	}

	var err error
	if r.sizeTag, err = r.findTag(cfg.sizeTag, SuffixSize, false, "size"); err != nil {
		return nil, err
	}
	if r.indexTag, err = r.findTag(cfg.indexTag, SuffixIndex, true, "index"); err != nil {
		return nil, err
	}
	if r.scaleTag, err = r.findTag(cfg.scaleTag, SuffixScale, false, "scaling factor"); err != nil {
		return nil, err
	}
	if r.cycleTag, err = r.findTag(cfg.cycleTag, SuffixCycle, false, "cycles"); err != nil {
		return nil, err
	}
	if r.decimationTag, err = r.findTag(cfg.decimationTag, SuffixDecimation, false, "decimation"); err != nil {
		return nil, err
	}

	if r.sf, err = r.getTag(r.scaleTag, 1, "scaling factor"); err != nil {
		return nil, err
	}
	if cfg.decimation != 0 {
		if err := r.SetDecimation(cfg.decimation); err != nil {
			return nil, err
		}
	} else if err := r.updateDecimation(); err != nil {
		return nil, err
	}

	if r.comp, err = convert.Compression(r.src); err != nil {
		return nil, r.configErr("%v", err)
	}
	if _, err := convert.Compression(r.dst); err != nil {
		return nil, r.configErr("%v", err)
	}
	if r.resolution, err = convert.Resolution(r.src, r.sf); err != nil {
		return nil, r.configErr("%v", err)
	}
	if err := r.updateSize(); err != nil {
		return nil, err
	}
	r.log.Printf("[ringbuf] initialized %s: %v", r, r.Attributes())
	return r, nil
}

func (r *ring) configErr(format string, args ...any) error {
	return api.Errorf(api.ErrCodeConfiguration, r.dataTag+": "+format, args...).
		WithContext("tag", r.dataTag)
}

// findTag resolves a companion tag. An explicit override must exist.
func (r *ring) findTag(override, suffix string, required bool, what string) (string, error) {
	tag := override
	if tag == "" {
		tag = r.dataTag + suffix
	}
	if _, ok := r.circuit.Tag(tag); ok {
		r.log.Printf("[ringbuf] %s: found %s tag %s", r, what, tag)
		return tag, nil
	}
	if required || override != "" {
		return "", r.configErr("%s tag %s must be present in circuit", what, tag)
	}
	r.log.Printf("[ringbuf] %s: no tag found for %s", r, what)
	return "", nil
}

func (r *ring) getTag(tag string, def float64, what string) (float64, error) {
	if tag == "" {
		return def, nil
	}
	v, err := r.circuit.GetScalar(tag)
	if err != nil {
		return 0, fmt.Errorf("%s: reading %s: %w", r.dataTag, what, err)
	}
	return v, nil
}

func (r *ring) updateDecimation() error {
	v, err := r.getTag(r.decimationTag, 1, "decimation factor")
	if err != nil {
		return err
	}
	dec := int(v)
	if float64(dec) != v || dec < 1 {
		return r.configErr("invalid decimation factor %v", v)
	}
	r.dec = dec
	r.fs = r.circuit.SampleRate() / physic.Frequency(dec)
	return nil
}

// SetDecimation programs the decimation register and recomputes FS. Without
// a decimation tag only a factor of 1 is accepted.
func (r *ring) SetDecimation(n int) error {
	if r.decimationTag == "" {
		if n != 1 {
			return r.configErr("decimation tag must be available to set decimation factor to %d", n)
		}
		return r.updateDecimation()
	}
	if n < 1 {
		return r.configErr("invalid decimation factor %d", n)
	}
	if err := r.circuit.SetScalar(r.decimationTag, float64(n)); err != nil {
		return fmt.Errorf("%s: setting decimation: %w", r.dataTag, err)
	}
	return r.updateDecimation()
}

// updateSize re-reads capacity and rebuilds the cursor geometry.
func (r *ring) updateSize() error {
	slotsMax, err := r.circuit.RawLength(r.dataTag)
	if err != nil {
		return fmt.Errorf("%s: reading length: %w", r.dataTag, err)
	}
	slots := slotsMax
	if r.sizeTag != "" {
		v, err := r.getTag(r.sizeTag, float64(slotsMax), "size")
		if err != nil {
			return err
		}
		slots = int(v)
	}
	g := cursor.Geometry{Slots: slots, Compression: r.comp, Channels: r.channels}
	if err := g.Validate(); err != nil {
		return r.configErr("%v", err)
	}
	r.slotsMax = slotsMax
	if r.cur == nil {
		r.cur = cursor.New(g)
	} else {
		r.cur.Geometry = g
	}
	r.step = g.Step(r.blockSize)
	return nil
}

// SetSize programs the size register in slots.
func (r *ring) SetSize(slots int) error {
	if r.sizeTag == "" {
		return api.Errorf(api.ErrCodeUnsupported, "%s: buffer size cannot be configured", r.dataTag)
	}
	if slots < 1 || slots > r.slotsMax || slots%r.channels != 0 {
		return api.Errorf(api.ErrCodeInvalidArgument, "%s: unable to set buffer size to %d", r.dataTag, slots)
	}
	if err := r.circuit.SetScalar(r.sizeTag, float64(slots)); err != nil {
		return fmt.Errorf("%s: unable to set buffer size to %d: %w", r.dataTag, slots, err)
	}
	return r.updateSize()
}

// hwPosition samples the hardware cursor. With a cycle tag the index is
// read on both sides of the cycle so a wrap between reads is detected.
func (r *ring) hwPosition() (cursor.Position, error) {
	idx, err := r.circuit.GetScalar(r.indexTag)
	if err != nil {
		return cursor.Position{}, fmt.Errorf("%s: reading index: %w", r.dataTag, err)
	}
	if r.cycleTag == "" {
		return cursor.Untracked(int(idx)), nil
	}
	c1, err := r.circuit.GetScalar(r.cycleTag)
	if err != nil {
		return cursor.Position{}, fmt.Errorf("%s: reading cycle: %w", r.dataTag, err)
	}
	idx2, err := r.circuit.GetScalar(r.indexTag)
	if err != nil {
		return cursor.Position{}, fmt.Errorf("%s: reading index: %w", r.dataTag, err)
	}
	if idx2 < idx {
		// wrapped between the two index reads
		c2, err := r.circuit.GetScalar(r.cycleTag)
		if err != nil {
			return cursor.Position{}, fmt.Errorf("%s: reading cycle: %w", r.dataTag, err)
		}
		c1 = c2
	}
	return cursor.Tracked(int(idx2), int(c1)), nil
}

func (r *ring) addMetric(name string, delta int64) {
	if r.metrics != nil {
		r.metrics.Add(r.dataTag+"."+name, delta)
	}
}

// DataTag returns the data tag name.
func (r *ring) DataTag() string { return r.dataTag }

// Channels returns the interleaved channel count.
func (r *ring) Channels() int { return r.channels }

// BlockSize returns the transfer granularity.
func (r *ring) BlockSize() int { return r.blockSize }

// Compression returns the samples packed per slot.
func (r *ring) Compression() int { return r.comp }

// ScaleFactor returns the raw-to-physical divisor.
func (r *ring) ScaleFactor() float64 { return r.sf }

// Resolution returns the smallest representable physical step.
func (r *ring) Resolution() float64 { return r.resolution }

// Decimation returns the decimation factor.
func (r *ring) Decimation() int { return r.dec }

// FS returns the effective sample rate.
func (r *ring) FS() physic.Frequency { return r.fs }

// Size returns the current capacity in samples per channel.
func (r *ring) Size() int { return r.cur.Size() }

// SizeMax returns the maximum capacity in samples per channel.
func (r *ring) SizeMax() int { return r.slotsMax * r.comp / r.channels }

// SampleTime returns the duration one full buffer covers.
func (r *ring) SampleTime() time.Duration { return duration(r.Size(), r.fs) }

// MaxSampleTime returns the duration a buffer of SizeMax covers.
func (r *ring) MaxSampleTime() time.Duration { return duration(r.SizeMax(), r.fs) }

// Position returns the cumulative local position.
func (r *ring) Position() int { return r.cur.Local() }

// Reset rebinds the local position without touching the device.
func (r *ring) Reset(position int) {
	r.cur.Reset(position)
	r.log.Printf("[ringbuf] %s: reset to %d", r, r.cur.Local())
}

// Tracked reports whether the device exposes a wrap counter.
func (r *ring) Tracked() bool { return r.cycleTag != "" }

func (r *ring) index() (int, error) {
	pos, err := r.hwPosition()
	if err != nil {
		return 0, err
	}
	return r.cur.SamplePosition(cursor.Untracked(pos.Index)), nil
}

func (r *ring) cycle() (int, bool, error) {
	if r.cycleTag == "" {
		return 0, false, nil
	}
	v, err := r.circuit.GetScalar(r.cycleTag)
	if err != nil {
		return 0, true, fmt.Errorf("%s: reading cycle: %w", r.dataTag, err)
	}
	return int(v), true, nil
}

// Attributes returns the descriptor fields for diagnostics.
func (r *ring) Attributes() map[string]any {
	g := r.cur
	attrs := map[string]any{
		"data_tag":      r.dataTag,
		"idx_tag":       r.indexTag,
		"size_tag":      r.sizeTag,
		"sf_tag":        r.scaleTag,
		"cycle_tag":     r.cycleTag,
		"dec_tag":       r.decimationTag,
		"src_type":      r.src.String(),
		"dest_type":     r.dst.String(),
		"compression":   r.comp,
		"resolution":    r.resolution,
		"sf":            r.sf,
		"dec_factor":    r.dec,
		"fs":            r.fs.String(),
		"channels":      r.channels,
		"block_size":    r.blockSize,
		"n_slots_max":   r.slotsMax,
		"n_samples_max": r.slotsMax * r.comp,
		"size_max":      r.SizeMax(),
	}
	if g != nil {
		attrs["n_slots"] = g.Slots
		attrs["n_samples"] = g.Samples()
		attrs["size"] = g.Size()
		attrs["position"] = g.Local()
	}
	return attrs
}

func (r *ring) String() string { return r.dataTag + ":" + r.dir.String() }

func duration(samples int, fs physic.Frequency) time.Duration {
	if fs <= 0 {
		return 0
	}
	hz := float64(fs) / float64(physic.Hertz)
	return time.Duration(float64(samples) / hz * float64(time.Second))
}
