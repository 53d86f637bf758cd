// File: ringbuf/options.go
// Package ringbuf defines functional options for opening device buffers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ringbuf

import (
	"io"
	"log"

	"github.com/momentics/hioload-dsp/api"
)

// Option customizes how a buffer is attached.
type Option func(*config)

type config struct {
	indexTag      string
	sizeTag       string
	scaleTag      string
	cycleTag      string
	decimationTag string
	channels      int
	blockSize     int
	src, dst      api.SampleFormat
	decimation    int // 0 leaves the device setting untouched
	logger        *log.Logger
	metrics       api.Metrics
}

func defaultConfig() config {
	return config{
		channels:  1,
		blockSize: 1,
		src:       api.FormatF32,
		dst:       api.FormatF32,
		logger:    log.New(io.Discard, "", 0),
	}
}

// WithIndexTag overrides the <data>_i index tag name.
func WithIndexTag(tag string) Option { return func(c *config) { c.indexTag = tag } }

// WithSizeTag overrides the <data>_n size tag name.
func WithSizeTag(tag string) Option { return func(c *config) { c.sizeTag = tag } }

// WithScaleTag overrides the <data>_sf scaling factor tag name.
func WithScaleTag(tag string) Option { return func(c *config) { c.scaleTag = tag } }

// WithCycleTag overrides the <data>_c wrap counter tag name.
func WithCycleTag(tag string) Option { return func(c *config) { c.cycleTag = tag } }

// WithDecimationTag overrides the <data>_d decimation tag name.
func WithDecimationTag(tag string) Option { return func(c *config) { c.decimationTag = tag } }

// WithChannels sets the interleaved channel count.
func WithChannels(n int) Option { return func(c *config) { c.channels = n } }

// WithBlockSize sets the transfer granularity in samples per channel.
func WithBlockSize(n int) Option { return func(c *config) { c.blockSize = n } }

// WithFormats sets the device-side (src) and host-side (dst) sample formats.
func WithFormats(src, dst api.SampleFormat) Option {
	return func(c *config) {
		c.src = src
		c.dst = dst
	}
}

// WithDecimation programs the decimation factor while attaching.
func WithDecimation(n int) Option { return func(c *config) { c.decimation = n } }

// WithLogger enables debug tracing of every transfer.
func WithLogger(l *log.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics reports transfer counters to m.
func WithMetrics(m api.Metrics) Option { return func(c *config) { c.metrics = m } }
