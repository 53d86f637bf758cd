// File: acquire/condition.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handshake conditions evaluated while an acquisition polls.

package acquire

import (
	"fmt"

	"github.com/momentics/hioload-dsp/api"
)

// Condition decides when a trial is complete.
type Condition interface {
	// Arm is called once per trial, before the trigger fires.
	Arm() error
	// Done reports whether the trial is complete after acquired samples
	// per channel.
	Done(acquired int) (bool, error)
}

type samples int

// Samples completes a trial once n samples per channel were acquired.
func Samples(n int) Condition { return samples(n) }

func (s samples) Arm() error { return nil }

func (s samples) Done(acquired int) (bool, error) { return acquired >= int(s), nil }

// handshake watches a scalar register.
type handshake struct {
	tags  api.TagInterface
	tag   string
	match func(v float64) bool
	snap  bool
	prev  float64
}

// HandshakeChanged completes a trial once tag differs from the value it
// held when the trial was armed.
func HandshakeChanged(tags api.TagInterface, tag string) Condition {
	h := &handshake{tags: tags, tag: tag, snap: true}
	h.match = func(v float64) bool { return v != h.prev }
	return h
}

// HandshakeEquals completes a trial once tag equals value.
func HandshakeEquals(tags api.TagInterface, tag string, value float64) Condition {
	return &handshake{tags: tags, tag: tag, match: func(v float64) bool { return v == value }}
}

// HandshakeFunc completes a trial once fn accepts the value of tag.
func HandshakeFunc(tags api.TagInterface, tag string, fn func(float64) bool) Condition {
	return &handshake{tags: tags, tag: tag, match: fn}
}

func (h *handshake) Arm() error {
	if !h.snap {
		return nil
	}
	v, err := h.tags.GetScalar(h.tag)
	if err != nil {
		return fmt.Errorf("handshake %s: %w", h.tag, err)
	}
	h.prev = v
	return nil
}

func (h *handshake) Done(int) (bool, error) {
	v, err := h.tags.GetScalar(h.tag)
	if err != nil {
		return false, fmt.Errorf("handshake %s: %w", h.tag, err)
	}
	return h.match(v), nil
}
