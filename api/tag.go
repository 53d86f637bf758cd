// File: api/tag.go
// Author: momentics <momentics@gmail.com>
//
// Device control channel contracts. A TagInterface performs scalar register
// access and raw buffer transfers; a Circuit adds tag enumeration and the
// device master clock rate.

package api

import "periph.io/x/conn/v3/physic"

// TagInterface is the slow, polled control channel to the device.
type TagInterface interface {
	// GetScalar reads a scalar register.
	GetScalar(tag string) (float64, error)

	// SetScalar writes a scalar register.
	SetScalar(tag string, value float64) error

	// RawLength reports the hardware capacity of a buffer tag in slots.
	RawLength(tag string) (int, error)

	// ReadRaw transfers length slots starting at offset (both in slots)
	// and returns the unpacked, de-interleaved raw values as channels x N,
	// N = length*compression/channels.
	ReadRaw(tag string, offset, length int, src, dst SampleFormat, channels int) (Block, error)

	// WriteRaw writes interleaved raw sample values starting at slot
	// offset. len(data) must be a whole number of slots.
	WriteRaw(tag string, offset int, data []float64) error

	// Trigger fires a named hardware trigger affecting every buffer on
	// the circuit.
	Trigger(id TriggerID) error
}

// Circuit is a loaded device program: tag access plus metadata lookup.
type Circuit interface {
	TagInterface

	// Tag looks up tag metadata by name.
	Tag(name string) (TagInfo, bool)

	// Tags enumerates all tags exposed by the program.
	Tags() []TagInfo

	// SampleRate is the device master clock rate.
	SampleRate() physic.Frequency
}
