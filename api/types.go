// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations: sample formats, tag metadata,
// trigger identifiers and transfer directions.

package api

import (
	"fmt"
	"strings"
)

// SampleFormat enumerates the element representations understood by the
// device control interface.
type SampleFormat int

const (
	FormatUnknown SampleFormat = iota
	FormatI8
	FormatI16
	FormatI32
	FormatF32
)

// String returns the device type string (I8, I16, I32, F32).
func (f SampleFormat) String() string {
	switch f {
	case FormatI8:
		return "I8"
	case FormatI16:
		return "I16"
	case FormatI32:
		return "I32"
	case FormatF32:
		return "F32"
	default:
		return "unknown"
	}
}

// Bytes returns the element width in bytes, 0 for FormatUnknown.
func (f SampleFormat) Bytes() int {
	switch f {
	case FormatI8:
		return 1
	case FormatI16:
		return 2
	case FormatI32, FormatF32:
		return 4
	default:
		return 0
	}
}

// IsInteger reports whether f is an integer representation.
func (f SampleFormat) IsInteger() bool {
	return f == FormatI8 || f == FormatI16 || f == FormatI32
}

// MarshalText encodes the format as its type string.
func (f SampleFormat) MarshalText() ([]byte, error) {
	if f == FormatUnknown {
		return nil, fmt.Errorf("cannot marshal unknown sample format")
	}
	return []byte(f.String()), nil
}

// UnmarshalText decodes a type string such as "I16" or "f32".
func (f *SampleFormat) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "I8":
		*f = FormatI8
	case "I16":
		*f = FormatI16
	case "I32":
		*f = FormatI32
	case "F32":
		*f = FormatF32
	default:
		return fmt.Errorf("unsupported sample format %q", string(b))
	}
	return nil
}

// TagKind distinguishes scalar registers from buffer regions.
type TagKind int

const (
	TagScalar TagKind = iota
	TagBuffer
)

func (k TagKind) String() string {
	if k == TagBuffer {
		return "buffer"
	}
	return "scalar"
}

// TagInfo is the metadata the circuit reports for one tag.
type TagInfo struct {
	Name string  `json:"name"`
	Kind TagKind `json:"kind"`
	Size int     `json:"size"` // slots for buffers, 1 for scalars
}

// TriggerMode selects how a bus trigger line is driven.
type TriggerMode int

const (
	TriggerPulse TriggerMode = iota
	TriggerHigh
	TriggerLow
)

func (m TriggerMode) String() string {
	switch m {
	case TriggerHigh:
		return "high"
	case TriggerLow:
		return "low"
	default:
		return "pulse"
	}
}

// TriggerID names a hardware trigger. Soft triggers are "1".."9"; bus
// triggers are "A" and "B" and additionally accept a mode.
type TriggerID struct {
	Name string      `json:"name"`
	Mode TriggerMode `json:"mode"`
}

// SoftTrigger returns the soft trigger n (1..9).
func SoftTrigger(n int) TriggerID {
	return TriggerID{Name: fmt.Sprint(n)}
}

// BusTrigger returns bus trigger "A" or "B" driven with mode.
func BusTrigger(name string, mode TriggerMode) TriggerID {
	return TriggerID{Name: strings.ToUpper(name), Mode: mode}
}

// Validate checks the trigger name/mode combination.
func (t TriggerID) Validate() error {
	switch t.Name {
	case "A", "B":
		return nil
	case "1", "2", "3", "4", "5", "6", "7", "8", "9":
		if t.Mode != TriggerPulse {
			return Errorf(ErrCodeInvalidArgument, "unsupported trigger mode %s %s", t.Name, t.Mode)
		}
		return nil
	default:
		return Errorf(ErrCodeInvalidArgument, "unsupported trigger %q", t.Name)
	}
}

func (t TriggerID) String() string {
	if t.Name == "A" || t.Name == "B" {
		return t.Name + ":" + t.Mode.String()
	}
	return t.Name
}

// Direction is the host-side transfer direction of a buffer.
type Direction int

const (
	DirectionRead Direction = iota
	DirectionWrite
)

func (d Direction) String() string {
	if d == DirectionWrite {
		return "w"
	}
	return "r"
}
