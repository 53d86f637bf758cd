// Package convert
// Author: momentics <momentics@gmail.com>
//
// Numeric representation helpers: device type strings, packing factors and
// the casts applied when moving samples between the device's native storage
// and the caller's representation.

package convert

import (
	"math"

	"github.com/momentics/hioload-dsp/api"
)

// NativeWordBytes is the width of one device slot.
const NativeWordBytes = 4

// ParseFormat converts a device type string ("I8", "I16", "I32", "F32").
func ParseFormat(s string) (api.SampleFormat, error) {
	var f api.SampleFormat
	if err := f.UnmarshalText([]byte(s)); err != nil {
		return api.FormatUnknown, api.NewError(api.ErrCodeUnsupported, err.Error())
	}
	return f, nil
}

// Compression returns how many samples of format f pack into one slot.
func Compression(f api.SampleFormat) (int, error) {
	n := f.Bytes()
	if n == 0 {
		return 0, api.Errorf(api.ErrCodeUnsupported, "unsupported sample format %v", f)
	}
	return NativeWordBytes / n, nil
}

// Range returns the representable [min, max] of f.
func Range(f api.SampleFormat) (lo, hi float64) {
	switch f {
	case api.FormatI8:
		return math.MinInt8, math.MaxInt8
	case api.FormatI16:
		return math.MinInt16, math.MaxInt16
	case api.FormatI32:
		return math.MinInt32, math.MaxInt32
	default:
		return -math.MaxFloat32, math.MaxFloat32
	}
}

// Quantize maps v onto the value grid of f: integer formats round to the
// nearest integer and saturate at the type limits, F32 rounds to single
// precision.
func Quantize(f api.SampleFormat, v float64) float64 {
	if math.IsNaN(v) {
		if f.IsInteger() {
			return 0
		}
		return v
	}
	lo, hi := Range(f)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	if f.IsInteger() {
		return math.Round(v)
	}
	return float64(float32(v))
}

// ToPhysical converts a raw device value into physical units for the
// destination format: the value is divided by the scaling factor and then
// cast to dst.
func ToPhysical(raw, scale float64, dst api.SampleFormat) float64 {
	return Cast(dst, raw/scale)
}

// ToRaw converts a physical value into the raw representation stored in a
// slot of format src.
func ToRaw(v, scale float64, src api.SampleFormat) float64 {
	return Quantize(src, v*scale)
}

// Cast converts v to the destination representation. Integer destinations
// truncate toward zero like a C cast.
func Cast(dst api.SampleFormat, v float64) float64 {
	if dst.IsInteger() {
		lo, hi := Range(dst)
		v = math.Trunc(v)
		return math.Max(lo, math.Min(hi, v))
	}
	return float64(float32(v))
}
