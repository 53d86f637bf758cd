// File: convert/scale.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scaling between normalized samples and device raw values.

package convert

import "github.com/momentics/hioload-dsp/api"

// Float32Resolution is the decimal resolution of an IEEE single.
const Float32Resolution = 1e-6

// Resolution is the smallest physical step representable in format f when
// samples are stored scaled by sf.
func Resolution(f api.SampleFormat, sf float64) (float64, error) {
	if sf == 0 {
		return 0, api.NewError(api.ErrCodeConfiguration, "scaling factor must be non-zero")
	}
	if f.IsInteger() {
		return 1 / sf, nil
	}
	if sf != 1 {
		return 0, api.Errorf(api.ErrCodeUnsupported, "scaling factor %g not supported for %v", sf, f)
	}
	return Float32Resolution, nil
}

// ScalePolicy chooses the scaling factor that maps an expected data range
// onto a storage format.
type ScalePolicy interface {
	ScaleFactor(f api.SampleFormat, maxAbs float64) (float64, error)
}

// PeakScale maps the expected peak magnitude onto the format's full scale,
// optionally leaving Headroom (fraction of full scale, 0..1) unused. Float
// formats always get 1.
type PeakScale struct {
	Headroom float64
}

var _ ScalePolicy = PeakScale{}

// ScaleFactor implements ScalePolicy.
func (p PeakScale) ScaleFactor(f api.SampleFormat, maxAbs float64) (float64, error) {
	if !f.IsInteger() {
		return 1, nil
	}
	if maxAbs <= 0 {
		return 0, api.Errorf(api.ErrCodeInvalidArgument, "expected peak amplitude must be positive, got %g", maxAbs)
	}
	if p.Headroom < 0 || p.Headroom >= 1 {
		return 0, api.Errorf(api.ErrCodeInvalidArgument, "headroom %g outside [0, 1)", p.Headroom)
	}
	_, hi := Range(f)
	return hi * (1 - p.Headroom) / maxAbs, nil
}

// PeakOf returns the largest magnitude in b.
func PeakOf(b api.Block) float64 {
	var peak float64
	for _, ch := range b {
		for _, v := range ch {
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
	}
	return peak
}
