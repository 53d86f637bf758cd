package convert_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/convert"
)

func TestCompression(t *testing.T) {
	cases := []struct {
		in   api.SampleFormat
		want int
	}{
		{api.FormatF32, 1},
		{api.FormatI32, 1},
		{api.FormatI16, 2},
		{api.FormatI8, 4},
	}
	for _, c := range cases {
		got, err := convert.Compression(c.in)
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Errorf("Compression(%v) = %d, want %d", c.in, got, c.want)
		}
	}
	if _, err := convert.Compression(api.FormatUnknown); !errors.Is(err, api.ErrUnsupported) {
		t.Errorf("expected unsupported, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"I8", "i16", "I32", "F32"} {
		f, err := convert.ParseFormat(s)
		if err != nil {
			t.Fatalf("ParseFormat(%q): %v", s, err)
		}
		if f.String() != strings.ToUpper(s) {
			t.Errorf("round trip %q -> %v", s, f)
		}
	}
	if _, err := convert.ParseFormat("F64"); !errors.Is(err, api.ErrUnsupported) {
		t.Errorf("F64 should be unsupported, got %v", err)
	}
}

func TestQuantizeSaturates(t *testing.T) {
	cases := []struct {
		f    api.SampleFormat
		in   float64
		want float64
	}{
		{api.FormatI8, 200, 127},
		{api.FormatI8, -200, -128},
		{api.FormatI16, 1.6, 2},
		{api.FormatI16, -1.6, -2},
		{api.FormatI32, math.NaN(), 0},
		{api.FormatF32, 0.5, 0.5},
	}
	for _, c := range cases {
		if got := convert.Quantize(c.f, c.in); got != c.want {
			t.Errorf("Quantize(%v, %g) = %g, want %g", c.f, c.in, got, c.want)
		}
	}
}

func TestPhysicalRoundTrip(t *testing.T) {
	const sf = 1000
	for _, v := range []float64{0, 0.25, -0.5, 1.234, -3.2} {
		raw := convert.ToRaw(v, sf, api.FormatI16)
		back := convert.ToPhysical(raw, sf, api.FormatF32)
		if math.Abs(back-v) > 1.0/sf {
			t.Errorf("%g -> %g -> %g exceeds resolution", v, raw, back)
		}
	}
	if got := convert.ToPhysical(2999, 1000, api.FormatI32); got != 2 {
		t.Errorf("integer destination should truncate, got %g", got)
	}
}

func TestResolution(t *testing.T) {
	r, err := convert.Resolution(api.FormatI16, 1000)
	if err != nil || r != 0.001 {
		t.Errorf("Resolution(I16, 1000) = %g, %v", r, err)
	}
	r, err = convert.Resolution(api.FormatF32, 1)
	if err != nil || r != convert.Float32Resolution {
		t.Errorf("Resolution(F32, 1) = %g, %v", r, err)
	}
	if _, err := convert.Resolution(api.FormatF32, 10); !errors.Is(err, api.ErrUnsupported) {
		t.Errorf("scaled float should be unsupported, got %v", err)
	}
	if _, err := convert.Resolution(api.FormatI8, 0); !errors.Is(err, api.ErrConfiguration) {
		t.Errorf("zero scale should be a configuration error, got %v", err)
	}
}

func TestPeakScale(t *testing.T) {
	sf, err := convert.PeakScale{}.ScaleFactor(api.FormatI16, 2)
	if err != nil {
		t.Fatal(err)
	}
	if want := 32767.0 / 2; sf != want {
		t.Errorf("sf = %g, want %g", sf, want)
	}
	// full-scale input must not clip
	if raw := convert.ToRaw(-2, sf, api.FormatI16); raw < math.MinInt16 || raw > math.MaxInt16 {
		t.Errorf("peak clipped: %g", raw)
	}
	sf, _ = convert.PeakScale{Headroom: 0.5}.ScaleFactor(api.FormatI8, 1)
	if sf != 63.5 {
		t.Errorf("headroom sf = %g", sf)
	}
	if sf, _ := (convert.PeakScale{}).ScaleFactor(api.FormatF32, 10); sf != 1 {
		t.Errorf("float sf = %g", sf)
	}
	if _, err := (convert.PeakScale{}).ScaleFactor(api.FormatI8, 0); err == nil {
		t.Error("zero peak should fail")
	}
	if p := convert.PeakOf(api.Block{{1, -4}, {2}}); p != 4 {
		t.Errorf("PeakOf = %g", p)
	}
}
