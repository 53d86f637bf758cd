// Package fake
// Author: momentics <momentics@gmail.com>
//
// Simulated signal-processing device. Time advances lazily: every call
// first runs the master clock up to the injected Clock's current time,
// playing write buffers and recording read buffers tick by tick. Memory
// layout follows real hardware: 32-bit slots with packed samples and
// interleaved channels, index/cycle/size/scale/decimation exposed as
// companion scalar tags named <buffer>_i, _c, _n, _sf and _d.

package fake

import (
	"math"
	"math/bits"
	"sort"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"

	"github.com/momentics/hioload-dsp/api"
	"github.com/momentics/hioload-dsp/convert"
	"github.com/momentics/hioload-dsp/internal/devmem"
)

// Companion tag suffixes.
const (
	SuffixIndex      = "_i"
	SuffixCycle      = "_c"
	SuffixSize       = "_n"
	SuffixScale      = "_sf"
	SuffixDecimation = "_d"
)

// BufferSpec describes one simulated buffer.
type BufferSpec struct {
	Name string
	// DirectionRead buffers are recorded by the device and read by the
	// host; DirectionWrite buffers are written by the host and played.
	Direction api.Direction
	Slots     int
	Format    api.SampleFormat // storage format, F32 when unset
	Channels  int              // 1 when unset
	// Decimation is the initial decimation factor, 1 when unset.
	Decimation int
	// Scale is exposed through <name>_sf when non-zero.
	Scale float64

	NoIndex       bool // omit <name>_i
	Cycle         bool // expose <name>_c
	Resizable     bool // expose <name>_n
	DecimationTag bool // expose <name>_d

	// Source produces the physical value recorded at master tick t for a
	// channel. Ignored when the buffer is a loopback target.
	Source func(t int64, channel int) float64
}

type buffer struct {
	spec  BufferSpec
	comp  int
	mem   *devmem.Region
	slots int
	dec   int
	scale float64
	count int64     // samples, all channels, since trigger
	out   []float64 // last played frame, physical units
	from  *buffer   // loopback source
}

func (b *buffer) nSamples() int64 { return int64(b.slots * b.comp) }

func (b *buffer) index() int {
	return int(b.count%b.nSamples()) / b.comp
}

func (b *buffer) cycle() int {
	return int(b.count / b.nSamples())
}

func (b *buffer) offset(s int) int {
	return s/b.comp*devmem.WordBytes + s%b.comp*b.spec.Format.Bytes()
}

func (b *buffer) load(f api.SampleFormat, s int) float64 {
	off := s/b.comp*devmem.WordBytes + s%b.comp*f.Bytes()
	switch f {
	case api.FormatI8:
		return float64(int8(b.mem.Bytes()[off]))
	case api.FormatI16:
		return float64(int16(b.mem.Uint16(off)))
	case api.FormatI32:
		return float64(int32(b.mem.Uint32(off)))
	default:
		return float64(b.mem.Float32(off))
	}
}

func (b *buffer) store(s int, v float64) {
	off := b.offset(s)
	v = convert.Quantize(b.spec.Format, v)
	switch b.spec.Format {
	case api.FormatI8:
		b.mem.Bytes()[off] = byte(int8(v))
	case api.FormatI16:
		b.mem.PutUint16(off, uint16(int16(v)))
	case api.FormatI32:
		b.mem.PutUint32(off, uint32(int32(v)))
	default:
		b.mem.PutFloat32(off, float32(v))
	}
}

type companion struct {
	buf    *buffer
	suffix string
}

type event struct {
	at    int64
	tag   string
	value float64
}

// Device is an in-memory api.Circuit.
type Device struct {
	mu        sync.Mutex
	clock     api.Clock
	rate      physic.Frequency
	scalars   map[string]float64
	buffers   map[string]*buffer
	order     []*buffer
	companion map[string]companion
	events    []event
	triggers  []api.TriggerID

	running bool
	start   time.Time
	tick    int64
}

var _ api.Circuit = (*Device)(nil)

// NewDevice returns a halted device clocked at rate.
func NewDevice(clock api.Clock, rate physic.Frequency) *Device {
	return &Device{
		clock:     clock,
		rate:      rate,
		scalars:   make(map[string]float64),
		buffers:   make(map[string]*buffer),
		companion: make(map[string]companion),
	}
}

// AddBuffer allocates a buffer and its companion tags.
func (d *Device) AddBuffer(spec BufferSpec) error {
	if spec.Format == api.FormatUnknown {
		spec.Format = api.FormatF32
	}
	if spec.Channels == 0 {
		spec.Channels = 1
	}
	if spec.Decimation == 0 {
		spec.Decimation = 1
	}
	comp, err := convert.Compression(spec.Format)
	if err != nil {
		return err
	}
	if spec.Slots <= 0 || spec.Channels < 0 || spec.Decimation < 0 {
		return api.Errorf(api.ErrCodeInvalidArgument, "invalid buffer spec for %s", spec.Name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.exists(spec.Name) {
		return api.Errorf(api.ErrCodeInvalidArgument, "tag %s already defined", spec.Name)
	}
	mem, err := devmem.Alloc(spec.Slots)
	if err != nil {
		return api.Errorf(api.ErrCodeDevice, "allocating %s: %v", spec.Name, err)
	}
	b := &buffer{
		spec:  spec,
		comp:  comp,
		mem:   mem,
		slots: spec.Slots,
		dec:   spec.Decimation,
		scale: spec.Scale,
		out:   make([]float64, spec.Channels),
	}
	if b.scale == 0 {
		b.scale = 1
	}
	d.buffers[spec.Name] = b
	d.order = append(d.order, b)
	// Played buffers run before recorded ones within a tick.
	sort.SliceStable(d.order, func(i, j int) bool {
		return d.order[i].spec.Direction == api.DirectionWrite && d.order[j].spec.Direction != api.DirectionWrite
	})
	add := func(on bool, suffix string) {
		if on {
			d.companion[spec.Name+suffix] = companion{buf: b, suffix: suffix}
		}
	}
	add(!spec.NoIndex, SuffixIndex)
	add(spec.Cycle, SuffixCycle)
	add(spec.Resizable, SuffixSize)
	add(spec.Scale != 0, SuffixScale)
	add(spec.DecimationTag, SuffixDecimation)
	return nil
}

// AddScalar defines a plain scalar register.
func (d *Device) AddScalar(name string, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.exists(name) {
		return api.Errorf(api.ErrCodeInvalidArgument, "tag %s already defined", name)
	}
	d.scalars[name] = value
	return nil
}

func (d *Device) exists(name string) bool {
	_, s := d.scalars[name]
	_, b := d.buffers[name]
	_, c := d.companion[name]
	return s || b || c
}

// Loopback routes the output of the played buffer play into the recorded
// buffer record, sample for sample.
func (d *Device) Loopback(play, record string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.buffers[play]
	if !ok || p.spec.Direction != api.DirectionWrite {
		return api.Errorf(api.ErrCodeNotFound, "no played buffer %s", play)
	}
	r, ok := d.buffers[record]
	if !ok || r.spec.Direction != api.DirectionRead {
		return api.Errorf(api.ErrCodeNotFound, "no recorded buffer %s", record)
	}
	r.from = p
	return nil
}

// SetAfter schedules a scalar update once ticks master ticks have elapsed
// since the most recent trigger.
func (d *Device) SetAfter(tag string, ticks int64, value float64) {
	d.mu.Lock()
	d.events = append(d.events, event{at: ticks, tag: tag, value: value})
	d.mu.Unlock()
}

// Halt stops the master clock at the current time.
func (d *Device) Halt() {
	d.mu.Lock()
	d.advance()
	d.running = false
	d.mu.Unlock()
}

// Ticks returns the master ticks processed since the last trigger.
func (d *Device) Ticks() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	return d.tick
}

// Memory returns a copy of a buffer's raw storage.
func (d *Device) Memory(tag string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[tag]
	if !ok {
		return nil, api.Errorf(api.ErrCodeNotFound, "no buffer tag %s", tag)
	}
	out := make([]byte, len(b.mem.Bytes()))
	copy(out, b.mem.Bytes())
	return out, nil
}

// Triggers returns every trigger fired so far.
func (d *Device) Triggers() []api.TriggerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]api.TriggerID, len(d.triggers))
	copy(out, d.triggers)
	return out
}

// Close releases buffer memory.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var first error
	for _, b := range d.buffers {
		if err := b.mem.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SampleRate returns the master clock rate.
func (d *Device) SampleRate() physic.Frequency { return d.rate }

// Tag looks up tag metadata.
func (d *Device) Tag(name string) (api.TagInfo, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tagInfo(name)
}

func (d *Device) tagInfo(name string) (api.TagInfo, bool) {
	if b, ok := d.buffers[name]; ok {
		return api.TagInfo{Name: name, Kind: api.TagBuffer, Size: b.spec.Slots}, true
	}
	if d.exists(name) {
		return api.TagInfo{Name: name, Kind: api.TagScalar, Size: 1}, true
	}
	return api.TagInfo{}, false
}

// Tags enumerates every tag sorted by name.
func (d *Device) Tags() []api.TagInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.scalars)+len(d.buffers)+len(d.companion))
	for n := range d.scalars {
		names = append(names, n)
	}
	for n := range d.buffers {
		names = append(names, n)
	}
	for n := range d.companion {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]api.TagInfo, 0, len(names))
	for _, n := range names {
		info, _ := d.tagInfo(n)
		out = append(out, info)
	}
	return out
}

// GetScalar reads a scalar or companion register.
func (d *Device) GetScalar(tag string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	if v, ok := d.scalars[tag]; ok {
		return v, nil
	}
	c, ok := d.companion[tag]
	if !ok {
		return 0, api.Errorf(api.ErrCodeNotFound, "no scalar tag %s", tag)
	}
	b := c.buf
	switch c.suffix {
	case SuffixIndex:
		return float64(b.index()), nil
	case SuffixCycle:
		return float64(b.cycle()), nil
	case SuffixSize:
		return float64(b.slots), nil
	case SuffixScale:
		return b.scale, nil
	default:
		return float64(b.dec), nil
	}
}

// SetScalar writes a scalar or companion register. Index and cycle
// registers are read-only.
func (d *Device) SetScalar(tag string, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	return d.set(tag, value)
}

func (d *Device) set(tag string, value float64) error {
	if _, ok := d.scalars[tag]; ok {
		d.scalars[tag] = value
		return nil
	}
	c, ok := d.companion[tag]
	if !ok {
		return api.Errorf(api.ErrCodeNotFound, "no scalar tag %s", tag)
	}
	b := c.buf
	n := int(value)
	switch c.suffix {
	case SuffixSize:
		if float64(n) != value || n < 1 || n > b.spec.Slots {
			return api.Errorf(api.ErrCodeInvalidArgument, "unable to set %s size to %v", b.spec.Name, value)
		}
		b.slots = n
	case SuffixDecimation:
		if float64(n) != value || n < 1 {
			return api.Errorf(api.ErrCodeInvalidArgument, "unable to set %s decimation to %v", b.spec.Name, value)
		}
		b.dec = n
	case SuffixScale:
		b.scale = value
	default:
		return api.Errorf(api.ErrCodeUnsupported, "tag %s is read-only", tag)
	}
	return nil
}

// RawLength reports a buffer's capacity in slots.
func (d *Device) RawLength(tag string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[tag]
	if !ok {
		return 0, api.Errorf(api.ErrCodeNotFound, "no buffer tag %s", tag)
	}
	return b.spec.Slots, nil
}

// ReadRaw decodes length slots starting at offset as src samples and
// de-interleaves them into channels rows cast to dst.
func (d *Device) ReadRaw(tag string, offset, length int, src, dst api.SampleFormat, channels int) (api.Block, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	b, ok := d.buffers[tag]
	if !ok {
		return nil, api.Errorf(api.ErrCodeNotFound, "no buffer tag %s", tag)
	}
	comp, err := convert.Compression(src)
	if err != nil {
		return nil, err
	}
	if offset < 0 || length < 0 || offset+length > b.spec.Slots || channels < 1 {
		return nil, api.Errorf(api.ErrCodeInvalidArgument, "read of %d slots at %d outside %s", length, offset, tag)
	}
	n := length * comp
	if n%channels != 0 {
		return nil, api.Errorf(api.ErrCodeInvalidArgument, "%d samples do not split across %d channels", n, channels)
	}
	out := api.NewBlock(channels, n/channels)
	base := offset * comp
	for k := 0; k < n; k++ {
		out[k%channels][k/channels] = convert.Cast(dst, b.load(src, base+k))
	}
	return out, nil
}

// WriteRaw stores interleaved raw values starting at slot offset.
func (d *Device) WriteRaw(tag string, offset int, data []float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	b, ok := d.buffers[tag]
	if !ok {
		return api.Errorf(api.ErrCodeNotFound, "no buffer tag %s", tag)
	}
	if len(data)%b.comp != 0 {
		return api.Errorf(api.ErrCodeInvalidArgument, "%d samples do not fill whole slots", len(data))
	}
	if offset < 0 || offset+len(data)/b.comp > b.spec.Slots {
		return api.Errorf(api.ErrCodeInvalidArgument, "write of %d samples at slot %d outside %s", len(data), offset, tag)
	}
	base := offset * b.comp
	for k, v := range data {
		b.store(base+k, v)
	}
	return nil
}

// Trigger fires a trigger. A bus trigger driven low halts the device;
// anything else restarts it from tick 0.
func (d *Device) Trigger(id api.TriggerID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.advance()
	d.triggers = append(d.triggers, id)
	if id.Mode == api.TriggerLow {
		d.running = false
		return nil
	}
	for _, b := range d.buffers {
		b.count = 0
		clear(b.out)
	}
	d.tick = 0
	d.start = d.clock.Now()
	d.running = true
	return nil
}

// advance runs the master clock up to the current time. Callers hold d.mu.
func (d *Device) advance() {
	if !d.running {
		return
	}
	target := ticks(d.clock.Now().Sub(d.start), d.rate)
	for ; d.tick < target; d.tick++ {
		for _, b := range d.order {
			if d.tick%int64(b.dec) != 0 {
				continue
			}
			if b.spec.Direction == api.DirectionWrite {
				d.play(b)
			} else {
				d.record(b, d.tick)
			}
		}
		d.fire(d.tick + 1)
	}
}

func (d *Device) play(b *buffer) {
	n := b.nSamples()
	for ch := range b.out {
		b.out[ch] = b.load(b.spec.Format, int(b.count%n)) / b.scale
		b.count++
	}
}

func (d *Device) record(b *buffer, t int64) {
	n := b.nSamples()
	for ch := 0; ch < b.spec.Channels; ch++ {
		var v float64
		switch {
		case b.from != nil:
			v = b.from.out[ch%len(b.from.out)]
		case b.spec.Source != nil:
			v = b.spec.Source(t, ch)
		}
		b.store(int(b.count%n), v*b.scale)
		b.count++
	}
}

func (d *Device) fire(elapsed int64) {
	kept := d.events[:0]
	for _, e := range d.events {
		if e.at <= elapsed {
			_ = d.set(e.tag, e.value)
			continue
		}
		kept = append(kept, e)
	}
	d.events = kept
}

// ticks converts elapsed wall time into whole master clock ticks.
func ticks(elapsed time.Duration, rate physic.Frequency) int64 {
	if elapsed <= 0 || rate <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(elapsed), uint64(rate))
	q, _ := bits.Div64(hi, lo, uint64(time.Second)*uint64(physic.Hertz))
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}
