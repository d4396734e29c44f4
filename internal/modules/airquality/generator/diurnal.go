package generator

import (
	"math"
	"math/rand/v2"
	"time"

	"streetlight-server/internal/modules/airquality/types"
)

// Band assigns a baseline to the hours [FromHour, ToHour).
type Band struct {
	FromHour int
	ToHour   int
	Baseline float64
}

// DefaultBands model a city street: quiet nights, two rush hours, a calmer
// midday.
var DefaultBands = []Band{
	{FromHour: 0, ToHour: 5, Baseline: 280},   // night
	{FromHour: 5, ToHour: 7, Baseline: 320},   // early morning
	{FromHour: 7, ToHour: 10, Baseline: 480},  // morning rush
	{FromHour: 10, ToHour: 16, Baseline: 350}, // midday
	{FromHour: 16, ToHour: 20, Baseline: 500}, // evening rush
	{FromHour: 20, ToHour: 24, Baseline: 380}, // late evening
}

// EventKind is a pollution event that moves the target baseline.
type EventKind int

const (
	NoEvent EventKind = iota
	Spike
	Dip
	GradualIncrease
	GradualDecrease
)

func (k EventKind) String() string {
	switch k {
	case Spike:
		return "spike"
	case Dip:
		return "dip"
	case GradualIncrease:
		return "gradual-increase"
	case GradualDecrease:
		return "gradual-decrease"
	default:
		return "none"
	}
}

// EventWeight is one entry of the event distribution.
type EventWeight struct {
	Kind        EventKind
	Probability float64
	// Offset range applied to the time-of-day baseline.
	MinOffset float64
	MaxOffset float64
}

// DefaultEvents sum to 1.
var DefaultEvents = []EventWeight{
	{Kind: Spike, Probability: 0.15, MinOffset: 150, MaxOffset: 300},
	{Kind: Dip, Probability: 0.10, MinOffset: -150, MaxOffset: -80},
	{Kind: GradualIncrease, Probability: 0.15, MinOffset: 40, MaxOffset: 120},
	{Kind: GradualDecrease, Probability: 0.15, MinOffset: -120, MaxOffset: -40},
	{Kind: NoEvent, Probability: 0.45},
}

// DiurnalOptions configure the model. Amplitudes and probabilities are
// used as given, so zero switches a term off; start from
// DefaultDiurnalOptions to get the street calibration.
type DiurnalOptions struct {
	DeviceMax int
	Bands     []Band
	Events    []EventWeight

	// Ticks between events are drawn from [MinEventInterval, MaxEventInterval].
	MinEventInterval uint64
	MaxEventInterval uint64

	// Fraction of the gap to the target closed on every tick.
	SmoothingStep float64

	OscillationAmplitude float64
	OscillationFrequency float64 // radians per tick

	NoiseAmplitude        float64
	MicroSpikeProbability float64
	MicroSpikeAmplitude   float64

	EventRand *rand.Rand
	NoiseRand *rand.Rand
}

func DefaultDiurnalOptions() DiurnalOptions {
	return DiurnalOptions{
		DeviceMax:             types.DefaultDeviceMax,
		Bands:                 DefaultBands,
		Events:                DefaultEvents,
		MinEventInterval:      20,
		MaxEventInterval:      60,
		SmoothingStep:         0.05,
		OscillationAmplitude:  15,
		OscillationFrequency:  0.1,
		NoiseAmplitude:        10,
		MicroSpikeProbability: 0.05,
		MicroSpikeAmplitude:   40,
	}
}

// setDefaults fills only what the model cannot run without.
func (o *DiurnalOptions) setDefaults() {
	if o.DeviceMax <= 0 {
		o.DeviceMax = types.DefaultDeviceMax
	}
	if len(o.Bands) == 0 {
		o.Bands = DefaultBands
	}
	if len(o.Events) == 0 {
		o.Events = DefaultEvents
	}
	if o.MinEventInterval == 0 {
		o.MinEventInterval = 20
	}
	if o.MaxEventInterval < o.MinEventInterval {
		o.MaxEventInterval = max(60, o.MinEventInterval)
	}
	if o.SmoothingStep <= 0 || o.SmoothingStep > 1 {
		o.SmoothingStep = 0.05
	}
	if o.EventRand == nil {
		o.EventRand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if o.NoiseRand == nil {
		o.NoiseRand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
}

// Diurnal combines a time-of-day baseline, random pollution events, smoothing,
// a sinusoidal oscillation and noise.
type Diurnal struct {
	opts DiurnalOptions

	started      bool
	current      float64
	target       float64
	lastEvent    uint64
	nextInterval uint64
	lastKind     EventKind
}

func NewDiurnal(opts DiurnalOptions) *Diurnal {
	opts.setDefaults()
	return &Diurnal{opts: opts}
}

func (d *Diurnal) Produce(tick uint64, now time.Time) int {
	base := d.baselineAt(now.Hour())

	if !d.started || tick < d.lastEvent {
		d.started = true
		d.current = base
		d.target = base
		d.lastEvent = tick
		d.nextInterval = d.drawInterval()
	}

	if tick-d.lastEvent >= d.nextInterval {
		d.fireEvent(base)
		d.lastEvent = tick
		d.nextInterval = d.drawInterval()
	}

	d.current += (d.target - d.current) * d.opts.SmoothingStep

	osc := d.opts.OscillationAmplitude * math.Sin(d.opts.OscillationFrequency*float64(tick))

	noise := uniform(d.opts.NoiseRand, -d.opts.NoiseAmplitude, d.opts.NoiseAmplitude)
	if d.opts.NoiseRand.Float64() < d.opts.MicroSpikeProbability {
		noise += uniform(d.opts.NoiseRand, -d.opts.MicroSpikeAmplitude, d.opts.MicroSpikeAmplitude)
	}

	return clampInt(int(d.current+osc+noise), 0, d.opts.DeviceMax)
}

// Baseline is the smoothed baseline after the last Produce.
func (d *Diurnal) Baseline() float64 { return d.current }

// Target is the baseline the generator is converging towards.
func (d *Diurnal) Target() float64 { return d.target }

// LastEvent is the most recently drawn event.
func (d *Diurnal) LastEvent() EventKind { return d.lastKind }

func (d *Diurnal) baselineAt(hour int) float64 {
	for _, b := range d.opts.Bands {
		if hour >= b.FromHour && hour < b.ToHour {
			return b.Baseline
		}
	}
	return d.opts.Bands[len(d.opts.Bands)-1].Baseline
}

func (d *Diurnal) drawInterval() uint64 {
	span := d.opts.MaxEventInterval - d.opts.MinEventInterval
	return d.opts.MinEventInterval + d.opts.EventRand.Uint64N(span+1)
}

func (d *Diurnal) fireEvent(base float64) {
	kind, ev := d.drawEvent()
	d.lastKind = kind

	offset := 0.0
	if kind != NoEvent {
		offset = uniform(d.opts.EventRand, ev.MinOffset, ev.MaxOffset)
	}
	d.target = math.Max(0, math.Min(float64(d.opts.DeviceMax), base+offset))
}

func (d *Diurnal) drawEvent() (EventKind, EventWeight) {
	p := d.opts.EventRand.Float64()
	acc := 0.0
	for _, ev := range d.opts.Events {
		acc += ev.Probability
		if p < acc {
			return ev.Kind, ev
		}
	}
	return NoEvent, EventWeight{Kind: NoEvent}
}
