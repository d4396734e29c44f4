// Package gas derives ten pollutant estimates from a single MQ-135 reading.
//
// The model is a heuristic simulation, not a calibrated instrument curve:
// the normalized reading is scaled by a pollution factor (sensor intensity)
// or a time factor (traffic pattern), jittered, then clamped and rounded per
// pollutant.
package gas

import (
	"math"
	"math/rand/v2"

	"streetlight-server/internal/modules/airquality/types"
)

const (
	peakTimeFactor    = 1.3
	middayTimeFactor  = 0.8
	defaultTimeFactor = 1.0

	minPollutionFactor = 0.3
	maxPollutionFactor = 2.0
)

// Model is not safe for concurrent use: it owns its noise source.
type Model struct {
	deviceMax int
	rng       *rand.Rand
}

// NewModel returns a model normalizing against deviceMax. A nil rng is
// replaced with a randomly seeded source.
func NewModel(deviceMax int, rng *rand.Rand) *Model {
	if deviceMax <= 0 {
		deviceMax = types.DefaultDeviceMax
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Model{deviceMax: deviceMax, rng: rng}
}

// TimeFactor weights traffic-driven gases by hour of day: morning and
// evening rush hours run hotter, early afternoon runs cleaner.
func TimeFactor(hour int) float64 {
	switch {
	case (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 19):
		return peakTimeFactor
	case hour >= 12 && hour <= 15:
		return middayTimeFactor
	default:
		return defaultTimeFactor
	}
}

// PollutionFactor scales sensor-driven gases with reading intensity.
func PollutionFactor(ratio float64) float64 {
	return clamp(ratio*2.5, minPollutionFactor, maxPollutionFactor)
}

// Decompose returns the pollutant estimates for raw at the given hour.
func (m *Model) Decompose(raw int, hour int) types.GasLevels {
	ratio := float64(raw) / float64(m.deviceMax)
	pf := PollutionFactor(ratio)
	tf := TimeFactor(hour)

	return types.GasLevels{
		CO2:     m.level(400+ratio*200*tf, 20, 400, 700, 1),
		CO:      m.level(0.1+ratio*5*tf, 0.5, 0.1, 8, 2),
		NO2:     m.level(0.02+ratio*0.15*tf, 0.01, 0.02, 0.25, 3),
		NH3:     m.level(0.01+ratio*2*pf, 0.2, 0.01, 3, 2),
		Benzene: m.level(0.005+ratio*0.05*pf, 0.005, 0.005, 0.08, 3),
		Toluene: m.level(0.01+ratio*0.08*pf, 0.01, 0.01, 0.12, 3),
		Alcohol: m.level(ratio*3*pf, 0.3, 0, 4, 2),
		Acetone: m.level(0.02+ratio*0.15*pf, 0.02, 0.02, 0.2, 3),
		H2S:     m.level(ratio*0.5*pf, 0.05, 0, 0.6, 3),
		Smoke:   m.level(12+ratio*35*tf, 3, 10, 60, 1),
	}
}

// level adds U(-jitter, jitter) to v, clamps to [lo, hi] and rounds.
func (m *Model) level(v, jitter, lo, hi float64, decimals int) float64 {
	v += m.uniform(-jitter, jitter)
	return round(clamp(v, lo, hi), decimals)
}

func (m *Model) uniform(a, b float64) float64 {
	return a + m.rng.Float64()*(b-a)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
