// Package generator fabricates plausible raw MQ codes when no sensor is
// attached.
package generator

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// Generator produces one raw code per tick. Implementations are driven by a
// single producer goroutine and are not safe for concurrent use.
type Generator interface {
	Produce(tick uint64, now time.Time) int
}

// Model names accepted by New.
const (
	ModelDiurnal  = "diurnal"
	ModelConstant = "constant"
)

// New builds the named model. Seed 0 draws random seeds; any other seed
// makes the output reproducible.
func New(model string, deviceMax int, seed uint64) (Generator, error) {
	eventRand, noiseRand := sources(seed)
	switch model {
	case ModelDiurnal, "":
		opts := DefaultDiurnalOptions()
		opts.DeviceMax = deviceMax
		opts.EventRand, opts.NoiseRand = eventRand, noiseRand
		return NewDiurnal(opts), nil
	case ModelConstant:
		opts := DefaultConstantOptions()
		opts.DeviceMax = deviceMax
		opts.Rand = noiseRand
		return NewConstant(opts), nil
	default:
		return nil, fmt.Errorf("unknown generator model %q (allowed: %s, %s)", model, ModelDiurnal, ModelConstant)
	}
}

func sources(seed uint64) (events, noise *rand.Rand) {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
			rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, 0x6576656e7473)),
		rand.New(rand.NewPCG(seed, 0x6e6f697365))
}

func uniform(r *rand.Rand, a, b float64) float64 {
	return a + r.Float64()*(b-a)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
