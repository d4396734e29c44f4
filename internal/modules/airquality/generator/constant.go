package generator

import (
	"math/rand/v2"
	"time"

	"streetlight-server/internal/modules/airquality/types"
)

// ConstantOptions configure a flat signal with uniform noise, clamped to
// [Lo, Hi]. Values are used as given; a zero Spread yields Center exactly.
type ConstantOptions struct {
	DeviceMax int
	Center    float64
	Spread    float64
	Lo        float64
	Hi        float64
	Rand      *rand.Rand
}

// DefaultConstantOptions keep readings inside the Moderate tier.
func DefaultConstantOptions() ConstantOptions {
	return ConstantOptions{
		DeviceMax: types.DefaultDeviceMax,
		Center:    350,
		Spread:    80,
		Lo:        250,
		Hi:        450,
	}
}

type Constant struct {
	opts ConstantOptions
}

func NewConstant(opts ConstantOptions) *Constant {
	if opts.DeviceMax <= 0 {
		opts.DeviceMax = types.DefaultDeviceMax
	}
	if opts.Hi < opts.Lo {
		opts.Lo, opts.Hi = 0, float64(opts.DeviceMax)
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Constant{opts: opts}
}

func (c *Constant) Produce(uint64, time.Time) int {
	v := int(c.opts.Center + uniform(c.opts.Rand, -c.opts.Spread, c.opts.Spread))
	v = clampInt(v, int(c.opts.Lo), int(c.opts.Hi))
	return clampInt(v, 0, c.opts.DeviceMax)
}
