package gas

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"streetlight-server/internal/modules/airquality/types"
)

type bound struct {
	name     string
	get      func(types.GasLevels) float64
	lo, hi   float64
	decimals int
}

var bounds = []bound{
	{"co2", func(g types.GasLevels) float64 { return g.CO2 }, 400, 700, 1},
	{"co", func(g types.GasLevels) float64 { return g.CO }, 0.1, 8, 2},
	{"no2", func(g types.GasLevels) float64 { return g.NO2 }, 0.02, 0.25, 3},
	{"nh3", func(g types.GasLevels) float64 { return g.NH3 }, 0.01, 3, 2},
	{"benzene", func(g types.GasLevels) float64 { return g.Benzene }, 0.005, 0.08, 3},
	{"toluene", func(g types.GasLevels) float64 { return g.Toluene }, 0.01, 0.12, 3},
	{"alcohol", func(g types.GasLevels) float64 { return g.Alcohol }, 0, 4, 2},
	{"acetone", func(g types.GasLevels) float64 { return g.Acetone }, 0.02, 0.2, 3},
	{"h2s", func(g types.GasLevels) float64 { return g.H2S }, 0, 0.6, 3},
	{"smoke", func(g types.GasLevels) float64 { return g.Smoke }, 10, 60, 1},
}

func TestDecompose_WithinBounds(t *testing.T) {
	m := NewModel(types.DefaultDeviceMax, rand.New(rand.NewPCG(1, 2)))

	for raw := 0; raw <= types.DefaultDeviceMax; raw += 3 {
		for hour := 0; hour < 24; hour++ {
			g := m.Decompose(raw, hour)
			for _, b := range bounds {
				v := b.get(g)
				require.GreaterOrEqualf(t, v, b.lo, "%s at raw=%d hour=%d", b.name, raw, hour)
				require.LessOrEqualf(t, v, b.hi, "%s at raw=%d hour=%d", b.name, raw, hour)
			}
		}
	}
}

func TestDecompose_Precision(t *testing.T) {
	m := NewModel(types.DefaultDeviceMax, rand.New(rand.NewPCG(7, 7)))
	g := m.Decompose(612, 8)
	for _, b := range bounds {
		v := b.get(g)
		p := math.Pow10(b.decimals)
		require.InDeltaf(t, math.Round(v*p)/p, v, 1e-12, "%s = %v has more than %d decimals", b.name, v, b.decimals)
	}
}

func TestDecompose_ReproducibleWithSeed(t *testing.T) {
	a := NewModel(types.DefaultDeviceMax, rand.New(rand.NewPCG(42, 99)))
	b := NewModel(types.DefaultDeviceMax, rand.New(rand.NewPCG(42, 99)))
	for raw := 0; raw <= types.DefaultDeviceMax; raw += 50 {
		require.Equal(t, a.Decompose(raw, 13), b.Decompose(raw, 13))
	}
}

func TestDecompose_ExtremeNoiseStaysClamped(t *testing.T) {
	// Raw at the top of the range pushes every term to its ceiling.
	m := NewModel(types.DefaultDeviceMax, rand.New(rand.NewPCG(3, 4)))
	for i := 0; i < 500; i++ {
		g := m.Decompose(types.DefaultDeviceMax, 8)
		require.LessOrEqual(t, g.CO2, 700.0)
		require.LessOrEqual(t, g.Smoke, 60.0)
		require.LessOrEqual(t, g.H2S, 0.6)
	}
}

func TestTimeFactor(t *testing.T) {
	tests := []struct {
		hour int
		want float64
	}{
		{0, 1.0}, {6, 1.0}, {7, 1.3}, {9, 1.3}, {10, 1.0}, {12, 0.8},
		{15, 0.8}, {16, 1.0}, {17, 1.3}, {19, 1.3}, {20, 1.0}, {23, 1.0},
	}
	for _, tt := range tests {
		require.Equalf(t, tt.want, TimeFactor(tt.hour), "hour=%d", tt.hour)
	}
}

func TestPollutionFactor(t *testing.T) {
	require.Equal(t, 0.3, PollutionFactor(0))
	require.InDelta(t, 1.25, PollutionFactor(0.5), 1e-9)
	require.Equal(t, 2.0, PollutionFactor(1))
}
