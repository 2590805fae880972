package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-engine/internal/domain"
)

func candlesFromCloses(closes []float64, volume float64) []domain.Candle {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{
			OpenTime: start.Add(time.Duration(i) * time.Minute),
			Open:     c,
			High:     c,
			Low:      c,
			Close:    c,
			Volume:   volume,
		}
	}
	return out
}

func TestRSI_NeutralWithShortHistory(t *testing.T) {
	assert.Equal(t, 50.0, RSI([]float64{1, 2, 3}, 14))
}

func TestRSI_Extremes(t *testing.T) {
	rising := make([]float64, 30)
	falling := make([]float64, 30)
	for i := range rising {
		rising[i] = float64(100 + i)
		falling[i] = float64(200 - i)
	}

	assert.InDelta(t, 100.0, RSI(rising, 14), 1e-6)
	assert.InDelta(t, 0.0, RSI(falling, 14), 1e-6)
}

func TestRSI_SimpleRollingMean(t *testing.T) {
	// last 4 deltas: +2, -1, +1, -2 -> avg gain 0.75, avg loss 0.75
	closes := []float64{10, 20, 22, 21, 22, 20}
	assert.InDelta(t, 50.0, RSI(closes, 4), 1e-9)
}

func TestEMA(t *testing.T) {
	assert.Equal(t, 5.0, EMA([]float64{1, 5}, 20))
	assert.Equal(t, 0.0, EMA(nil, 20))

	// alpha = 0.5 for period 3, seeded with first value
	got := CalculateEMA([]float64{2, 4, 8}, 3)
	assert.Equal(t, []float64{2, 3, 5.5}, got)
	assert.Equal(t, 5.5, EMA([]float64{2, 4, 8}, 3))
}

func TestBollinger_FallbackBand(t *testing.T) {
	bb := CalculateBollingerBands([]float64{100, 100}, 20, 2)

	assert.InDelta(t, 102.0, bb.Upper, 1e-9)
	assert.InDelta(t, 98.0, bb.Lower, 1e-9)
	assert.Equal(t, 100.0, bb.Middle)
	assert.Equal(t, 4.0, bb.WidthPct)
}

func TestBollinger_SampleStdDev(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	bb := CalculateBollingerBands(closes, 5, 2)

	std := math.Sqrt(2.5)
	assert.InDelta(t, 3.0, bb.Middle, 1e-9)
	assert.InDelta(t, 3+2*std, bb.Upper, 1e-9)
	assert.InDelta(t, 3-2*std, bb.Lower, 1e-9)
	assert.InDelta(t, 4*std/3*100, bb.WidthPct, 1e-9)
}

func TestBollinger_PositionClamped(t *testing.T) {
	bb := BollingerBands{Upper: 110, Lower: 90}
	assert.Equal(t, 0.0, bb.Position(80))
	assert.Equal(t, 1.0, bb.Position(120))
	assert.Equal(t, 0.5, bb.Position(100))
	assert.Equal(t, 0.5, BollingerBands{Upper: 1, Lower: 1}.Position(3))
}

func TestVolumeRatio(t *testing.T) {
	vols := make([]float64, 21)
	for i := range vols {
		vols[i] = 10
	}
	vols[20] = 25
	assert.InDelta(t, 2.5, VolumeRatio(vols, 20), 1e-9)

	assert.Equal(t, 1.0, VolumeRatio(vols[:20], 20))
	assert.Equal(t, 1.0, VolumeRatio(make([]float64, 21), 20))
}

func TestMomentumAndVolatility(t *testing.T) {
	closes := []float64{100, 100, 110, 120, 130, 140, 150}
	// reference is closes[n-5] = 110
	assert.InDelta(t, (150.0-110.0)/110.0*100, Momentum(closes, 5), 1e-9)
	assert.Equal(t, 0.0, Momentum(closes[:4], 5))

	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 50
	}
	assert.Equal(t, 0.0, Volatility(flat, 20))
	assert.Equal(t, 0.0, Volatility(flat[:19], 20))
}

func TestDetectDivergence(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5}
	down := []float64{5, 4, 3, 2, 1}

	assert.Equal(t, BearishDivergence, DetectDivergence(up, down))
	assert.Equal(t, BullishDivergence, DetectDivergence(down, up))
	assert.Equal(t, NoDivergence, DetectDivergence(up, up))
	assert.Equal(t, NoDivergence, DetectDivergence(up[:3], up[:3]))
}

func TestDetectSqueeze(t *testing.T) {
	assert.True(t, DetectSqueeze(0.5, 0.8))
	assert.False(t, DetectSqueeze(0.8, 0.8))
}

func TestEngineSnapshot_Defaults(t *testing.T) {
	e := NewEngine(DefaultPeriods())

	assert.Equal(t, domain.DefaultSnapshot(), e.Snapshot(nil))

	bad := candlesFromCloses([]float64{100, 100, math.NaN()}, 1)
	assert.Equal(t, domain.DefaultSnapshot(), e.Snapshot(bad))
}

func TestEngineSnapshot_Computed(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i)/3)*2
	}
	e := NewEngine(DefaultPeriods())
	snap := e.Snapshot(candlesFromCloses(closes, 10))

	require.Equal(t, closes[59], snap.CurrentPrice)
	assert.Greater(t, snap.BBUpper, snap.BBLower)
	assert.GreaterOrEqual(t, snap.BBPosition, 0.0)
	assert.LessOrEqual(t, snap.BBPosition, 1.0)
	assert.InDelta(t, 1.0, snap.VolumeRatio, 1e-9)
	assert.Greater(t, snap.VolatilityPct, 0.0)
	assert.Equal(t, 21, e.MinCandles())
	assert.False(t, snap.Squeeze)
}

func TestEngineSnapshot_DivergenceAndSqueeze(t *testing.T) {
	// Flat closes with a late dip and partial recovery: price ends below
	// where it was five bars ago while RSI turns up.
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	copy(closes[24:], []float64{99.9, 99.5, 99.0, 98.5, 99.2, 99.4})

	e := NewEngine(DefaultPeriods())
	snap := e.Snapshot(candlesFromCloses(closes, 10))
	assert.Equal(t, string(BullishDivergence), snap.Divergence)
	assert.InDelta(t, 1.72, snap.BBWidthPct, 0.01)
	assert.False(t, snap.Squeeze)

	wide := DefaultPeriods()
	wide.SqueezeWidth = 2
	assert.True(t, NewEngine(wide).Snapshot(candlesFromCloses(closes, 10)).Squeeze)

	short := e.Snapshot(candlesFromCloses(closes[:16], 10))
	assert.Empty(t, short.Divergence)
}
