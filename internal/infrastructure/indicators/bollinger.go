package indicators

import "math"

type BollingerBands struct {
	Upper    float64
	Middle   float64
	Lower    float64
	WidthPct float64
}

// fallbackBandPct is the synthetic half-width used when the window is too short.
const fallbackBandPct = 2.0

// CalculateBollingerBands computes the bands for the latest close using the
// sample standard deviation of the trailing period closes. With fewer closes
// a ±2% band around the last price is returned.
func CalculateBollingerBands(closes []float64, period int, multiplier float64) BollingerBands {
	length := len(closes)
	if length == 0 {
		return BollingerBands{}
	}
	if length < period || period < 2 {
		mid := closes[length-1]
		return BollingerBands{
			Upper:    mid * (1 + fallbackBandPct/100),
			Middle:   mid,
			Lower:    mid * (1 - fallbackBandPct/100),
			WidthPct: 2 * fallbackBandPct,
		}
	}

	ma, stdDev := meanStd(closes[length-period:])
	bands := BollingerBands{
		Upper:  ma + (multiplier * stdDev),
		Middle: ma,
		Lower:  ma - (multiplier * stdDev),
	}
	if ma != 0 {
		bands.WidthPct = (bands.Upper - bands.Lower) / ma * 100
	}
	return bands
}

// Position locates price between the bands, clamped to [0,1]. A flat band is 0.5.
func (b BollingerBands) Position(price float64) float64 {
	if b.Upper == b.Lower {
		return 0.5
	}
	pos := (price - b.Lower) / (b.Upper - b.Lower)
	return math.Max(0, math.Min(1, pos))
}
