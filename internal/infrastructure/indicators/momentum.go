package indicators

import "math"

// Divergence between price direction and RSI direction.
type Divergence string

const divergenceLookback = 5

const (
	NoDivergence      Divergence = ""
	BullishDivergence Divergence = "bullish_divergence"
	BearishDivergence Divergence = "bearish_divergence"
)

// VolumeRatio compares the latest volume with the mean of the previous period
// volumes. It is 1.0 when there is not enough history or the mean is zero.
func VolumeRatio(volumes []float64, period int) float64 {
	n := len(volumes)
	if period <= 0 || n < period+1 {
		return 1.0
	}
	avg := average(volumes[n-period-1 : n-1])
	if avg == 0 {
		return 1.0
	}
	return volumes[n-1] / avg
}

// Momentum is the percent change of the last close against the close
// lookback-1 bars earlier (the window includes the current bar).
func Momentum(closes []float64, lookback int) float64 {
	n := len(closes)
	if lookback <= 0 || n < lookback {
		return 0
	}
	ref := closes[n-lookback]
	if ref == 0 {
		return 0
	}
	return (closes[n-1] - ref) / ref * 100
}

// Volatility is the coefficient of variation of the trailing period closes, in percent.
func Volatility(closes []float64, period int) float64 {
	n := len(closes)
	if period < 2 || n < period {
		return 0
	}
	mean, std := meanStd(closes[n-period:])
	if mean == 0 {
		return 0
	}
	return std / mean * 100
}

// DetectSqueeze reports a band compression below threshold (width in percent).
func DetectSqueeze(widthPct, threshold float64) bool {
	return widthPct < threshold
}

// DetectDivergence compares the direction of price and RSI over the last five points.
func DetectDivergence(closes, rsiValues []float64) Divergence {
	const lookback = divergenceLookback
	if len(closes) < lookback || len(rsiValues) < lookback {
		return NoDivergence
	}

	priceUp := closes[len(closes)-1] > closes[len(closes)-lookback]
	rsiUp := rsiValues[len(rsiValues)-1] > rsiValues[len(rsiValues)-lookback]

	switch {
	case priceUp && !rsiUp:
		return BearishDivergence
	case !priceUp && rsiUp:
		return BullishDivergence
	}
	return NoDivergence
}

// average calculates the mean of a slice
func average(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// meanStd returns the mean and sample standard deviation.
func meanStd(data []float64) (float64, float64) {
	mean := average(data)
	if len(data) < 2 {
		return mean, 0
	}
	sq := 0.0
	for _, v := range data {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(data)-1))
}
