package indicators

// CalculateEMA computes the Exponential Moving Average seeded with the first
// value, alpha = 2/(period+1).
func CalculateEMA(data []float64, period int) []float64 {
	ema := make([]float64, len(data))
	if len(data) == 0 || period <= 0 {
		return ema
	}

	k := 2.0 / (float64(period) + 1.0)
	ema[0] = data[0]
	for i := 1; i < len(data); i++ {
		ema[i] = (data[i] * k) + (ema[i-1] * (1 - k))
	}

	return ema
}

// EMA returns the latest EMA value. Windows shorter than period return the last price.
func EMA(data []float64, period int) float64 {
	if len(data) == 0 {
		return 0
	}
	if len(data) < period {
		return data[len(data)-1]
	}
	series := CalculateEMA(data, period)
	return series[len(series)-1]
}
