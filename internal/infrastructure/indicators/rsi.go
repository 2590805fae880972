package indicators

// CalculateRSI computes the Relative Strength Index series using a simple
// rolling mean of gains and losses. Early points average whatever deltas are
// available; index 0 has no delta and is neutral.
func CalculateRSI(closes []float64, period int) []float64 {
	rsi := make([]float64, len(closes))
	if len(closes) == 0 || period <= 0 {
		return rsi
	}
	rsi[0] = neutralRSI

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	sumGain, sumLoss := 0.0, 0.0
	for i := 1; i < len(closes); i++ {
		sumGain += gains[i]
		sumLoss += losses[i]
		n := i
		if i > period {
			sumGain -= gains[i-period]
			sumLoss -= losses[i-period]
			n = period
		}

		avgGain := sumGain / float64(n)
		avgLoss := sumLoss / float64(n)
		if avgLoss <= 0 {
			avgLoss = minAvgLoss
		}
		rs := avgGain / avgLoss
		rsi[i] = 100 - (100 / (1 + rs))
	}

	return rsi
}

// RSI returns the latest RSI value, or neutral 50 with fewer than period+1 closes.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return neutralRSI
	}
	series := CalculateRSI(closes, period)
	return series[len(series)-1]
}

const (
	neutralRSI = 50.0
	minAvgLoss = 1e-10
)
