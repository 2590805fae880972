package domain

import (
	"fmt"
	"time"
)

// Candle is one OHLCV bar. OpenTime is the bar's open in UTC.
type Candle struct {
	OpenTime time.Time `json:"openTime"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Closes extracts close prices, oldest first.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Volumes extracts volumes, oldest first.
func Volumes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}

// ValidateSeries checks that timestamps are strictly increasing.
func ValidateSeries(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		if !candles[i].OpenTime.After(candles[i-1].OpenTime) {
			return fmt.Errorf("%w: candle %d at %s is not after %s", ErrInvalidSeries,
				i, candles[i].OpenTime.Format(time.RFC3339), candles[i-1].OpenTime.Format(time.RFC3339))
		}
	}
	return nil
}

// IndicatorSnapshot is the derived indicator set for the latest candle of a window.
type IndicatorSnapshot struct {
	RSI            float64 `json:"rsi"`
	BBUpper        float64 `json:"bbUpper"`
	BBMiddle       float64 `json:"bbMiddle"`
	BBLower        float64 `json:"bbLower"`
	BBWidthPct     float64 `json:"bbWidthPct"`
	BBPosition     float64 `json:"bbPosition"` // 0 = lower band, 1 = upper band
	EMA            float64 `json:"ema"`
	EMADistancePct float64 `json:"emaDistancePct"`
	VolumeRatio    float64 `json:"volumeRatio"`
	MomentumPct    float64 `json:"momentumPct"`
	VolatilityPct  float64 `json:"volatilityPct"`
	CurrentPrice   float64 `json:"currentPrice"`
	Squeeze        bool    `json:"squeeze"`
	Divergence     string  `json:"divergence,omitempty"`
}

// DefaultSnapshot is the neutral snapshot used when indicators cannot be computed.
func DefaultSnapshot() IndicatorSnapshot {
	return IndicatorSnapshot{
		RSI:         50,
		BBPosition:  0.5,
		VolumeRatio: 1.0,
	}
}

// PriceObservation is the price range seen since the last evaluation.
// Backtests fill it from the candle; live trading uses the last price for all three.
type PriceObservation struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
	Last float64 `json:"last"`
}

// ObservePrice builds an observation from a single traded price.
func ObservePrice(price float64) PriceObservation {
	return PriceObservation{Low: price, High: price, Last: price}
}
