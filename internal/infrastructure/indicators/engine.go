package indicators

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"spot-engine/internal/domain"
)

// Periods configures the indicator windows.
type Periods struct {
	RSI        int     `mapstructure:"rsi" validate:"gt=0"`
	Bollinger  int     `mapstructure:"bollinger" validate:"gt=1"`
	BBStdDev   float64 `mapstructure:"bb_std_dev" validate:"gt=0"`
	EMA        int     `mapstructure:"ema" validate:"gt=0"`
	Volume     int     `mapstructure:"volume" validate:"gt=0"`
	Momentum   int     `mapstructure:"momentum" validate:"gt=0"`
	Volatility int     `mapstructure:"volatility" validate:"gt=1"`
	// SqueezeWidth is the band width (percent) under which the bands count as squeezed.
	SqueezeWidth float64 `mapstructure:"squeeze_width" validate:"gte=0"`
}

func DefaultPeriods() Periods {
	return Periods{
		RSI:        14,
		Bollinger:  20,
		BBStdDev:   2,
		EMA:        20,
		Volume:     20,
		Momentum:   5,
		Volatility: 20,

		SqueezeWidth: 0.8,
	}
}

// Engine turns a candle window into an IndicatorSnapshot. It is stateless.
type Engine struct {
	periods Periods
}

func NewEngine(p Periods) *Engine {
	return &Engine{periods: p}
}

// Snapshot computes indicators for the last candle of the window. It never
// fails: empty input, non-finite values or a panic yield DefaultSnapshot.
func (e *Engine) Snapshot(candles []domain.Candle) (snap domain.IndicatorSnapshot) {
	if len(candles) == 0 {
		return domain.DefaultSnapshot()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Int("candles", len(candles)).Msg("indicator computation panicked")
			snap = domain.DefaultSnapshot()
		}
	}()

	closes := domain.Closes(candles)
	volumes := domain.Volumes(candles)
	price := closes[len(closes)-1]

	bb := CalculateBollingerBands(closes, e.periods.Bollinger, e.periods.BBStdDev)
	ema := EMA(closes, e.periods.EMA)
	rsi := CalculateRSI(closes, e.periods.RSI)

	snap = domain.IndicatorSnapshot{
		RSI:           neutralRSI,
		BBUpper:       bb.Upper,
		BBMiddle:      bb.Middle,
		BBLower:       bb.Lower,
		BBWidthPct:    bb.WidthPct,
		BBPosition:    bb.Position(price),
		EMA:           ema,
		VolumeRatio:   VolumeRatio(volumes, e.periods.Volume),
		MomentumPct:   Momentum(closes, e.periods.Momentum),
		VolatilityPct: Volatility(closes, e.periods.Volatility),
		CurrentPrice:  price,
		Squeeze:       DetectSqueeze(bb.WidthPct, e.periods.SqueezeWidth),
	}
	if len(closes) >= e.periods.RSI+1 {
		snap.RSI = rsi[len(rsi)-1]
	}
	if len(closes) >= e.periods.RSI+divergenceLookback {
		snap.Divergence = string(DetectDivergence(closes, rsi))
	}
	if ema != 0 {
		snap.EMADistancePct = (price - ema) / ema * 100
	}

	if err := checkFinite(snap); err != nil {
		log.Warn().Err(err).Float64("price", price).Msg("indicator snapshot degraded to defaults")
		return domain.DefaultSnapshot()
	}
	return snap
}

// MinCandles is the window length needed for every indicator to use real data.
func (e *Engine) MinCandles() int {
	n := e.periods.RSI + 1
	for _, p := range []int{e.periods.Bollinger, e.periods.EMA, e.periods.Volume + 1, e.periods.Momentum, e.periods.Volatility} {
		if p > n {
			n = p
		}
	}
	return n
}

func checkFinite(s domain.IndicatorSnapshot) error {
	fields := map[string]float64{
		"rsi":        s.RSI,
		"bbUpper":    s.BBUpper,
		"bbMiddle":   s.BBMiddle,
		"bbLower":    s.BBLower,
		"bbWidth":    s.BBWidthPct,
		"bbPosition": s.BBPosition,
		"ema":        s.EMA,
		"emaDist":    s.EMADistancePct,
		"volRatio":   s.VolumeRatio,
		"momentum":   s.MomentumPct,
		"volatility": s.VolatilityPct,
		"price":      s.CurrentPrice,
	}
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
	}
	return nil
}
