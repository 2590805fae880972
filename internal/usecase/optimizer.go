package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"spot-engine/internal/domain"
)

// ScoreMetrics weights a backtest into a single comparable number. Profit
// factor and Sharpe are capped so one metric cannot dominate.
func ScoreMetrics(m domain.Metrics) float64 {
	score := 0.0
	score += m.WinRate * 0.3
	score += math.Min(m.ProfitFactor, 3) * 33.33 * 0.3
	score += math.Min(m.Sharpe, 2) * 50 * 0.2
	score += math.Max(0, 100-m.MaxDrawdownPct) * 0.2
	return score
}

// ShouldUpdateParams requires the new metrics to beat the current score by
// at least minImprovementPct percent. No current metrics always updates.
func ShouldUpdateParams(current *domain.Metrics, next domain.Metrics, minImprovementPct float64) bool {
	if current == nil {
		return true
	}
	cur := ScoreMetrics(*current)
	nxt := ScoreMetrics(next)
	if cur <= 0 {
		return nxt > cur
	}
	return (nxt-cur)/cur*100 >= minImprovementPct
}

// ValidationThresholds are the minimum quality bar for a strategy.
// Rates are fractions (0.55 = 55%).
type ValidationThresholds struct {
	MinTrades       int     `mapstructure:"min_trades" validate:"gte=0"`
	MinWinRate      float64 `mapstructure:"min_win_rate" validate:"gte=0,lte=1"`
	MinProfitFactor float64 `mapstructure:"min_profit_factor" validate:"gte=0"`
	MaxDrawdown     float64 `mapstructure:"max_drawdown" validate:"gt=0,lte=1"`
}

// ValidateStrategy checks aggregate metrics against the thresholds and
// returns every failed criterion.
func ValidateStrategy(m domain.Metrics, t ValidationThresholds) (bool, []string) {
	if m.TotalTrades < t.MinTrades {
		return false, []string{fmt.Sprintf("insufficient trades: %d < %d", m.TotalTrades, t.MinTrades)}
	}

	var failed []string
	if m.WinRate < t.MinWinRate*100 {
		failed = append(failed, fmt.Sprintf("win rate %.1f%% < %.1f%%", m.WinRate, t.MinWinRate*100))
	}
	if m.ProfitFactor < t.MinProfitFactor {
		failed = append(failed, fmt.Sprintf("profit factor %.2f < %.2f", m.ProfitFactor, t.MinProfitFactor))
	}
	if m.MaxDrawdownPct > t.MaxDrawdown*100 {
		failed = append(failed, fmt.Sprintf("drawdown %.1f%% > %.1f%%", m.MaxDrawdownPct, t.MaxDrawdown*100))
	}
	return len(failed) == 0, failed
}

// CandidateScore is one evaluated grid point.
type CandidateScore struct {
	Index     int                 `json:"index"`
	Params    domain.ParameterSet `json:"params"`
	Score     float64             `json:"score"`
	PerSymbol map[string]float64  `json:"perSymbol"`
	Metrics   domain.Metrics      `json:"metrics"`
	Valid     bool                `json:"valid"`
}

// OptimizationResult is the outcome of a grid sweep.
type OptimizationResult struct {
	Best       domain.ParameterSet `json:"best"`
	BestScore  float64             `json:"bestScore"`
	Metrics    domain.Metrics      `json:"metrics"`
	Evaluated  int                 `json:"evaluated"`
	Skipped    int                 `json:"skipped"`
	Candidates []CandidateScore    `json:"candidates"`
	Elapsed    time.Duration       `json:"elapsed"`
}

// ParameterOptimizer grid-searches parameter sets over backtests.
type ParameterOptimizer struct {
	backtest *BacktestEngine
	workers  int
}

// NewParameterOptimizer uses GOMAXPROCS workers when workers <= 0.
func NewParameterOptimizer(backtest *BacktestEngine, workers int) *ParameterOptimizer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &ParameterOptimizer{backtest: backtest, workers: workers}
}

// Optimize backtests every grid candidate on every symbol's history and
// returns the candidate with the highest average score. Ties keep the
// earliest candidate in enumeration order. A symbol whose replay fails
// contributes a score of 0.
func (o *ParameterOptimizer) Optimize(ctx context.Context, symbols []string, history map[string][]domain.Candle, base domain.ParameterSet, grid domain.ParameterGrid) (OptimizationResult, error) {
	start := time.Now()
	if len(symbols) == 0 {
		return OptimizationResult{}, fmt.Errorf("%w: no symbols", domain.ErrNoCandidates)
	}

	candidates, err := grid.Candidates(base)
	if err != nil {
		return OptimizationResult{}, err
	}
	log.Info().Int("candidates", len(candidates)).Int("symbols", len(symbols)).Int("workers", o.workers).Msg("parameter sweep started")

	scores := make([]CandidateScore, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for i, params := range candidates {
		i, params := i, params
		g.Go(func() error {
			scores[i] = o.evaluate(gctx, i, params, symbols, history)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return OptimizationResult{}, err
	}

	result := OptimizationResult{Candidates: scores, BestScore: math.Inf(-1)}
	found := false
	for _, s := range scores {
		if !s.Valid {
			result.Skipped++
			continue
		}
		result.Evaluated++
		if s.Score > result.BestScore {
			result.Best = s.Params
			result.BestScore = s.Score
			result.Metrics = s.Metrics
			found = true
		}
	}
	if !found {
		return result, fmt.Errorf("%w: all %d candidates invalid", domain.ErrNoCandidates, len(candidates))
	}
	result.Elapsed = time.Since(start)

	log.Info().
		Float64("bestScore", result.BestScore).
		Str("configHash", result.Best.Hash()).
		Int("evaluated", result.Evaluated).
		Int("skipped", result.Skipped).
		Dur("elapsed", result.Elapsed).
		Msg("parameter sweep finished")
	return result, nil
}

func (o *ParameterOptimizer) evaluate(ctx context.Context, idx int, params domain.ParameterSet, symbols []string, history map[string][]domain.Candle) CandidateScore {
	cs := CandidateScore{Index: idx, Params: params, PerSymbol: make(map[string]float64, len(symbols))}
	if err := params.Validate(); err != nil {
		log.Debug().Err(err).Int("candidate", idx).Msg("skipping invalid candidate")
		return cs
	}
	cs.Valid = true

	var all []domain.Trade
	total := 0.0
	for _, symbol := range symbols {
		res, err := o.backtest.Run(ctx, symbol, history[symbol], params)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				log.Debug().Err(err).Str("symbol", symbol).Int("candidate", idx).Msg("backtest failed")
			}
			cs.PerSymbol[symbol] = 0
			continue
		}
		score := ScoreMetrics(res.Metrics)
		cs.PerSymbol[symbol] = score
		total += score
		all = append(all, res.Trades...)
	}
	cs.Score = total / float64(len(symbols))
	cs.Metrics = domain.ComputeMetrics(all)
	return cs
}
