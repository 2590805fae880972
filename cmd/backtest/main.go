package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"spot-engine/internal/config"
	"spot-engine/internal/domain"
	"spot-engine/internal/infrastructure/binance"
	"spot-engine/internal/infrastructure/db"
	"spot-engine/internal/infrastructure/indicators"
	"spot-engine/internal/repository"
	"spot-engine/internal/usecase"
)

func main() {
	var (
		configPath string
		symbolsCSV string
		interval   string
		fromStr    string
		toStr      string
		days       int
		outCSV     string
		optimize   bool
		useCache   bool
	)

	flag.StringVar(&configPath, "config", "", "Path to a YAML or JSON config file")
	flag.StringVar(&symbolsCSV, "symbols", "", "comma-separated symbols (default: config symbols)")
	flag.StringVar(&interval, "interval", "", "kline interval (default: engine.interval)")
	flag.StringVar(&fromStr, "from", "", "start date (YYYY-MM-DD)")
	flag.StringVar(&toStr, "to", "", "end date (YYYY-MM-DD), default today")
	flag.IntVar(&days, "days", 30, "history length when -from is empty")
	flag.StringVar(&outCSV, "csv", "", "optional: write trades to CSV")
	flag.BoolVar(&optimize, "optimize", false, "grid-search the optimization grid instead of a single replay")
	flag.BoolVar(&useCache, "cache", true, "cache candles in postgres when a database is configured")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if interval == "" {
		interval = cfg.Engine.Interval
	}
	step, err := binance.IntervalDuration(interval)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -interval: %v\n", err)
		os.Exit(1)
	}

	from, to, err := parseRange(fromStr, toStr, days, time.Now().UTC())
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	symbols := cfg.Symbols
	if symbolsCSV != "" {
		symbols = splitSymbols(symbolsCSV)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store domain.CandleStore
	if useCache && cfg.Database.URL != "" {
		pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.SSLMode, db.PoolConfigFromEnv())
		if err != nil {
			log.Fatal().Err(err).Msg("database unavailable")
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("migrate")
		}
		store = repository.NewPostgresCandleRepository(pool)
	}

	loader := &historyLoader{
		rest:     binance.NewClient(cfg.Binance.BaseURL, cfg.Binance.RequestsPerMinute),
		store:    store,
		interval: interval,
		step:     step,
	}

	history := make(map[string][]domain.Candle, len(symbols))
	for _, symbol := range symbols {
		candles, err := loader.Load(ctx, symbol, from, to)
		if err != nil {
			log.Fatal().Err(err).Str("symbol", symbol).Msg("load history")
		}
		log.Info().Str("symbol", symbol).Int("candles", len(candles)).Msg("history loaded")
		history[symbol] = candles
	}

	machine := usecase.NewPositionStateMachine(usecase.NewSignalEvaluator(), cfg.Risk.TotalCostPct)
	engine := usecase.NewBacktestEngine(indicators.NewEngine(cfg.Indicators), machine, cfg.Risk)

	params := cfg.DefaultParameters()
	if optimize {
		opt := usecase.NewParameterOptimizer(engine, cfg.Optimization.Workers)
		res, err := opt.Optimize(ctx, symbols, history, params, cfg.OptimizationGrid())
		if err != nil {
			log.Fatal().Err(err).Msg("optimization failed")
		}
		valid, rejections := usecase.ValidateStrategy(res.Metrics, cfg.Validation)
		fmt.Printf("Evaluated %d candidates (%d skipped) in %s\n", res.Evaluated, res.Skipped, res.Elapsed.Round(time.Millisecond))
		fmt.Printf("Best %s score=%.3f valid=%t\n", res.Best.Hash(), res.BestScore, valid)
		for _, r := range rejections {
			fmt.Printf("  rejected: %s\n", r)
		}
		params = res.Best
	}

	var all []domain.Trade
	fmt.Printf("\n%-10s %7s %8s %8s %8s %8s %8s\n", "SYMBOL", "TRADES", "WIN%", "PF", "EXP%", "MAXDD%", "SHARPE")
	for _, symbol := range symbols {
		res, err := engine.Run(ctx, symbol, history[symbol], params)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("backtest failed")
			continue
		}
		printRow(symbol, res.Metrics)
		all = append(all, res.Trades...)
	}
	printRow("TOTAL", domain.ComputeMetrics(all))
	fmt.Printf("\nParameters %s: rsi %.0f/%.0f sl %.2f%% tp %.2f%%\n",
		params.Hash(), params.RSIOversold, params.RSIOverbought, params.StopLossPct, params.TakeProfitPct)

	if outCSV != "" {
		if err := WriteCSV(all, outCSV); err != nil {
			log.Fatal().Err(err).Msg("write csv")
		}
		log.Info().Str("path", outCSV).Int("trades", len(all)).Msg("trades exported")
	}
}

func parseRange(fromStr, toStr string, days int, now time.Time) (time.Time, time.Time, error) {
	to := now.Truncate(24 * time.Hour)
	if toStr != "" {
		t, err := time.Parse(time.DateOnly, toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad -to: %w", err)
		}
		to = t
	}
	from := to.AddDate(0, 0, -days)
	if fromStr != "" {
		f, err := time.Parse(time.DateOnly, fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad -from: %w", err)
		}
		from = f
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("-to must be after -from")
	}
	return from, to, nil
}

func splitSymbols(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func printRow(label string, m domain.Metrics) {
	fmt.Printf("%-10s %7d %8.2f %8.2f %8.3f %8.2f %8.2f\n",
		label, m.TotalTrades, m.WinRate, m.ProfitFactor, m.Expectancy, m.MaxDrawdownPct, m.Sharpe)
}
