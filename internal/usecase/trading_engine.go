package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"spot-engine/internal/domain"
)

// MinLiveCandles is the shortest candle window the live loop evaluates.
const MinLiveCandles = 50

// TimeWindow is an inclusive "HH:MM" range in UTC.
type TimeWindow struct {
	Start string
	End   string
}

// Contains compares "HH:MM" strings, so windows must not wrap midnight.
func (w TimeWindow) Contains(t time.Time) bool {
	hm := t.UTC().Format("15:04")
	return w.Start <= hm && hm <= w.End
}

// ParseTimeWindows parses "HH:MM-HH:MM" entries.
func ParseTimeWindows(raw []string) ([]TimeWindow, error) {
	windows := make([]TimeWindow, 0, len(raw))
	for _, r := range raw {
		start, end, ok := strings.Cut(strings.TrimSpace(r), "-")
		if !ok {
			return nil, fmt.Errorf("invalid time window %q", r)
		}
		for _, hm := range []string{start, end} {
			if _, err := time.Parse("15:04", hm); err != nil {
				return nil, fmt.Errorf("invalid time window %q: %w", r, err)
			}
		}
		if start > end {
			return nil, fmt.Errorf("invalid time window %q: start after end", r)
		}
		windows = append(windows, TimeWindow{Start: start, End: end})
	}
	return windows, nil
}

// EngineConfig holds the live loop settings.
type EngineConfig struct {
	Symbols           []string
	Mode              string
	CycleInterval     time.Duration
	CallTimeout       time.Duration
	CandleLimit       int
	BacktestCandles   int
	MaxPositions      int
	Cooldown          time.Duration
	MaxEntrySpreadPct float64
	AvoidWindows      []TimeWindow
	CloseOnShutdown   bool
	MinImprovementPct float64
	OptimizerWorkers  int
	Validation        ValidationThresholds
	Risk              domain.RiskConfig
}

// EngineDeps are the collaborators of the live engine.
type EngineDeps struct {
	Market      domain.MarketDataProvider
	Executor    domain.OrderExecutionPort
	Constraints domain.SymbolConstraintsPort
	Journal     domain.TradeJournal
	Params      domain.ParameterSource
	Indicators  SnapshotSource
	Notifiers   []domain.Notifier
}

// OptimizeOutcome reports a sweep and whether its winner went live.
type OptimizeOutcome struct {
	Result     OptimizationResult `json:"result"`
	Current    *domain.Metrics    `json:"current,omitempty"`
	Valid      bool               `json:"valid"`
	Rejections []string           `json:"rejections,omitempty"`
	Applied    bool               `json:"applied"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// TradingEngine runs the live decision loop: exits are managed every cycle,
// entries only while no breaker is tripped and the engine is not paused.
type TradingEngine struct {
	cfg        EngineConfig
	market     domain.MarketDataProvider
	executor   domain.OrderExecutionPort
	journal    domain.TradeJournal
	params     domain.ParameterSource
	indicators SnapshotSource
	notifiers  []domain.Notifier

	sizer     *OrderSizer
	machine   *PositionStateMachine
	risk      *RiskGovernor
	book      *PositionBook
	backtest  *BacktestEngine
	optimizer *ParameterOptimizer

	now   func() time.Time
	newID func() string

	// cycleMu serializes cycles with shutdown.
	cycleMu sync.Mutex

	mu           sync.RWMutex
	active       domain.ParameterSet
	paused       bool
	running      bool
	breaker      domain.Breaker
	symbolErrors map[string]string
	lastCycle    time.Time

	pendingMu sync.Mutex
	pending   []domain.Trade
}

func NewTradingEngine(cfg EngineConfig, deps EngineDeps) *TradingEngine {
	machine := NewPositionStateMachine(NewSignalEvaluator(), cfg.Risk.TotalCostPct)
	backtest := NewBacktestEngine(deps.Indicators, machine, cfg.Risk)

	return &TradingEngine{
		cfg:          cfg,
		market:       deps.Market,
		executor:     deps.Executor,
		journal:      deps.Journal,
		params:       deps.Params,
		indicators:   deps.Indicators,
		notifiers:    deps.Notifiers,
		sizer:        NewOrderSizer(deps.Constraints),
		machine:      machine,
		risk:         NewRiskGovernor(cfg.Risk, time.Now()),
		book:         NewPositionBook(),
		backtest:     backtest,
		optimizer:    NewParameterOptimizer(backtest, cfg.OptimizerWorkers),
		now:          time.Now,
		newID:        uuid.NewString,
		active:       deps.Params.DefaultParameters(),
		symbolErrors: make(map[string]string),
	}
}

// Initialize loads symbol constraints and checks the data provider. Any
// failure here is fatal to startup.
func (e *TradingEngine) Initialize(ctx context.Context) error {
	if err := e.ActiveParams().Validate(); err != nil {
		return fmt.Errorf("default parameters: %w", err)
	}
	if p, ok := e.market.(pinger); ok {
		cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
		if err := p.Ping(cctx); err != nil {
			return fmt.Errorf("market data provider: %w", err)
		}
	}
	if err := e.sizer.Load(ctx, e.cfg.Symbols); err != nil {
		return fmt.Errorf("load symbol constraints: %w", err)
	}

	log.Info().
		Strs("symbols", e.cfg.Symbols).
		Str("mode", e.cfg.Mode).
		Str("configHash", e.ActiveParams().Hash()).
		Msg("trading engine initialized")
	return nil
}

// Run drives cycles on a fixed interval until ctx is cancelled. Cancellation
// is only observed between cycles: a cycle in flight runs on a detached
// context, bounded per call by CallTimeout, so an order already sent is
// booked before Run returns.
func (e *TradingEngine) Run(ctx context.Context) error {
	e.setRunning(true)
	defer e.setRunning(false)

	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	cycleCtx := context.WithoutCancel(ctx)
	e.RunCycle(cycleCtx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("trading loop stopped")
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			e.RunCycle(cycleCtx)
		}
	}
}

// RunCycle performs one decision pass over every symbol.
func (e *TradingEngine) RunCycle(ctx context.Context) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	start := e.now()
	if e.risk.RollDay(start) {
		log.Info().Msg("new trading day")
	}
	e.flushPending(ctx)

	e.mu.Lock()
	e.symbolErrors = make(map[string]string)
	e.mu.Unlock()

	for _, pos := range e.book.Snapshot() {
		e.step(pos.Symbol, func() error { return e.manageExit(ctx, pos) })
	}

	spreads := e.observeSpreads(ctx)
	maxSpread := 0.0
	for _, s := range spreads {
		if s > maxSpread {
			maxSpread = s
		}
	}
	breaker := e.updateBreaker(ctx, maxSpread)

	switch {
	case breaker != domain.BreakerNone:
		log.Debug().Str("breaker", string(breaker)).Msg("entries blocked")
	case e.IsPaused():
		log.Debug().Msg("entries paused")
	case !e.withinTradingHours(start):
		log.Debug().Msg("outside trading hours")
	default:
		params := e.ActiveParams()
		for _, symbol := range e.cfg.Symbols {
			if e.cfg.MaxPositions > 0 && e.book.Count() >= e.cfg.MaxPositions {
				break
			}
			spread, ok := spreads[symbol]
			e.step(symbol, func() error { return e.tryEnter(ctx, symbol, spread, ok, params) })
		}
	}

	e.mu.Lock()
	e.lastCycle = start
	e.mu.Unlock()

	log.Debug().
		Int("positions", e.book.Count()).
		Dur("elapsed", e.now().Sub(start)).
		Msg("cycle finished")
}

// step runs fn for one symbol, recovering panics and recording any error
// for this cycle.
func (e *TradingEngine) step(symbol string, fn func() error) {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = fn()
	}()

	if err == nil {
		return
	}
	log.Error().Err(err).Str("symbol", symbol).Msg("symbol step failed")
	e.mu.Lock()
	e.symbolErrors[symbol] = err.Error()
	e.mu.Unlock()
}

func (e *TradingEngine) observeSpreads(ctx context.Context) map[string]float64 {
	spreads := make(map[string]float64, len(e.cfg.Symbols))
	for _, symbol := range e.cfg.Symbols {
		cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		s, err := e.market.Spread(cctx, symbol)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("spread unavailable")
			continue
		}
		spreads[symbol] = s
	}
	return spreads
}

func (e *TradingEngine) updateBreaker(ctx context.Context, maxSpread float64) domain.Breaker {
	state := e.risk.State()
	var breaker domain.Breaker
	if !e.risk.CheckCircuitBreakers(state.ConsecutiveLosses, state.DailyPnl, maxSpread) {
		breaker = e.risk.Breaker(state.ConsecutiveLosses, state.DailyPnl, maxSpread)
	}

	e.mu.Lock()
	prev := e.breaker
	e.breaker = breaker
	e.mu.Unlock()

	if breaker != domain.BreakerNone && breaker != prev {
		e.notify(ctx, domain.Event{
			Kind:  domain.EventBreakerTripped,
			Title: "Circuit breaker tripped",
			Body:  fmt.Sprintf("%s | losses %d | daily pnl %.2f", breaker, state.ConsecutiveLosses, state.DailyPnl),
			Time:  e.now(),
		})
	}
	return breaker
}

func (e *TradingEngine) withinTradingHours(t time.Time) bool {
	for _, w := range e.cfg.AvoidWindows {
		if w.Contains(t) {
			return false
		}
	}
	return true
}

func (e *TradingEngine) manageExit(ctx context.Context, pos domain.Position) error {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	price, err := e.market.CurrentPrice(cctx, pos.Symbol)
	cancel()
	if err != nil {
		return fmt.Errorf("current price: %w", err)
	}

	decision := e.machine.DecideExit(pos, domain.ObservePrice(price), e.now())
	if decision.Action != domain.ActionExit {
		return nil
	}
	return e.closePosition(ctx, pos.Symbol, price, decision.Reason)
}

func (e *TradingEngine) closePosition(ctx context.Context, symbol string, price float64, reason domain.ExitReason) error {
	pos, err := e.book.BeginClose(symbol)
	if err != nil {
		return err
	}

	qty, err := e.sizer.ExitQuantity(symbol, pos.Quantity)
	if err != nil {
		e.book.AbortClose(symbol)
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	fill, err := e.executor.SubmitMarketOrder(cctx, symbol, pos.Side.ExitOrderSide(), qty)
	cancel()
	if err != nil {
		e.book.AbortClose(symbol)
		return fmt.Errorf("%w: close %s: %v", domain.ErrExecutionFailure, symbol, err)
	}

	exitPrice := fill.Price
	if exitPrice <= 0 {
		exitPrice = price
	}
	// Step flooring can leave dust behind; the trade covers what was sold.
	pos.Quantity = qty.InexactFloat64()
	if fill.Quantity.IsPositive() {
		pos.Quantity = fill.Quantity.InexactFloat64()
	}
	closedAt := e.now()
	trade := e.machine.Close(pos, exitPrice, reason, closedAt, e.newID())

	e.book.CompleteClose(symbol, closedAt, func() {
		e.risk.Update(trade)
		e.record(ctx, trade)
	})

	log.Info().
		Str("symbol", symbol).
		Str("reason", string(reason)).
		Float64("entry", trade.EntryPrice).
		Float64("exit", trade.ExitPrice).
		Float64("pnlPct", trade.PnlPct).
		Float64("pnl", trade.PnlAbsolute).
		Float64("durationMin", trade.DurationMinutes).
		Msg("position closed")

	e.notify(ctx, domain.Event{
		Kind:   domain.EventPositionClosed,
		Symbol: symbol,
		Title:  fmt.Sprintf("%s closed (%s)", symbol, reason),
		Body:   fmt.Sprintf("Exit %.6f | P/L %.2f%% (%.2f) | %.0f min", trade.ExitPrice, trade.PnlPct, trade.PnlAbsolute, trade.DurationMinutes),
		Trade:  &trade,
		Time:   closedAt,
	})
	return nil
}

func (e *TradingEngine) tryEnter(ctx context.Context, symbol string, spread float64, spreadKnown bool, params domain.ParameterSet) error {
	if e.book.Has(symbol) {
		return nil
	}
	now := e.now()
	if last, ok := e.book.LastTrade(symbol); ok && now.Sub(last) < e.cfg.Cooldown {
		return nil
	}
	if !spreadKnown || spread*100 > e.cfg.MaxEntrySpreadPct {
		log.Debug().Str("symbol", symbol).Float64("spread", spread).Bool("known", spreadKnown).Msg("spread too wide for entry")
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	candles, err := e.market.LatestCandles(cctx, symbol, e.cfg.CandleLimit)
	if err != nil {
		return fmt.Errorf("candles: %w", err)
	}
	if len(candles) < MinLiveCandles {
		return fmt.Errorf("%w: %s has %d candles", domain.ErrDataInsufficient, symbol, len(candles))
	}
	price, err := e.market.CurrentPrice(cctx, symbol)
	if err != nil {
		return fmt.Errorf("current price: %w", err)
	}

	snap := e.indicators.Snapshot(candles)
	decision := e.machine.DecideEntry(EntryCheck{Snapshot: snap, Price: price, Params: params})
	if decision.Action != domain.ActionEnter {
		return nil
	}

	available := e.cfg.Risk.InitialBalance*e.cfg.Risk.CapitalUsagePct/100 - e.book.UsedCapital()
	notional := e.risk.SizePosition(available, price)
	if notional <= 0 || notional > available {
		log.Debug().Str("symbol", symbol).Float64("available", available).Float64("notional", notional).Msg("insufficient capital for entry")
		return nil
	}
	qty, err := e.sizer.EntryQuantity(symbol, notional, price)
	if err != nil {
		return err
	}

	if err := e.book.Reserve(symbol, e.cfg.MaxPositions); err != nil {
		if errors.Is(err, domain.ErrMaxPositions) || errors.Is(err, domain.ErrPositionExists) {
			return nil
		}
		return err
	}

	fill, err := e.executor.SubmitMarketOrder(cctx, symbol, decision.Side.EntryOrderSide(), qty)
	if err != nil {
		e.book.Release(symbol)
		return fmt.Errorf("%w: open %s: %v", domain.ErrExecutionFailure, symbol, err)
	}

	fillPrice := fill.Price
	if fillPrice <= 0 {
		fillPrice = price
	}
	filledQty := qty.InexactFloat64()
	if fill.Quantity.IsPositive() {
		filledQty = fill.Quantity.InexactFloat64()
	}

	pos := e.machine.Open(OpenRequest{
		ID:       e.newID(),
		Symbol:   symbol,
		Side:     decision.Side,
		Price:    fillPrice,
		Quantity: filledQty,
		Time:     now,
		Params:   params,
		Snapshot: snap,
		OrderID:  fill.OrderID,
	})
	e.snapStops(&pos)
	e.book.Commit(pos)

	log.Info().
		Str("symbol", symbol).
		Str("side", string(pos.Side)).
		Float64("entry", pos.EntryPrice).
		Float64("qty", pos.Quantity).
		Float64("stopLoss", pos.StopLoss).
		Float64("takeProfit", pos.TakeProfit).
		Float64("rsi", snap.RSI).
		Bool("squeeze", snap.Squeeze).
		Str("divergence", snap.Divergence).
		Str("configHash", pos.ConfigHash).
		Msg("position opened")

	e.notify(ctx, domain.Event{
		Kind:     domain.EventPositionOpened,
		Symbol:   symbol,
		Title:    fmt.Sprintf("%s %s opened", symbol, pos.Side),
		Body:     fmt.Sprintf("Entry %.6f | SL %.6f | TP %.6f | RSI %.1f", pos.EntryPrice, pos.StopLoss, pos.TakeProfit, snap.RSI),
		Position: &pos,
		Time:     now,
	})
	return nil
}

// snapStops rounds the stop levels onto the symbol's price grid.
func (e *TradingEngine) snapStops(pos *domain.Position) {
	if sl, err := e.sizer.AdjustPrice(pos.Symbol, pos.StopLoss); err == nil && sl.IsPositive() {
		pos.StopLoss = sl.InexactFloat64()
	}
	if tp, err := e.sizer.AdjustPrice(pos.Symbol, pos.TakeProfit); err == nil && tp.IsPositive() {
		pos.TakeProfit = tp.InexactFloat64()
	}
}

// record journals a trade, queueing it for retry on failure.
func (e *TradingEngine) record(ctx context.Context, trade domain.Trade) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	if err := e.journal.Record(cctx, trade); err != nil {
		log.Error().Err(err).Str("trade", trade.ID).Msg("journal write failed, queued for retry")
		e.pendingMu.Lock()
		e.pending = append(e.pending, trade)
		e.pendingMu.Unlock()
	}
}

func (e *TradingEngine) flushPending(ctx context.Context) {
	e.pendingMu.Lock()
	queued := e.pending
	e.pending = nil
	e.pendingMu.Unlock()

	if len(queued) == 0 {
		return
	}
	var failed []domain.Trade
	for _, t := range queued {
		cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		err := e.journal.Record(cctx, t)
		cancel()
		if err != nil {
			failed = append(failed, t)
		}
	}

	e.pendingMu.Lock()
	e.pending = append(failed, e.pending...)
	e.pendingMu.Unlock()
	log.Info().Int("flushed", len(queued)-len(failed)).Int("pending", len(failed)).Msg("journal retry")
}

func (e *TradingEngine) notify(ctx context.Context, event domain.Event) {
	for _, n := range e.notifiers {
		cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		if err := n.Notify(cctx, event); err != nil {
			log.Warn().Err(err).Str("kind", string(event.Kind)).Msg("notification failed")
		}
		cancel()
	}
}

// Pause blocks new entries; open positions are still managed.
func (e *TradingEngine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	log.Info().Msg("trading paused")
}

func (e *TradingEngine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	log.Info().Msg("trading resumed")
}

func (e *TradingEngine) IsPaused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

func (e *TradingEngine) setRunning(v bool) {
	e.mu.Lock()
	e.running = v
	e.mu.Unlock()
}

// ActiveParams returns the parameter set used for new entries.
func (e *TradingEngine) ActiveParams() domain.ParameterSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// Positions returns copies of the open positions.
func (e *TradingEngine) Positions() []domain.Position {
	return e.book.Snapshot()
}

// RecentTrades reads the journal.
func (e *TradingEngine) RecentTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	return e.journal.RecentTrades(ctx, limit)
}

// Status assembles the operator view. Daily metrics come from the journal;
// a journal failure leaves them zero.
func (e *TradingEngine) Status(ctx context.Context) domain.EngineStatus {
	now := e.now()
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	daily, err := e.journal.DailyStats(cctx, now)
	cancel()
	if err != nil {
		log.Warn().Err(err).Msg("daily stats unavailable")
	}
	kelly := e.kellyFraction(ctx)

	e.pendingMu.Lock()
	pending := len(e.pending)
	e.pendingMu.Unlock()

	e.mu.RLock()
	defer e.mu.RUnlock()

	symbolErrors := make(map[string]string, len(e.symbolErrors))
	for k, v := range e.symbolErrors {
		symbolErrors[k] = v
	}

	return domain.EngineStatus{
		Running:        e.running,
		Paused:         e.paused,
		Mode:           e.cfg.Mode,
		Breaker:        e.breaker,
		Positions:      e.book.Snapshot(),
		Risk:           e.risk.State(),
		Daily:          daily,
		ConfigHash:     e.active.Hash(),
		Params:         e.active,
		KellyFraction:  kelly,
		PendingRecords: pending,
		SymbolErrors:   symbolErrors,
		LastCycle:      e.lastCycle,
		UpdatedAt:      now,
	}
}

// kellyFraction sizes the edge of the active parameters from their journaled
// trades. It is 0 until both a win and a loss have been recorded.
func (e *TradingEngine) kellyFraction(ctx context.Context) float64 {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	trades, err := e.journal.TradesByConfig(cctx, e.ActiveParams().Hash())
	if err != nil {
		log.Warn().Err(err).Msg("trades by config unavailable")
		return 0
	}
	m := domain.ComputeMetrics(trades)
	return KellyFraction(m.WinRate/100, m.AvgProfitPct, -m.AvgLossPct)
}

// Shutdown waits for the in-flight cycle, optionally closes every open
// position and retries pending journal writes.
func (e *TradingEngine) Shutdown(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	var errs []error
	if e.cfg.CloseOnShutdown {
		for _, pos := range e.book.Snapshot() {
			cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
			price, err := e.market.CurrentPrice(cctx, pos.Symbol)
			cancel()
			if err != nil {
				price = pos.EntryPrice
				log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("no price at shutdown, using entry price")
			}
			if err := e.closePosition(ctx, pos.Symbol, price, domain.ExitShutdown); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", pos.Symbol, err))
			}
		}
	}
	e.flushPending(ctx)

	e.pendingMu.Lock()
	if n := len(e.pending); n > 0 {
		errs = append(errs, fmt.Errorf("%d trades not journaled", n))
	}
	e.pendingMu.Unlock()

	log.Info().Int("openPositions", e.book.Count()).Msg("trading engine shut down")
	return errors.Join(errs...)
}

// RunBacktest replays recent history for symbol. A zero params value uses
// the active parameters.
func (e *TradingEngine) RunBacktest(ctx context.Context, symbol string, params domain.ParameterSet) (BacktestResult, error) {
	if params == (domain.ParameterSet{}) {
		params = e.ActiveParams()
	}
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	candles, err := e.market.LatestCandles(cctx, symbol, e.cfg.BacktestCandles)
	cancel()
	if err != nil {
		return BacktestResult{Symbol: symbol, Params: params}, fmt.Errorf("history: %w", err)
	}
	return e.backtest.Run(ctx, symbol, candles, params)
}

// Optimize sweeps the configured grid over every symbol and hot-swaps the
// winner when it passes validation and beats the active parameters.
func (e *TradingEngine) Optimize(ctx context.Context) (OptimizeOutcome, error) {
	history := make(map[string][]domain.Candle, len(e.cfg.Symbols))
	for _, symbol := range e.cfg.Symbols {
		cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		candles, err := e.market.LatestCandles(cctx, symbol, e.cfg.BacktestCandles)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("history unavailable for optimization")
			continue
		}
		history[symbol] = candles
	}
	if len(history) == 0 {
		return OptimizeOutcome{}, fmt.Errorf("%w: no history for any symbol", domain.ErrDataInsufficient)
	}

	active := e.ActiveParams()
	res, err := e.optimizer.Optimize(ctx, e.cfg.Symbols, history, active, e.params.OptimizationGrid())
	if err != nil {
		return OptimizeOutcome{Result: res}, err
	}

	outcome := OptimizeOutcome{Result: res, Current: e.replayMetrics(ctx, history, active)}
	outcome.Valid, outcome.Rejections = ValidateStrategy(res.Metrics, e.cfg.Validation)
	if !outcome.Valid {
		log.Info().Strs("rejections", outcome.Rejections).Msg("optimized parameters rejected")
		return outcome, nil
	}
	if !ShouldUpdateParams(outcome.Current, res.Metrics, e.cfg.MinImprovementPct) {
		log.Info().Float64("bestScore", res.BestScore).Msg("optimized parameters not better enough")
		return outcome, nil
	}

	e.mu.Lock()
	e.active = res.Best
	e.mu.Unlock()
	outcome.Applied = true

	log.Info().
		Str("from", active.Hash()).
		Str("to", res.Best.Hash()).
		Float64("bestScore", res.BestScore).
		Msg("parameters updated")
	e.notify(ctx, domain.Event{
		Kind:  domain.EventParamsUpdated,
		Title: "Parameters updated",
		Body:  fmt.Sprintf("Config %s -> %s | score %.2f", active.Hash(), res.Best.Hash(), res.BestScore),
		Time:  e.now(),
	})
	return outcome, nil
}

// replayMetrics aggregates the active parameters' trades across symbols, or
// nil when no symbol could be replayed.
func (e *TradingEngine) replayMetrics(ctx context.Context, history map[string][]domain.Candle, params domain.ParameterSet) *domain.Metrics {
	var trades []domain.Trade
	replayed := false
	for _, symbol := range e.cfg.Symbols {
		res, err := e.backtest.Run(ctx, symbol, history[symbol], params)
		if err != nil {
			continue
		}
		replayed = true
		trades = append(trades, res.Trades...)
	}
	if !replayed {
		return nil
	}
	m := domain.ComputeMetrics(trades)
	return &m
}
