package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"spot-engine/internal/domain"
)

// AdjustQuantity floors raw to a multiple of the lot step, then clamps it to
// [MinQty, MaxQty]. Bounds are step-aligned (SymbolConstraints.Validate), so
// the result is always a step multiple.
func AdjustQuantity(c domain.SymbolConstraints, raw decimal.Decimal) decimal.Decimal {
	qty := raw.Div(c.StepSize).Floor().Mul(c.StepSize)
	if qty.LessThan(c.MinQty) {
		qty = c.MinQty
	}
	if c.MaxQty.IsPositive() && qty.GreaterThan(c.MaxQty) {
		qty = c.MaxQty
	}
	return qty
}

// ValidateNotional rejects orders whose value is below minNotional.
func ValidateNotional(qty, price, minNotional decimal.Decimal) bool {
	return !qty.Mul(price).LessThan(minNotional)
}

// OrderSizer converts notionals into exchange-legal quantities using
// constraints fetched once at startup.
type OrderSizer struct {
	port domain.SymbolConstraintsPort

	mu    sync.RWMutex
	cache map[string]domain.SymbolConstraints
}

func NewOrderSizer(port domain.SymbolConstraintsPort) *OrderSizer {
	return &OrderSizer{
		port:  port,
		cache: make(map[string]domain.SymbolConstraints),
	}
}

// Load fetches and validates constraints for every symbol. Symbols that fail
// stay blocked; the joined error is returned so startup can abort.
func (s *OrderSizer) Load(ctx context.Context, symbols []string) error {
	var errs []error
	for _, symbol := range symbols {
		c, err := s.port.Constraints(ctx, symbol)
		if err == nil {
			err = c.Validate()
		}
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("symbol constraints unavailable")
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
			continue
		}
		c.Symbol = symbol

		s.mu.Lock()
		s.cache[symbol] = c
		s.mu.Unlock()

		log.Info().
			Str("symbol", symbol).
			Str("stepSize", c.StepSize.String()).
			Str("minQty", c.MinQty.String()).
			Str("minNotional", c.MinNotional.String()).
			Msg("symbol constraints loaded")
	}
	return errors.Join(errs...)
}

// Constraints returns cached constraints or ErrConstraintUnavailable.
func (s *OrderSizer) Constraints(symbol string) (domain.SymbolConstraints, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cache[symbol]
	if !ok {
		return domain.SymbolConstraints{}, fmt.Errorf("%w: %s", domain.ErrConstraintUnavailable, symbol)
	}
	return c, nil
}

// EntryQuantity sizes a buy of notional quote at price.
func (s *OrderSizer) EntryQuantity(symbol string, notional, price float64) (decimal.Decimal, error) {
	c, err := s.Constraints(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if price <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %s non-positive price", domain.ErrPriceUnavailable, symbol)
	}

	p := decimal.NewFromFloat(price)
	qty := AdjustQuantity(c, decimal.NewFromFloat(notional).Div(p))
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s adjusted quantity is zero", domain.ErrOrderTooSmall, symbol)
	}
	if !ValidateNotional(qty, p, c.MinNotional) {
		return decimal.Zero, fmt.Errorf("%w: %s notional %s < %s", domain.ErrOrderTooSmall, symbol, qty.Mul(p).StringFixed(2), c.MinNotional)
	}
	return qty, nil
}

// ExitQuantity rounds a held quantity to the lot step for a closing order.
func (s *OrderSizer) ExitQuantity(symbol string, held float64) (decimal.Decimal, error) {
	c, err := s.Constraints(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	qty := AdjustQuantity(c, decimal.NewFromFloat(held))
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s exit quantity is zero", domain.ErrOrderTooSmall, symbol)
	}
	return qty, nil
}

// AdjustPrice rounds price to the nearest tick, or to the price precision
// when no tick is known.
func (s *OrderSizer) AdjustPrice(symbol string, price float64) (decimal.Decimal, error) {
	c, err := s.Constraints(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	p := decimal.NewFromFloat(price)
	if c.TickSize.IsPositive() {
		return p.Div(c.TickSize).Round(0).Mul(c.TickSize), nil
	}
	return p.Round(c.PricePrecision), nil
}
