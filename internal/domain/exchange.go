package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SymbolConstraints are the venue's lot and notional rules for one symbol.
type SymbolConstraints struct {
	Symbol         string          `json:"symbol"`
	MinQty         decimal.Decimal `json:"minQty"`
	MaxQty         decimal.Decimal `json:"maxQty"`
	StepSize       decimal.Decimal `json:"stepSize"`
	MinNotional    decimal.Decimal `json:"minNotional"`
	TickSize       decimal.Decimal `json:"tickSize"`
	PricePrecision int32           `json:"pricePrecision"`
}

// Validate requires a positive step and step-aligned quantity bounds, so
// floor-then-clamp always lands on a multiple of StepSize.
func (c SymbolConstraints) Validate() error {
	if !c.StepSize.IsPositive() {
		return fmt.Errorf("%w: %s step size %s", ErrConstraintUnavailable, c.Symbol, c.StepSize)
	}
	if c.MinQty.IsNegative() || c.MaxQty.LessThan(c.MinQty) {
		return fmt.Errorf("%w: %s qty bounds [%s, %s]", ErrConstraintUnavailable, c.Symbol, c.MinQty, c.MaxQty)
	}
	if !c.MinQty.Mod(c.StepSize).IsZero() || !c.MaxQty.Mod(c.StepSize).IsZero() {
		return fmt.Errorf("%w: %s qty bounds not aligned to step %s", ErrConstraintUnavailable, c.Symbol, c.StepSize)
	}
	return nil
}

// Fill is the executed result of a market order.
type Fill struct {
	OrderID  string          `json:"orderId"`
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Price    float64         `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Fees     float64         `json:"fees"`
	Time     time.Time       `json:"time"`
}
