package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"spot-engine/internal/domain"
)

// PriceSource quotes the last price of a symbol.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// PaperExecutor fills market orders at the current price without touching
// the exchange. FeePct is charged on each fill's notional.
type PaperExecutor struct {
	prices PriceSource
	feePct float64
	now    func() time.Time
}

var _ domain.OrderExecutionPort = (*PaperExecutor)(nil)

func NewPaperExecutor(prices PriceSource, feePct float64) *PaperExecutor {
	return &PaperExecutor{prices: prices, feePct: feePct, now: time.Now}
}

func (p *PaperExecutor) SubmitMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal) (domain.Fill, error) {
	if !qty.IsPositive() {
		return domain.Fill{}, fmt.Errorf("paper %s %s: quantity %s", side, symbol, qty)
	}
	price, err := p.prices.CurrentPrice(ctx, symbol)
	if err != nil {
		return domain.Fill{}, err
	}

	notional := qty.InexactFloat64() * price
	fill := domain.Fill{
		OrderID:  "paper-" + uuid.NewString(),
		Symbol:   symbol,
		Side:     side,
		Price:    price,
		Quantity: qty,
		Fees:     notional * p.feePct / 100,
		Time:     p.now().UTC(),
	}
	log.Info().
		Str("component", "paper").
		Str("symbol", symbol).
		Str("side", side).
		Str("qty", qty.String()).
		Float64("price", price).
		Msg("paper fill")
	return fill, nil
}
