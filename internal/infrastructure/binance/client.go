package binance

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"spot-engine/internal/domain"
)

const (
	SpotBaseURL    = "https://api.binance.com"
	TestnetBaseURL = "https://testnet.binance.vision"

	SpotStreamURL    = "wss://stream.binance.com:9443/ws"
	TestnetStreamURL = "wss://testnet.binance.vision/ws"

	// MaxKlinesPerRequest is the venue's page size for /api/v3/klines.
	MaxKlinesPerRequest = 1000
)

var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// IntervalDuration returns the candle length of a kline interval.
func IntervalDuration(interval string) (time.Duration, error) {
	d, ok := intervals[interval]
	if !ok {
		return 0, fmt.Errorf("unsupported kline interval %q", interval)
	}
	return d, nil
}

// Client is the public (unsigned) spot REST client. Requests share a
// per-minute budget.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ domain.SymbolConstraintsPort = (*Client)(nil)

func NewClient(baseURL string, requestsPerMinute int) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    newMinuteLimiter(requestsPerMinute),
	}
}

func newMinuteLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute/10+1)
}

type BookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

// Spread is (ask-bid)/bid.
func (t BookTicker) Spread() (float64, error) {
	bid, err := strconv.ParseFloat(t.BidPrice, 64)
	if err != nil {
		return 0, err
	}
	ask, err := strconv.ParseFloat(t.AskPrice, 64)
	if err != nil {
		return 0, err
	}
	if bid <= 0 || ask < bid {
		return 0, fmt.Errorf("%w: %s bid %s ask %s", domain.ErrPriceUnavailable, t.Symbol, t.BidPrice, t.AskPrice)
	}
	return (ask - bid) / bid, nil
}

type ExchangeInfo struct {
	Symbols []SymbolInfo `json:"symbols"`
}

type SymbolInfo struct {
	Symbol  string         `json:"symbol"`
	Status  string         `json:"status"`
	Filters []SymbolFilter `json:"filters"`
}

type SymbolFilter struct {
	FilterType  string `json:"filterType"`
	MinQty      string `json:"minQty,omitempty"`
	MaxQty      string `json:"maxQty,omitempty"`
	StepSize    string `json:"stepSize,omitempty"`
	TickSize    string `json:"tickSize,omitempty"`
	MinNotional string `json:"minNotional,omitempty"`
}

// get performs a rate-limited GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	fullURL := c.baseURL + endpoint
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return parseAPIError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// Ping checks REST connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.get(ctx, "/api/v3/ping", nil, nil)
}

// Klines returns up to limit candles ending at the most recent one. Zero
// start or end times are omitted.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int, start, end time.Time) ([]domain.Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if !start.IsZero() {
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}

	// Binance returns: [[open_time, open, high, low, close, volume, ...], ...]
	var raw [][]any
	if err := c.get(ctx, "/api/v3/klines", params, &raw); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, row := range raw {
		candle, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("%s kline: %w", symbol, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// HistoricalKlines pages through [from, to) in MaxKlinesPerRequest chunks.
func (c *Client) HistoricalKlines(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Candle, error) {
	var out []domain.Candle
	cursor := from
	for cursor.Before(to) {
		page, err := c.Klines(ctx, symbol, interval, MaxKlinesPerRequest, cursor, to.Add(-time.Millisecond))
		if err != nil {
			return out, err
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)

		next := page[len(page)-1].OpenTime.Add(time.Millisecond)
		if !next.After(cursor) || len(page) < MaxKlinesPerRequest {
			break
		}
		cursor = next
	}
	return out, nil
}

func parseKline(row []any) (domain.Candle, error) {
	if len(row) < 6 {
		return domain.Candle{}, fmt.Errorf("short row of %d fields", len(row))
	}
	openMs, ok := row[0].(float64)
	if !ok {
		return domain.Candle{}, fmt.Errorf("open time %v", row[0])
	}

	var vals [5]float64
	for i := range vals {
		s, ok := row[i+1].(string)
		if !ok {
			return domain.Candle{}, fmt.Errorf("field %d: %v", i+1, row[i+1])
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Candle{}, err
		}
		vals[i] = v
	}

	return domain.Candle{
		OpenTime: time.UnixMilli(int64(openMs)).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

// Price returns the last traded price.
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	var data struct {
		Price string `json:"price"`
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	if err := c.get(ctx, "/api/v3/ticker/price", params, &data); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(data.Price, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("%w: %s price %q", domain.ErrPriceUnavailable, symbol, data.Price)
	}
	return price, nil
}

// BookTicker returns the best bid and ask.
func (c *Client) BookTicker(ctx context.Context, symbol string) (BookTicker, error) {
	var t BookTicker
	params := url.Values{}
	params.Set("symbol", symbol)
	err := c.get(ctx, "/api/v3/ticker/bookTicker", params, &t)
	return t, err
}

// Constraints reads LOT_SIZE, PRICE_FILTER and NOTIONAL rules from exchangeInfo.
func (c *Client) Constraints(ctx context.Context, symbol string) (domain.SymbolConstraints, error) {
	var info ExchangeInfo
	params := url.Values{}
	params.Set("symbol", symbol)
	if err := c.get(ctx, "/api/v3/exchangeInfo", params, &info); err != nil {
		return domain.SymbolConstraints{}, err
	}

	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return constraintsFromFilters(s)
		}
	}
	return domain.SymbolConstraints{}, fmt.Errorf("%w: %s not listed", domain.ErrConstraintUnavailable, symbol)
}

func constraintsFromFilters(s SymbolInfo) (domain.SymbolConstraints, error) {
	c := domain.SymbolConstraints{Symbol: s.Symbol}
	var lotFound bool
	for _, f := range s.Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			lotFound = true
			c.MinQty = parseDecimal(f.MinQty)
			c.MaxQty = parseDecimal(f.MaxQty)
			c.StepSize = parseDecimal(f.StepSize)
		case "PRICE_FILTER":
			c.TickSize = parseDecimal(f.TickSize)
			c.PricePrecision = decimalPlaces(c.TickSize)
		case "NOTIONAL", "MIN_NOTIONAL":
			c.MinNotional = parseDecimal(f.MinNotional)
		}
	}
	if !lotFound {
		return c, fmt.Errorf("%w: %s has no LOT_SIZE filter", domain.ErrConstraintUnavailable, s.Symbol)
	}
	return c, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// decimalPlaces counts significant fractional digits, e.g. 0.01000000 -> 2.
func decimalPlaces(d decimal.Decimal) int32 {
	s := d.String()
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return int32(len(s) - i - 1)
	}
	return 0
}
