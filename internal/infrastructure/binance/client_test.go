package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spot-engine/internal/domain"
)

func TestClient_Klines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		w.Write([]byte(`[
			[1700000000000,"100.1","101.2","99.3","100.5","12.5",1700000059999,"0",1,"0","0","0"],
			[1700000060000,"100.5","100.9","100.0","100.2","8.25",1700000119999,"0",1,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	candles, err := c.Klines(context.Background(), "BTCUSDT", "1m", 2, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), candles[0].OpenTime)
	assert.Equal(t, 101.2, candles[0].High)
	assert.Equal(t, 8.25, candles[1].Volume)
	require.NoError(t, domain.ValidateSeries(candles))
}

func TestClient_HistoricalKlinesPages(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	total := MaxKlinesPerRequest + 250
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		from, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		first := int((time.UnixMilli(from).Sub(start) + time.Minute - 1) / time.Minute)

		var rows []string
		for i := first; i < total && len(rows) < MaxKlinesPerRequest; i++ {
			ms := start.Add(time.Duration(i) * time.Minute).UnixMilli()
			rows = append(rows, `[`+strconv.FormatInt(ms, 10)+`,"1","2","0.5","1.5","10"]`)
		}
		w.Write([]byte("[" + strings.Join(rows, ",") + "]"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	candles, err := c.HistoricalKlines(context.Background(), "BTCUSDT", "1m", start, start.Add(time.Duration(total)*time.Minute))
	require.NoError(t, err)
	assert.Len(t, candles, total)
	assert.EqualValues(t, 2, calls.Load())
	require.NoError(t, domain.ValidateSeries(candles))
}

func TestClient_Constraints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"symbols":[{"symbol":"ETHUSDT","status":"TRADING","filters":[
			{"filterType":"PRICE_FILTER","minPrice":"0.01","maxPrice":"1000000","tickSize":"0.01000000"},
			{"filterType":"LOT_SIZE","minQty":"0.00010000","maxQty":"9000.00000000","stepSize":"0.00010000"},
			{"filterType":"NOTIONAL","minNotional":"5.00000000"}
		]}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, 0).Constraints(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.True(t, c.StepSize.Equal(decimal.RequireFromString("0.0001")))
	assert.True(t, c.MinQty.Equal(decimal.RequireFromString("0.0001")))
	assert.True(t, c.MaxQty.Equal(decimal.RequireFromString("9000")))
	assert.True(t, c.MinNotional.Equal(decimal.RequireFromString("5")))
	assert.Equal(t, int32(2), c.PricePrecision)
	assert.NoError(t, c.Validate())

	_, err = NewClient(srv.URL, 0).Constraints(context.Background(), "XRPUSDT")
	assert.ErrorIs(t, err, domain.ErrConstraintUnavailable)
}

func TestClient_SpreadAndAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/ticker/bookTicker":
			w.Write([]byte(`{"symbol":"BTCUSDT","bidPrice":"100.00","askPrice":"100.05"}`))
		default:
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	bt, err := c.BookTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	spread, err := bt.Spread()
	require.NoError(t, err)
	assert.InDelta(t, 0.0005, spread, 1e-12)

	_, err = c.Price(context.Background(), "BTCUSDT")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, -1003, apiErr.Code)
	assert.True(t, apiErr.Temporary())
}

func TestTradingClient_SubmitMarketOrder(t *testing.T) {
	const secret = "s3cr3t"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/order", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))

		raw := r.URL.RawQuery
		idx := strings.LastIndex(raw, "&signature=")
		require.Positive(t, idx)
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(raw[:idx]))
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), raw[idx+len("&signature="):])

		q := r.URL.Query()
		assert.Equal(t, "MARKET", q.Get("type"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "0.225", q.Get("quantity"))

		w.Write([]byte(`{"orderId":42,"symbol":"BTCUSDT","status":"FILLED","side":"BUY",
			"executedQty":"0.22500000","cummulativeQuoteQty":"22.59000000","transactTime":1700000000000,
			"fills":[{"price":"100.3","qty":"0.1","commission":"0.0001"},{"price":"100.5","qty":"0.125","commission":"0.0001"}]}`))
	}))
	defer srv.Close()

	c := NewTradingClient("key", secret, srv.URL, 0)
	fill, err := c.SubmitMarketOrder(context.Background(), "BTCUSDT", "BUY", decimal.RequireFromString("0.225"))
	require.NoError(t, err)
	assert.Equal(t, "42", fill.OrderID)
	assert.InDelta(t, 100.4, fill.Price, 1e-9)
	assert.True(t, fill.Quantity.Equal(decimal.RequireFromString("0.225")))
	assert.InDelta(t, 0.0002, fill.Fees, 1e-12)
}

func TestTradingClient_RejectedOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-1013,"msg":"Filter failure: NOTIONAL"}`))
	}))
	defer srv.Close()

	c := NewTradingClient("key", "secret", srv.URL, 0)
	_, err := c.SubmitMarketOrder(context.Background(), "BTCUSDT", "SELL", decimal.RequireFromString("0.001"))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, -1013, apiErr.Code)
	assert.False(t, apiErr.Temporary())
}

func TestIntervalDuration(t *testing.T) {
	d, err := IntervalDuration("5m")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, d)

	d, err = IntervalDuration("1d")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d)

	_, err = IntervalDuration("7m")
	assert.Error(t, err)
}
