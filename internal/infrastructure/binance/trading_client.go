package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
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

// TradingClient handles authenticated spot order requests.
type TradingClient struct {
	apiKey     string
	secretKey  string
	baseURL    string
	recvWindow time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ domain.OrderExecutionPort = (*TradingClient)(nil)

// APIError captures structured error info returned by Binance.
type APIError struct {
	StatusCode int
	Code       int    `json:"code"`
	Message    string `json:"msg"`
	Body       string
}

func (e *APIError) Error() string {
	if e == nil {
		return "binance API error"
	}
	if e.Code != 0 || e.Message != "" {
		return fmt.Sprintf("binance API error %d (code=%d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("binance API error %d: %s", e.StatusCode, e.Body)
}

// Temporary reports rate limiting and server-side failures.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == 418 || e.StatusCode >= 500
}

func parseAPIError(statusCode int, body []byte) error {
	var parsed struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && (parsed.Code != 0 || parsed.Msg != "") {
		return &APIError{StatusCode: statusCode, Code: parsed.Code, Message: parsed.Msg, Body: string(body)}
	}
	return &APIError{StatusCode: statusCode, Body: string(body)}
}

// NewTradingClient creates an authenticated client limited to
// ordersPerMinute signed requests.
func NewTradingClient(apiKey, secretKey, baseURL string, ordersPerMinute int) *TradingClient {
	return &TradingClient{
		apiKey:     apiKey,
		secretKey:  secretKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		recvWindow: 5 * time.Second,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    newMinuteLimiter(ordersPerMinute),
	}
}

// TestConnection checks the credentials against the account endpoint.
func (c *TradingClient) TestConnection(ctx context.Context) error {
	_, err := c.Balances(ctx)
	return err
}

// Balance is a non-zero spot asset balance.
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// Balances returns assets with a non-zero free or locked amount.
func (c *TradingClient) Balances(ctx context.Context) (map[string]Balance, error) {
	var account struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v3/account", nil, &account); err != nil {
		return nil, err
	}

	out := make(map[string]Balance)
	for _, b := range account.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		if free > 0 || locked > 0 {
			out[b.Asset] = Balance{Asset: b.Asset, Free: free, Locked: locked}
		}
	}
	return out, nil
}

type orderResponse struct {
	OrderID             int64  `json:"orderId"`
	Symbol              string `json:"symbol"`
	Status              string `json:"status"`
	Side                string `json:"side"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	TransactTime        int64  `json:"transactTime"`
	Fills               []struct {
		Price      string `json:"price"`
		Qty        string `json:"qty"`
		Commission string `json:"commission"`
	} `json:"fills"`
}

// SubmitMarketOrder places a spot MARKET order and returns the aggregated fill.
func (c *TradingClient) SubmitMarketOrder(ctx context.Context, symbol, side string, qty decimal.Decimal) (domain.Fill, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", qty.String())
	params.Set("newOrderRespType", "FULL")

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/api/v3/order", params, &resp); err != nil {
		return domain.Fill{}, err
	}
	return resp.toFill()
}

func (r orderResponse) toFill() (domain.Fill, error) {
	executed := parseDecimal(r.ExecutedQty)
	if !executed.IsPositive() {
		return domain.Fill{}, fmt.Errorf("order %d %s: nothing executed", r.OrderID, r.Status)
	}
	quote := parseDecimal(r.CummulativeQuoteQty)

	fees := decimal.Zero
	for _, f := range r.Fills {
		fees = fees.Add(parseDecimal(f.Commission))
	}

	return domain.Fill{
		OrderID:  strconv.FormatInt(r.OrderID, 10),
		Symbol:   r.Symbol,
		Side:     r.Side,
		Price:    quote.Div(executed).InexactFloat64(),
		Quantity: executed,
		Fees:     fees.InexactFloat64(),
		Time:     time.UnixMilli(r.TransactTime).UTC(),
	}, nil
}

// do sends a signed request and decodes a JSON response into out.
func (c *TradingClient) do(ctx context.Context, method, endpoint string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	resp, err := c.signedRequest(ctx, method, endpoint, params)
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

// signedRequest makes a signed API request
func (c *TradingClient) signedRequest(ctx context.Context, method, endpoint string, params url.Values) (*http.Response, error) {
	if params == nil {
		params = url.Values{}
	}

	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(c.recvWindow.Milliseconds(), 10))

	queryString := params.Encode()
	fullURL := c.baseURL + endpoint + "?" + queryString + "&signature=" + c.sign(queryString)

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	return c.httpClient.Do(req)
}

// sign creates HMAC SHA256 signature
func (c *TradingClient) sign(message string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}
