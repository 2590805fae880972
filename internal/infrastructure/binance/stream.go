package binance

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	defaultPingPeriod       = 15 * time.Second
	defaultReadLimit        = 1 << 20
	defaultHandshakeTimeout = 10 * time.Second
	maxBackoff              = 32 * time.Second
)

// StreamState is the connection state of a ticker stream.
type StreamState int32

const (
	StateConnecting StreamState = iota
	StateConnected
	StateBackoff
	// StateFallback is terminal: the stream gave up and callers use REST.
	StateFallback
)

func (s StreamState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateBackoff:
		return "BACKOFF"
	case StateFallback:
		return "FALLBACK"
	}
	return "UNKNOWN"
}

// ErrStreamFallback is returned by Run once reconnect attempts are exhausted.
var ErrStreamFallback = errors.New("ticker stream exhausted reconnect attempts")

// Quote is one ticker update.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Last   float64
	Time   time.Time
}

// StreamConfig defines settings for the ticker stream.
type StreamConfig struct {
	// Endpoint is the raw stream base, e.g. wss://stream.binance.com:9443/ws.
	Endpoint        string
	Symbols         []string
	MaxReconnects   int
	PingPeriod      time.Duration
	TLSInsecureSkip bool
	// BackoffUnit scales the 2^n backoff; one second unless set.
	BackoffUnit time.Duration
}

// Stream keeps a combined @ticker subscription alive and forwards quotes to
// handler. Reconnects back off exponentially; after MaxReconnects
// consecutive failures the stream switches to FALLBACK and stops.
type Stream struct {
	cfg     StreamConfig
	handler func(Quote)

	state   atomic.Int32
	attempt atomic.Int32
	conn    atomic.Value // *websocket.Conn
	once    sync.Once
}

func NewStream(cfg StreamConfig, handler func(Quote)) *Stream {
	if cfg.PingPeriod == 0 {
		cfg.PingPeriod = defaultPingPeriod
	}
	if cfg.BackoffUnit == 0 {
		cfg.BackoffUnit = time.Second
	}
	return &Stream{cfg: cfg, handler: handler}
}

// BackoffDelay is min(2^attempt, 32) units.
func BackoffDelay(attempt int, unit time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 5 {
		return maxBackoff / time.Second * unit
	}
	return time.Duration(1<<attempt) * unit
}

func (s *Stream) State() StreamState {
	return StreamState(s.state.Load())
}

// Healthy reports whether quotes are currently flowing.
func (s *Stream) Healthy() bool {
	return s.State() == StateConnected
}

func (s *Stream) setState(st StreamState) {
	prev := StreamState(s.state.Swap(int32(st)))
	if prev != st {
		log.Info().Str("component", "stream").Str("from", prev.String()).Str("to", st.String()).Msg("stream state changed")
	}
}

// URL is the combined raw-stream path for the configured symbols.
func (s *Stream) URL() string {
	names := make([]string, 0, len(s.cfg.Symbols))
	for _, sym := range s.cfg.Symbols {
		names = append(names, strings.ToLower(sym)+"@ticker")
	}
	base := strings.TrimRight(s.cfg.Endpoint, "/")
	if strings.HasSuffix(base, "/ws") {
		base = strings.TrimSuffix(base, "/ws") + "/stream"
	}
	return base + "?streams=" + strings.Join(names, "/")
}

// Run connects and reads until ctx is cancelled or the stream falls back.
func (s *Stream) Run(ctx context.Context) error {
	logger := log.With().Str("component", "stream").Str("endpoint", s.cfg.Endpoint).Logger()

	for {
		if ctx.Err() != nil {
			return nil
		}

		s.setState(StateConnecting)
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		n := int(s.attempt.Add(1))
		if s.cfg.MaxReconnects > 0 && n >= s.cfg.MaxReconnects {
			s.setState(StateFallback)
			logger.Error().Err(err).Int("attempts", n).Msg("max reconnect attempts reached, using REST")
			return ErrStreamFallback
		}

		wait := BackoffDelay(n, s.cfg.BackoffUnit)
		s.setState(StateBackoff)
		logger.Warn().Err(err).Int("attempt", n).Dur("wait", wait).Msg("stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// session runs one connection until it fails.
func (s *Stream) session(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		TLSClientConfig:  &tls.Config{InsecureSkipVerify: s.cfg.TLSInsecureSkip},
		HandshakeTimeout: defaultHandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, s.URL(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	s.conn.Store(conn)

	conn.SetReadLimit(defaultReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PingPeriod * 2))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PingPeriod * 2))
	})

	s.attempt.Store(0)
	s.setState(StateConnected)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.pingLoop(sessionCtx, conn)
	go func() {
		<-sessionCtx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PingPeriod * 2))

		q, err := parseTickerMessage(data)
		if err != nil {
			log.Debug().Err(err).Msg("skipping stream message")
			continue
		}
		s.handler(q)
	}
}

func (s *Stream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				log.Warn().Err(err).Msg("ping error")
			}
		}
	}
}

// Close drops the current connection; Run stops once its context is done.
func (s *Stream) Close() {
	s.once.Do(func() {
		if c, ok := s.conn.Load().(*websocket.Conn); ok && c != nil {
			c.Close()
		}
	})
}

type tickerEvent struct {
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Last      string `json:"c"`
	Bid       string `json:"b"`
	Ask       string `json:"a"`
}

// parseTickerMessage accepts both combined {"stream","data"} envelopes and
// bare ticker events.
func parseTickerMessage(data []byte) (Quote, error) {
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Quote{}, err
	}
	payload := data
	if len(envelope.Data) > 0 {
		payload = envelope.Data
	}

	var ev tickerEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Quote{}, err
	}
	if ev.Symbol == "" {
		return Quote{}, errors.New("not a ticker event")
	}

	q := Quote{Symbol: ev.Symbol, Time: time.UnixMilli(ev.EventTime).UTC()}
	for _, f := range []struct {
		raw string
		dst *float64
	}{{ev.Last, &q.Last}, {ev.Bid, &q.Bid}, {ev.Ask, &q.Ask}} {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return Quote{}, fmt.Errorf("%s ticker: %w", ev.Symbol, err)
		}
		*f.dst = v
	}
	return q, nil
}
