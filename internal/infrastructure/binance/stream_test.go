package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelay(t *testing.T) {
	want := []time.Duration{1, 2, 4, 8, 16, 32, 32, 32}
	for attempt, w := range want {
		assert.Equal(t, w*time.Second, BackoffDelay(attempt, time.Second), "attempt %d", attempt)
	}
}

func TestStream_URL(t *testing.T) {
	s := NewStream(StreamConfig{Endpoint: SpotStreamURL, Symbols: []string{"BTCUSDT", "ETHUSDT"}}, nil)
	assert.Equal(t, "wss://stream.binance.com:9443/stream?streams=btcusdt@ticker/ethusdt@ticker", s.URL())
}

func TestParseTickerMessage(t *testing.T) {
	q, err := parseTickerMessage([]byte(`{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1700000000000,"s":"BTCUSDT","c":"100.5","b":"100.4","a":"100.6"}}`))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", q.Symbol)
	assert.Equal(t, 100.5, q.Last)
	assert.Equal(t, 100.4, q.Bid)
	assert.Equal(t, 100.6, q.Ask)

	_, err = parseTickerMessage([]byte(`{"result":null,"id":1}`))
	assert.Error(t, err)
}

func TestStream_DeliversQuotes(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "btcusdt@ticker", r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@ticker","data":{"E":1700000000000,"s":"BTCUSDT","c":"100.5","b":"100.4","a":"100.6"}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	var mu sync.Mutex
	var got []Quote
	s := NewStream(StreamConfig{
		Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		Symbols:  []string{"BTCUSDT"},
	}, func(q Quote) {
		mu.Lock()
		got = append(got, q)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, s.Healthy())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestStream_FallsBackAfterMaxReconnects(t *testing.T) {
	var dials atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewStream(StreamConfig{
		Endpoint:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		Symbols:       []string{"BTCUSDT"},
		MaxReconnects: 3,
		BackoffUnit:   time.Millisecond,
	}, func(Quote) {})

	err := s.Run(context.Background())
	assert.ErrorIs(t, err, ErrStreamFallback)
	assert.Equal(t, StateFallback, s.State())
	assert.EqualValues(t, 3, dials.Load())
	assert.False(t, s.Healthy())
}
