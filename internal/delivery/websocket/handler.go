package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"spot-engine/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

const writeWait = 10 * time.Second

// StatusSource is polled for each push.
type StatusSource interface {
	Status(ctx context.Context) domain.EngineStatus
}

// Handler streams the engine status to websocket clients.
type Handler struct {
	source   StatusSource
	interval time.Duration
}

func NewHandler(source StatusSource, interval time.Duration) *Handler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Handler{
		source:   source,
		interval: interval,
	}
}

func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	logger := log.With().Str("component", "ws").Str("remote", r.RemoteAddr).Logger()
	logger.Info().Msg("New Client Connected")

	// The reader only drains control frames and notices the client leaving.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Send initial data immediately
	if err := h.push(ctx, conn); err != nil {
		logger.Debug().Err(err).Msg("write error")
		return
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Client Disconnected")
			return
		case <-ticker.C:
			if err := h.push(ctx, conn); err != nil {
				logger.Debug().Err(err).Msg("write error")
				return
			}
		}
	}
}

func (h *Handler) push(ctx context.Context, conn *websocket.Conn) error {
	status := h.source.Status(ctx)
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(status)
}
