package http

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"spot-engine/internal/domain"
	"spot-engine/internal/usecase"
)

// Engine is the operator surface of the trading engine.
type Engine interface {
	Status(ctx context.Context) domain.EngineStatus
	Pause()
	Resume()
	ActiveParams() domain.ParameterSet
	RecentTrades(ctx context.Context, limit int) ([]domain.Trade, error)
	RunBacktest(ctx context.Context, symbol string, params domain.ParameterSet) (usecase.BacktestResult, error)
	Optimize(ctx context.Context) (usecase.OptimizeOutcome, error)
}

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 1000
)

// EngineHandler handles engine control endpoints
type EngineHandler struct {
	engine Engine
}

func NewEngineHandler(engine Engine) *EngineHandler {
	return &EngineHandler{engine: engine}
}

// Register mounts the handler under /api/engine.
func (h *EngineHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/engine/status", h.GetStatus)
	mux.HandleFunc("/api/engine/params", h.GetParams)
	mux.HandleFunc("/api/engine/pause", h.Pause)
	mux.HandleFunc("/api/engine/resume", h.Resume)
	mux.HandleFunc("/api/engine/trades", h.GetTrades)
	mux.HandleFunc("/api/engine/backtest", h.Backtest)
	mux.HandleFunc("/api/engine/optimize", h.Optimize)
}

// GetStatus handles GET /api/engine/status
func (h *EngineHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Status(r.Context()))
}

// GetParams handles GET /api/engine/params
func (h *EngineHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	params := h.engine.ActiveParams()
	writeJSON(w, http.StatusOK, map[string]any{
		"params":     params,
		"configHash": params.Hash(),
	})
}

// Pause handles POST /api/engine/pause
func (h *EngineHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.engine.Pause()
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Entries paused",
	})
}

// Resume handles POST /api/engine/resume
func (h *EngineHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.engine.Resume()
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Entries resumed",
	})
}

// GetTrades handles GET /api/engine/trades?limit=50
func (h *EngineHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades, err := h.engine.RecentTrades(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("recent trades")
		http.Error(w, "Trade journal unavailable", http.StatusServiceUnavailable)
		return
	}
	// The journal lists newest first; metrics walk the equity curve in order.
	chronological := slices.Clone(trades)
	slices.Reverse(chronological)
	writeJSON(w, http.StatusOK, map[string]any{
		"trades":  trades,
		"metrics": domain.ComputeMetrics(chronological),
	})
}

type BacktestRequest struct {
	Symbol string               `json:"symbol"`
	Params *domain.ParameterSet `json:"params,omitempty"`
}

// Backtest handles POST /api/engine/backtest. Without params the active set
// is replayed.
func (h *EngineHandler) Backtest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Symbol == "" {
		http.Error(w, "Symbol is required", http.StatusBadRequest)
		return
	}

	var params domain.ParameterSet
	if req.Params != nil {
		params = *req.Params
	}

	result, err := h.engine.RunBacktest(r.Context(), req.Symbol, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Optimize handles POST /api/engine/optimize
func (h *EngineHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	outcome, err := h.engine.Optimize(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, domain.ErrInvalidParameters),
		errors.Is(err, domain.ErrUnknownGridField):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDataInsufficient),
		errors.Is(err, domain.ErrInvalidSeries),
		errors.Is(err, domain.ErrNoCandidates):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusBadGateway {
		log.Error().Err(err).Msg("engine request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}
