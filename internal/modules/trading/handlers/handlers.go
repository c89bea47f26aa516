// Package handlers provides HTTP handlers for trade execution.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mkarag/aifolio/internal/domain"
	"github.com/mkarag/aifolio/internal/modules/portfolio"
	"github.com/mkarag/aifolio/internal/modules/trading"
)

// TradingHandlers contains HTTP handlers for the trading API
type TradingHandlers struct {
	service *trading.Service
	log     zerolog.Logger
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(service *trading.Service, log zerolog.Logger) *TradingHandlers {
	return &TradingHandlers{
		service: service,
		log:     log.With().Str("handler", "trading").Logger(),
	}
}

type tradeBatchRequest struct {
	Trades []domain.ProposedTrade `json:"trades"`
}

// HandleProcessTrades processes a batch of proposed trades
// POST /api/portfolios/{id}/trades
func (h *TradingHandlers) HandleProcessTrades(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	var req tradeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.ProcessTradeBatch(r.Context(), portfolioID, req.Trades)
	if err != nil {
		h.respondRunError(w, portfolioID, err, "Failed to process trade batch")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": result})
}

// HandleRebalance runs a full decision cycle for the portfolio
// POST /api/portfolios/{id}/rebalance
func (h *TradingHandlers) HandleRebalance(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	result, err := h.service.RunRebalance(r.Context(), portfolioID)
	if err != nil {
		h.respondRunError(w, portfolioID, err, "Rebalance run failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": result})
}

// HandleFlushPending executes queued orders if the market has opened
// POST /api/portfolios/{id}/orders/flush
func (h *TradingHandlers) HandleFlushPending(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	flushed, err := h.service.FlushPending(r.Context(), portfolioID)
	if err != nil {
		h.respondRunError(w, portfolioID, err, "Pending order flush failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"flushed": flushed},
	})
}

func (h *TradingHandlers) respondRunError(w http.ResponseWriter, portfolioID string, err error, msg string) {
	switch {
	case errors.Is(err, portfolio.ErrNotFound):
		http.Error(w, "Portfolio not found", http.StatusNotFound)
	case errors.Is(err, trading.ErrPortfolioBusy):
		http.Error(w, "Portfolio is busy, retry later", http.StatusConflict)
	default:
		h.log.Error().Err(err).Str("portfolio_id", portfolioID).Msg(msg)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
