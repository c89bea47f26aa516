package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Post("/portfolios/{id}/trades", h.HandleProcessTrades)
	r.Post("/portfolios/{id}/rebalance", h.HandleRebalance)
	r.Post("/portfolios/{id}/orders/flush", h.HandleFlushPending)
}
