package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/portfolios", h.HandleCreatePortfolio)
	r.Get("/portfolios", h.HandleListPortfolios)
	r.Get("/portfolios/{id}", h.HandleGetPortfolio)
	r.Get("/portfolios/{id}/holdings", h.HandleGetHoldings)
	r.Get("/portfolios/{id}/orders", h.HandleGetOrders)
}
