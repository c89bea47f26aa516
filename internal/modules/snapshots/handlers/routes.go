package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all snapshot routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/portfolios/{id}/snapshots", h.HandleGetSnapshots)
	r.Post("/portfolios/{id}/snapshots", h.HandleCreateSnapshot)
	r.Get("/portfolios/{id}/performance", h.HandleGetPerformance)
}
