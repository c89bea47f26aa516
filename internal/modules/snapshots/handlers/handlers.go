// Package handlers provides HTTP handlers for snapshot history and
// performance statistics.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/mkarag/aifolio/internal/modules/portfolio"
	"github.com/mkarag/aifolio/internal/modules/snapshots"
)

// Handler contains HTTP handlers for the snapshot API
type Handler struct {
	service *snapshots.Service
	log     zerolog.Logger
}

// NewHandler creates a new snapshot handler instance
func NewHandler(service *snapshots.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "snapshots").Logger(),
	}
}

// HandleGetSnapshots returns the snapshot history for a portfolio
// GET /api/portfolios/{id}/snapshots
func (h *Handler) HandleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	history, err := h.service.GetHistory(portfolioID, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get snapshot history")
		http.Error(w, "Failed to get snapshot history", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     history,
		"metadata": map[string]interface{}{"count": len(history)},
	})
}

// HandleCreateSnapshot creates (or refreshes) today's snapshot
// POST /api/portfolios/{id}/snapshots
func (h *Handler) HandleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	snap, err := h.service.CreateDailySnapshot(r.Context(), portfolioID)
	if errors.Is(err, portfolio.ErrNotFound) {
		http.Error(w, "Portfolio not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create snapshot")
		http.Error(w, "Failed to create snapshot", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": snap})
}

// HandleGetPerformance returns summary statistics over the snapshot history
// GET /api/portfolios/{id}/performance
func (h *Handler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	history, err := h.service.GetHistory(portfolioID, 0)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get snapshot history")
		http.Error(w, "Failed to get performance", http.StatusInternalServerError)
		return
	}

	report, err := snapshots.ComputePerformance(history)
	if err != nil {
		http.Error(w, "Not enough snapshot history for performance statistics", http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": report})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
