// Package handlers provides HTTP handlers for portfolio, holdings and order
// queries.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mkarag/aifolio/internal/modules/holdings"
	"github.com/mkarag/aifolio/internal/modules/orders"
	"github.com/mkarag/aifolio/internal/modules/portfolio"
)

// Handler contains HTTP handlers for the portfolio API
type Handler struct {
	portfolios *portfolio.Repository
	holdings   *holdings.Repository
	orders     *orders.Repository
	log        zerolog.Logger
}

// NewHandler creates a new portfolio handler instance
func NewHandler(
	portfolios *portfolio.Repository,
	holdingsRepo *holdings.Repository,
	ordersRepo *orders.Repository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		portfolios: portfolios,
		holdings:   holdingsRepo,
		orders:     ordersRepo,
		log:        log.With().Str("handler", "portfolio").Logger(),
	}
}

type createPortfolioRequest struct {
	Name             string `json:"name"`
	AssetType        string `json:"asset_type"`
	StartingCapital  string `json:"starting_capital"`
	RebalanceCadence string `json:"rebalance_cadence"`
}

// HandleCreatePortfolio creates a new portfolio in the initializing state
// POST /api/portfolios
func (h *Handler) HandleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var req createPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	capital, err := decimal.NewFromString(req.StartingCapital)
	if err != nil || !capital.IsPositive() {
		http.Error(w, "starting_capital must be a positive decimal string", http.StatusBadRequest)
		return
	}

	p := portfolio.Portfolio{
		ID:               uuid.New().String(),
		Name:             req.Name,
		AssetType:        portfolio.AssetType(req.AssetType),
		Status:           portfolio.StatusInitializing,
		StartingCapital:  capital,
		CurrentCash:      capital,
		RebalanceCadence: req.RebalanceCadence,
	}

	if err := h.portfolios.Create(p); err != nil {
		h.log.Error().Err(err).Msg("Failed to create portfolio")
		http.Error(w, "Failed to create portfolio", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"data": p})
}

// HandleListPortfolios returns all portfolios
// GET /api/portfolios
func (h *Handler) HandleListPortfolios(w http.ResponseWriter, _ *http.Request) {
	all, err := h.portfolios.GetAll()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list portfolios")
		http.Error(w, "Failed to list portfolios", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     all,
		"metadata": map[string]interface{}{"count": len(all)},
	})
}

// HandleGetPortfolio returns one portfolio
// GET /api/portfolios/{id}
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := h.portfolios.GetByID(chi.URLParam(r, "id"))
	if errors.Is(err, portfolio.ErrNotFound) {
		http.Error(w, "Portfolio not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get portfolio")
		http.Error(w, "Failed to get portfolio", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"data": p})
}

// HandleGetHoldings returns the portfolio's current positions
// GET /api/portfolios/{id}/holdings
func (h *Handler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	positions, err := h.holdings.GetAll(portfolioID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get holdings")
		http.Error(w, "Failed to get holdings", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     positions,
		"metadata": map[string]interface{}{"count": len(positions)},
	})
}

// HandleGetOrders returns order history, or only the queued orders with
// ?pending=true
// GET /api/portfolios/{id}/orders
func (h *Handler) HandleGetOrders(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "id")

	var result []orders.Order
	var err error
	if r.URL.Query().Get("pending") == "true" {
		result, err = h.orders.GetPending(portfolioID)
	} else {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if parsed, perr := strconv.Atoi(raw); perr == nil {
				limit = parsed
			}
		}
		result, err = h.orders.GetByPortfolio(portfolioID, limit)
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get orders")
		http.Error(w, "Failed to get orders", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     result,
		"metadata": map[string]interface{}{"count": len(result), "as_of": time.Now().Format(time.RFC3339)},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
