package holdings

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles holding database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new holdings repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "holdings").Logger(),
	}
}

// GetAll returns all holdings for a portfolio
func (r *Repository) GetAll(portfolioID string) ([]Holding, error) {
	query := `
		SELECT portfolio_id, ticker, shares, avg_cost, updated_at
		FROM holdings WHERE portfolio_id = ?
		ORDER BY ticker
	`

	rows, err := r.db.Query(query, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}

	return holdings, nil
}

// GetByTicker returns the holding for a ticker, or nil when no position exists
func (r *Repository) GetByTicker(portfolioID, ticker string) (*Holding, error) {
	query := `
		SELECT portfolio_id, ticker, shares, avg_cost, updated_at
		FROM holdings WHERE portfolio_id = ? AND ticker = ?
	`

	row := r.db.QueryRow(query, portfolioID, NormalizeTicker(ticker))
	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No position
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holding: %w", err)
	}

	return &h, nil
}

// Upsert inserts or replaces the holding row for (portfolio, ticker)
func (r *Repository) Upsert(h Holding) error {
	h.Ticker = NormalizeTicker(h.Ticker)
	if err := h.Validate(); err != nil {
		return fmt.Errorf("invalid holding: %w", err)
	}

	query := `
		INSERT INTO holdings (portfolio_id, ticker, shares, avg_cost, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, ticker) DO UPDATE SET
			shares = excluded.shares,
			avg_cost = excluded.avg_cost,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		h.PortfolioID,
		h.Ticker,
		h.Shares.String(),
		h.AvgCost.String(),
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}

	r.log.Debug().
		Str("portfolio_id", h.PortfolioID).
		Str("ticker", h.Ticker).
		Str("shares", h.Shares.String()).
		Str("avg_cost", h.AvgCost.String()).
		Msg("Holding upserted")

	return nil
}

// Delete removes the holding row for (portfolio, ticker)
func (r *Repository) Delete(portfolioID, ticker string) error {
	result, err := r.db.Exec(
		"DELETE FROM holdings WHERE portfolio_id = ? AND ticker = ?",
		portfolioID,
		NormalizeTicker(ticker),
	)
	if err != nil {
		return fmt.Errorf("failed to delete holding: %w", err)
	}

	affected, _ := result.RowsAffected()
	r.log.Info().
		Str("portfolio_id", portfolioID).
		Str("ticker", ticker).
		Int64("rows_affected", affected).
		Msg("Holding deleted")

	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanHolding scans a database row into a Holding struct
func scanHolding(row scanner) (Holding, error) {
	var h Holding
	var shares, avgCost, updatedAt string

	if err := row.Scan(&h.PortfolioID, &h.Ticker, &shares, &avgCost, &updatedAt); err != nil {
		return h, err
	}

	var err error
	if h.Shares, err = parseDecimal(shares); err != nil {
		return h, fmt.Errorf("invalid shares %q: %w", shares, err)
	}
	if h.AvgCost, err = parseDecimal(avgCost); err != nil {
		return h, fmt.Errorf("invalid avg_cost %q: %w", avgCost, err)
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		h.UpdatedAt = t
	}

	return h, nil
}
