package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a portfolio does not exist.
// A missing portfolio is fatal to the whole request, unlike per-trade errors.
var ErrNotFound = errors.New("portfolio not found")

// Repository handles portfolio database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new portfolio repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Create inserts a new portfolio record
func (r *Repository) Create(p Portfolio) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid portfolio: %w", err)
	}

	now := time.Now().Format(time.RFC3339)

	query := `
		INSERT INTO portfolios
		(id, name, asset_type, status, starting_capital, current_cash,
		 rebalance_cadence, next_rebalance_at, last_traded_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		p.ID,
		p.Name,
		string(p.AssetType),
		string(p.Status),
		p.StartingCapital.String(),
		p.CurrentCash.String(),
		p.RebalanceCadence,
		nullTime(p.NextRebalanceAt),
		nullTime(p.LastTradedAt),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}

	r.log.Info().
		Str("portfolio_id", p.ID).
		Str("asset_type", string(p.AssetType)).
		Str("starting_capital", p.StartingCapital.String()).
		Msg("Portfolio created")

	return nil
}

// GetByID returns a portfolio by id, or ErrNotFound
func (r *Repository) GetByID(id string) (*Portfolio, error) {
	query := `
		SELECT id, name, asset_type, status, starting_capital, current_cash,
		       rebalance_cadence, next_rebalance_at, last_traded_at, created_at, updated_at
		FROM portfolios WHERE id = ?
	`

	p, err := r.scanPortfolio(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}

	return p, nil
}

// GetAll returns all portfolios
func (r *Repository) GetAll() ([]Portfolio, error) {
	query := `
		SELECT id, name, asset_type, status, starting_capital, current_cash,
		       rebalance_cadence, next_rebalance_at, last_traded_at, created_at, updated_at
		FROM portfolios ORDER BY created_at
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []Portfolio
	for rows.Next() {
		p, err := r.scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}

	return portfolios, nil
}

// UpdateCashAndLastTraded writes the post-batch cash balance and trade timestamp.
// This is the single portfolio write at the end of an executing batch.
func (r *Repository) UpdateCashAndLastTraded(id string, cash decimal.Decimal, tradedAt time.Time) error {
	if cash.IsNegative() {
		return fmt.Errorf("current cash cannot go negative: %s", cash.String())
	}

	query := `
		UPDATE portfolios
		SET current_cash = ?, last_traded_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		cash.String(),
		tradedAt.Format(time.RFC3339),
		time.Now().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update portfolio cash: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	r.log.Info().
		Str("portfolio_id", id).
		Str("current_cash", cash.String()).
		Msg("Portfolio cash updated")

	return nil
}

// SetStatus transitions the portfolio lifecycle state
func (r *Repository) SetStatus(id string, status Status) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status: %s", status)
	}

	result, err := r.db.Exec(
		"UPDATE portfolios SET status = ?, updated_at = ? WHERE id = ?",
		string(status),
		time.Now().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to set portfolio status: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	r.log.Info().Str("portfolio_id", id).Str("status", string(status)).Msg("Portfolio status changed")
	return nil
}

// SetNextRebalanceAt schedules the next rebalance run
func (r *Repository) SetNextRebalanceAt(id string, next time.Time) error {
	result, err := r.db.Exec(
		"UPDATE portfolios SET next_rebalance_at = ?, updated_at = ? WHERE id = ?",
		next.Format(time.RFC3339),
		time.Now().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to set next rebalance date: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanPortfolio scans a database row into a Portfolio struct
func (r *Repository) scanPortfolio(row scanner) (*Portfolio, error) {
	var p Portfolio
	var assetType, status, startingCapital, currentCash string
	var nextRebalanceAt, lastTradedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&assetType,
		&status,
		&startingCapital,
		&currentCash,
		&p.RebalanceCadence,
		&nextRebalanceAt,
		&lastTradedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.AssetType = AssetType(assetType)
	p.Status = Status(status)

	if p.StartingCapital, err = decimal.NewFromString(startingCapital); err != nil {
		return nil, fmt.Errorf("invalid starting_capital %q: %w", startingCapital, err)
	}
	if p.CurrentCash, err = decimal.NewFromString(currentCash); err != nil {
		return nil, fmt.Errorf("invalid current_cash %q: %w", currentCash, err)
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		p.UpdatedAt = t
	}
	if nextRebalanceAt.Valid {
		if t, err := time.Parse(time.RFC3339, nextRebalanceAt.String); err == nil {
			p.NextRebalanceAt = &t
		}
	}
	if lastTradedAt.Valid {
		if t, err := time.Parse(time.RFC3339, lastTradedAt.String); err == nil {
			p.LastTradedAt = &t
		}
	}

	return &p, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}
