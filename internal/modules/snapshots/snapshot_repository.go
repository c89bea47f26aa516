package snapshots

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Repository handles snapshot database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// Upsert writes the snapshot row for (portfolio, date).
//
// ON CONFLICT updates in place, which is what makes snapshot creation
// idempotent: two writes for the same portfolio and day leave one row
// carrying the later values.
func (r *Repository) Upsert(s Snapshot) error {
	if s.PortfolioID == "" {
		return fmt.Errorf("portfolio id cannot be empty")
	}
	if _, err := time.Parse(DateFormat, s.Date); err != nil {
		return fmt.Errorf("invalid snapshot date %q: %w", s.Date, err)
	}

	var blob []byte
	if len(s.Positions) > 0 {
		var err error
		blob, err = msgpack.Marshal(s.Positions)
		if err != nil {
			return fmt.Errorf("failed to encode positions blob: %w", err)
		}
	}

	now := time.Now().Format(time.RFC3339)

	query := `
		INSERT INTO snapshots
		(portfolio_id, snapshot_date, total_value, cash, holdings_value, positions_blob, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(portfolio_id, snapshot_date) DO UPDATE SET
			total_value = excluded.total_value,
			cash = excluded.cash,
			holdings_value = excluded.holdings_value,
			positions_blob = excluded.positions_blob,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query,
		s.PortfolioID,
		s.Date,
		s.TotalValue.String(),
		s.Cash.String(),
		s.HoldingsValue.String(),
		blob,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	r.log.Info().
		Str("portfolio_id", s.PortfolioID).
		Str("date", s.Date).
		Str("total_value", s.TotalValue.String()).
		Msg("Snapshot written")

	return nil
}

// GetByDate returns the snapshot for a specific day, or nil when absent
func (r *Repository) GetByDate(portfolioID, date string) (*Snapshot, error) {
	query := `
		SELECT portfolio_id, snapshot_date, total_value, cash, holdings_value,
		       positions_blob, created_at, updated_at
		FROM snapshots
		WHERE portfolio_id = ? AND snapshot_date = ?
	`

	s, err := scanSnapshot(r.db.QueryRow(query, portfolioID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}

	return s, nil
}

// GetHistory returns snapshots for a portfolio in chronological order
func (r *Repository) GetHistory(portfolioID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 365
	}

	query := `
		SELECT portfolio_id, snapshot_date, total_value, cash, holdings_value,
		       positions_blob, created_at, updated_at
		FROM snapshots
		WHERE portfolio_id = ?
		ORDER BY snapshot_date DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var history []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		history = append(history, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	// Reverse to chronological order (query is newest-first for the LIMIT)
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}

	return history, nil
}

// Count returns the number of snapshot rows for a portfolio
func (r *Repository) Count(portfolioID string) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(*) FROM snapshots WHERE portfolio_id = ?", portfolioID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanSnapshot scans a database row into a Snapshot struct
func scanSnapshot(row scanner) (*Snapshot, error) {
	var s Snapshot
	var totalValue, cash, holdingsValue string
	var blob []byte
	var createdAt, updatedAt string

	err := row.Scan(
		&s.PortfolioID,
		&s.Date,
		&totalValue,
		&cash,
		&holdingsValue,
		&blob,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if s.TotalValue, err = decimal.NewFromString(totalValue); err != nil {
		return nil, fmt.Errorf("invalid total_value %q: %w", totalValue, err)
	}
	if s.Cash, err = decimal.NewFromString(cash); err != nil {
		return nil, fmt.Errorf("invalid cash %q: %w", cash, err)
	}
	if s.HoldingsValue, err = decimal.NewFromString(holdingsValue); err != nil {
		return nil, fmt.Errorf("invalid holdings_value %q: %w", holdingsValue, err)
	}

	if len(blob) > 0 {
		if err := msgpack.Unmarshal(blob, &s.Positions); err != nil {
			return nil, fmt.Errorf("failed to decode positions blob: %w", err)
		}
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		s.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		s.UpdatedAt = t
	}

	return &s, nil
}
