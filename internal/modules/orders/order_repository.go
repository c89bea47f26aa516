package orders

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Repository handles order database operations
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new order repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "orders").Logger(),
	}
}

// Create inserts a new order record
func (r *Repository) Create(o Order) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("invalid order: %w", err)
	}

	query := `
		INSERT INTO orders
		(id, portfolio_id, ticker, action, class, shares, price, total_value,
		 reasoning, is_pending, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var executedAt sql.NullString
	if o.ExecutedAt != nil {
		executedAt = sql.NullString{String: o.ExecutedAt.Format(time.RFC3339), Valid: true}
	}

	_, err := r.db.Exec(query,
		o.ID,
		o.PortfolioID,
		strings.ToUpper(strings.TrimSpace(o.Ticker)),
		string(o.Action),
		string(o.Class),
		o.Shares.String(),
		o.Price.String(),
		o.TotalValue.String(),
		nullString(o.Reasoning),
		boolToInt(o.IsPending),
		executedAt,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.log.Info().
		Str("order_id", o.ID).
		Str("ticker", o.Ticker).
		Str("action", string(o.Action)).
		Bool("is_pending", o.IsPending).
		Msg("Order created")

	return nil
}

// GetByPortfolio retrieves orders for a portfolio, most recent first
func (r *Repository) GetByPortfolio(portfolioID string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, portfolio_id, ticker, action, class, shares, price, total_value,
		       reasoning, is_pending, executed_at, created_at
		FROM orders
		WHERE portfolio_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	return r.queryOrders(query, portfolioID, limit)
}

// GetPending retrieves the pending orders awaiting the next open session
func (r *Repository) GetPending(portfolioID string) ([]Order, error) {
	query := `
		SELECT id, portfolio_id, ticker, action, class, shares, price, total_value,
		       reasoning, is_pending, executed_at, created_at
		FROM orders
		WHERE portfolio_id = ? AND is_pending = 1
		ORDER BY created_at
	`

	return r.queryOrders(query, portfolioID)
}

// MarkExecuted flips a pending order to executed. This is the only mutation
// a persisted order ever sees, used when a later open session fulfills it.
func (r *Repository) MarkExecuted(orderID string, executedAt time.Time) error {
	result, err := r.db.Exec(
		"UPDATE orders SET is_pending = 0, executed_at = ? WHERE id = ? AND is_pending = 1",
		executedAt.Format(time.RFC3339),
		orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark order executed: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("order %s is not pending", orderID)
	}

	r.log.Info().Str("order_id", orderID).Msg("Pending order executed")
	return nil
}

func (r *Repository) queryOrders(query string, args ...interface{}) ([]Order, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var result []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		result = append(result, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	return result, nil
}

// scanOrder scans a database row into an Order struct
func scanOrder(rows *sql.Rows) (Order, error) {
	var o Order
	var action, class, shares, price, totalValue string
	var reasoning, executedAt sql.NullString
	var isPending int
	var createdAt string

	err := rows.Scan(
		&o.ID,
		&o.PortfolioID,
		&o.Ticker,
		&action,
		&class,
		&shares,
		&price,
		&totalValue,
		&reasoning,
		&isPending,
		&executedAt,
		&createdAt,
	)
	if err != nil {
		return o, err
	}

	o.Action = Action(action)
	o.Class = Class(class)
	o.IsPending = isPending != 0

	if o.Shares, err = decimal.NewFromString(shares); err != nil {
		return o, fmt.Errorf("invalid shares %q: %w", shares, err)
	}
	if o.Price, err = decimal.NewFromString(price); err != nil {
		return o, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if o.TotalValue, err = decimal.NewFromString(totalValue); err != nil {
		return o, fmt.Errorf("invalid total_value %q: %w", totalValue, err)
	}

	if reasoning.Valid {
		o.Reasoning = reasoning.String
	}
	if executedAt.Valid {
		if t, err := time.Parse(time.RFC3339, executedAt.String); err == nil {
			o.ExecutedAt = &t
		}
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		o.CreatedAt = t
	}

	return o, nil
}

func nullString(val string) sql.NullString {
	if val == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: val, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
