// Package snapshots owns the daily point-in-time valuation records.
package snapshots

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the calendar-day key format for snapshot rows.
const DateFormat = "2006-01-02"

// Snapshot is a daily valuation record for one portfolio.
//
// Identity is (portfolio, calendar day): writing a second snapshot for the
// same day overwrites the first, never appends a duplicate.
type Snapshot struct {
	PortfolioID   string          `json:"portfolio_id"`
	Date          string          `json:"date"` // YYYY-MM-DD, owner's local calendar day
	TotalValue    decimal.Decimal `json:"total_value"`
	Cash          decimal.Decimal `json:"cash"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	Positions     []PositionSlice `json:"positions,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// PositionSlice is the per-ticker breakdown stored alongside a snapshot.
// It is encoded as a msgpack blob in the snapshot row. Amounts are kept as
// their canonical string form so the blob round-trips without float loss.
type PositionSlice struct {
	Ticker  string `msgpack:"ticker" json:"ticker"`
	Shares  string `msgpack:"shares" json:"shares"`
	AvgCost string `msgpack:"avg_cost" json:"avg_cost"`
	Price   string `msgpack:"price" json:"price"`
	Value   string `msgpack:"value" json:"value"`
}
