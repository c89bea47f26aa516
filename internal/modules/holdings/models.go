// Package holdings owns per-ticker position state and average-cost accounting.
package holdings

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DustThreshold is the share count below which a position left over by a sell
// is treated as fully closed and the row deleted. Accounting is exact decimal
// arithmetic, but upstream proposals may carry fractional share counts that
// leave unsellable dust.
var DustThreshold = decimal.RequireFromString("0.0001")

// Holding is a portfolio's current position in one ticker.
//
// At most one live row exists per (portfolio, ticker). Shares are strictly
// positive while the row exists; a fully sold position is deleted, never
// zeroed. AvgCost is the share-weighted mean acquisition price and is never
// changed by sells.
type Holding struct {
	PortfolioID string          `json:"portfolio_id"`
	Ticker      string          `json:"ticker"`
	Shares      decimal.Decimal `json:"shares"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate checks holding invariants before persistence
func (h *Holding) Validate() error {
	if strings.TrimSpace(h.Ticker) == "" {
		return fmt.Errorf("ticker cannot be empty")
	}
	if !h.Shares.IsPositive() {
		return fmt.Errorf("shares must be positive, got %s", h.Shares.String())
	}
	if h.AvgCost.IsNegative() {
		return fmt.Errorf("avg cost cannot be negative, got %s", h.AvgCost.String())
	}
	return nil
}

// MarketValue returns shares * price
func (h *Holding) MarketValue(price decimal.Decimal) decimal.Decimal {
	return h.Shares.Mul(price)
}

// CostBasis returns shares * avgCost
func (h *Holding) CostBasis() decimal.Decimal {
	return h.Shares.Mul(h.AvgCost)
}

// NormalizeTicker uppercases and trims a ticker symbol
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// parseDecimal parses a stored TEXT amount into a decimal
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
