// Package portfolio owns the portfolio record: identity, cash, and lifecycle.
package portfolio

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a portfolio.
type Status string

const (
	// StatusInitializing - created, initial trade processing has not completed yet
	StatusInitializing Status = "initializing"
	// StatusActive - initial trade processing completed (even with zero trades)
	StatusActive Status = "active"
	// StatusError - the upstream decision call failed
	StatusError Status = "error"
)

// IsValid checks if the status is a known lifecycle state
func (s Status) IsValid() bool {
	return s == StatusInitializing || s == StatusActive || s == StatusError
}

// AssetType distinguishes stock portfolios from crypto portfolios.
type AssetType string

const (
	AssetTypeStock  AssetType = "stock"
	AssetTypeCrypto AssetType = "crypto"
)

// IsValid checks if the asset type is supported
func (a AssetType) IsValid() bool {
	return a == AssetTypeStock || a == AssetTypeCrypto
}

// Portfolio represents one simulated portfolio.
//
// CurrentCash is owned exclusively by the trade executor: nothing else in the
// system writes it.
type Portfolio struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	AssetType         AssetType       `json:"asset_type"`
	Status            Status          `json:"status"`
	StartingCapital   decimal.Decimal `json:"starting_capital"` // immutable after creation
	CurrentCash       decimal.Decimal `json:"current_cash"`     // non-negative
	RebalanceCadence  string          `json:"rebalance_cadence"`
	NextRebalanceAt   *time.Time      `json:"next_rebalance_at,omitempty"`
	LastTradedAt      *time.Time      `json:"last_traded_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Validate checks portfolio invariants before persistence
func (p *Portfolio) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("portfolio id cannot be empty")
	}
	if !p.AssetType.IsValid() {
		return fmt.Errorf("invalid asset type: %s", p.AssetType)
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", p.Status)
	}
	if p.StartingCapital.IsNegative() {
		return fmt.Errorf("starting capital cannot be negative")
	}
	if p.CurrentCash.IsNegative() {
		return fmt.Errorf("current cash cannot be negative")
	}
	return nil
}
