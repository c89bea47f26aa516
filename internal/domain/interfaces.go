// Package domain holds the interfaces and value types shared between modules.
// Keeping them here breaks circular dependencies between the trading, snapshots
// and client packages.
package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// SessionStatus is the answer of the market session oracle.
type SessionStatus struct {
	Open bool   `json:"is_open"`
	Err  string `json:"error,omitempty"`
}

// MarketSessionOracle answers "is the market open right now?".
//
// The oracle is an external collaborator; implementations are expected to apply
// their own timeouts. Callers must treat an error as "unknown", not "closed".
type MarketSessionOracle interface {
	IsMarketOpen(ctx context.Context, assetType string) (SessionStatus, error)
}

// PriceResolver returns last-known prices for a set of tickers.
//
// Tickers without a known price are absent from the result map rather than
// reported as an error; a missing price is a per-trade concern.
type PriceResolver interface {
	ResolvePrices(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error)
}

// ProposedTrade is one trade suggested by the decision-generation step.
// The upstream payload is untrusted model output: every field must be
// re-validated before it touches the ledger.
type ProposedTrade struct {
	Action    string          `json:"action"`
	Ticker    string          `json:"ticker"`
	Shares    decimal.Decimal `json:"shares"`
	Reasoning string          `json:"reason"`
}

// ProposalContext is the advisory context handed to the decision service.
type ProposalContext struct {
	PortfolioID string          `json:"portfolio_id"`
	AssetType   string          `json:"asset_type"`
	Mode        string          `json:"mode"` // NEW_PORTFOLIO or REBALANCE
	Instruction string          `json:"instruction"`
	Cash        decimal.Decimal `json:"cash"`
	Holdings    []HoldingView   `json:"holdings"`
}

// HoldingView is the read-only holding representation shared with collaborators.
type HoldingView struct {
	Ticker  string          `json:"ticker"`
	Shares  decimal.Decimal `json:"shares"`
	AvgCost decimal.Decimal `json:"avg_cost"`
}

// TradeProposer produces buy/sell proposals for a portfolio. The natural
// language model behind it is an opaque black box to this engine.
type TradeProposer interface {
	ProposeTrades(ctx context.Context, pctx ProposalContext) ([]ProposedTrade, error)
}
