// Package orders owns the order record: proposed trades that were accepted,
// either executed against the ledger or queued while the market was closed.
package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the display label of an order as proposed upstream.
// TRIM and INCREASE are synonyms for SELL and BUY; they keep their label for
// display but normalize to the same ledger effect.
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionTrim     Action = "TRIM"
	ActionIncrease Action = "INCREASE"
	ActionHold     Action = "HOLD"
)

// Class is the two-valued internal action the executor branches on.
type Class string

const (
	ClassBuy  Class = "BUY_CLASS"
	ClassSell Class = "SELL_CLASS"
)

// ParseAction normalizes a raw action string to its display label.
// Returns an error for unknown actions; HOLD parses fine and is the
// caller's signal to skip the trade.
func ParseAction(raw string) (Action, error) {
	switch Action(strings.ToUpper(strings.TrimSpace(raw))) {
	case ActionBuy:
		return ActionBuy, nil
	case ActionSell:
		return ActionSell, nil
	case ActionTrim:
		return ActionTrim, nil
	case ActionIncrease:
		return ActionIncrease, nil
	case ActionHold:
		return ActionHold, nil
	default:
		return "", fmt.Errorf("unknown action: %s", raw)
	}
}

// Classify maps a display action to its ledger effect.
// HOLD has no class; callers must skip it before classifying.
func (a Action) Classify() (Class, error) {
	switch a {
	case ActionBuy, ActionIncrease:
		return ClassBuy, nil
	case ActionSell, ActionTrim:
		return ClassSell, nil
	default:
		return "", fmt.Errorf("action %s has no ledger effect", a)
	}
}

// Order is a single accepted trade.
//
// Exactly one of two shapes exists: an executed order (IsPending false,
// ExecutedAt set, ledger already mutated) or a pending order (IsPending true,
// ExecutedAt nil, ledger untouched). Orders that failed validation are never
// persisted, and HOLD never produces an order.
type Order struct {
	ID          string          `json:"id"`
	PortfolioID string          `json:"portfolio_id"`
	Ticker      string          `json:"ticker"`
	Action      Action          `json:"action"` // display label
	Class       Class           `json:"class"`
	Shares      decimal.Decimal `json:"shares"`
	Price       decimal.Decimal `json:"price"` // resolved at validation time
	TotalValue  decimal.Decimal `json:"total_value"`
	Reasoning   string          `json:"reasoning,omitempty"`
	IsPending   bool            `json:"is_pending"`
	ExecutedAt  *time.Time      `json:"executed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate checks order invariants before persistence
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("order id cannot be empty")
	}
	if o.PortfolioID == "" {
		return fmt.Errorf("portfolio id cannot be empty")
	}
	if strings.TrimSpace(o.Ticker) == "" {
		return fmt.Errorf("ticker cannot be empty")
	}
	if !o.Shares.IsPositive() {
		return fmt.Errorf("shares must be positive")
	}
	if !o.Price.IsPositive() {
		return fmt.Errorf("price must be positive")
	}
	if o.IsPending && o.ExecutedAt != nil {
		return fmt.Errorf("pending order cannot have executed_at")
	}
	if !o.IsPending && o.ExecutedAt == nil {
		return fmt.Errorf("executed order must have executed_at")
	}
	if _, err := o.Action.Classify(); err != nil {
		return err
	}
	return nil
}
