package trading

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mkarag/aifolio/internal/domain"
	"github.com/mkarag/aifolio/internal/modules/holdings"
	"github.com/mkarag/aifolio/internal/modules/orders"
)

// ValidatedTrade is a proposed trade that passed every policy check, carrying
// the resolved price and the normalized action class.
type ValidatedTrade struct {
	Action     orders.Action
	Class      orders.Class
	Ticker     string
	Shares     decimal.Decimal
	Price      decimal.Decimal
	TotalValue decimal.Decimal
	Reasoning  string
}

// Validator checks proposed trades against policy and ledger state.
// It only reads holdings and cash; mutation belongs to the executor.
type Validator struct {
	minTradeValue decimal.Decimal
	log           zerolog.Logger
}

// NewValidator creates a validator with the minimum buy value floor
func NewValidator(minTradeValue decimal.Decimal, log zerolog.Logger) *Validator {
	return &Validator{
		minTradeValue: minTradeValue,
		log:           log.With().Str("component", "validator").Logger(),
	}
}

// ValidateOne runs the policy checks on a single proposed trade.
//
// Returns (trade, false, nil) on success, (nil, true, nil) for a HOLD to
// skip, and (nil, false, err) on rejection. cash and the ledger reflect the
// state after any trades already applied earlier in the batch, so a sell
// followed by a buy of the same ticker sees the post-sell position.
func (v *Validator) ValidateOne(
	proposed domain.ProposedTrade,
	prices map[string]decimal.Decimal,
	cash decimal.Decimal,
	ledger *holdings.Ledger,
) (*ValidatedTrade, bool, *TradeError) {
	ticker := holdings.NormalizeTicker(proposed.Ticker)
	rawAction := strings.TrimSpace(proposed.Action)

	if ticker == "" || rawAction == "" {
		return nil, false, newTradeError(proposed, ErrMissingField,
			"trade is missing ticker or action")
	}
	if !proposed.Shares.IsPositive() {
		return nil, false, newTradeError(proposed, ErrInvalidShareCount,
			"share count must be positive, got %s", proposed.Shares.String())
	}

	action, err := orders.ParseAction(rawAction)
	if err != nil {
		return nil, false, newTradeError(proposed, ErrUnknownAction, "%v", err)
	}
	if action == orders.ActionHold {
		v.log.Info().Str("ticker", ticker).Msg("HOLD action, skipping")
		return nil, true, nil
	}

	class, err := action.Classify()
	if err != nil {
		return nil, false, newTradeError(proposed, ErrUnknownAction, "%v", err)
	}

	price, ok := prices[ticker]
	if !ok || !price.IsPositive() {
		return nil, false, newTradeError(proposed, ErrPriceUnavailable,
			"no price available for %s", ticker)
	}

	totalValue := proposed.Shares.Mul(price)

	switch class {
	case orders.ClassBuy:
		if totalValue.GreaterThan(cash) {
			return nil, false, newTradeError(proposed, ErrInsufficientCash,
				"trade value %s exceeds available cash %s", totalValue.String(), cash.String())
		}
		if totalValue.LessThan(v.minTradeValue) {
			return nil, false, newTradeError(proposed, ErrBelowMinimumTradeValue,
				"trade value %s is below the %s minimum", totalValue.String(), v.minTradeValue.String())
		}

	case orders.ClassSell:
		position, err := ledger.Get(ticker)
		if err != nil {
			return nil, false, newTradeError(proposed, ErrPersistenceFailure,
				"failed to read position: %v", err)
		}
		if position == nil {
			return nil, false, newTradeError(proposed, ErrInsufficientShares,
				"no position in %s to sell", ticker)
		}
		if position.Shares.LessThan(proposed.Shares) {
			return nil, false, newTradeError(proposed, ErrInsufficientShares,
				"cannot sell %s shares of %s, only %s held",
				proposed.Shares.String(), ticker, position.Shares.String())
		}
	}

	return &ValidatedTrade{
		Action:     action,
		Class:      class,
		Ticker:     ticker,
		Shares:     proposed.Shares,
		Price:      price,
		TotalValue: totalValue,
		Reasoning:  proposed.Reasoning,
	}, false, nil
}
