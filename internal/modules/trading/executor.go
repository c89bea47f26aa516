package trading

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mkarag/aifolio/internal/domain"
	"github.com/mkarag/aifolio/internal/modules/holdings"
	"github.com/mkarag/aifolio/internal/modules/orders"
	"github.com/mkarag/aifolio/internal/modules/portfolio"
)

// BatchResult is the outcome of one trade-processing run. Partial failures
// show up in Errors; the batch itself only fails when the portfolio record
// cannot be read or written.
type BatchResult struct {
	Executed []orders.Order `json:"executed"`
	Pending  []orders.Order `json:"pending"`
	Errors   []TradeError   `json:"errors"`
	// MarketOpen records the single session determination that governed
	// the whole batch.
	MarketOpen bool `json:"market_open"`
}

// Executor applies a batch of proposed trades to one portfolio.
//
// The market session is determined once per batch, before any trade is
// processed. A session flip mid-batch cannot occur.
type Executor struct {
	oracle     domain.MarketSessionOracle
	prices     domain.PriceResolver
	validator  *Validator
	portfolios *portfolio.Repository
	holdings   *holdings.Repository
	orders     *orders.Repository
	log        zerolog.Logger
}

// NewExecutor creates a trade executor
func NewExecutor(
	oracle domain.MarketSessionOracle,
	prices domain.PriceResolver,
	validator *Validator,
	portfolios *portfolio.Repository,
	holdingsRepo *holdings.Repository,
	ordersRepo *orders.Repository,
	log zerolog.Logger,
) *Executor {
	return &Executor{
		oracle:     oracle,
		prices:     prices,
		validator:  validator,
		portfolios: portfolios,
		holdings:   holdingsRepo,
		orders:     ordersRepo,
		log:        log.With().Str("component", "executor").Logger(),
	}
}

// ExecuteBatch runs the state machine over one batch of proposed trades.
//
// Trades are applied strictly sequentially so the cash and share state
// written by trade N is visible to trade N+1. There is no rollback: a
// failure on trade N leaves trades 1..N-1 applied.
func (e *Executor) ExecuteBatch(ctx context.Context, p *portfolio.Portfolio, proposed []domain.ProposedTrade) (*BatchResult, error) {
	result := &BatchResult{
		Executed: []orders.Order{},
		Pending:  []orders.Order{},
		Errors:   []TradeError{},
	}

	result.MarketOpen = e.determineSession(ctx, string(p.AssetType))

	priceMap := e.resolveBatchPrices(ctx, proposed)
	ledger := holdings.NewLedger(p.ID, e.holdings, e.log)

	cash := p.CurrentCash
	now := time.Now()
	applied := 0

	for _, trade := range proposed {
		vt, skip, terr := e.validator.ValidateOne(trade, priceMap, cash, ledger)
		if skip {
			continue
		}
		if terr != nil {
			result.Errors = append(result.Errors, *terr)
			continue
		}

		if !result.MarketOpen {
			order, err := e.persistOrder(p.ID, vt, true, nil)
			if err != nil {
				result.Errors = append(result.Errors, *newTradeError(trade, ErrPersistenceFailure,
					"failed to queue order: %v", err))
				continue
			}
			result.Pending = append(result.Pending, order)
			continue
		}

		if err := e.applyToLedger(ledger, vt); err != nil {
			result.Errors = append(result.Errors, *newTradeError(trade, ErrPersistenceFailure,
				"failed to apply trade: %v", err))
			continue
		}

		applied++
		switch vt.Class {
		case orders.ClassBuy:
			cash = cash.Sub(vt.TotalValue)
		case orders.ClassSell:
			cash = cash.Add(vt.TotalValue)
		}

		executedAt := now
		order, err := e.persistOrder(p.ID, vt, false, &executedAt)
		if err != nil {
			// The ledger mutation already happened; record the write
			// failure but keep the cash movement so the final portfolio
			// write stays consistent with the holdings.
			result.Errors = append(result.Errors, *newTradeError(trade, ErrPersistenceFailure,
				"failed to record executed order: %v", err))
			continue
		}
		result.Executed = append(result.Executed, order)
	}

	// Single portfolio write per batch, only when something was applied
	if result.MarketOpen && applied > 0 {
		if err := e.portfolios.UpdateCashAndLastTraded(p.ID, cash, now); err != nil {
			return nil, fmt.Errorf("failed to finalize portfolio after batch: %w", err)
		}
		p.CurrentCash = cash
		p.LastTradedAt = &now
	}

	e.log.Info().
		Str("portfolio_id", p.ID).
		Bool("market_open", result.MarketOpen).
		Int("executed", len(result.Executed)).
		Int("pending", len(result.Pending)).
		Int("errors", len(result.Errors)).
		Msg("Trade batch processed")

	return result, nil
}

// determineSession asks the oracle once. An oracle failure degrades to
// "assume open", favoring execution over a silent no-op.
func (e *Executor) determineSession(ctx context.Context, assetType string) bool {
	status, err := e.oracle.IsMarketOpen(ctx, assetType)
	if err != nil {
		e.log.Warn().Err(err).
			Str("asset_type", assetType).
			Msg("Market session check failed, assuming open")
		return true
	}
	if status.Err != "" {
		e.log.Warn().
			Str("asset_type", assetType).
			Str("oracle_error", status.Err).
			Msg("Market session oracle reported an error, assuming open")
		return true
	}
	return status.Open
}

// resolveBatchPrices looks up prices for every ticker in the batch in one
// call. A resolver failure leaves the map empty; each trade then fails
// individually with PriceUnavailable instead of aborting the batch.
func (e *Executor) resolveBatchPrices(ctx context.Context, proposed []domain.ProposedTrade) map[string]decimal.Decimal {
	seen := make(map[string]bool)
	var tickers []string
	for _, t := range proposed {
		ticker := holdings.NormalizeTicker(t.Ticker)
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true
		tickers = append(tickers, ticker)
	}
	if len(tickers) == 0 {
		return nil
	}

	prices, err := e.prices.ResolvePrices(ctx, tickers)
	if err != nil {
		e.log.Warn().Err(err).Msg("Price resolution failed for batch")
		return nil
	}
	return prices
}

func (e *Executor) applyToLedger(ledger *holdings.Ledger, vt *ValidatedTrade) error {
	switch vt.Class {
	case orders.ClassBuy:
		return ledger.UpsertOnBuy(vt.Ticker, vt.Shares, vt.Price)
	case orders.ClassSell:
		return ledger.ReduceOnSell(vt.Ticker, vt.Shares)
	default:
		return fmt.Errorf("unknown trade class %s", vt.Class)
	}
}

func (e *Executor) persistOrder(portfolioID string, vt *ValidatedTrade, pending bool, executedAt *time.Time) (orders.Order, error) {
	order := orders.Order{
		ID:          uuid.New().String(),
		PortfolioID: portfolioID,
		Ticker:      vt.Ticker,
		Action:      vt.Action,
		Class:       vt.Class,
		Shares:      vt.Shares,
		Price:       vt.Price,
		TotalValue:  vt.TotalValue,
		Reasoning:   vt.Reasoning,
		IsPending:   pending,
		ExecutedAt:  executedAt,
		CreatedAt:   time.Now(),
	}
	if err := e.orders.Create(order); err != nil {
		return orders.Order{}, err
	}
	return order, nil
}
