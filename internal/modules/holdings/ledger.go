package holdings

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Ledger applies buy/sell accounting to one portfolio's holdings.
//
// The ledger is the only writer of holding rows. Mutations happen strictly
// sequentially within a trade batch, so the state written by trade N is
// visible to trade N+1.
type Ledger struct {
	portfolioID string
	repo        *Repository
	log         zerolog.Logger
}

// NewLedger creates a ledger bound to one portfolio
func NewLedger(portfolioID string, repo *Repository, log zerolog.Logger) *Ledger {
	return &Ledger{
		portfolioID: portfolioID,
		repo:        repo,
		log:         log.With().Str("component", "ledger").Str("portfolio_id", portfolioID).Logger(),
	}
}

// Get returns the current holding for a ticker, nil when no position exists
func (l *Ledger) Get(ticker string) (*Holding, error) {
	return l.repo.GetByTicker(l.portfolioID, ticker)
}

// All returns every holding of the portfolio
func (l *Ledger) All() ([]Holding, error) {
	return l.repo.GetAll(l.portfolioID)
}

// UpsertOnBuy applies a buy to the position.
//
// An existing position gets the share-weighted average cost:
//
//	newAvgCost = (oldShares*oldAvgCost + shares*price) / (oldShares + shares)
//
// A first buy creates the position at avgCost = price.
func (l *Ledger) UpsertOnBuy(ticker string, shares, price decimal.Decimal) error {
	ticker = NormalizeTicker(ticker)
	if !shares.IsPositive() {
		return fmt.Errorf("buy shares must be positive, got %s", shares.String())
	}

	existing, err := l.repo.GetByTicker(l.portfolioID, ticker)
	if err != nil {
		return err
	}

	h := Holding{
		PortfolioID: l.portfolioID,
		Ticker:      ticker,
		Shares:      shares,
		AvgCost:     price,
	}

	if existing != nil {
		totalCost := existing.CostBasis().Add(shares.Mul(price))
		totalShares := existing.Shares.Add(shares)
		h.Shares = totalShares
		h.AvgCost = totalCost.Div(totalShares)
	}

	if err := l.repo.Upsert(h); err != nil {
		return err
	}

	l.log.Info().
		Str("ticker", ticker).
		Str("shares", h.Shares.String()).
		Msg("Position increased")

	return nil
}

// ReduceOnSell applies a sell to the position.
//
// AvgCost is untouched: selling never changes the cost basis. A position
// reduced to zero (or to dust below DustThreshold) is deleted outright.
func (l *Ledger) ReduceOnSell(ticker string, shares decimal.Decimal) error {
	ticker = NormalizeTicker(ticker)
	if !shares.IsPositive() {
		return fmt.Errorf("sell shares must be positive, got %s", shares.String())
	}

	existing, err := l.repo.GetByTicker(l.portfolioID, ticker)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("no position in %s to sell", ticker)
	}
	if existing.Shares.LessThan(shares) {
		return fmt.Errorf("cannot sell %s shares of %s, only %s held",
			shares.String(), ticker, existing.Shares.String())
	}

	remaining := existing.Shares.Sub(shares)
	if remaining.GreaterThan(DustThreshold) {
		existing.Shares = remaining
		if err := l.repo.Upsert(*existing); err != nil {
			return err
		}
		l.log.Info().
			Str("ticker", ticker).
			Str("remaining_shares", remaining.String()).
			Msg("Position reduced")
		return nil
	}

	if err := l.repo.Delete(l.portfolioID, ticker); err != nil {
		return err
	}
	l.log.Info().Str("ticker", ticker).Msg("Position closed")
	return nil
}

// Valuate returns the mark-to-market value of all holdings.
//
// A ticker missing from the price map falls back to its cost basis, so a
// stale or delisted symbol can never fail a valuation run.
func (l *Ledger) Valuate(prices map[string]decimal.Decimal) (decimal.Decimal, error) {
	all, err := l.repo.GetAll(l.portfolioID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, h := range all {
		price, ok := prices[h.Ticker]
		if !ok {
			price = h.AvgCost
		}
		total = total.Add(h.MarketValue(price))
	}

	return total, nil
}
