package trading

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarag/aifolio/internal/domain"
	"github.com/mkarag/aifolio/internal/modules/holdings"
)

func setupLedger(t *testing.T) (*holdings.Ledger, *holdings.Repository) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE holdings (
			portfolio_id TEXT NOT NULL,
			ticker TEXT NOT NULL,
			shares TEXT NOT NULL,
			avg_cost TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (portfolio_id, ticker)
		)
	`)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := holdings.NewRepository(db, zerolog.Nop())
	return holdings.NewLedger("pf-1", repo, zerolog.Nop()), repo
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestValidateOne(t *testing.T) {
	ledger, repo := setupLedger(t)
	require.NoError(t, repo.Upsert(holdings.Holding{
		PortfolioID: "pf-1",
		Ticker:      "AAPL",
		Shares:      d("30"),
		AvgCost:     d("150"),
	}))

	prices := map[string]decimal.Decimal{
		"AAPL": d("200"),
		"MSFT": d("300"),
	}
	v := NewValidator(d("500"), zerolog.Nop())
	cash := d("10000")

	tests := []struct {
		name     string
		trade    domain.ProposedTrade
		wantSkip bool
		wantKind ErrorKind
	}{
		{
			name:  "valid buy",
			trade: domain.ProposedTrade{Action: "BUY", Ticker: "MSFT", Shares: d("5")},
		},
		{
			name:  "valid sell",
			trade: domain.ProposedTrade{Action: "SELL", Ticker: "AAPL", Shares: d("10")},
		},
		{
			name:  "trim normalizes to sell class",
			trade: domain.ProposedTrade{Action: "TRIM", Ticker: "AAPL", Shares: d("10")},
		},
		{
			name:  "increase normalizes to buy class",
			trade: domain.ProposedTrade{Action: "INCREASE", Ticker: "MSFT", Shares: d("5")},
		},
		{
			name:  "lowercase action accepted",
			trade: domain.ProposedTrade{Action: "buy", Ticker: "MSFT", Shares: d("5")},
		},
		{
			name:     "hold is skipped",
			trade:    domain.ProposedTrade{Action: "HOLD", Ticker: "AAPL", Shares: d("1")},
			wantSkip: true,
		},
		{
			name:     "missing ticker",
			trade:    domain.ProposedTrade{Action: "BUY", Ticker: "", Shares: d("5")},
			wantKind: ErrMissingField,
		},
		{
			name:     "missing action",
			trade:    domain.ProposedTrade{Action: "", Ticker: "AAPL", Shares: d("5")},
			wantKind: ErrMissingField,
		},
		{
			name:     "zero shares",
			trade:    domain.ProposedTrade{Action: "BUY", Ticker: "AAPL", Shares: decimal.Zero},
			wantKind: ErrInvalidShareCount,
		},
		{
			name:     "negative shares",
			trade:    domain.ProposedTrade{Action: "BUY", Ticker: "AAPL", Shares: d("-2")},
			wantKind: ErrInvalidShareCount,
		},
		{
			name:     "unknown action",
			trade:    domain.ProposedTrade{Action: "SHORT", Ticker: "AAPL", Shares: d("5")},
			wantKind: ErrUnknownAction,
		},
		{
			name:     "price unavailable",
			trade:    domain.ProposedTrade{Action: "BUY", Ticker: "ZZZZ", Shares: d("5")},
			wantKind: ErrPriceUnavailable,
		},
		{
			name:     "insufficient cash",
			trade:    domain.ProposedTrade{Action: "BUY", Ticker: "MSFT", Shares: d("100")},
			wantKind: ErrInsufficientCash,
		},
		{
			name:     "below minimum trade value",
			trade:    domain.ProposedTrade{Action: "BUY", Ticker: "MSFT", Shares: d("1")},
			wantKind: ErrBelowMinimumTradeValue,
		},
		{
			name:     "sell with no position",
			trade:    domain.ProposedTrade{Action: "SELL", Ticker: "MSFT", Shares: d("5")},
			wantKind: ErrInsufficientShares,
		},
		{
			name:     "sell more than held",
			trade:    domain.ProposedTrade{Action: "SELL", Ticker: "AAPL", Shares: d("50")},
			wantKind: ErrInsufficientShares,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vt, skip, terr := v.ValidateOne(tt.trade, prices, cash, ledger)

			if tt.wantSkip {
				assert.True(t, skip)
				assert.Nil(t, vt)
				assert.Nil(t, terr)
				return
			}
			if tt.wantKind != "" {
				require.NotNil(t, terr)
				assert.Equal(t, tt.wantKind, terr.Kind)
				assert.Nil(t, vt)
				return
			}
			require.Nil(t, terr)
			require.NotNil(t, vt)
			assert.True(t, vt.TotalValue.Equal(vt.Shares.Mul(vt.Price)))
		})
	}
}

func TestValidateOneMinimumFloorAppliesOnlyToBuys(t *testing.T) {
	ledger, repo := setupLedger(t)
	require.NoError(t, repo.Upsert(holdings.Holding{
		PortfolioID: "pf-1",
		Ticker:      "AAPL",
		Shares:      d("2"),
		AvgCost:     d("150"),
	}))

	v := NewValidator(d("500"), zerolog.Nop())
	prices := map[string]decimal.Decimal{"AAPL": d("100")}

	// A 100-value sell is fine even though a 100-value buy would be rejected
	vt, skip, terr := v.ValidateOne(
		domain.ProposedTrade{Action: "SELL", Ticker: "AAPL", Shares: d("1")},
		prices, d("10000"), ledger)
	assert.False(t, skip)
	assert.Nil(t, terr)
	require.NotNil(t, vt)
}

func TestValidateOnePreservesDisplayLabel(t *testing.T) {
	ledger, repo := setupLedger(t)
	require.NoError(t, repo.Upsert(holdings.Holding{
		PortfolioID: "pf-1",
		Ticker:      "AAPL",
		Shares:      d("30"),
		AvgCost:     d("150"),
	}))

	v := NewValidator(d("500"), zerolog.Nop())
	prices := map[string]decimal.Decimal{"AAPL": d("200")}

	vt, _, terr := v.ValidateOne(
		domain.ProposedTrade{Action: "trim", Ticker: "aapl", Shares: d("5")},
		prices, d("1000"), ledger)
	require.Nil(t, terr)
	require.NotNil(t, vt)
	assert.Equal(t, "TRIM", string(vt.Action), "display label survives normalization")
	assert.Equal(t, "SELL_CLASS", string(vt.Class))
	assert.Equal(t, "AAPL", vt.Ticker)
}
