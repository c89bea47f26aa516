package trading

import (
	"context"
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarag/aifolio/internal/domain"
	"github.com/mkarag/aifolio/internal/modules/holdings"
	"github.com/mkarag/aifolio/internal/modules/orders"
	"github.com/mkarag/aifolio/internal/modules/portfolio"
)

// stubOracle returns a canned session status
type stubOracle struct {
	open      bool
	callErr   error
	oracleErr string
	calls     int
}

func (o *stubOracle) IsMarketOpen(_ context.Context, _ string) (domain.SessionStatus, error) {
	o.calls++
	if o.callErr != nil {
		return domain.SessionStatus{}, o.callErr
	}
	return domain.SessionStatus{Open: o.open, Err: o.oracleErr}, nil
}

// stubPrices returns a fixed price map
type stubPrices struct {
	prices  map[string]decimal.Decimal
	callErr error
}

func (p *stubPrices) ResolvePrices(_ context.Context, _ []string) (map[string]decimal.Decimal, error) {
	if p.callErr != nil {
		return nil, p.callErr
	}
	return p.prices, nil
}

type executorFixture struct {
	executor   *Executor
	portfolios *portfolio.Repository
	holdings   *holdings.Repository
	orders     *orders.Repository
	oracle     *stubOracle
}

func setupExecutor(t *testing.T, oracle *stubOracle, prices *stubPrices) *executorFixture {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE portfolios (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			asset_type TEXT NOT NULL,
			status TEXT NOT NULL,
			starting_capital TEXT NOT NULL,
			current_cash TEXT NOT NULL,
			rebalance_cadence TEXT,
			next_rebalance_at TEXT,
			last_traded_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE holdings (
			portfolio_id TEXT NOT NULL,
			ticker TEXT NOT NULL,
			shares TEXT NOT NULL,
			avg_cost TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (portfolio_id, ticker)
		);
		CREATE TABLE orders (
			id TEXT PRIMARY KEY,
			portfolio_id TEXT NOT NULL,
			ticker TEXT NOT NULL,
			action TEXT NOT NULL,
			class TEXT NOT NULL,
			shares TEXT NOT NULL,
			price TEXT NOT NULL,
			total_value TEXT NOT NULL,
			reasoning TEXT,
			is_pending INTEGER NOT NULL DEFAULT 0,
			executed_at TEXT,
			created_at TEXT NOT NULL
		);
	`)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := zerolog.Nop()
	f := &executorFixture{
		portfolios: portfolio.NewRepository(db, log),
		holdings:   holdings.NewRepository(db, log),
		orders:     orders.NewRepository(db, log),
		oracle:     oracle,
	}
	f.executor = NewExecutor(
		oracle, prices,
		NewValidator(d("500"), log),
		f.portfolios, f.holdings, f.orders, log)
	return f
}

func (f *executorFixture) seedPortfolio(t *testing.T, cash string) *portfolio.Portfolio {
	p := portfolio.Portfolio{
		ID:              "pf-1",
		Name:            "Test",
		AssetType:       portfolio.AssetTypeStock,
		Status:          portfolio.StatusActive,
		StartingCapital: d("10000"),
		CurrentCash:     d(cash),
	}
	require.NoError(t, f.portfolios.Create(p))
	return &p
}

func (f *executorFixture) cash(t *testing.T) decimal.Decimal {
	p, err := f.portfolios.GetByID("pf-1")
	require.NoError(t, err)
	return p.CurrentCash
}

func TestCashConservation(t *testing.T) {
	prices := &stubPrices{prices: map[string]decimal.Decimal{
		"AAPL": d("100"),
		"MSFT": d("250"),
	}}
	f := setupExecutor(t, &stubOracle{open: true}, prices)
	p := f.seedPortfolio(t, "10000")

	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("20")},  // -2000
		{Action: "BUY", Ticker: "MSFT", Shares: d("10")},  // -2500
		{Action: "SELL", Ticker: "AAPL", Shares: d("5")},  // +500
	})
	require.NoError(t, err)
	require.Len(t, result.Executed, 3)
	require.Empty(t, result.Errors)

	// 10000 - 2000 - 2500 + 500, exactly
	assert.True(t, f.cash(t).Equal(d("6000")), "got %s", f.cash(t))
}

func TestShareConservationBuyThenFullSell(t *testing.T) {
	prices := &stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}}
	f := setupExecutor(t, &stubOracle{open: true}, prices)
	p := f.seedPortfolio(t, "10000")

	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
		{Action: "SELL", Ticker: "AAPL", Shares: d("10")},
	})
	require.NoError(t, err)
	require.Len(t, result.Executed, 2)
	require.Empty(t, result.Errors)

	h, err := f.holdings.GetByTicker("pf-1", "AAPL")
	require.NoError(t, err)
	assert.Nil(t, h, "fully sold position must leave no row")
	assert.True(t, f.cash(t).Equal(d("10000")))
}

func TestAverageCostCorrectness(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}})
	p := f.seedPortfolio(t, "10000")

	_, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
	})
	require.NoError(t, err)

	// Second batch at the new price
	f2prices := map[string]decimal.Decimal{"AAPL": d("200")}
	f.executor.prices = &stubPrices{prices: f2prices}
	_, err = f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
	})
	require.NoError(t, err)

	h, err := f.holdings.GetByTicker("pf-1", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Shares.Equal(d("20")), "shares: %s", h.Shares)
	assert.True(t, h.AvgCost.Equal(d("150")), "avg cost: %s", h.AvgCost)
}

func TestSellDoesNotChangeAvgCost(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("300")}})
	p := f.seedPortfolio(t, "100")
	require.NoError(t, f.holdings.Upsert(holdings.Holding{
		PortfolioID: "pf-1", Ticker: "AAPL", Shares: d("10"), AvgCost: d("150"),
	}))

	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "SELL", Ticker: "AAPL", Shares: d("4")},
	})
	require.NoError(t, err)
	require.Len(t, result.Executed, 1)

	h, err := f.holdings.GetByTicker("pf-1", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Shares.Equal(d("6")))
	assert.True(t, h.AvgCost.Equal(d("150")), "selling must not move cost basis")
}

func TestMinimumTradeFloor(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}})
	p := f.seedPortfolio(t, "10000")

	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("4")}, // 400 < 500
	})
	require.NoError(t, err)
	assert.Empty(t, result.Executed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ErrBelowMinimumTradeValue, result.Errors[0].Kind)
	assert.True(t, f.cash(t).Equal(d("10000")), "cash untouched on rejection")
}

func TestMarketClosedQueuesPendingOrders(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: false}, &stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}})
	p := f.seedPortfolio(t, "10000")

	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
	})
	require.NoError(t, err)
	assert.False(t, result.MarketOpen)
	assert.Empty(t, result.Executed)
	require.Len(t, result.Pending, 1)
	assert.True(t, result.Pending[0].IsPending)
	assert.Nil(t, result.Pending[0].ExecutedAt)

	// Ledger and cash untouched
	h, err := f.holdings.GetByTicker("pf-1", "AAPL")
	require.NoError(t, err)
	assert.Nil(t, h)
	assert.True(t, f.cash(t).Equal(d("10000")))

	queued, err := f.orders.GetPending("pf-1")
	require.NoError(t, err)
	assert.Len(t, queued, 1)
}

func TestOracleFailureAssumesOpen(t *testing.T) {
	f := setupExecutor(t,
		&stubOracle{callErr: assert.AnError},
		&stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}})
	p := f.seedPortfolio(t, "10000")

	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
	})
	require.NoError(t, err)
	assert.True(t, result.MarketOpen, "oracle failure must degrade to assume-open")
	assert.Len(t, result.Executed, 1)
}

func TestOracleReportedErrorAssumesOpen(t *testing.T) {
	f := setupExecutor(t,
		&stubOracle{open: false, oracleErr: "calendar unavailable"},
		&stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}})
	p := f.seedPortfolio(t, "10000")

	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
	})
	require.NoError(t, err)
	assert.True(t, result.MarketOpen)
}

func TestSessionDeterminedOncePerBatch(t *testing.T) {
	oracle := &stubOracle{open: true}
	f := setupExecutor(t, oracle, &stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}})
	p := f.seedPortfolio(t, "10000")

	_, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
		{Action: "SELL", Ticker: "AAPL", Shares: d("5")},
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, oracle.calls, "one session check governs the whole batch")
}

func TestInsufficientFunds(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}})
	p := f.seedPortfolio(t, "900")

	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")}, // 1000 > 900
	})
	require.NoError(t, err)
	assert.Empty(t, result.Executed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ErrInsufficientCash, result.Errors[0].Kind)
	assert.True(t, f.cash(t).Equal(d("900")))
}

func TestInsufficientShares(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}})
	p := f.seedPortfolio(t, "1000")
	require.NoError(t, f.holdings.Upsert(holdings.Holding{
		PortfolioID: "pf-1", Ticker: "AAPL", Shares: d("30"), AvgCost: d("90"),
	}))

	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "SELL", Ticker: "AAPL", Shares: d("50")},
	})
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ErrInsufficientShares, result.Errors[0].Kind)

	h, err := f.holdings.GetByTicker("pf-1", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Shares.Equal(d("30")), "holding untouched")
}

func TestPartialBatchResilience(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{prices: map[string]decimal.Decimal{
		"AAPL": d("100"),
		"MSFT": d("200"),
	}})
	p := f.seedPortfolio(t, "10000")

	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
		{Action: "SELL", Ticker: "MSFT", Shares: d("5")}, // no position
		{Action: "BUY", Ticker: "MSFT", Shares: d("5")},
	})
	require.NoError(t, err)
	assert.Len(t, result.Executed, 2, "first and third still execute")
	require.Len(t, result.Errors, 1)
	assert.Equal(t, ErrInsufficientShares, result.Errors[0].Kind)
	assert.Equal(t, "MSFT", result.Errors[0].Trade.Ticker)
}

func TestSequentialStateVisibility(t *testing.T) {
	// A sell frees cash that the very next buy in the same batch can spend
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{prices: map[string]decimal.Decimal{
		"AAPL": d("100"),
		"MSFT": d("200"),
	}})
	p := f.seedPortfolio(t, "100")
	require.NoError(t, f.holdings.Upsert(holdings.Holding{
		PortfolioID: "pf-1", Ticker: "AAPL", Shares: d("10"), AvgCost: d("80"),
	}))

	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "SELL", Ticker: "AAPL", Shares: d("10")}, // +1000 -> cash 1100
		{Action: "BUY", Ticker: "MSFT", Shares: d("5")},   // -1000, affordable only post-sell
	})
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	assert.Len(t, result.Executed, 2)
	assert.True(t, f.cash(t).Equal(d("100")))
}

func TestHoldNeverPersisted(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}})
	p := f.seedPortfolio(t, "10000")

	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "HOLD", Ticker: "AAPL", Shares: d("10")},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Executed)
	assert.Empty(t, result.Pending)
	assert.Empty(t, result.Errors)

	all, err := f.orders.GetByPortfolio("pf-1", 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPriceResolverFailureFailsTradesIndividually(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{callErr: assert.AnError})
	p := f.seedPortfolio(t, "10000")

	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
		{Action: "BUY", Ticker: "MSFT", Shares: d("10")},
	})
	require.NoError(t, err, "resolver failure must not abort the batch")
	require.Len(t, result.Errors, 2)
	for _, e := range result.Errors {
		assert.Equal(t, ErrPriceUnavailable, e.Kind)
	}
}

func TestZeroTradeBatchTouchesNothing(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{})
	p := f.seedPortfolio(t, "10000")

	before, err := f.portfolios.GetByID("pf-1")
	require.NoError(t, err)
	require.Nil(t, before.LastTradedAt)

	result, err := f.executor.ExecuteBatch(context.Background(), p, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Executed)

	after, err := f.portfolios.GetByID("pf-1")
	require.NoError(t, err)
	assert.Nil(t, after.LastTradedAt, "no write when nothing executed")
}
