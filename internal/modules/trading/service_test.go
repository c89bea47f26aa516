package trading

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarag/aifolio/internal/domain"
	"github.com/mkarag/aifolio/internal/modules/holdings"
	"github.com/mkarag/aifolio/internal/modules/portfolio"
)

// stubProposer returns canned trades or an error
type stubProposer struct {
	trades  []domain.ProposedTrade
	callErr error

	mu      sync.Mutex
	lastCtx *domain.ProposalContext
	started chan struct{}
	release chan struct{}
}

func (p *stubProposer) ProposeTrades(_ context.Context, pctx domain.ProposalContext) ([]domain.ProposedTrade, error) {
	p.mu.Lock()
	p.lastCtx = &pctx
	p.mu.Unlock()
	if p.started != nil {
		close(p.started)
		<-p.release
	}
	if p.callErr != nil {
		return nil, p.callErr
	}
	return p.trades, nil
}

func newService(f *executorFixture, proposer domain.TradeProposer) *Service {
	return NewService(
		f.executor, proposer,
		f.portfolios, f.holdings, f.orders,
		f.oracle, nil, zerolog.Nop())
}

func TestRunRebalanceActivatesInitializingPortfolio(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}})
	require.NoError(t, f.portfolios.Create(portfolio.Portfolio{
		ID:              "pf-1",
		Name:            "Test",
		AssetType:       portfolio.AssetTypeStock,
		Status:          portfolio.StatusInitializing,
		StartingCapital: d("10000"),
		CurrentCash:     d("10000"),
	}))

	proposer := &stubProposer{trades: []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
	}}
	svc := newService(f, proposer)

	result, err := svc.RunRebalance(context.Background(), "pf-1")
	require.NoError(t, err)
	assert.Len(t, result.Executed, 1)

	p, err := f.portfolios.GetByID("pf-1")
	require.NoError(t, err)
	assert.Equal(t, portfolio.StatusActive, p.Status)
}

func TestRunRebalanceZeroTradesStillActivates(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{})
	require.NoError(t, f.portfolios.Create(portfolio.Portfolio{
		ID:              "pf-1",
		Name:            "Test",
		AssetType:       portfolio.AssetTypeStock,
		Status:          portfolio.StatusInitializing,
		StartingCapital: d("10000"),
		CurrentCash:     d("10000"),
	}))

	svc := newService(f, &stubProposer{})
	_, err := svc.RunRebalance(context.Background(), "pf-1")
	require.NoError(t, err)

	p, err := f.portfolios.GetByID("pf-1")
	require.NoError(t, err)
	assert.Equal(t, portfolio.StatusActive, p.Status)
}

func TestRunRebalanceProposerFailureSetsErrorStatus(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{})
	require.NoError(t, f.portfolios.Create(portfolio.Portfolio{
		ID:              "pf-1",
		Name:            "Test",
		AssetType:       portfolio.AssetTypeStock,
		Status:          portfolio.StatusInitializing,
		StartingCapital: d("10000"),
		CurrentCash:     d("10000"),
	}))

	svc := newService(f, &stubProposer{callErr: assert.AnError})
	_, err := svc.RunRebalance(context.Background(), "pf-1")
	require.Error(t, err)

	p, err := f.portfolios.GetByID("pf-1")
	require.NoError(t, err)
	assert.Equal(t, portfolio.StatusError, p.Status)
}

func TestRunRebalanceSelectsModeFromHoldings(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{})
	f.seedPortfolio(t, "10000")

	proposer := &stubProposer{}
	svc := newService(f, proposer)

	_, err := svc.RunRebalance(context.Background(), "pf-1")
	require.NoError(t, err)
	require.NotNil(t, proposer.lastCtx)
	assert.Equal(t, string(ModeNewPortfolio), proposer.lastCtx.Mode)

	require.NoError(t, f.holdings.Upsert(holdings.Holding{
		PortfolioID: "pf-1", Ticker: "AAPL", Shares: d("5"), AvgCost: d("100"),
	}))

	_, err = svc.RunRebalance(context.Background(), "pf-1")
	require.NoError(t, err)
	assert.Equal(t, string(ModeRebalance), proposer.lastCtx.Mode)
	require.Len(t, proposer.lastCtx.Holdings, 1)
	assert.Equal(t, "AAPL", proposer.lastCtx.Holdings[0].Ticker)
}

func TestConcurrentRunIsRejected(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{})
	f.seedPortfolio(t, "10000")

	proposer := &stubProposer{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	svc := newService(f, proposer)

	done := make(chan error, 1)
	go func() {
		_, err := svc.RunRebalance(context.Background(), "pf-1")
		done <- err
	}()

	<-proposer.started

	// Second run while the first is mid-flight
	_, err := svc.ProcessTradeBatch(context.Background(), "pf-1", nil)
	assert.ErrorIs(t, err, ErrPortfolioBusy)

	close(proposer.release)
	require.NoError(t, <-done)

	// Lock released, runs again fine
	_, err = svc.ProcessTradeBatch(context.Background(), "pf-1", nil)
	assert.NoError(t, err)
}

func TestProcessTradeBatchUnknownPortfolio(t *testing.T) {
	f := setupExecutor(t, &stubOracle{open: true}, &stubPrices{})
	svc := newService(f, &stubProposer{})

	_, err := svc.ProcessTradeBatch(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, portfolio.ErrNotFound)
}

func TestFlushPendingExecutesQueuedOrders(t *testing.T) {
	oracle := &stubOracle{open: false}
	f := setupExecutor(t, oracle, &stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}})
	p := f.seedPortfolio(t, "10000")
	svc := newService(f, &stubProposer{})

	// Queue a buy while closed
	result, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
	})
	require.NoError(t, err)
	require.Len(t, result.Pending, 1)

	// Market opens
	oracle.open = true
	flushed, err := svc.FlushPending(context.Background(), "pf-1")
	require.NoError(t, err)
	assert.Equal(t, 1, flushed)

	h, err := f.holdings.GetByTicker("pf-1", "AAPL")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Shares.Equal(d("10")))
	assert.True(t, f.cash(t).Equal(d("9000")))

	remaining, err := f.orders.GetPending("pf-1")
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestFlushPendingSkipsWhenClosed(t *testing.T) {
	oracle := &stubOracle{open: false}
	f := setupExecutor(t, oracle, &stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}})
	p := f.seedPortfolio(t, "10000")
	svc := newService(f, &stubProposer{})

	_, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
	})
	require.NoError(t, err)

	flushed, err := svc.FlushPending(context.Background(), "pf-1")
	require.NoError(t, err)
	assert.Zero(t, flushed)

	remaining, err := f.orders.GetPending("pf-1")
	require.NoError(t, err)
	assert.Len(t, remaining, 1, "orders stay queued while closed")
}

func TestFlushPendingSkipsOnOracleFailure(t *testing.T) {
	oracle := &stubOracle{open: false}
	f := setupExecutor(t, oracle, &stubPrices{prices: map[string]decimal.Decimal{"AAPL": d("100")}})
	p := f.seedPortfolio(t, "10000")
	svc := newService(f, &stubProposer{})

	_, err := f.executor.ExecuteBatch(context.Background(), p, []domain.ProposedTrade{
		{Action: "BUY", Ticker: "AAPL", Shares: d("10")},
	})
	require.NoError(t, err)

	oracle.callErr = assert.AnError
	flushed, err := svc.FlushPending(context.Background(), "pf-1")
	require.NoError(t, err)
	assert.Zero(t, flushed, "flush never executes on an oracle guess")
}
