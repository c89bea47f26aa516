package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkarag/aifolio/internal/domain"
	"github.com/mkarag/aifolio/internal/modules/holdings"
	"github.com/mkarag/aifolio/internal/modules/orders"
	"github.com/mkarag/aifolio/internal/modules/portfolio"
	"github.com/mkarag/aifolio/internal/modules/snapshots"
)

// Service orchestrates trade-processing runs for portfolios.
//
// Each portfolio is a single-writer resource: the service holds one mutex per
// portfolio and rejects (does not queue) a second concurrent run, so two
// interleaved batches can never produce lost updates to cash or shares.
type Service struct {
	executor   *Executor
	proposer   domain.TradeProposer
	portfolios *portfolio.Repository
	holdings   *holdings.Repository
	orders     *orders.Repository
	oracle     domain.MarketSessionOracle
	snapshots  *snapshots.Service
	locks      sync.Map // portfolioID -> *sync.Mutex
	log        zerolog.Logger
}

// NewService creates the trading service
func NewService(
	executor *Executor,
	proposer domain.TradeProposer,
	portfolios *portfolio.Repository,
	holdingsRepo *holdings.Repository,
	ordersRepo *orders.Repository,
	oracle domain.MarketSessionOracle,
	snapshotSvc *snapshots.Service,
	log zerolog.Logger,
) *Service {
	return &Service{
		executor:   executor,
		proposer:   proposer,
		portfolios: portfolios,
		holdings:   holdingsRepo,
		orders:     ordersRepo,
		oracle:     oracle,
		snapshots:  snapshotSvc,
		log:        log.With().Str("service", "trading").Logger(),
	}
}

// lock acquires the portfolio's mutex without blocking.
// Returns ErrPortfolioBusy when a run is already in flight.
func (s *Service) lock(portfolioID string) (func(), error) {
	v, _ := s.locks.LoadOrStore(portfolioID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, ErrPortfolioBusy
	}
	return mu.Unlock, nil
}

// ProcessTradeBatch validates and executes (or queues) a batch of proposed
// trades against one portfolio, then refreshes the daily snapshot.
func (s *Service) ProcessTradeBatch(ctx context.Context, portfolioID string, proposed []domain.ProposedTrade) (*BatchResult, error) {
	unlock, err := s.lock(portfolioID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.portfolios.GetByID(portfolioID)
	if err != nil {
		return nil, err
	}

	result, err := s.executor.ExecuteBatch(ctx, p, proposed)
	if err != nil {
		return nil, err
	}

	s.refreshSnapshot(ctx, portfolioID)
	return result, nil
}

// RunRebalance drives a full decision cycle for a portfolio: select the
// rebalance mode, ask the proposer for trades, execute the batch, and move
// the portfolio lifecycle forward.
func (s *Service) RunRebalance(ctx context.Context, portfolioID string) (*BatchResult, error) {
	unlock, err := s.lock(portfolioID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.portfolios.GetByID(portfolioID)
	if err != nil {
		return nil, err
	}

	positions, err := s.holdings.GetAll(portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	mode, instruction := SelectPolicy(positions)

	views := make([]domain.HoldingView, 0, len(positions))
	for _, h := range positions {
		views = append(views, domain.HoldingView{
			Ticker:  h.Ticker,
			Shares:  h.Shares,
			AvgCost: h.AvgCost,
		})
	}

	proposed, err := s.proposer.ProposeTrades(ctx, domain.ProposalContext{
		PortfolioID: portfolioID,
		AssetType:   string(p.AssetType),
		Mode:        string(mode),
		Instruction: instruction,
		Cash:        p.CurrentCash,
		Holdings:    views,
	})
	if err != nil {
		// Upstream decision failure puts the portfolio into error state
		if serr := s.portfolios.SetStatus(portfolioID, portfolio.StatusError); serr != nil {
			s.log.Error().Err(serr).Str("portfolio_id", portfolioID).Msg("Failed to set error status")
		}
		return nil, fmt.Errorf("trade proposal failed: %w", err)
	}

	s.log.Info().
		Str("portfolio_id", portfolioID).
		Str("mode", string(mode)).
		Int("proposed_trades", len(proposed)).
		Msg("Trade proposals received")

	result, err := s.executor.ExecuteBatch(ctx, p, proposed)
	if err != nil {
		return nil, err
	}

	// A completed run activates the portfolio, even a zero-trade one
	if p.Status == portfolio.StatusInitializing {
		if err := s.portfolios.SetStatus(portfolioID, portfolio.StatusActive); err != nil {
			return nil, fmt.Errorf("failed to activate portfolio: %w", err)
		}
	}

	s.refreshSnapshot(ctx, portfolioID)
	return result, nil
}

// FlushPending executes the portfolio's queued orders if the market has
// opened since they were created. Unlike batch processing, an oracle failure
// here skips the flush: pending orders wait rather than execute on a guess.
func (s *Service) FlushPending(ctx context.Context, portfolioID string) (int, error) {
	unlock, err := s.lock(portfolioID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	p, err := s.portfolios.GetByID(portfolioID)
	if err != nil {
		return 0, err
	}

	status, err := s.oracle.IsMarketOpen(ctx, string(p.AssetType))
	if err != nil || status.Err != "" || !status.Open {
		return 0, nil
	}

	pending, err := s.orders.GetPending(portfolioID)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending orders: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ledger := holdings.NewLedger(portfolioID, s.holdings, s.log)
	cash := p.CurrentCash
	now := time.Now()
	flushed := 0

	for _, o := range pending {
		// Re-check fundability at the stored price against current state
		if o.Class == orders.ClassBuy && o.TotalValue.GreaterThan(cash) {
			s.log.Warn().
				Str("order_id", o.ID).
				Str("total_value", o.TotalValue.String()).
				Msg("Pending buy no longer affordable, leaving queued")
			continue
		}

		var applyErr error
		switch o.Class {
		case orders.ClassBuy:
			applyErr = ledger.UpsertOnBuy(o.Ticker, o.Shares, o.Price)
		case orders.ClassSell:
			applyErr = ledger.ReduceOnSell(o.Ticker, o.Shares)
		}
		if applyErr != nil {
			s.log.Warn().Err(applyErr).
				Str("order_id", o.ID).
				Msg("Pending order could not be applied, leaving queued")
			continue
		}

		switch o.Class {
		case orders.ClassBuy:
			cash = cash.Sub(o.TotalValue)
		case orders.ClassSell:
			cash = cash.Add(o.TotalValue)
		}

		if err := s.orders.MarkExecuted(o.ID, now); err != nil {
			s.log.Error().Err(err).Str("order_id", o.ID).Msg("Failed to mark order executed")
		}
		flushed++
	}

	if flushed > 0 {
		if err := s.portfolios.UpdateCashAndLastTraded(portfolioID, cash, now); err != nil {
			return flushed, fmt.Errorf("failed to finalize portfolio after flush: %w", err)
		}
		s.refreshSnapshot(ctx, portfolioID)
	}

	return flushed, nil
}

// refreshSnapshot updates today's snapshot after a run. Snapshot failures
// never fail the run that triggered them.
func (s *Service) refreshSnapshot(ctx context.Context, portfolioID string) {
	if s.snapshots == nil {
		return
	}
	if _, err := s.snapshots.CreateDailySnapshot(ctx, portfolioID); err != nil {
		s.log.Warn().Err(err).Str("portfolio_id", portfolioID).Msg("Post-run snapshot failed")
	}
}
