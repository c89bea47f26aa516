package snapshots

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/mkarag/aifolio/internal/domain"
	"github.com/mkarag/aifolio/internal/modules/holdings"
	"github.com/mkarag/aifolio/internal/modules/portfolio"
)

// Service creates daily valuation snapshots
type Service struct {
	repo        *Repository
	portfolios  *portfolio.Repository
	holdings    *holdings.Repository
	prices      domain.PriceResolver
	location    *time.Location
	parallelism int
	log         zerolog.Logger
}

// NewService creates a snapshot service.
// location decides which calendar day a snapshot belongs to; parallelism
// bounds the sweep fan-out.
func NewService(
	repo *Repository,
	portfolios *portfolio.Repository,
	holdingsRepo *holdings.Repository,
	prices domain.PriceResolver,
	location *time.Location,
	parallelism int,
	log zerolog.Logger,
) *Service {
	if location == nil {
		location = time.Local
	}
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Service{
		repo:        repo,
		portfolios:  portfolios,
		holdings:    holdingsRepo,
		prices:      prices,
		location:    location,
		parallelism: parallelism,
		log:         log.With().Str("service", "snapshots").Logger(),
	}
}

// CreateDailySnapshot valuates the portfolio and upserts the row for today's
// local calendar day. Running it twice on the same day overwrites the earlier
// row with the fresher valuation.
func (s *Service) CreateDailySnapshot(ctx context.Context, portfolioID string) (*Snapshot, error) {
	return s.createSnapshot(ctx, portfolioID, time.Now().In(s.location))
}

// CreateSnapshotAt is CreateDailySnapshot for an explicit point in time,
// used by tests and backfills.
func (s *Service) CreateSnapshotAt(ctx context.Context, portfolioID string, asOf time.Time) (*Snapshot, error) {
	return s.createSnapshot(ctx, portfolioID, asOf.In(s.location))
}

func (s *Service) createSnapshot(ctx context.Context, portfolioID string, asOf time.Time) (*Snapshot, error) {
	p, err := s.portfolios.GetByID(portfolioID)
	if err != nil {
		return nil, err
	}

	positions, err := s.holdings.GetAll(portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	tickers := make([]string, 0, len(positions))
	for _, h := range positions {
		tickers = append(tickers, h.Ticker)
	}

	prices, err := s.resolvePrices(ctx, tickers)
	if err != nil {
		// Valuation falls back to cost basis rather than skipping the day.
		s.log.Warn().Err(err).
			Str("portfolio_id", portfolioID).
			Msg("Price resolution failed, valuing at cost basis")
		prices = nil
	}

	holdingsValue := decimal.Zero
	slices := make([]PositionSlice, 0, len(positions))
	for _, h := range positions {
		price, ok := prices[h.Ticker]
		if !ok {
			price = h.AvgCost
		}
		value := h.MarketValue(price)
		holdingsValue = holdingsValue.Add(value)
		slices = append(slices, PositionSlice{
			Ticker:  h.Ticker,
			Shares:  h.Shares.String(),
			AvgCost: h.AvgCost.String(),
			Price:   price.String(),
			Value:   value.String(),
		})
	}

	snap := Snapshot{
		PortfolioID:   portfolioID,
		Date:          asOf.Format(DateFormat),
		TotalValue:    p.CurrentCash.Add(holdingsValue),
		Cash:          p.CurrentCash,
		HoldingsValue: holdingsValue,
		Positions:     slices,
	}

	if err := s.repo.Upsert(snap); err != nil {
		return nil, err
	}

	return &snap, nil
}

// SweepAll snapshots every portfolio with bounded parallelism.
// One portfolio failing does not stop the sweep; the first error is
// reported after all portfolios have been attempted.
func (s *Service) SweepAll(ctx context.Context) error {
	all, err := s.portfolios.GetAll()
	if err != nil {
		return fmt.Errorf("failed to list portfolios: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	var firstErr error
	errCh := make(chan error, len(all))

	for _, p := range all {
		p := p
		g.Go(func() error {
			if _, err := s.createSnapshot(gctx, p.ID, time.Now().In(s.location)); err != nil {
				s.log.Error().Err(err).
					Str("portfolio_id", p.ID).
					Msg("Snapshot sweep failed for portfolio")
				errCh <- err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	close(errCh)
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
		}
	}

	s.log.Info().Int("portfolios", len(all)).Msg("Snapshot sweep complete")
	return firstErr
}

// GetHistory returns the snapshot history for a portfolio, oldest first
func (s *Service) GetHistory(portfolioID string, limit int) ([]Snapshot, error) {
	return s.repo.GetHistory(portfolioID, limit)
}

func (s *Service) resolvePrices(ctx context.Context, tickers []string) (map[string]decimal.Decimal, error) {
	if len(tickers) == 0 || s.prices == nil {
		return nil, nil
	}
	return s.prices.ResolvePrices(ctx, tickers)
}
