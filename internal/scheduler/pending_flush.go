package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkarag/aifolio/internal/modules/portfolio"
	"github.com/mkarag/aifolio/internal/modules/trading"
)

// PendingFlushJob periodically tries to execute queued orders for every
// portfolio. Portfolios mid-run are skipped and picked up next tick.
type PendingFlushJob struct {
	trading    *trading.Service
	portfolios *portfolio.Repository
	timeout    time.Duration
	log        zerolog.Logger
}

// NewPendingFlushJob creates the pending order flush job
func NewPendingFlushJob(tradingSvc *trading.Service, portfolios *portfolio.Repository, log zerolog.Logger) *PendingFlushJob {
	return &PendingFlushJob{
		trading:    tradingSvc,
		portfolios: portfolios,
		timeout:    5 * time.Minute,
		log:        log.With().Str("job", "pending_flush").Logger(),
	}
}

// Name returns the job name
func (j *PendingFlushJob) Name() string {
	return "pending_flush"
}

// Run flushes pending orders across portfolios
func (j *PendingFlushJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	all, err := j.portfolios.GetAll()
	if err != nil {
		return err
	}

	total := 0
	for _, p := range all {
		flushed, err := j.trading.FlushPending(ctx, p.ID)
		if errors.Is(err, trading.ErrPortfolioBusy) {
			j.log.Debug().Str("portfolio_id", p.ID).Msg("Portfolio busy, skipping flush")
			continue
		}
		if err != nil {
			j.log.Error().Err(err).Str("portfolio_id", p.ID).Msg("Flush failed")
			continue
		}
		total += flushed
	}

	if total > 0 {
		j.log.Info().Int("flushed", total).Msg("Pending orders executed")
	}
	return nil
}
