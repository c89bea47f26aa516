package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkarag/aifolio/internal/modules/snapshots"
)

// SnapshotSweepJob valuates every portfolio once a day
type SnapshotSweepJob struct {
	service *snapshots.Service
	timeout time.Duration
	log     zerolog.Logger
}

// NewSnapshotSweepJob creates the daily snapshot sweep job
func NewSnapshotSweepJob(service *snapshots.Service, log zerolog.Logger) *SnapshotSweepJob {
	return &SnapshotSweepJob{
		service: service,
		timeout: 10 * time.Minute,
		log:     log.With().Str("job", "snapshot_sweep").Logger(),
	}
}

// Name returns the job name
func (j *SnapshotSweepJob) Name() string {
	return "snapshot_sweep"
}

// Run sweeps all portfolios
func (j *SnapshotSweepJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	if err := j.service.SweepAll(ctx); err != nil {
		return err
	}

	j.log.Info().Dur("duration", time.Since(start)).Msg("Daily snapshot sweep finished")
	return nil
}
