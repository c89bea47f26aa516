package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/mkarag/aifolio/internal/database"
)

// MaintenanceJob performs nightly database maintenance: integrity check,
// WAL checkpoint and a disk headroom check.
type MaintenanceJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewMaintenanceJob creates the nightly maintenance job
func NewMaintenanceJob(db *database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:  db,
		log: log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance steps
func (j *MaintenanceJob) Run() error {
	startTime := time.Now()

	var result string
	if err := j.db.Conn().QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed to run: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	// Truncating checkpoint keeps the WAL from growing unbounded
	if _, err := j.db.Conn().Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Maintenance completed")

	return nil
}

// checkDiskSpace verifies sufficient disk space is available
func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage("/")
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to stat filesystem")
		return nil
	}

	freeGB := float64(usage.Free) / 1e9

	if freeGB < 0.5 {
		return fmt.Errorf("only %.2f GB free on disk", freeGB)
	}
	if freeGB < 5.0 {
		j.log.Warn().Float64("free_gb", freeGB).Msg("Disk space running low")
	}

	return nil
}
