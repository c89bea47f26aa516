package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkarag/aifolio/internal/reliability"
)

// backupRetentionDays is how long remote backups are kept before rotation
const backupRetentionDays = 30

// BackupJob ships a database snapshot to object storage and rotates old archives
type BackupJob struct {
	service *reliability.BackupService
	timeout time.Duration
	log     zerolog.Logger
}

// NewBackupJob creates the cloud backup job
func NewBackupJob(service *reliability.BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		timeout: 15 * time.Minute,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run uploads a fresh backup, then rotates old ones
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.service.RotateOldBackups(ctx, backupRetentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}
