package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/raksha-rane/stratify/internal/events"
	"github.com/rs/zerolog"
)

// CloudBackupJob uploads a fresh backup and rotates old ones
type CloudBackupJob struct {
	service       *R2BackupService
	events        *events.Manager
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewCloudBackupJob creates the cloud backup job. eventManager may be nil.
func NewCloudBackupJob(service *R2BackupService, eventManager *events.Manager, retentionDays int, log zerolog.Logger) *CloudBackupJob {
	return &CloudBackupJob{
		service:       service,
		events:        eventManager,
		retentionDays: retentionDays,
		timeout:       30 * time.Minute,
		log:           log.With().Str("job", "cloud_backup").Logger(),
	}
}

// Name returns the job name
func (j *CloudBackupJob) Name() string {
	return "cloud_backup"
}

// Run uploads a backup, then rotates. A failed rotation does not fail the job.
func (j *CloudBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.service.CreateAndUploadBackup(ctx)
	if err != nil {
		return fmt.Errorf("cloud backup failed: %w", err)
	}

	rotated, err := j.service.RotateOldBackups(ctx, j.retentionDays)
	if err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	j.events.EmitTyped("reliability", &events.BackupCompletedData{
		Key:       result.Key,
		SizeBytes: result.SizeBytes,
		Databases: result.Databases,
		Rotated:   rotated,
	})

	return nil
}
