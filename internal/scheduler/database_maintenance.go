package scheduler

import (
	"sort"

	"github.com/raksha-rane/stratify/internal/database"
	"github.com/rs/zerolog"
)

// walFrameWarning is the WAL size in frames that is worth a warning
const walFrameWarning = 1000

// DatabaseMaintenanceJob checkpoints the WAL of every database and truncates it
type DatabaseMaintenanceJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewDatabaseMaintenanceJob creates a new DatabaseMaintenanceJob. Nil databases are skipped.
func NewDatabaseMaintenanceJob(databases map[string]*database.DB, log zerolog.Logger) *DatabaseMaintenanceJob {
	return &DatabaseMaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "database_maintenance").Logger(),
	}
}

// Name returns the job name
func (j *DatabaseMaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run inspects the WAL of each database, then runs a TRUNCATE checkpoint
func (j *DatabaseMaintenanceJob) Run() error {
	names := make([]string, 0, len(j.databases))
	for name := range j.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	checked := 0
	var firstErr error
	for _, name := range names {
		db := j.databases[name]
		if db == nil {
			continue
		}

		// busy, log frames, checkpointed frames
		var busy, frames, checkpointed int
		err := db.Conn().QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&busy, &frames, &checkpointed)
		if err != nil {
			j.log.Warn().
				Err(err).
				Str("database", name).
				Msg("Failed to check WAL checkpoint")
			continue
		}

		if frames > walFrameWarning {
			j.log.Warn().
				Str("database", name).
				Int("wal_frames", frames).
				Int("checkpointed", checkpointed).
				Msg("WAL file is large, truncating")
		}

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("WAL checkpoint failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		checked++
	}

	j.log.Info().
		Int("checked", checked).
		Msg("Database maintenance completed")

	return firstErr
}
