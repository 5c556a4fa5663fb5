package reliability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/raksha-rane/stratify/internal/database"
	"github.com/rs/zerolog"
)

// WeeklyMaintenanceJob verifies integrity, reclaims space with VACUUM and
// checks free disk space under the data directory
type WeeklyMaintenanceJob struct {
	databases map[string]*database.DB
	dataDir   string
	minFree   uint64
	log       zerolog.Logger
}

// NewWeeklyMaintenanceJob creates a new weekly maintenance job
func NewWeeklyMaintenanceJob(databases map[string]*database.DB, dataDir string, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		minFree:   MinFreeDiskBytes,
		log:       log.With().Str("job", "weekly_maintenance").Logger(),
	}
}

// Name returns the job name for scheduler
func (j *WeeklyMaintenanceJob) Name() string {
	return "weekly_maintenance"
}

// Run executes the weekly maintenance job
func (j *WeeklyMaintenanceJob) Run() error {
	j.log.Info().Msg("Starting weekly maintenance")
	startTime := time.Now()

	usage, err := CheckDisk(j.dataDir)
	if err != nil {
		return err
	}
	// VACUUM needs room for a full copy of the database
	if usage.FreeBytes < j.minFree {
		j.log.Error().
			Float64("available_gb", usage.FreeGB()).
			Msg("Insufficient disk space, skipping VACUUM")
		return fmt.Errorf("only %.2f GB free", usage.FreeGB())
	}

	names := make([]string, 0, len(j.databases))
	for name := range j.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	ctx := context.Background()
	for _, name := range names {
		db := j.databases[name]
		if db == nil {
			continue
		}

		if err := db.QuickCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("Integrity check failed, skipping VACUUM")
			continue
		}

		if err := j.vacuumDatabase(db, name); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("VACUUM failed")
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Float64("available_gb", usage.FreeGB()).
		Msg("Weekly maintenance completed")

	return nil
}

// vacuumDatabase performs VACUUM on a database
func (j *WeeklyMaintenanceJob) vacuumDatabase(db *database.DB, name string) error {
	j.log.Debug().Str("database", name).Msg("Starting VACUUM")

	before, err := db.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("VACUUM failed: %w", err)
	}

	after, err := db.GetStats()
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	sizeBefore := float64(before.PageCount*before.PageSize) / 1024 / 1024
	sizeAfter := float64(after.PageCount*after.PageSize) / 1024 / 1024

	j.log.Info().
		Str("database", name).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")

	return nil
}
