// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/raksha-rane/stratify/internal/cache"
	"github.com/raksha-rane/stratify/internal/config"
	"github.com/raksha-rane/stratify/internal/ratelimit"
	"github.com/raksha-rane/stratify/internal/reliability"
	"github.com/raksha-rane/stratify/internal/scheduler"
	"github.com/rs/zerolog"
)

// Job schedules (six-field cron with seconds)
const (
	scheduleCacheCleanup        = "@hourly"
	scheduleDatabaseMaintenance = "0 0 2 * * *"   // 02:00 daily
	scheduleWeeklyMaintenance   = "0 0 4 * * SUN" // 04:00 Sunday
	scheduleRateLimitPrune      = "0 */15 * * * *"
)

// JobInstances holds registered jobs for manual triggering
type JobInstances struct {
	RefreshMarketData   *scheduler.RefreshMarketDataJob
	CacheCleanup        *cache.CleanupJob
	DatabaseMaintenance *scheduler.DatabaseMaintenanceJob
	WeeklyMaintenance   *reliability.WeeklyMaintenanceJob
	RateLimitPrune      *ratelimit.PruneJob
	CloudBackup         *reliability.CloudBackupJob // nil when backups are disabled
}

// RegisterJobs creates every background job and registers it with the scheduler
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.Scheduler == nil {
		return nil, fmt.Errorf("container and scheduler must be initialized")
	}

	instances := &JobInstances{
		RefreshMarketData: scheduler.NewRefreshMarketDataJob(
			container.MarketDataService,
			cfg.MarketData.TrackedTickers,
			cfg.MarketData.RefreshLookbackDay,
			log,
		),
		CacheCleanup:        cache.NewCleanupJob(container.CacheStore, log),
		DatabaseMaintenance: scheduler.NewDatabaseMaintenanceJob(container.Databases(), log),
		WeeklyMaintenance:   reliability.NewWeeklyMaintenanceJob(container.Databases(), cfg.DataDir, log),
		RateLimitPrune:      ratelimit.NewPruneJob(container.Limiter, ratelimit.DefaultMaxIdle, log),
	}

	registrations := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.MarketData.RefreshSchedule, instances.RefreshMarketData},
		{scheduleCacheCleanup, instances.CacheCleanup},
		{scheduleDatabaseMaintenance, instances.DatabaseMaintenance},
		{scheduleWeeklyMaintenance, instances.WeeklyMaintenance},
		{scheduleRateLimitPrune, instances.RateLimitPrune},
	}

	if container.BackupService != nil {
		instances.CloudBackup = reliability.NewCloudBackupJob(
			container.BackupService,
			container.EventManager,
			cfg.Backup.RetentionDays,
			log,
		)
		registrations = append(registrations, struct {
			schedule string
			job      scheduler.Job
		}{cfg.Backup.Schedule, instances.CloudBackup})
	}

	for _, reg := range registrations {
		if err := container.Scheduler.AddJob(reg.schedule, reg.job); err != nil {
			return nil, fmt.Errorf("failed to register %s job: %w", reg.job.Name(), err)
		}
	}

	log.Info().Int("jobs", len(registrations)).Msg("Jobs registered")
	return instances, nil
}
