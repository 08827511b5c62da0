package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/clientdata"
	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/reliability"
	"github.com/aristath/reseller/internal/scheduler"
)

// Cron schedules for the maintenance jobs. Six fields, seconds first.
const (
	observationCleanupSchedule = "0 0 3 * * *"
	checkDatabasesSchedule     = "0 0 * * * *"
	walCheckpointSchedule      = "0 */30 * * * *"
	maintenanceSchedule        = "0 0 4 * * 0" // Sundays
)

type scheduledJob struct {
	schedule string
	job      scheduler.Job
}

// RegisterJobs builds the cron scheduler and registers every time-based job.
// The scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	sched := scheduler.New(log)
	dbs := container.Databases()

	jobs := []scheduledJob{
		// Wakes the processor so interval-based work is checked even without events
		{cfg.WorkSchedule, scheduler.NewWorkTriggerJob(container.WorkProcessor)},
		{observationCleanupSchedule, clientdata.NewCleanupJob(container.ObservationCache, log)},
		{checkDatabasesSchedule, scheduler.NewCheckDatabasesJob(dbs, log)},
		{walCheckpointSchedule, scheduler.NewWALCheckpointJob(dbs, log)},
		{maintenanceSchedule, reliability.NewMaintenanceJob(dbs, cfg.DataDir, cfg.Backup.MinFreeDiskMB, log)},
	}
	if container.BackupService != nil {
		jobs = append(jobs, scheduledJob{
			cfg.Backup.Schedule,
			reliability.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays, log),
		})
	}

	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			return fmt.Errorf("failed to register job %s: %w", j.job.Name(), err)
		}
	}

	container.Scheduler = sched
	log.Info().Int("jobs", len(jobs)).Msg("Scheduled jobs registered")
	return nil
}
