package reliability

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/reseller/internal/database"
)

const (
	backupTimeout      = 30 * time.Minute
	maintenanceTimeout = 30 * time.Minute
)

// BackupJob uploads a fresh backup and rotates old ones
type BackupJob struct {
	service       *BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates a new BackupJob
func NewBackupJob(service *BackupService, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service:       service,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "database_backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "database_backup"
}

// Run creates the backup. A failed rotation is logged; the new backup still counts.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
	defer cancel()

	if _, err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}
	if _, err := j.service.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Error().Err(err).Msg("Backup rotation failed")
	}
	return nil
}

// DiskUsageFunc reports free bytes on the filesystem holding path.
type DiskUsageFunc func(path string) (uint64, error)

func gopsutilFreeBytes(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// MaintenanceJob checks free disk space, then VACUUMs every database
type MaintenanceJob struct {
	databases map[string]*database.DB
	dataDir   string
	minFreeMB int
	freeBytes DiskUsageFunc
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new MaintenanceJob. It fails when less than
// minFreeMB is free under dataDir.
func NewMaintenanceJob(databases map[string]*database.DB, dataDir string, minFreeMB int, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		minFreeMB: minFreeMB,
		freeBytes: gopsutilFreeBytes,
		log:       log.With().Str("job", "database_maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the maintenance. VACUUM needs room for a full copy, so a low disk
// stops the job before any database is rewritten.
func (j *MaintenanceJob) Run() error {
	free, err := j.freeBytes(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read disk usage: %w", err)
	}
	freeMB := free / 1024 / 1024
	if freeMB < uint64(j.minFreeMB) {
		j.log.Error().
			Uint64("free_mb", freeMB).
			Int("min_free_mb", j.minFreeMB).
			Msg("Insufficient disk space, skipping VACUUM")
		return fmt.Errorf("only %d MB free under %s", freeMB, j.dataDir)
	}

	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	names := lo.Keys(j.databases)
	sort.Strings(names)

	var failed []string
	for _, name := range names {
		db := j.databases[name]
		if db == nil {
			continue
		}
		if err := j.vacuum(ctx, db, name); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("VACUUM failed")
			failed = append(failed, name)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("vacuum failed for %v", failed)
	}
	j.log.Info().Uint64("free_mb", freeMB).Msg("Database maintenance completed")
	return nil
}

func (j *MaintenanceJob) vacuum(ctx context.Context, db *database.DB, name string) error {
	before, err := db.GetStats()
	if err != nil {
		return err
	}

	if _, err := db.Conn().ExecContext(ctx, "VACUUM"); err != nil {
		return err
	}

	after, err := db.GetStats()
	if err != nil {
		return err
	}

	j.log.Info().
		Str("database", name).
		Int64("pages_before", before.PageCount).
		Int64("pages_after", after.PageCount).
		Int64("reclaimed_bytes", (before.PageCount-after.PageCount)*before.PageSize).
		Msg("VACUUM completed")
	return nil
}
