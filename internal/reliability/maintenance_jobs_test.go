package reliability

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceJob_VacuumsDatabases(t *testing.T) {
	dbs := testDatabases(t)
	catalog := dbs["catalog"]

	_, err := catalog.Conn().Exec(`CREATE TABLE scratch (payload TEXT)`)
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		_, err := catalog.Conn().Exec(`INSERT INTO scratch (payload) VALUES (?)`, string(make([]byte, 2048)))
		require.NoError(t, err)
	}
	_, err = catalog.Conn().Exec(`DELETE FROM scratch`)
	require.NoError(t, err)

	before, err := catalog.GetStats()
	require.NoError(t, err)

	job := NewMaintenanceJob(dbs, t.TempDir(), 500, zerolog.Nop())
	job.freeBytes = func(string) (uint64, error) { return 10 << 30, nil }
	require.NoError(t, job.Run())

	after, err := catalog.GetStats()
	require.NoError(t, err)
	assert.Less(t, after.PageCount, before.PageCount)
	assert.Equal(t, "database_maintenance", job.Name())
}

func TestMaintenanceJob_LowDiskSkipsVacuum(t *testing.T) {
	job := NewMaintenanceJob(testDatabases(t), t.TempDir(), 500, zerolog.Nop())
	job.freeBytes = func(string) (uint64, error) { return 100 << 20, nil }

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "100 MB free")
}

func TestMaintenanceJob_DiskUsageError(t *testing.T) {
	job := NewMaintenanceJob(nil, t.TempDir(), 500, zerolog.Nop())
	job.freeBytes = func(string) (uint64, error) { return 0, errors.New("no such path") }

	assert.Error(t, job.Run())
}

func TestMaintenanceJob_RealDiskUsage(t *testing.T) {
	job := NewMaintenanceJob(nil, t.TempDir(), 0, zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestBackupJob_UploadsAndRotates(t *testing.T) {
	store := newMemStore()
	for days := 40; days < 45; days++ {
		store.objects[BackupKey(testNow().AddDate(0, 0, -days))] = []byte("x")
	}
	svc := NewBackupService(store, testDatabases(t), t.TempDir(), zerolog.Nop())
	svc.now = testNow

	job := NewBackupJob(svc, 30, zerolog.Nop())
	require.NoError(t, job.Run())

	// the new backup plus the two newest expired ones
	assert.Len(t, store.keys(), MinBackupsToKeep)
	assert.Contains(t, store.keys(), BackupKey(testNow()))
	assert.Equal(t, "database_backup", job.Name())
}

func TestBackupJob_UploadFailure(t *testing.T) {
	store := newMemStore()
	store.fail = errors.New("denied")
	job := NewBackupJob(NewBackupService(store, testDatabases(t), t.TempDir(), zerolog.Nop()), 30, zerolog.Nop())

	assert.Error(t, job.Run())
}
