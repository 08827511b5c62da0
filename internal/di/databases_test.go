package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/reseller/internal/config"
)

func TestInitializeDatabases(t *testing.T) {
	tmpDir := t.TempDir()

	container, err := InitializeDatabases(&config.Config{DataDir: tmpDir}, zerolog.Nop())
	require.NoError(t, err)
	defer container.closeDatabases()

	assert.NotNil(t, container.CatalogDB)
	assert.NotNil(t, container.LedgerDB)
	assert.NotNil(t, container.CacheDB)

	assert.FileExists(t, filepath.Join(tmpDir, "catalog.db"))
	assert.FileExists(t, filepath.Join(tmpDir, "ledger.db"))
	assert.FileExists(t, filepath.Join(tmpDir, "cache.db"))

	// Schemas are applied
	for name, db := range container.Databases() {
		var tables int
		require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'").Scan(&tables))
		assert.Greater(t, tables, 0, name)
	}
}

func TestInitializeDatabases_InvalidPath(t *testing.T) {
	// A regular file cannot be used as a directory
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	container, err := InitializeDatabases(&config.Config{DataDir: filepath.Join(blocker, "data")}, zerolog.Nop())
	assert.Error(t, err)
	assert.Nil(t, container)
}
