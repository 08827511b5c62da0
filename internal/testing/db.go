// Package testing provides testing utilities and helpers shared by package tests.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/reseller/internal/database"
)

// NewTestDB creates a temp-file SQLite database with the real schema applied.
// Returns the database and an idempotent cleanup function.
//
// Supported schema names:
//   - "catalog" - price rules, brand multipliers, inventory, sales
//   - "ledger" - price history, market prices, opportunities, forecasts
//   - "cache" - observation cache
//   - anything else - empty database
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()
	return newTestDB(t, name, "")
}

// NewTestDBWithSchema creates a temp-file SQLite database and executes schema on it
// instead of the registered migration.
func NewTestDBWithSchema(t *testing.T, name string, schema string) (*database.DB, func()) {
	t.Helper()
	return newTestDB(t, name, schema)
}

func newTestDB(t *testing.T, name, schema string) (*database.DB, func()) {
	t.Helper()

	// Temp files keep each test isolated; WAL does not work with :memory:
	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	profile := database.ProfileStandard
	switch name {
	case "ledger":
		profile = database.ProfileLedger
	case "cache":
		profile = database.ProfileCache
	}

	db, err := database.New(database.Config{Path: tmpPath, Profile: profile, Name: name})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if schema != "" {
		_, err = db.Conn().Exec(schema)
	} else {
		err = db.Migrate()
	}
	if err != nil {
		_ = db.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to prepare test database %s: %v", name, err)
	}

	closed := false
	return db, func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		for _, suffix := range []string{"", "-wal", "-shm"} {
			_ = os.Remove(tmpPath + suffix)
		}
	}
}
