package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/database"
)

// InitializeDatabases opens the three databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	specs := []struct {
		target  **database.DB
		name    string
		profile database.DatabaseProfile
	}{
		// catalog.db - Rules, brand multipliers, inventory and realized sales
		{&container.CatalogDB, "catalog", database.ProfileStandard},
		// ledger.db - Append-only decision records, maximum durability
		{&container.LedgerDB, "ledger", database.ProfileLedger},
		// cache.db - Refetchable observations, maximum speed
		{&container.CacheDB, "cache", database.ProfileCache},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, spec.name+".db"),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			container.closeDatabases()
			return nil, fmt.Errorf("failed to initialize %s database: %w", spec.name, err)
		}
		*spec.target = db
	}

	// Apply schemas to all databases (single source of truth)
	for _, db := range []*database.DB{container.CatalogDB, container.LedgerDB, container.CacheDB} {
		if err := db.Migrate(); err != nil {
			container.closeDatabases()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("All databases initialized and schemas applied")

	return container, nil
}

// closeDatabases closes whichever databases are open and returns the first error.
func (c *Container) closeDatabases() error {
	var first error
	for _, db := range []*database.DB{c.CatalogDB, c.LedgerDB, c.CacheDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && first == nil {
			first = fmt.Errorf("failed to close %s database: %w", db.Name(), err)
		}
	}
	return first
}
