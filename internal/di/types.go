/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every application dependency. It is built by Wire()
 * and handed to the server and the background runners.
 */
package di

import (
	"context"
	"sync"

	"github.com/aristath/reseller/internal/clientdata"
	"github.com/aristath/reseller/internal/clients/pricesource"
	"github.com/aristath/reseller/internal/database"
	"github.com/aristath/reseller/internal/events"
	"github.com/aristath/reseller/internal/metrics"
	"github.com/aristath/reseller/internal/modules/forecasting"
	"github.com/aristath/reseller/internal/modules/inventory"
	"github.com/aristath/reseller/internal/modules/market"
	"github.com/aristath/reseller/internal/modules/opportunities"
	"github.com/aristath/reseller/internal/modules/pricing"
	"github.com/aristath/reseller/internal/modules/repricing"
	"github.com/aristath/reseller/internal/reliability"
	"github.com/aristath/reseller/internal/reporting"
	"github.com/aristath/reseller/internal/scheduler"
	"github.com/aristath/reseller/internal/work"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: catalog (rules, inventory, sales), ledger (append-only decisions), cache (observations)
 * - Clients: one HTTP client per configured price source
 * - Repositories: data access per module
 * - Services: pricing engine, repricing, reconciliation, forecasting
 * - Work: background processor, registry and cron scheduler
 */
type Container struct {
	// Databases
	CatalogDB *database.DB // Price rules, brand multipliers, inventory, sales
	LedgerDB  *database.DB // Price history, market prices, opportunity and forecast runs
	CacheDB   *database.DB // Observation cache, safe to delete

	// Cross-cutting
	Events  *events.Bus
	Metrics *metrics.Metrics

	// Clients
	PriceSources []*pricesource.Client

	// Repositories
	RuleRepo         *pricing.RuleRepository
	BrandRepo        *pricing.BrandMultiplierRepository
	HistoryRepo      *pricing.PriceHistoryRepository
	ItemRepo         *inventory.Repository
	MarketPriceRepo  *market.PriceRepository
	ObservationCache *clientdata.Repository
	OpportunityRepo  *opportunities.Repository
	ForecastRepo     *forecasting.Repository
	SalesReader      *forecasting.SQLSalesReader

	// Services
	RuleCache        *pricing.CachedRuleSource
	PricingEngine    *pricing.Engine
	MarketService    *market.Service
	RepricingService *repricing.Service
	Reconciler       *opportunities.Service
	ForecastEngine   *forecasting.Engine
	ForecastScorer   *forecasting.Scorer
	Exporter         *reporting.Exporter         // nil when REPORT_S3_BUCKET is unset
	BackupService    *reliability.BackupService // nil when REPORT_S3_BUCKET is unset

	// Work
	WorkRegistry   *work.Registry
	WorkCompletion *work.CompletionTracker
	WorkProcessor  *work.Processor
	Scheduler      *scheduler.Scheduler

	bgMu     sync.Mutex
	bgCancel context.CancelFunc
}

// Databases returns the open databases by name.
func (c *Container) Databases() map[string]*database.DB {
	return map[string]*database.DB{
		"catalog": c.CatalogDB,
		"ledger":  c.LedgerDB,
		"cache":   c.CacheDB,
	}
}
