package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aristath/reseller/internal/clientdata"
	"github.com/aristath/reseller/internal/clients/pricesource"
	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/events"
	"github.com/aristath/reseller/internal/metrics"
	"github.com/aristath/reseller/internal/modules/forecasting"
	"github.com/aristath/reseller/internal/modules/inventory"
	"github.com/aristath/reseller/internal/modules/market"
	"github.com/aristath/reseller/internal/modules/opportunities"
	"github.com/aristath/reseller/internal/modules/pricing"
	"github.com/aristath/reseller/internal/modules/pricing/calculators"
	"github.com/aristath/reseller/internal/modules/repricing"
	"github.com/aristath/reseller/internal/reliability"
	"github.com/aristath/reseller/internal/reporting"
)

// InitializeRepositories builds the data access layer
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	validator := pricing.NewValidator()

	catalog := container.CatalogDB.Conn()
	ledger := container.LedgerDB.Conn()

	container.RuleRepo = pricing.NewRuleRepository(catalog, validator, log)
	container.BrandRepo = pricing.NewBrandMultiplierRepository(catalog, validator, log)
	container.ItemRepo = inventory.NewRepository(catalog, log)
	container.SalesReader = forecasting.NewSQLSalesReader(catalog, log)

	container.HistoryRepo = pricing.NewPriceHistoryRepository(ledger, log)
	container.MarketPriceRepo = market.NewPriceRepository(ledger, log)
	container.OpportunityRepo = opportunities.NewRepository(ledger, log)
	container.ForecastRepo = forecasting.NewRepository(ledger, log)

	container.ObservationCache = clientdata.NewRepository(container.CacheDB.Conn())

	log.Info().Msg("Repositories initialized")
	return nil
}

// InitializeServices builds clients and services and seeds the default rule
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container.Events == nil {
		container.Events = events.NewBus(log)
	}
	if container.Metrics == nil {
		container.Metrics = metrics.New()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The default rule must exist before anything is priced
	def, err := container.RuleRepo.EnsureDefault(ctx, cfg.Pricing.DefaultMarginPercent, cfg.Pricing.DefaultMinMarginPercent)
	if err != nil {
		return fmt.Errorf("failed to seed default rule: %w", err)
	}
	log.Info().Int64("rule_id", def.ID).Str("name", def.Name).Msg("Default pricing rule ready")

	container.PriceSources = pricesource.NewClients(cfg.Fetch, log)
	for _, c := range container.PriceSources {
		c.WithMetrics(container.Metrics)
	}
	sources := lo.Map(container.PriceSources, func(c *pricesource.Client, _ int) market.Source { return c })

	container.MarketService = market.NewService(
		sources,
		container.MarketPriceRepo,
		container.ObservationCache,
		container.HistoryRepo,
		cfg.Fetch.CacheTTL,
		log,
	)

	container.RuleCache = pricing.NewCachedRuleSource(container.RuleRepo, log)
	container.PricingEngine = pricing.NewEngine(
		container.RuleCache,
		container.BrandRepo,
		container.HistoryRepo,
		calculators.NewPopulatedRegistry(log),
		cfg.Pricing,
		log,
	).
		WithMarketData(container.MarketService).
		WithAskHistory(container.MarketPriceRepo).
		WithItems(container.ItemRepo).
		WithMetrics(container.Metrics)

	container.RepricingService = repricing.NewService(
		container.PricingEngine,
		container.HistoryRepo,
		container.LedgerDB.Conn(),
		container.ItemRepo,
		container.ItemRepo,
		container.Events,
		container.Metrics,
		cfg.Repricing,
		log,
	)

	container.Reconciler = opportunities.NewService(
		container.MarketPriceRepo,
		container.OpportunityRepo,
		container.Events,
		container.Metrics,
		cfg.Reconcile,
		log,
	)

	container.ForecastEngine = forecasting.NewEngine(
		container.SalesReader,
		container.ForecastRepo,
		container.Events,
		container.Metrics,
		cfg.Forecasting,
		log,
	)

	// A nil *Exporter must not reach the scorer as a non-nil interface
	var exporter forecasting.MetricsExporter
	if cfg.Report.Enabled() {
		client, err := reporting.NewS3Client(ctx, cfg.Report)
		if err != nil {
			return fmt.Errorf("failed to create object storage client: %w", err)
		}
		container.Exporter = reporting.NewExporter(manager.NewUploader(client), cfg.Report.Bucket, log)
		exporter = container.Exporter
		container.BackupService = reliability.NewBackupService(
			reliability.NewS3Store(client, cfg.Report.Bucket),
			container.Databases(),
			cfg.DataDir,
			log,
		)
		log.Info().Str("bucket", cfg.Report.Bucket).Msg("Accuracy export and database backups enabled")
	}
	container.ForecastScorer = forecasting.NewScorer(
		container.ForecastRepo,
		container.SalesReader,
		exporter,
		container.Events,
		container.Metrics,
		log,
	)

	log.Info().Int("price_sources", len(container.PriceSources)).Msg("Services initialized")
	return nil
}
