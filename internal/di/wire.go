// Package di provides dependency injection wiring and initialization.
package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/config"
	forecastinghandlers "github.com/aristath/reseller/internal/modules/forecasting/handlers"
	markethandlers "github.com/aristath/reseller/internal/modules/market/handlers"
	opportunitieshandlers "github.com/aristath/reseller/internal/modules/opportunities/handlers"
	pricinghandlers "github.com/aristath/reseller/internal/modules/pricing/handlers"
	repricinghandlers "github.com/aristath/reseller/internal/modules/repricing/handlers"
	"github.com/aristath/reseller/internal/scheduler"
	"github.com/aristath/reseller/internal/server"
	"github.com/aristath/reseller/internal/work"
)

// Wire initializes all dependencies and returns a fully configured container
// Order of operations:
// 1. Initialize databases
// 2. Initialize repositories
// 3. Initialize services (seeds the default rule)
// 4. Register work types
// 5. Register jobs
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	// Step 1: Initialize databases
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"repositories", func() error { return InitializeRepositories(container, log) }},
		{"services", func() error { return InitializeServices(container, cfg, log) }},
		{"work", func() error { return InitializeWork(container, log) }},
		{"jobs", func() error { return RegisterJobs(container, cfg, log) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			container.closeDatabases()
			return nil, fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}

// Routes returns every module handler, for mounting under /api.
func (c *Container) Routes(log zerolog.Logger) []server.RouteRegistrar {
	return []server.RouteRegistrar{
		pricinghandlers.NewHandler(c.PricingEngine, c.RuleRepo, c.BrandRepo, c.HistoryRepo, c.RuleCache, log),
		repricinghandlers.NewHandler(c.RepricingService, log),
		opportunitieshandlers.NewHandler(c.Reconciler, log),
		forecastinghandlers.NewHandler(c.ForecastEngine, c.ForecastScorer, c.SalesReader, log),
		markethandlers.NewHandler(c.MarketService, c.ItemRepo, c.Events, log),
		work.NewHandlers(c.WorkProcessor, c.WorkRegistry, log),
		scheduler.NewHandlers(c.Scheduler, log),
	}
}

// StartBackground starts the work processor, its event triggers and the cron scheduler.
// Calling it again is a no-op.
func (c *Container) StartBackground(log zerolog.Logger) {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	if c.bgCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.startWork(ctx, log)
	c.Scheduler.Start()
	c.bgCancel = cancel
}

// Close stops background work, then closes the databases.
func (c *Container) Close() error {
	c.bgMu.Lock()
	if c.bgCancel != nil {
		c.bgCancel()
		c.Scheduler.Stop()
		c.WorkProcessor.Stop()
		c.bgCancel = nil
	}
	c.bgMu.Unlock()
	return c.closeDatabases()
}
