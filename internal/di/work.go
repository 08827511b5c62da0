package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/work"
)

// InitializeWork registers the background work types and builds the processor.
// The processor is not started; see Container.StartBackground.
func InitializeWork(container *Container, log zerolog.Logger) error {
	container.WorkRegistry = work.NewRegistry()
	container.WorkCompletion = work.NewCompletionTracker()

	ids, err := work.RegisterAll(container.WorkRegistry, work.Deps{
		Market:     container.MarketService,
		Items:      container.ItemRepo,
		Repricer:   container.RepricingService,
		Reconciler: container.Reconciler,
		Forecasts:  container.ForecastEngine,
		Scorer:     container.ForecastScorer,
		Events:     container.Events,
		Log:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to register work types: %w", err)
	}

	container.WorkProcessor = work.NewProcessor(
		container.WorkRegistry,
		container.WorkCompletion,
		container.Events,
		log,
	)

	log.Info().Strs("work_types", ids).Msg("Work types registered")
	return nil
}

// startWork wires the event triggers and runs the processor until ctx is done.
func (c *Container) startWork(ctx context.Context, log zerolog.Logger) {
	work.RegisterTriggers(ctx, c.WorkProcessor, c.Events, log)
	go c.WorkProcessor.Run()
	c.WorkProcessor.Trigger()
}
