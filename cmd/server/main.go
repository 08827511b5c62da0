// Package main is the entry point for the resale pricing engine.
// It serves the pricing, repricing, reconciliation and forecasting API and runs
// the background work that keeps market data, prices and forecasts fresh.
//
// The application follows clean architecture principles:
// - Domain layer is pure (no infrastructure dependencies)
// - Dependency injection via DI container
// - Repository pattern for data access
// - Service layer for business logic
// - HTTP handlers for API endpoints
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/di"
	"github.com/aristath/reseller/internal/server"
	"github.com/aristath/reseller/pkg/logger"
)

// main orchestrates startup and shutdown:
// 1. Loads configuration from the environment (.env supported)
// 2. Initializes logging
// 3. Wires all dependencies (databases, repositories, services, work, jobs)
// 4. Starts the HTTP server
// 5. Starts the work processor and the cron scheduler
// 6. Waits for SIGINT/SIGTERM and shuts down gracefully
//
// Three SQLite databases live in DATA_DIR:
// - catalog.db: rules, brand multipliers, inventory and realized sales
// - ledger.db: append-only price history, market prices, opportunity and forecast runs
// - cache.db: observation cache, safe to delete
func main() {
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger so the configuration error is still reported
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting reseller pricing engine")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close databases")
		}
	}()

	srv := server.New(server.Config{
		Log:            log,
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		AllowedOrigins: cfg.CORSOrigins,
		Databases:      container.Databases(),
		Events:         container.Events,
		Metrics:        container.Metrics,
		Work:           container.WorkProcessor,
		Modules:        container.Routes(log),
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	container.StartBackground(log)
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Close (deferred) stops the processor and scheduler before the databases
	log.Info().Msg("Server stopped")
}
