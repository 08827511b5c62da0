package work

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/events"
	"github.com/aristath/reseller/internal/modules/forecasting"
	"github.com/aristath/reseller/internal/modules/market"
	"github.com/aristath/reseller/internal/modules/opportunities"
	"github.com/aristath/reseller/internal/modules/repricing"
)

// Work type IDs
const (
	TypeMarketRefresh  = "market:refresh"
	TypeReconcile      = "opportunities:reconcile"
	TypeReprice        = "pricing:reprice"
	TypeForecast       = "forecast:generate"
	TypeForecastScore  = "forecast:score"
	marketRefreshEvery = time.Hour
	reconcileEvery     = time.Hour
	repriceEvery       = 6 * time.Hour
	forecastEvery      = 24 * time.Hour
	scoreEvery         = 24 * time.Hour
)

// MarketRefresher refetches observations for every listed item.
type MarketRefresher interface {
	RefreshAll(ctx context.Context, items market.ItemLister) (*market.RefreshReport, error)
}

// BatchRepricer runs a repricing batch.
type BatchRepricer interface {
	BatchReprice(ctx context.Context, req repricing.Request) (*repricing.BatchReport, error)
}

// Reconciler runs one profit-opportunity pass.
type Reconciler interface {
	Reconcile(ctx context.Context) (*opportunities.ReconcileReport, error)
}

// ForecastGenerator stores one forecast run.
type ForecastGenerator interface {
	Generate(ctx context.Context, req forecasting.Request) (*forecasting.RunReport, error)
}

// AccuracyScorer scores elapsed forecasts.
type AccuracyScorer interface {
	ScoreElapsed(ctx context.Context, now time.Time) (*forecasting.ScoreReport, error)
}

// Deps holds the services the work types drive. Nil services leave their work type unregistered.
type Deps struct {
	Market     MarketRefresher
	Items      market.ItemLister
	Repricer   BatchRepricer
	Reconciler Reconciler
	Forecasts  ForecastGenerator
	Scorer     AccuracyScorer
	Events     EventEmitter
	Log        zerolog.Logger
}

// RegisterAll registers every work type whose service is present and returns their IDs.
func RegisterAll(r *Registry, deps Deps) ([]string, error) {
	types := make([]*WorkType, 0, 5)

	if deps.Market != nil && deps.Items != nil {
		types = append(types, marketRefreshType(deps))
	}
	if deps.Repricer != nil {
		types = append(types, repriceType(deps))
	}
	if deps.Reconciler != nil {
		types = append(types, reconcileType(deps))
	}
	if deps.Forecasts != nil {
		types = append(types, forecastType(deps))
	}
	if deps.Scorer != nil {
		types = append(types, scoreType(deps))
	}

	for _, wt := range types {
		if err := r.Register(wt); err != nil {
			return nil, err
		}
	}
	return lo.Map(types, func(wt *WorkType, _ int) string { return wt.ID }), nil
}

func marketRefreshType(deps Deps) *WorkType {
	return &WorkType{
		ID:       TypeMarketRefresh,
		Priority: PriorityHigh,
		Interval: marketRefreshEvery,
		Execute: func(ctx context.Context, _ string, progress *ProgressReporter) error {
			progress.ReportPhase("fetch", "Refreshing market observations")
			report, err := deps.Market.RefreshAll(ctx, deps.Items)
			if err != nil {
				return err
			}
			if deps.Events != nil {
				deps.Events.Emit(events.MarketRefresh, module, events.MarketRefreshData{
					Items:        report.Items,
					Observations: report.Observations,
					Stale:        report.Stale,
					Failed:       report.Failed,
				})
			}
			return nil
		},
	}
}

func repriceType(deps Deps) *WorkType {
	return &WorkType{
		ID:        TypeReprice,
		DependsOn: []string{TypeMarketRefresh},
		Priority:  PriorityHigh,
		Interval:  repriceEvery,
		Execute: func(ctx context.Context, _ string, progress *ProgressReporter) error {
			report, err := deps.Repricer.BatchReprice(ctx, repricing.Request{})
			if err != nil {
				return err
			}
			progress.ReportWithDetails(len(report.Items), len(report.Items), "Repricing batch finished", map[string]any{
				"batch_id": report.BatchID,
			})
			if report.Cancelled {
				return fmt.Errorf("repricing batch %s cancelled: %w", report.BatchID, ctx.Err())
			}
			return nil
		},
	}
}

func reconcileType(deps Deps) *WorkType {
	return &WorkType{
		ID:        TypeReconcile,
		DependsOn: []string{TypeMarketRefresh},
		Priority:  PriorityMedium,
		Interval:  reconcileEvery,
		Execute: func(ctx context.Context, _ string, _ *ProgressReporter) error {
			_, err := deps.Reconciler.Reconcile(ctx)
			return err
		},
	}
}

func forecastType(deps Deps) *WorkType {
	log := deps.Log.With().Str("work", TypeForecast).Logger()
	return &WorkType{
		ID:       TypeForecast,
		Priority: PriorityMedium,
		Interval: forecastEvery,
		FindSubjects: func() []string {
			return lo.Map(domain.Horizons, func(h domain.Horizon, _ int) string { return string(h) })
		},
		Execute: func(ctx context.Context, subject string, _ *ProgressReporter) error {
			_, err := deps.Forecasts.Generate(ctx, forecasting.Request{
				Level:   domain.LevelProduct,
				Horizon: domain.Horizon(subject),
			})
			if errors.Is(err, domain.ErrNotFound) {
				// No sales recorded yet
				log.Debug().Str("horizon", subject).Msg("No forecast subjects")
				return nil
			}
			return err
		},
	}
}

func scoreType(deps Deps) *WorkType {
	return &WorkType{
		ID:       TypeForecastScore,
		Priority: PriorityLow,
		Interval: scoreEvery,
		Execute: func(ctx context.Context, _ string, _ *ProgressReporter) error {
			_, err := deps.Scorer.ScoreElapsed(ctx, time.Now().UTC())
			return err
		},
	}
}
