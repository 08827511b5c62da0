package forecasting

import (
	"context"
	"time"

	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/events"
)

// SalesHistoryReader supplies realized sales per series.
type SalesHistoryReader interface {
	// Series returns daily sales points in [from, to), ascending, omitting days without sales.
	Series(ctx context.Context, level domain.ForecastLevel, subjectID int64, from, to time.Time) ([]domain.SalesPoint, error)
	// Subjects lists the series ids at level that sold anything since the given time.
	Subjects(ctx context.Context, level domain.ForecastLevel, since time.Time) ([]int64, error)
}

// ForecastStore persists forecast runs and their accuracy rows.
type ForecastStore interface {
	SaveRun(ctx context.Context, run Run, forecasts []domain.SalesForecast) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListByRun(ctx context.Context, runID string) ([]domain.SalesForecast, error)
	ListElapsedUnscored(ctx context.Context, now time.Time, limit int) ([]domain.SalesForecast, error)
	InsertAccuracy(ctx context.Context, acc domain.ForecastAccuracy) (bool, error)
	ListAccuracyByRun(ctx context.Context, runID string) ([]domain.ForecastAccuracy, error)
}

// MetricsExporter ships per-run accuracy metrics to the reporting layer.
type MetricsExporter interface {
	ExportRunMetrics(ctx context.Context, m domain.RunMetrics) error
}

// EventEmitter publishes forecast lifecycle events.
type EventEmitter interface {
	Emit(eventType events.EventType, module string, data interface{})
}
