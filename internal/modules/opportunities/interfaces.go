package opportunities

import (
	"context"

	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/events"
)

// ObservationReader returns the newest observation per (item, source, price type).
type ObservationReader interface {
	LatestAll(ctx context.Context) ([]domain.MarketPrice, error)
}

// RunStore persists reconciliation runs and their opportunities.
type RunStore interface {
	SaveRun(ctx context.Context, run Run, opps []domain.ProfitOpportunity) error
	LatestRun(ctx context.Context) (*Run, error)
	ListByRun(ctx context.Context, runID string, filter Filter) ([]domain.ProfitOpportunity, error)
}

// EventEmitter publishes reconciliation results.
type EventEmitter interface {
	Emit(eventType events.EventType, module string, data interface{})
}
