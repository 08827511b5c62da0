// Package repricing re-prices inventory in batches and applies the changes to listings.
package repricing

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/database"
	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/events"
	"github.com/aristath/reseller/internal/metrics"
)

// SourceSmartRepricing tags history rows written by batches.
const SourceSmartRepricing = "smart_repricing"

// Recommender prices one item.
type Recommender interface {
	Recommend(ctx context.Context, item domain.Item) (*domain.PricingResult, error)
}

// HistoryStore is the price ledger as seen by the batch.
type HistoryStore interface {
	Latest(ctx context.Context, itemID int64, priceType domain.PriceType) (*domain.PriceHistory, error)
	Append(ctx context.Context, row *domain.PriceHistory) error
	AppendTx(ctx context.Context, tx *sql.Tx, row *domain.PriceHistory) error
	RecentlyApplied(ctx context.Context, since time.Time) (map[int64]bool, error)
}

// ItemSource lists the items a batch considers.
type ItemSource interface {
	ListRepriceable(ctx context.Context, ids []int64) ([]domain.Item, error)
}

// ListingUpdater pushes an applied price to the item's listing.
type ListingUpdater interface {
	UpdateListedPrice(ctx context.Context, itemID int64, price float64) error
}

// EventEmitter publishes batch progress.
type EventEmitter interface {
	Emit(eventType events.EventType, module string, data interface{})
}

// Request selects the items of a batch. Empty ItemIDs means all repriceable inventory.
type Request struct {
	ItemIDs []int64 `json:"item_ids"`
	DryRun  bool    `json:"dry_run"`
	Force   bool    `json:"force"`
}

// BatchReport is the outcome of one BatchReprice call.
type BatchReport struct {
	BatchID   string        `json:"batch_id"`
	DryRun    bool          `json:"dry_run"`
	Started   time.Time     `json:"started"`
	Finished  time.Time     `json:"finished"`
	Counts    map[State]int `json:"counts"`
	Items     []ItemOutcome `json:"items"`
	Cancelled bool          `json:"cancelled"`
}

// Service runs repricing batches.
type Service struct {
	engine   Recommender
	history  HistoryStore
	ledgerDB *sql.DB
	items    ItemSource
	listings ListingUpdater
	events   EventEmitter
	metrics  *metrics.Metrics
	cfg      config.RepricingConfig
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates the repricing service. emitter and m may be nil.
func NewService(
	engine Recommender,
	history HistoryStore,
	ledgerDB *sql.DB,
	items ItemSource,
	listings ListingUpdater,
	emitter EventEmitter,
	m *metrics.Metrics,
	cfg config.RepricingConfig,
	log zerolog.Logger,
) *Service {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Service{
		engine:   engine,
		history:  history,
		ledgerDB: ledgerDB,
		items:    items,
		listings: listings,
		events:   emitter,
		metrics:  m,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log.With().Str("service", "repricing").Logger(),
	}
}

// BatchReprice prices every selected item concurrently and applies the changes.
// One failing item never aborts the batch. When ctx is cancelled no new item is
// started; items already started run to completion and the rest stay pending.
func (s *Service) BatchReprice(ctx context.Context, req Request) (*BatchReport, error) {
	items, err := s.selectItems(ctx, req)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{
		BatchID: uuid.New().String(),
		DryRun:  req.DryRun,
		Started: s.now(),
		Items:   make([]ItemOutcome, len(items)),
	}
	for i, item := range items {
		report.Items[i] = newOutcome(item.ID)
	}

	s.log.Info().
		Str("batch_id", report.BatchID).
		Int("items", len(items)).
		Bool("dry_run", req.DryRun).
		Msg("Repricing batch started")

	// Started items finish even after cancellation so no item is left half-written.
	workCtx := context.WithoutCancel(ctx)

	jobs := make(chan int)
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers + 1)

	g.Go(func() error {
		defer close(jobs)
		for i := range items {
			if ctx.Err() != nil {
				return nil
			}
			select {
			case jobs <- i:
			case <-ctx.Done():
				return nil
			}
		}
		return nil
	})

	for w := 0; w < s.cfg.Workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				s.processItem(workCtx, report.BatchID, req.DryRun, items[i], &report.Items[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Finished = s.now()
	report.Cancelled = ctx.Err() != nil
	report.Counts = countStates(report.Items)

	if s.metrics != nil {
		mode := "apply"
		if req.DryRun {
			mode = "dry_run"
		}
		s.metrics.RepriceBatches.WithLabelValues(mode).Inc()
	}
	s.emit(events.RepriceDone, events.RepriceDoneData{
		BatchID:   report.BatchID,
		Counts:    stringCounts(report.Counts),
		DryRun:    req.DryRun,
		Cancelled: report.Cancelled,
	})

	s.log.Info().
		Str("batch_id", report.BatchID).
		Int("applied", report.Counts[StateApplied]).
		Int("skipped", report.Counts[StateSkipped]).
		Int("failed", report.Counts[StateFailed]).
		Int("pending", report.Counts[StatePending]).
		Bool("cancelled", report.Cancelled).
		Dur("duration", report.Finished.Sub(report.Started)).
		Msg("Repricing batch finished")

	return report, nil
}

func (s *Service) selectItems(ctx context.Context, req Request) ([]domain.Item, error) {
	items, err := s.items.ListRepriceable(ctx, req.ItemIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list repriceable items: %w", err)
	}
	if req.Force || len(req.ItemIDs) > 0 || s.cfg.StaleAfter <= 0 {
		return items, nil
	}

	recent, err := s.history.RecentlyApplied(ctx, s.now().Add(-s.cfg.StaleAfter))
	if err != nil {
		return nil, fmt.Errorf("failed to load recently applied prices: %w", err)
	}
	return lo.Filter(items, func(item domain.Item, _ int) bool {
		return !recent[item.ID]
	}), nil
}

func (s *Service) processItem(ctx context.Context, batchID string, dryRun bool, item domain.Item, out *ItemOutcome) {
	defer s.settle(batchID, out)

	result, err := s.engine.Recommend(ctx, item)
	if err != nil {
		out.fail(err)
		return
	}
	out.NewPrice = result.SuggestedPrice
	out.Confidence = result.ConfidenceScore
	out.RuleID = result.RuleID
	out.Strategy = result.StrategyUsed
	if err := out.transition(StatePriced); err != nil {
		out.fail(err)
		return
	}

	last, err := s.history.Latest(ctx, item.ID, domain.PriceApplied)
	if err != nil {
		out.fail(fmt.Errorf("failed to load last applied price: %w", err))
		return
	}
	if last != nil {
		out.OldPrice = last.Price
		if reason, skip := s.skipReason(result, last.Price); skip {
			out.Reason = reason
			_ = out.transition(StateSkipped)
			return
		}
	}

	if dryRun {
		out.Reason = ReasonDryRun
		if err := s.history.Append(ctx, s.historyRow(batchID, item.ID, domain.PriceSuggested, result)); err != nil {
			out.fail(fmt.Errorf("failed to record suggested price: %w", err))
		}
		return
	}

	if err := s.apply(ctx, batchID, item.ID, result); err != nil {
		out.fail(err)
		return
	}
	_ = out.transition(StateApplied)
}

// skipReason decides idempotence against the last applied price.
func (s *Service) skipReason(result *domain.PricingResult, lastPrice float64) (string, bool) {
	if result.ClampedToLast {
		return ReasonGuardrail, true
	}
	if lastPrice <= 0 {
		return "", false
	}
	if math.Abs(result.SuggestedPrice-lastPrice)/lastPrice*100 < s.cfg.TolerancePercent {
		return ReasonWithinTolerance, true
	}
	return "", false
}

// apply appends the applied row and updates the listing before the append commits.
func (s *Service) apply(ctx context.Context, batchID string, itemID int64, result *domain.PricingResult) error {
	row := s.historyRow(batchID, itemID, domain.PriceApplied, result)
	return database.WithTransactionContext(ctx, s.ledgerDB, func(tx *sql.Tx) error {
		if err := s.history.AppendTx(ctx, tx, row); err != nil {
			return fmt.Errorf("failed to append applied price: %w", err)
		}
		if s.listings != nil {
			if err := s.listings.UpdateListedPrice(ctx, itemID, result.SuggestedPrice); err != nil {
				return fmt.Errorf("failed to update listing: %w", err)
			}
		}
		return nil
	})
}

func (s *Service) historyRow(batchID string, itemID int64, priceType domain.PriceType, result *domain.PricingResult) *domain.PriceHistory {
	row := &domain.PriceHistory{
		ItemID:     itemID,
		Price:      result.SuggestedPrice,
		PriceType:  priceType,
		Source:     SourceSmartRepricing,
		Confidence: result.ConfidenceScore,
		BatchID:    batchID,
		RecordedAt: s.now(),
	}
	if result.RuleID != 0 {
		row.RuleID = domain.Int64Ptr(result.RuleID)
	}
	return row
}

func (s *Service) settle(batchID string, out *ItemOutcome) {
	if out.State == StateFailed {
		s.log.Warn().Str("batch_id", batchID).Int64("item_id", out.ItemID).Str("error", out.Error).Msg("Item repricing failed")
	}
	if s.metrics != nil {
		s.metrics.RepriceItems.WithLabelValues(string(out.State)).Inc()
	}
	s.emit(events.RepriceItem, events.RepriceItemData{
		BatchID:  batchID,
		ItemID:   out.ItemID,
		State:    string(out.State),
		OldPrice: out.OldPrice,
		NewPrice: out.NewPrice,
		Reason:   out.Reason,
	})
}

func (s *Service) emit(eventType events.EventType, data interface{}) {
	if s.events != nil {
		s.events.Emit(eventType, "repricing", data)
	}
}

func countStates(items []ItemOutcome) map[State]int {
	counts := make(map[State]int, len(States))
	for _, st := range States {
		counts[st] = 0
	}
	for _, it := range items {
		counts[it.State]++
	}
	return counts
}

func stringCounts(counts map[State]int) map[string]int {
	out := make(map[string]int, len(counts))
	for k, v := range counts {
		out[string(k)] = v
	}
	return out
}
