// Package opportunities finds items whose cheapest retail purchase resells at a profit.
package opportunities

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/events"
	"github.com/aristath/reseller/internal/metrics"
	"github.com/aristath/reseller/internal/utils"
)

// ReconcileReport is the outcome of one pass.
type ReconcileReport struct {
	Run           Run                        `json:"run"`
	Opportunities []domain.ProfitOpportunity `json:"opportunities"`
	Summary       Summary                    `json:"summary"`
}

// SourceSummary aggregates opportunities sold through one resale source.
type SourceSummary struct {
	Source      string  `json:"source"`
	Count       int     `json:"count"`
	AverageROI  float64 `json:"average_roi"`
	TotalProfit float64 `json:"total_profit"`
}

// Summary groups a run's opportunities by resale source and by tier.
type Summary struct {
	Total       int                            `json:"total"`
	TotalProfit float64                        `json:"total_profit"`
	AverageROI  float64                        `json:"average_roi"`
	BySource    []SourceSummary                `json:"by_source"`
	ByTier      map[domain.OpportunityTier]int `json:"by_tier"`
}

// Service reconciles retail and resale observations into opportunities.
type Service struct {
	observations ObservationReader
	store        RunStore
	events       EventEmitter
	metrics      *metrics.Metrics
	cfg          config.ReconcileConfig
	now          func() time.Time
	log          zerolog.Logger
}

// NewService creates the reconciler. emitter and m may be nil.
func NewService(observations ObservationReader, store RunStore, emitter EventEmitter, m *metrics.Metrics, cfg config.ReconcileConfig, log zerolog.Logger) *Service {
	return &Service{
		observations: observations,
		store:        store,
		events:       emitter,
		metrics:      m,
		cfg:          cfg,
		now:          func() time.Time { return time.Now().UTC() },
		log:          log.With().Str("module", "opportunities").Logger(),
	}
}

// Reconcile evaluates every item with both retail and resale observations and
// stores the qualifying opportunities under a new run. Every pass writes a run,
// so an empty pass supersedes the previous opportunities.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	defer utils.OperationTimer("reconcile_opportunities", s.log)()
	started := s.now()

	latest, err := s.observations.LatestAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load observations: %w", err)
	}

	byItem := lo.GroupBy(latest, func(obs domain.MarketPrice) int64 { return obs.ItemID })
	itemIDs := lo.Keys(byItem)
	sort.Slice(itemIDs, func(i, j int) bool { return itemIDs[i] < itemIDs[j] })

	run := Run{RunID: uuid.New().String(), StartedAt: started}
	var opps []domain.ProfitOpportunity

	for _, itemID := range itemIDs {
		obs := byItem[itemID]
		retail := lo.Filter(obs, func(o domain.MarketPrice, _ int) bool {
			return o.PriceType == domain.ObservationRetail && o.InStock
		})
		resale := lo.Filter(obs, func(o domain.MarketPrice, _ int) bool {
			return o.PriceType == domain.ObservationResale
		})
		if len(retail) == 0 || len(resale) == 0 {
			continue
		}
		run.Candidates++

		opp, ok := Evaluate(retail, resale, s.cfg)
		if !ok {
			continue
		}
		opp.RunID = run.RunID
		opp.CreatedAt = started
		opps = append(opps, *opp)
	}

	sortByROI(opps)
	run.Opportunities = len(opps)
	run.FinishedAt = s.now()

	if err := s.store.SaveRun(ctx, run, opps); err != nil {
		return nil, fmt.Errorf("failed to store reconciliation run: %w", err)
	}

	summary := Summarize(opps)
	s.record(run, summary)

	s.log.Info().
		Str("run_id", run.RunID).
		Int("candidates", run.Candidates).
		Int("opportunities", run.Opportunities).
		Float64("total_profit", summary.TotalProfit).
		Msg("Reconciliation completed")

	return &ReconcileReport{Run: run, Opportunities: opps, Summary: summary}, nil
}

// Current returns the opportunities of the latest run, or nil when no pass has run.
func (s *Service) Current(ctx context.Context, filter Filter) (*ReconcileReport, error) {
	run, err := s.store.LatestRun(ctx)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, nil
	}
	opps, err := s.store.ListByRun(ctx, run.RunID, filter)
	if err != nil {
		return nil, err
	}
	return &ReconcileReport{Run: *run, Opportunities: opps, Summary: Summarize(opps)}, nil
}

func (s *Service) record(run Run, summary Summary) {
	if s.metrics != nil {
		s.metrics.ReconcileRuns.Inc()
		for _, tier := range []domain.OpportunityTier{domain.TierLow, domain.TierMedium, domain.TierHigh} {
			s.metrics.Opportunities.WithLabelValues(string(tier)).Set(float64(summary.ByTier[tier]))
		}
	}
	if s.events != nil {
		s.events.Emit(events.ReconcileDone, "opportunities", events.ReconcileDoneData{
			RunID:         run.RunID,
			Candidates:    run.Candidates,
			Opportunities: run.Opportunities,
		})
	}
}

// Summarize groups opportunities by resale source (ordered by total profit) and by tier.
func Summarize(opps []domain.ProfitOpportunity) Summary {
	summary := Summary{
		Total: len(opps),
		ByTier: map[domain.OpportunityTier]int{
			domain.TierLow:    0,
			domain.TierMedium: 0,
			domain.TierHigh:   0,
		},
		BySource: []SourceSummary{},
	}
	if len(opps) == 0 {
		return summary
	}

	var roiSum float64
	for _, o := range opps {
		summary.ByTier[o.Tier]++
		summary.TotalProfit += o.Profit
		roiSum += o.ROIPercentage
	}
	summary.TotalProfit = round(summary.TotalProfit, 2)
	summary.AverageROI = round(roiSum/float64(len(opps)), 1)

	for source, group := range lo.GroupBy(opps, func(o domain.ProfitOpportunity) string { return o.ResaleSource }) {
		ss := SourceSummary{Source: source, Count: len(group)}
		var roi float64
		for _, o := range group {
			ss.TotalProfit += o.Profit
			roi += o.ROIPercentage
		}
		ss.TotalProfit = round(ss.TotalProfit, 2)
		ss.AverageROI = round(roi/float64(len(group)), 1)
		summary.BySource = append(summary.BySource, ss)
	}
	sort.Slice(summary.BySource, func(i, j int) bool {
		a, b := summary.BySource[i], summary.BySource[j]
		if a.TotalProfit != b.TotalProfit {
			return a.TotalProfit > b.TotalProfit
		}
		return a.Source < b.Source
	})
	return summary
}

func sortByROI(opps []domain.ProfitOpportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].ROIPercentage != opps[j].ROIPercentage {
			return opps[i].ROIPercentage > opps[j].ROIPercentage
		}
		return opps[i].ItemID < opps[j].ItemID
	})
}
