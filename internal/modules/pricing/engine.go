// Package pricing resolves pricing rules and computes guarded price recommendations.
package pricing

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/metrics"
	"github.com/aristath/reseller/internal/modules/pricing/calculators"
)

// Engine produces a PricingResult for an item.
type Engine struct {
	rules       RuleSource
	brands      BrandMultiplierSource
	history     HistoryReader
	market      MarketData
	asks        AskHistory
	items       ItemLookup
	calculators *calculators.Registry
	resolver    *Resolver
	guardrails  *Guardrails
	metrics     *metrics.Metrics
	cfg         config.PricingConfig
	now         func() time.Time
	log         zerolog.Logger
}

// NewEngine creates a pricing engine. Market data and ask history are optional
// and attached with WithMarketData and WithAskHistory.
func NewEngine(
	rules RuleSource,
	brands BrandMultiplierSource,
	history HistoryReader,
	registry *calculators.Registry,
	cfg config.PricingConfig,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		rules:       rules,
		brands:      brands,
		history:     history,
		calculators: registry,
		resolver:    NewResolver(),
		guardrails:  NewGuardrails(log),
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log.With().Str("service", "pricing_engine").Logger(),
	}
}

// WithMarketData attaches the competitor data source.
func (e *Engine) WithMarketData(market MarketData) *Engine {
	e.market = market
	return e
}

// WithAskHistory attaches the ask series used for market condition.
func (e *Engine) WithAskHistory(asks AskHistory) *Engine {
	e.asks = asks
	return e
}

// WithItems attaches the item lookup used by RecommendByID and Explain.
func (e *Engine) WithItems(items ItemLookup) *Engine {
	e.items = items
	return e
}

// WithMetrics records recommendation counts and latency on m.
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	return e
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Recommend computes the guarded price for item.
func (e *Engine) Recommend(ctx context.Context, item domain.Item) (*domain.PricingResult, error) {
	if item.NetCost <= 0 {
		return nil, domain.NewValidationError("net_cost", "must be positive, got %.2f", item.NetCost)
	}
	start := time.Now()
	now := e.now()

	rules, err := e.rules.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}
	rule := e.resolver.Resolve(rules, item.Scope(), now)
	if rule == nil {
		def := DefaultRule(e.cfg.DefaultMarginPercent, e.cfg.DefaultMinMarginPercent, now)
		rule = &def
		e.log.Warn().Int64("item_id", item.ID).Msg("No rule resolved and no default seeded, using configured default")
	}

	pc, err := e.buildContext(ctx, item, *rule, now)
	if err != nil {
		return nil, err
	}

	result, err := e.price(ctx, pc, *rule)
	if err == nil && e.metrics != nil {
		e.metrics.RecommendDuration.Observe(time.Since(start).Seconds())
		e.metrics.Recommendations.WithLabelValues(result.StrategyUsed).Inc()
	}
	return result, err
}

// RecommendByID looks the item up and prices it.
func (e *Engine) RecommendByID(ctx context.Context, itemID int64) (*domain.PricingResult, error) {
	item, err := e.lookup(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return e.Recommend(ctx, *item)
}

func (e *Engine) lookup(ctx context.Context, itemID int64) (*domain.Item, error) {
	if e.items == nil {
		return nil, fmt.Errorf("item lookup not configured")
	}
	item, err := e.items.GetByID(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load item %d: %w", itemID, err)
	}
	if item == nil {
		return nil, domain.NotFoundError{Entity: "item", Key: itemID}
	}
	return item, nil
}

func (e *Engine) buildContext(ctx context.Context, item domain.Item, rule domain.PriceRule, now time.Time) (domain.PricingContext, error) {
	pc := domain.PricingContext{
		Item:      item,
		NetCost:   item.NetCost,
		Condition: item.Condition,
		Now:       now,
	}

	if e.market != nil {
		observations, stale, err := e.market.Observations(ctx, item)
		if err != nil {
			// Missing competitor data lowers confidence; it never fails the recommendation.
			e.log.Warn().Err(err).Int64("item_id", item.ID).Msg("Competitor data unavailable")
		}
		pc.Competitors = lo.Filter(observations, func(o domain.MarketPrice, _ int) bool {
			return o.PriceType == domain.ObservationResale
		})
		pc.CompetitorStale = stale
	}

	if rule.RuleType == domain.RuleTypeBrandPremium && item.BrandID != nil && e.brands != nil {
		multiplier, err := e.brands.GetActive(ctx, *item.BrandID, now)
		if err != nil {
			return pc, fmt.Errorf("failed to load brand multiplier: %w", err)
		}
		pc.BrandMultiplier = multiplier
	}

	if e.history != nil {
		last, err := e.history.Latest(ctx, item.ID, domain.PriceApplied)
		if err != nil {
			return pc, fmt.Errorf("failed to load last applied price: %w", err)
		}
		pc.LastApplied = last
	}

	return pc, nil
}

func (e *Engine) price(ctx context.Context, pc domain.PricingContext, rule domain.PriceRule) (*domain.PricingResult, error) {
	calc, err := e.calculators.For(rule.RuleType)
	if err != nil {
		return nil, err
	}

	quote, err := calc.Calculate(pc, rule)
	if err != nil {
		return nil, fmt.Errorf("%s calculation failed for item %d: %w", rule.RuleType, pc.Item.ID, err)
	}

	price := quote.RawPrice
	adjustments := append([]domain.Adjustment(nil), quote.Adjustments...)

	if rule.RuleType != domain.RuleTypeConditionAdjusted && len(rule.ConditionMultipliers) > 0 {
		var adj domain.Adjustment
		price, adj = calculators.ConditionPass(rule, pc.Condition, price)
		adjustments = append(adjustments, adj)
	}

	if seasonal, adj := calculators.SeasonalPass(rule, pc.Now, price); adj != nil {
		price = seasonal
		adjustments = append(adjustments, *adj)
	}

	if e.cfg.PsychologicalPricing {
		price = calculators.PsychologicalPrice(price)
		adjustments = append(adjustments, domain.Adjustment{Name: "psychological", Value: price})
	}

	guarded := e.guardrails.Apply(price, pc, rule)
	adjustments = append(adjustments, guarded.Adjustments...)
	final := guarded.Price

	confidence, deductions := ScoreConfidence(ConfidenceInputs{
		MissingCompetitors:     len(pc.Competitors) == 0,
		MissingBrandMultiplier: quote.MissingBrandMultiplier,
		UsedDefaultRule:        rule.IsDefault,
		StaleCompetitors:       pc.CompetitorStale,
	})

	strategy := string(rule.RuleType)
	if rule.IsDefault {
		strategy = domain.StrategyDefault
	}

	result := &domain.PricingResult{
		ItemID:          pc.Item.ID,
		SuggestedPrice:  final,
		MarginPercent:   calculators.Round2(calculators.MarginPercent(final, pc.NetCost)),
		MarkupPercent:   calculators.Round2(calculators.MarkupPercent(final, pc.NetCost)),
		ConfidenceScore: confidence,
		StrategyUsed:    strategy,
		RuleID:          rule.ID,
		Adjustments:     adjustments,
		Deductions:      deductions,
		MarketCondition: MarketCondition(e.askSeries(ctx, pc)),
		ClampedToLast:   guarded.ClampedToLast,
		ComputedAt:      pc.Now,
	}
	if best, ok := calculators.BestCompetitorPrice(pc.Competitors); ok {
		result.MarketPosition = MarketPosition(final, best)
	}

	e.log.Debug().
		Int64("item_id", pc.Item.ID).
		Int64("rule_id", rule.ID).
		Str("strategy", strategy).
		Float64("price", final).
		Float64("confidence", confidence).
		Msg("Price recommended")

	return result, nil
}

func (e *Engine) askSeries(ctx context.Context, pc domain.PricingContext) []float64 {
	if e.asks != nil {
		asks, err := e.asks.RecentAsks(ctx, pc.Item.ID, marketWindow)
		if err == nil && len(asks) > 0 {
			return asks
		}
		if err != nil {
			e.log.Debug().Err(err).Int64("item_id", pc.Item.ID).Msg("Ask history unavailable")
		}
	}
	return askSeries(pc.Competitors)
}

// CandidateRule describes how one active rule fared during resolution.
type CandidateRule struct {
	Rule     domain.PriceRule `json:"rule"`
	Matched  bool             `json:"matched"`
	Rank     int              `json:"rank,omitempty"`
	Selected bool             `json:"selected"`
}

// Explanation is a recommendation plus the rules considered for it.
type Explanation struct {
	Result     *domain.PricingResult `json:"result"`
	Candidates []CandidateRule       `json:"candidates"`
}

// Explain prices the item and reports every active rule with its match and rank.
func (e *Engine) Explain(ctx context.Context, itemID int64) (*Explanation, error) {
	item, err := e.lookup(ctx, itemID)
	if err != nil {
		return nil, err
	}

	result, err := e.Recommend(ctx, *item)
	if err != nil {
		return nil, err
	}

	now := result.ComputedAt
	rules, err := e.rules.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}

	ranked := e.resolver.Candidates(rules, item.Scope(), now)
	rank := make(map[int64]int, len(ranked))
	for i, r := range ranked {
		rank[r.ID] = i + 1
	}

	candidates := make([]CandidateRule, 0, len(rules))
	for _, r := range rules {
		candidates = append(candidates, CandidateRule{
			Rule:     r,
			Matched:  rank[r.ID] > 0,
			Rank:     rank[r.ID],
			Selected: rank[r.ID] == 1 && r.ID == result.RuleID,
		})
	}

	return &Explanation{Result: result, Candidates: candidates}, nil
}
