package calculators

import (
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aristath/reseller/internal/domain"
)

// CompetitiveCalculator undercuts the best (lowest) competing resale ask.
type CompetitiveCalculator struct {
	*BaseCalculator
	costPlus *CostPlusCalculator
}

// NewCompetitiveCalculator creates a competitive calculator.
func NewCompetitiveCalculator(log zerolog.Logger) *CompetitiveCalculator {
	return &CompetitiveCalculator{
		BaseCalculator: NewBaseCalculator(log, string(domain.RuleTypeCompetitive)),
		costPlus:       NewCostPlusCalculator(log),
	}
}

// Name returns the rule type.
func (c *CompetitiveCalculator) Name() string { return string(domain.RuleTypeCompetitive) }

// Calculate positions below the lowest competitor, never under the minimum-margin floor.
// Without competitor data it falls back to cost_plus and flags the gap.
func (c *CompetitiveCalculator) Calculate(pc domain.PricingContext, rule domain.PriceRule) (Quote, error) {
	best, ok := BestCompetitorPrice(pc.Competitors)
	if !ok {
		c.log.Debug().Int64("item_id", pc.Item.ID).Msg("No competitor data, falling back to cost plus")
		q, err := c.costPlus.Calculate(pc, rule)
		if err != nil {
			return Quote{}, err
		}
		q.MissingCompetitors = true
		return q, nil
	}

	offset := domain.DefaultPositioningOffsetPercent
	if rule.PositioningOffset != nil {
		offset = *rule.PositioningOffset
	}

	var price float64
	if rule.PositioningMode == domain.PositioningAbsolute {
		price = best - offset
	} else {
		price = best * (1 - offset/100)
	}

	adjustments := []domain.Adjustment{{Name: "competitor_best", Value: Round2(best)}, {Name: "positioning", Value: Round2(price)}}

	floor := MarginFloor(pc.NetCost, rule.MinMargin())
	if price < floor {
		price = floor
		adjustments = append(adjustments, domain.Adjustment{Name: "competitive_floor", Value: Round2(floor)})
	}

	return Quote{RawPrice: price, BasePrice: best, Adjustments: adjustments}, nil
}

// BestCompetitorPrice returns the lowest positive resale price, preferring in-stock listings.
func BestCompetitorPrice(observations []domain.MarketPrice) (float64, bool) {
	resale := lo.Filter(observations, func(o domain.MarketPrice, _ int) bool {
		return o.PriceType == domain.ObservationResale && o.Price > 0
	})
	if len(resale) == 0 {
		return 0, false
	}

	candidates := lo.Filter(resale, func(o domain.MarketPrice, _ int) bool { return o.InStock })
	if len(candidates) == 0 {
		candidates = resale
	}

	best := lo.MinBy(candidates, func(a, b domain.MarketPrice) bool { return a.Price < b.Price })
	return best.Price, true
}
