package calculators

import (
	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/domain"
)

// BrandPremiumCalculator scales a cost_plus base by the brand multiplier.
type BrandPremiumCalculator struct {
	*BaseCalculator
	costPlus *CostPlusCalculator
}

// NewBrandPremiumCalculator creates a brand_premium calculator.
func NewBrandPremiumCalculator(log zerolog.Logger) *BrandPremiumCalculator {
	return &BrandPremiumCalculator{
		BaseCalculator: NewBaseCalculator(log, string(domain.RuleTypeBrandPremium)),
		costPlus:       NewCostPlusCalculator(log),
	}
}

// Name returns the rule type.
func (c *BrandPremiumCalculator) Name() string { return string(domain.RuleTypeBrandPremium) }

// Calculate multiplies the cost_plus price by the active brand multiplier (1.0 when missing).
func (c *BrandPremiumCalculator) Calculate(pc domain.PricingContext, rule domain.PriceRule) (Quote, error) {
	q, err := c.costPlus.Calculate(pc, rule)
	if err != nil {
		return Quote{}, err
	}

	multiplier := 1.0
	if pc.BrandMultiplier != nil && pc.BrandMultiplier.Multiplier > 0 {
		multiplier = pc.BrandMultiplier.Multiplier
	} else {
		q.MissingBrandMultiplier = true
	}

	q.RawPrice = q.BasePrice * multiplier
	q.Adjustments = append(q.Adjustments, domain.Adjustment{Name: "brand_multiplier", Factor: multiplier, Value: Round2(q.RawPrice)})
	return q, nil
}
