package calculators

import (
	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/domain"
)

// CostPlusCalculator prices at the rule's margin over net cost.
type CostPlusCalculator struct {
	*BaseCalculator
}

// NewCostPlusCalculator creates a cost_plus calculator.
func NewCostPlusCalculator(log zerolog.Logger) *CostPlusCalculator {
	return &CostPlusCalculator{BaseCalculator: NewBaseCalculator(log, string(domain.RuleTypeCostPlus))}
}

// Name returns the rule type.
func (c *CostPlusCalculator) Name() string { return string(domain.RuleTypeCostPlus) }

// Calculate returns net_cost / (1 - base_markup_percent/100).
func (c *CostPlusCalculator) Calculate(pc domain.PricingContext, rule domain.PriceRule) (Quote, error) {
	price, err := CostPlusPrice(pc.NetCost, rule.Markup())
	if err != nil {
		return Quote{}, err
	}

	return Quote{
		RawPrice:  price,
		BasePrice: price,
		Adjustments: []domain.Adjustment{
			{Name: "cost_plus", Factor: 1 / (1 - rule.Markup()/100), Value: Round2(price)},
		},
	}, nil
}
