package calculators

import (
	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/domain"
)

// ConditionAdjustedCalculator applies the condition multiplier to a cost_plus base.
type ConditionAdjustedCalculator struct {
	*BaseCalculator
	costPlus *CostPlusCalculator
}

// NewConditionAdjustedCalculator creates a condition_adjusted calculator.
func NewConditionAdjustedCalculator(log zerolog.Logger) *ConditionAdjustedCalculator {
	return &ConditionAdjustedCalculator{
		BaseCalculator: NewBaseCalculator(log, string(domain.RuleTypeConditionAdjusted)),
		costPlus:       NewCostPlusCalculator(log),
	}
}

// Name returns the rule type.
func (c *ConditionAdjustedCalculator) Name() string { return string(domain.RuleTypeConditionAdjusted) }

// Calculate runs cost_plus and then the condition pass.
func (c *ConditionAdjustedCalculator) Calculate(pc domain.PricingContext, rule domain.PriceRule) (Quote, error) {
	q, err := c.costPlus.Calculate(pc, rule)
	if err != nil {
		return Quote{}, err
	}

	price, adj := ConditionPass(rule, pc.Condition, q.RawPrice)
	q.RawPrice = price
	q.Adjustments = append(q.Adjustments, adj)
	return q, nil
}

// ConditionMultiplier looks the label up on the rule, then in the default table.
// Unknown labels get 1.0.
func ConditionMultiplier(rule domain.PriceRule, label domain.ConditionLabel) float64 {
	if m, ok := rule.ConditionMultipliers[label]; ok && m > 0 {
		return m
	}
	if m, ok := domain.DefaultConditionMultipliers[label]; ok {
		return m
	}
	return 1.0
}

// ConditionPass multiplies price by the condition multiplier.
func ConditionPass(rule domain.PriceRule, label domain.ConditionLabel, price float64) (float64, domain.Adjustment) {
	m := ConditionMultiplier(rule, label)
	adjusted := price * m
	return adjusted, domain.Adjustment{Name: "condition:" + string(label), Factor: m, Value: Round2(adjusted)}
}
