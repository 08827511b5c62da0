package pricing

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/modules/pricing/calculators"
)

// priceEpsilon absorbs float noise when comparing cent-rounded prices with bounds.
const priceEpsilon = 1e-9

// GuardrailResult is the price after every lower bound has been enforced.
type GuardrailResult struct {
	Price       float64
	Adjustments []domain.Adjustment

	// Clamped is true when any bound raised the raw price.
	Clamped bool
	// ClampedToLast is true when the discount bound pinned the price to the last applied price.
	ClampedToLast bool
}

// Guardrails enforces the minimum-margin floor and the maximum-discount clamp.
// Both are lower bounds: the final price is the maximum of the raw price and every bound.
type Guardrails struct {
	log zerolog.Logger
}

// NewGuardrails creates the guardrail checker
func NewGuardrails(log zerolog.Logger) *Guardrails {
	return &Guardrails{log: log.With().Str("component", "guardrails").Logger()}
}

// Apply clamps raw for the item in pc under rule. The result is rounded to cents
// and never drops below a bound because of rounding.
func (g *Guardrails) Apply(raw float64, pc domain.PricingContext, rule domain.PriceRule) GuardrailResult {
	result := GuardrailResult{Price: raw}

	floor := calculators.MarginFloor(pc.NetCost, rule.MinMargin())
	if raw < floor {
		result.Price = floor
		result.Clamped = true
		result.Adjustments = append(result.Adjustments, domain.Adjustment{Name: "margin_floor", Value: calculators.Round2(floor)})
		g.log.Debug().
			Int64("item_id", pc.Item.ID).
			Float64("raw", raw).
			Float64("floor", floor).
			Msg("Minimum margin floor applied")
	}

	discountFloor := 0.0
	if pc.LastApplied != nil && rule.MaximumDiscountPercent != nil {
		discountFloor = pc.LastApplied.Price * (1 - *rule.MaximumDiscountPercent/100)
		if result.Price < discountFloor {
			result.Price = discountFloor
			result.Clamped = true
			result.Adjustments = append(result.Adjustments, domain.Adjustment{Name: "max_discount", Value: calculators.Round2(discountFloor)})
			g.log.Debug().
				Int64("item_id", pc.Item.ID).
				Float64("last_applied", pc.LastApplied.Price).
				Float64("discount_floor", discountFloor).
				Msg("Maximum discount clamp applied")
		}
	}

	price := calculators.Round2(result.Price)
	if price < floor-priceEpsilon {
		price = calculators.Ceil2(floor)
	}
	if price < discountFloor-priceEpsilon {
		price = calculators.Ceil2(discountFloor)
	}
	result.Price = price

	if result.Clamped && pc.LastApplied != nil && math.Abs(price-pc.LastApplied.Price) < 0.005 {
		result.ClampedToLast = true
	}

	return result
}
