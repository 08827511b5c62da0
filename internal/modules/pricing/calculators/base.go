// Package calculators turns a resolved rule and a pricing context into a raw price.
// Calculators are pure: they read the context and never touch storage.
package calculators

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/domain"
)

// Calculator is the interface that all strategy calculators must implement.
type Calculator interface {
	// Name returns the rule type this calculator serves.
	Name() string

	// Calculate computes the raw (pre-guardrail) price for the context under rule.
	Calculate(pc domain.PricingContext, rule domain.PriceRule) (Quote, error)
}

// Quote is the raw output of a strategy calculation.
type Quote struct {
	RawPrice    float64
	BasePrice   float64
	Adjustments []domain.Adjustment

	// Data gaps the engine turns into confidence deductions.
	MissingCompetitors     bool
	MissingBrandMultiplier bool
}

// BaseCalculator provides common functionality for all calculators.
type BaseCalculator struct {
	log zerolog.Logger
}

// NewBaseCalculator creates a new base calculator with logging.
func NewBaseCalculator(log zerolog.Logger, name string) *BaseCalculator {
	return &BaseCalculator{
		log: log.With().Str("calculator", name).Logger(),
	}
}

// CostPlusPrice applies the margin-on-price convention: price = cost / (1 - m/100).
// A 25% margin on a cost of 100 gives 133.33.
func CostPlusPrice(netCost, marginPercent float64) (float64, error) {
	if netCost <= 0 {
		return 0, domain.NewValidationError("net_cost", "must be positive, got %.2f", netCost)
	}
	if marginPercent < 0 || marginPercent >= 100 {
		return 0, domain.NewValidationError("base_markup_percent", "must be in [0, 100), got %.2f", marginPercent)
	}
	return netCost / (1 - marginPercent/100), nil
}

// MarginFloor is the lowest price that keeps minMarginPercent over cost: cost * (1 + m/100).
func MarginFloor(netCost, minMarginPercent float64) float64 {
	return netCost * (1 + minMarginPercent/100)
}

// MarginPercent is (price - cost) / price * 100.
func MarginPercent(price, netCost float64) float64 {
	if price <= 0 {
		return 0
	}
	return (price - netCost) / price * 100
}

// MarkupPercent is (price - cost) / cost * 100.
func MarkupPercent(price, netCost float64) float64 {
	if netCost <= 0 {
		return 0
	}
	return (price - netCost) / netCost * 100
}

// Round2 rounds half away from zero to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Ceil2 rounds up to the next cent, tolerating float noise.
func Ceil2(v float64) float64 {
	return math.Ceil(v*100-1e-7) / 100
}
