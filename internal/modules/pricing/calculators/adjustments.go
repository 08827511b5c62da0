package calculators

import (
	"math"
	"time"

	"github.com/aristath/reseller/internal/domain"
)

// SeasonalPass applies the rule's multiplier for the calendar month of now, if any.
func SeasonalPass(rule domain.PriceRule, now time.Time, price float64) (float64, *domain.Adjustment) {
	m, ok := rule.SeasonalMultiplier(now)
	if !ok {
		return price, nil
	}
	adjusted := price * m
	return adjusted, &domain.Adjustment{Name: "seasonal", Factor: m, Value: Round2(adjusted)}
}

// PsychologicalPrice applies charm endings: .95 below 20, .99 below 100,
// otherwise the nearest multiple of 5.
func PsychologicalPrice(price float64) float64 {
	switch {
	case price < 20:
		return math.Max(math.Round(price)-0.05, 0.95)
	case price < 100:
		return math.Max(math.Round(price)-0.01, 0.99)
	default:
		return math.Max(math.Round(price/5)*5, 5)
	}
}
