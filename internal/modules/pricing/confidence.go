package pricing

import "math"

// Confidence deductions. The score starts at 1.0 and is clamped to [0, 1].
const (
	deductMissingCompetitors     = 0.3
	deductMissingBrandMultiplier = 0.2
	deductDefaultRule            = 0.4
	deductStaleCompetitors       = 0.1
)

// ConfidenceInputs are the data-quality signals gathered while pricing.
type ConfidenceInputs struct {
	MissingCompetitors     bool
	MissingBrandMultiplier bool
	UsedDefaultRule        bool
	StaleCompetitors       bool
}

// ScoreConfidence returns the confidence score and the names of the deductions applied.
func ScoreConfidence(in ConfidenceInputs) (float64, []string) {
	score := 1.0
	var deductions []string

	if in.MissingCompetitors {
		score -= deductMissingCompetitors
		deductions = append(deductions, "missing_competitor_data")
	}
	if in.MissingBrandMultiplier {
		score -= deductMissingBrandMultiplier
		deductions = append(deductions, "missing_brand_multiplier")
	}
	if in.UsedDefaultRule {
		score -= deductDefaultRule
		deductions = append(deductions, "default_rule")
	}
	if in.StaleCompetitors && !in.MissingCompetitors {
		score -= deductStaleCompetitors
		deductions = append(deductions, "stale_competitor_data")
	}

	score = math.Max(0, math.Min(1, score))
	return math.Round(score*100) / 100, deductions
}
