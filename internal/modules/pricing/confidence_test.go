package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreConfidence(t *testing.T) {
	tests := []struct {
		name       string
		in         ConfidenceInputs
		want       float64
		deductions int
	}{
		{"full data", ConfidenceInputs{}, 1.0, 0},
		{"missing competitors", ConfidenceInputs{MissingCompetitors: true}, 0.7, 1},
		{"stale competitors", ConfidenceInputs{StaleCompetitors: true}, 0.9, 1},
		{"default rule without data", ConfidenceInputs{MissingCompetitors: true, UsedDefaultRule: true}, 0.3, 2},
		{"everything missing", ConfidenceInputs{MissingCompetitors: true, MissingBrandMultiplier: true, UsedDefaultRule: true}, 0.1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, deductions := ScoreConfidence(tt.in)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Len(t, deductions, tt.deductions)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}
