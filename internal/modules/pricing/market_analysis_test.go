package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarketCondition(t *testing.T) {
	tests := []struct {
		name string
		asks []float64
		want string
	}{
		{"no data", nil, MarketUnknown},
		{"single ask", []float64{100}, MarketUnknown},
		{"flat", []float64{100, 100, 101, 100, 100}, MarketStable},
		{"rising", []float64{100, 104, 108, 112, 116}, MarketBullish},
		{"falling", []float64{116, 112, 108, 104, 100}, MarketBearish},
		{"volatile", []float64{100, 140, 90, 150, 80}, MarketVolatile},
		{"only last five count", []float64{10, 100, 100, 100, 100, 100}, MarketStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MarketCondition(tt.asks))
		})
	}
}

func TestMarketPosition(t *testing.T) {
	assert.Equal(t, PositionBelow, MarketPosition(90, 100))
	assert.Equal(t, PositionCompetitive, MarketPosition(100, 100))
	assert.Equal(t, PositionCompetitive, MarketPosition(105, 100))
	assert.Equal(t, PositionAbove, MarketPosition(106, 100))
	assert.Equal(t, "", MarketPosition(100, 0))
}
