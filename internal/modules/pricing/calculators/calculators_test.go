package calculators

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/reseller/internal/domain"
	testingpkg "github.com/aristath/reseller/internal/testing"
)

func newContext(netCost float64, competitors ...domain.MarketPrice) domain.PricingContext {
	item := testingpkg.NewItemFixture(1, netCost, 7, 3)
	return domain.PricingContext{
		Item:        item,
		NetCost:     netCost,
		Condition:   item.Condition,
		Competitors: competitors,
		Now:         testingpkg.FixedNow,
	}
}

func TestCostPlus_MarginOnPrice(t *testing.T) {
	calc := NewCostPlusCalculator(zerolog.Nop())
	rule := testingpkg.NewCostPlusRule(1, 25, 10)

	q, err := calc.Calculate(newContext(100), rule)
	require.NoError(t, err)

	assert.Equal(t, 133.33, Round2(q.RawPrice))
	assert.Equal(t, 25.0, Round2(MarginPercent(Round2(q.RawPrice), 100)))
	assert.False(t, q.MissingCompetitors)
}

func TestCostPlus_RejectsInvalidInputs(t *testing.T) {
	calc := NewCostPlusCalculator(zerolog.Nop())

	_, err := calc.Calculate(newContext(0), testingpkg.NewCostPlusRule(1, 25, 10))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = calc.Calculate(newContext(100), testingpkg.NewCostPlusRule(1, 100, 10))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestCompetitive_UndercutsBestAsk(t *testing.T) {
	calc := NewCompetitiveCalculator(zerolog.Nop())
	rule := testingpkg.NewCostPlusRule(1, 25, 10)
	rule.RuleType = domain.RuleTypeCompetitive

	pc := newContext(100,
		testingpkg.NewResaleObservation(1, "stockx", 200),
		testingpkg.NewResaleObservation(1, "goat", 180),
	)

	q, err := calc.Calculate(pc, rule)
	require.NoError(t, err)
	assert.InDelta(t, 176.4, q.RawPrice, 1e-9)
	assert.Equal(t, 180.0, q.BasePrice)
}

func TestCompetitive_AbsoluteOffset(t *testing.T) {
	calc := NewCompetitiveCalculator(zerolog.Nop())
	rule := testingpkg.NewCostPlusRule(1, 25, 10)
	rule.RuleType = domain.RuleTypeCompetitive
	rule.PositioningMode = domain.PositioningAbsolute
	rule.PositioningOffset = domain.Float64Ptr(5)

	q, err := calc.Calculate(newContext(100, testingpkg.NewResaleObservation(1, "stockx", 150)), rule)
	require.NoError(t, err)
	assert.InDelta(t, 145.0, q.RawPrice, 1e-9)
}

func TestCompetitive_FlooredAtMinimumMargin(t *testing.T) {
	calc := NewCompetitiveCalculator(zerolog.Nop())
	rule := testingpkg.NewCostPlusRule(1, 25, 10)
	rule.RuleType = domain.RuleTypeCompetitive

	q, err := calc.Calculate(newContext(100, testingpkg.NewResaleObservation(1, "stockx", 105)), rule)
	require.NoError(t, err)
	assert.InDelta(t, 110.0, q.RawPrice, 1e-9)
}

func TestCompetitive_FallsBackWithoutCompetitors(t *testing.T) {
	calc := NewCompetitiveCalculator(zerolog.Nop())
	rule := testingpkg.NewCostPlusRule(1, 25, 10)
	rule.RuleType = domain.RuleTypeCompetitive

	retailOnly := testingpkg.NewRetailObservation(1, "shop", 90, nil)
	q, err := calc.Calculate(newContext(100, retailOnly), rule)
	require.NoError(t, err)
	assert.True(t, q.MissingCompetitors)
	assert.Equal(t, 133.33, Round2(q.RawPrice))
}

func TestBestCompetitorPrice_PrefersInStock(t *testing.T) {
	inStock := testingpkg.NewResaleObservation(1, "a", 150)
	soldOut := testingpkg.NewResaleObservation(1, "b", 120)
	soldOut.InStock = false

	best, ok := BestCompetitorPrice([]domain.MarketPrice{inStock, soldOut})
	require.True(t, ok)
	assert.Equal(t, 150.0, best)

	best, ok = BestCompetitorPrice([]domain.MarketPrice{soldOut})
	require.True(t, ok)
	assert.Equal(t, 120.0, best)

	_, ok = BestCompetitorPrice(nil)
	assert.False(t, ok)
}

func TestBrandPremium(t *testing.T) {
	calc := NewBrandPremiumCalculator(zerolog.Nop())
	rule := testingpkg.NewCostPlusRule(1, 25, 10)
	rule.RuleType = domain.RuleTypeBrandPremium

	t.Run("applies multiplier", func(t *testing.T) {
		pc := newContext(100)
		pc.BrandMultiplier = &domain.BrandMultiplier{BrandID: 7, Multiplier: 1.2, Active: true}

		q, err := calc.Calculate(pc, rule)
		require.NoError(t, err)
		assert.InDelta(t, 160.0, q.RawPrice, 0.01)
		assert.False(t, q.MissingBrandMultiplier)
	})

	t.Run("missing multiplier means 1.0", func(t *testing.T) {
		q, err := calc.Calculate(newContext(100), rule)
		require.NoError(t, err)
		assert.Equal(t, 133.33, Round2(q.RawPrice))
		assert.True(t, q.MissingBrandMultiplier)
	})
}

func TestConditionAdjusted(t *testing.T) {
	calc := NewConditionAdjustedCalculator(zerolog.Nop())
	rule := testingpkg.NewCostPlusRule(1, 20, 0)
	rule.RuleType = domain.RuleTypeConditionAdjusted
	rule.ConditionMultipliers = map[domain.ConditionLabel]float64{domain.ConditionGood: 0.8}

	tests := []struct {
		name      string
		condition domain.ConditionLabel
		want      float64
	}{
		{"rule multiplier", domain.ConditionGood, 100},
		{"default table", domain.ConditionFair, 81.25},
		{"unknown label", domain.ConditionLabel("mint"), 125},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pc := newContext(100)
			pc.Condition = tt.condition

			q, err := calc.Calculate(pc, rule)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, q.RawPrice, 1e-9)
		})
	}
}

func TestSeasonalPass(t *testing.T) {
	rule := testingpkg.NewCostPlusRule(1, 20, 0)
	rule.SeasonalAdjustments = map[string]float64{"3": 1.1}

	price, adj := SeasonalPass(rule, testingpkg.FixedNow, 100)
	require.NotNil(t, adj)
	assert.InDelta(t, 110.0, price, 1e-9)

	price, adj = SeasonalPass(rule, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), 100)
	assert.Nil(t, adj)
	assert.Equal(t, 100.0, price)
}

func TestPsychologicalPrice(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{12.4, 11.95},
		{0.2, 0.95},
		{49.6, 49.99},
		{20.49, 19.99},
		{133.33, 135},
		{101, 100},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, PsychologicalPrice(tt.in), 1e-9, "input %.2f", tt.in)
	}
}

func TestCeil2(t *testing.T) {
	assert.Equal(t, 33.34, Ceil2(33.333))
	assert.Equal(t, 110.0, Ceil2(110.0000000001))
}
