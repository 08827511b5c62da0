package pricing

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/reseller/internal/domain"
	testingpkg "github.com/aristath/reseller/internal/testing"
)

func guardContext(netCost float64, last *float64) domain.PricingContext {
	pc := domain.PricingContext{Item: testingpkg.NewItemFixture(1, netCost, 7, 3), NetCost: netCost}
	if last != nil {
		pc.LastApplied = &domain.PriceHistory{ItemID: 1, Price: *last, PriceType: domain.PriceApplied}
	}
	return pc
}

func TestGuardrails_MarginFloor(t *testing.T) {
	g := NewGuardrails(zerolog.Nop())
	rule := testingpkg.NewCostPlusRule(1, 25, 10)

	result := g.Apply(90, guardContext(100, nil), rule)
	assert.Equal(t, 110.0, result.Price)
	assert.True(t, result.Clamped)
	assert.Equal(t, "margin_floor", result.Adjustments[0].Name)
}

func TestGuardrails_NoClampAboveBounds(t *testing.T) {
	g := NewGuardrails(zerolog.Nop())
	rule := testingpkg.NewCostPlusRule(1, 25, 10)
	rule.MaximumDiscountPercent = domain.Float64Ptr(10)

	result := g.Apply(133.333, guardContext(100, domain.Float64Ptr(140)), rule)
	assert.Equal(t, 133.33, result.Price)
	assert.False(t, result.Clamped)
	assert.Empty(t, result.Adjustments)
}

func TestGuardrails_MaxDiscount(t *testing.T) {
	g := NewGuardrails(zerolog.Nop())
	rule := testingpkg.NewCostPlusRule(1, 25, 10)
	rule.MaximumDiscountPercent = domain.Float64Ptr(10)

	result := g.Apply(120, guardContext(100, domain.Float64Ptr(200)), rule)
	assert.Equal(t, 180.0, result.Price)
	assert.True(t, result.Clamped)
	assert.False(t, result.ClampedToLast)
}

func TestGuardrails_FloorWinsOverDiscount(t *testing.T) {
	g := NewGuardrails(zerolog.Nop())
	rule := testingpkg.NewCostPlusRule(1, 25, 10)
	rule.MaximumDiscountPercent = domain.Float64Ptr(50)

	result := g.Apply(80, guardContext(100, domain.Float64Ptr(150)), rule)
	assert.Equal(t, 110.0, result.Price)
}

func TestGuardrails_ZeroDiscountPinsToLast(t *testing.T) {
	g := NewGuardrails(zerolog.Nop())
	rule := testingpkg.NewCostPlusRule(1, 25, 10)
	rule.MaximumDiscountPercent = domain.Float64Ptr(0)

	result := g.Apply(120, guardContext(100, domain.Float64Ptr(150)), rule)
	assert.Equal(t, 150.0, result.Price)
	assert.True(t, result.ClampedToLast)
}

func TestGuardrails_RoundingNeverBreaksFloor(t *testing.T) {
	g := NewGuardrails(zerolog.Nop())
	rule := testingpkg.NewCostPlusRule(1, 25, 10)

	// floor = 30.303 * 1.1 = 33.3333
	result := g.Apply(1, guardContext(30.303, nil), rule)
	assert.GreaterOrEqual(t, result.Price, 30.303*1.1)
	assert.Equal(t, 33.34, result.Price)
}
