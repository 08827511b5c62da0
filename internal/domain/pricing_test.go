package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriceRule_Specificity(t *testing.T) {
	rule := PriceRule{}
	assert.Equal(t, 0, rule.Specificity())

	rule.BrandID = Int64Ptr(1)
	assert.Equal(t, 1, rule.Specificity())

	rule.CategoryID = Int64Ptr(2)
	rule.PlatformID = Int64Ptr(3)
	assert.Equal(t, 3, rule.Specificity())
}

func TestPriceRule_IsEffective_HalfOpenWindow(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	rule := PriceRule{EffectiveFrom: from, EffectiveUntil: &until}

	assert.True(t, rule.IsEffective(from), "window includes effective_from")
	assert.True(t, rule.IsEffective(until.Add(-time.Second)))
	assert.False(t, rule.IsEffective(until), "window excludes effective_until")
	assert.False(t, rule.IsEffective(from.Add(-time.Second)))

	rule.EffectiveUntil = nil
	assert.True(t, rule.IsEffective(from.AddDate(5, 0, 0)), "open-ended rule stays effective")
}

func TestPriceRule_Matches(t *testing.T) {
	rule := PriceRule{BrandID: Int64Ptr(7)}

	assert.True(t, rule.Matches(Scope{BrandID: Int64Ptr(7), CategoryID: Int64Ptr(3)}))
	assert.False(t, rule.Matches(Scope{BrandID: Int64Ptr(8)}))
	assert.False(t, rule.Matches(Scope{}), "scoped field does not match an unknown item field")

	wildcard := PriceRule{}
	assert.True(t, wildcard.Matches(Scope{}))
	assert.True(t, wildcard.Matches(Scope{PlatformID: Int64Ptr(1)}))
}

func TestPriceRule_SeasonalMultiplier(t *testing.T) {
	rule := PriceRule{SeasonalAdjustments: map[string]float64{"12": 1.15}}

	m, ok := rule.SeasonalMultiplier(time.Date(2026, 12, 3, 0, 0, 0, 0, time.UTC))
	assert.True(t, ok)
	assert.Equal(t, 1.15, m)

	m, ok = rule.SeasonalMultiplier(time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok)
	assert.Equal(t, 1.0, m)
}

func TestBrandMultiplier_IsEffective(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	bm := BrandMultiplier{Active: true, EffectiveFrom: now.AddDate(0, -1, 0), Multiplier: 1.2}
	assert.True(t, bm.IsEffective(now))

	bm.Active = false
	assert.False(t, bm.IsEffective(now))
}

func TestHorizon_DaysAndSeason(t *testing.T) {
	assert.Equal(t, 1, HorizonDaily.Days())
	assert.Equal(t, 7, HorizonWeekly.Days())
	assert.Equal(t, 30, HorizonMonthly.Days())
	assert.Equal(t, 0, Horizon("yearly").Days())

	assert.Equal(t, 7, HorizonDaily.SeasonLength())
	assert.Equal(t, 4, HorizonWeekly.SeasonLength())
	assert.Equal(t, 12, HorizonMonthly.SeasonLength())
}
