package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/reseller/internal/domain"
	testingpkg "github.com/aristath/reseller/internal/testing"
)

func scopedRule(id int64, priority int, brand, category, platform *int64) domain.PriceRule {
	rule := testingpkg.NewCostPlusRule(id, 25, 10)
	rule.Priority = priority
	rule.BrandID = brand
	rule.CategoryID = category
	rule.PlatformID = platform
	return rule
}

func TestResolver_SpecificityBeatsPriority(t *testing.T) {
	now := testingpkg.FixedNow
	brand := domain.Int64Ptr(7)
	category := domain.Int64Ptr(3)

	rules := []domain.PriceRule{
		scopedRule(1, 100, brand, nil, nil),
		scopedRule(2, 1, brand, category, nil),
	}

	got := NewResolver().Resolve(rules, domain.Scope{BrandID: brand, CategoryID: category}, now)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.ID)
}

func TestResolver_PriorityThenRecencyThenID(t *testing.T) {
	now := testingpkg.FixedNow
	brand := domain.Int64Ptr(7)
	scope := domain.Scope{BrandID: brand}

	older := scopedRule(1, 5, brand, nil, nil)
	newer := scopedRule(2, 5, brand, nil, nil)
	newer.EffectiveFrom = older.EffectiveFrom.Add(time.Hour)
	higher := scopedRule(3, 9, brand, nil, nil)

	r := NewResolver()
	assert.Equal(t, int64(3), r.Resolve([]domain.PriceRule{older, newer, higher}, scope, now).ID)
	assert.Equal(t, int64(2), r.Resolve([]domain.PriceRule{older, newer}, scope, now).ID)

	twin := scopedRule(4, 5, brand, nil, nil)
	twin.EffectiveFrom = newer.EffectiveFrom
	assert.Equal(t, int64(4), r.Resolve([]domain.PriceRule{newer, twin}, scope, now).ID)
	assert.Equal(t, int64(4), r.Resolve([]domain.PriceRule{twin, newer}, scope, now).ID)
}

func TestResolver_ValidityWindowIsHalfOpen(t *testing.T) {
	now := testingpkg.FixedNow
	rule := scopedRule(1, 0, nil, nil, nil)
	rule.EffectiveUntil = &now

	assert.Nil(t, NewResolver().Resolve([]domain.PriceRule{rule}, domain.Scope{}, now))

	rule.EffectiveUntil = nil
	rule.EffectiveFrom = now
	assert.NotNil(t, NewResolver().Resolve([]domain.PriceRule{rule}, domain.Scope{}, now))
}

func TestResolver_SkipsInactiveAndNonMatching(t *testing.T) {
	now := testingpkg.FixedNow
	inactive := scopedRule(1, 0, nil, nil, nil)
	inactive.Active = false
	otherBrand := scopedRule(2, 0, domain.Int64Ptr(99), nil, nil)

	got := NewResolver().Resolve([]domain.PriceRule{inactive, otherBrand}, domain.Scope{BrandID: domain.Int64Ptr(7)}, now)
	assert.Nil(t, got)
}

func TestResolver_DefaultOnlyWhenNothingElseMatches(t *testing.T) {
	now := testingpkg.FixedNow
	def := DefaultRule(20, 10, now.AddDate(-1, 0, 0))
	def.ID = 1
	wildcard := scopedRule(2, domain.DefaultRulePriority-5, nil, nil, nil)

	r := NewResolver()
	got := r.Resolve([]domain.PriceRule{def, wildcard}, domain.Scope{}, now)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.ID)

	got = r.Resolve([]domain.PriceRule{def}, domain.Scope{BrandID: domain.Int64Ptr(7)}, now)
	require.NotNil(t, got)
	assert.True(t, got.IsDefault)
}

type stubRuleSource struct {
	rules []domain.PriceRule
	err   error
	calls int
}

func (s *stubRuleSource) ListActive(ctx context.Context, now time.Time) ([]domain.PriceRule, error) {
	s.calls++
	return s.rules, s.err
}

func TestResolver_ResolveFrom(t *testing.T) {
	source := &stubRuleSource{rules: []domain.PriceRule{scopedRule(1, 0, nil, nil, nil)}}

	got, err := NewResolver().ResolveFrom(context.Background(), source, domain.Scope{}, testingpkg.FixedNow)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)

	source.err = errors.New("boom")
	_, err = NewResolver().ResolveFrom(context.Background(), source, domain.Scope{}, testingpkg.FixedNow)
	assert.Error(t, err)
}
