package pricing

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aristath/reseller/internal/domain"
)

const (
	ruleSnapshotTTL = 30 * time.Second
	ruleSnapshotKey = "enabled_rules"
)

// EnabledRuleLister lists every enabled rule regardless of validity window.
type EnabledRuleLister interface {
	ListEnabled(ctx context.Context) ([]domain.PriceRule, error)
}

// CachedRuleSource serves active rules from a short-lived snapshot.
// The validity window is applied per call, so a snapshot stays correct as now advances.
type CachedRuleSource struct {
	repo  EnabledRuleLister
	cache *cache.Cache
	log   zerolog.Logger
}

// NewCachedRuleSource wraps repo with a snapshot cache.
func NewCachedRuleSource(repo EnabledRuleLister, log zerolog.Logger) *CachedRuleSource {
	return &CachedRuleSource{
		repo:  repo,
		cache: cache.New(ruleSnapshotTTL, 2*ruleSnapshotTTL),
		log:   log.With().Str("component", "rule_cache").Logger(),
	}
}

// ListActive returns enabled rules effective at now.
func (c *CachedRuleSource) ListActive(ctx context.Context, now time.Time) ([]domain.PriceRule, error) {
	rules, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(rules, func(r domain.PriceRule, _ int) bool { return r.IsEffective(now) }), nil
}

// Invalidate drops the snapshot. Rule writes call this.
func (c *CachedRuleSource) Invalidate() {
	c.cache.Delete(ruleSnapshotKey)
}

func (c *CachedRuleSource) snapshot(ctx context.Context) ([]domain.PriceRule, error) {
	if cached, ok := c.cache.Get(ruleSnapshotKey); ok {
		return cached.([]domain.PriceRule), nil
	}

	rules, err := c.repo.ListEnabled(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(ruleSnapshotKey, rules)
	c.log.Debug().Int("rules", len(rules)).Msg("Refreshed rule snapshot")
	return rules, nil
}
