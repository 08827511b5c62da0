package pricing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/reseller/internal/domain"
)

// Resolver picks the single applicable rule for an item scope.
type Resolver struct{}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the winning rule among rules for scope at now, or nil when none matches.
//
// Candidates must be active, effective at now and match the scope. They are ranked by
// specificity, then priority, then the most recent effective_from, then the highest ID.
// The default rule only wins when nothing else matches.
func (r *Resolver) Resolve(rules []domain.PriceRule, scope domain.Scope, now time.Time) *domain.PriceRule {
	candidates := r.Candidates(rules, scope, now)
	if len(candidates) == 0 {
		return nil
	}
	winner := candidates[0]
	return &winner
}

// Candidates returns every applicable rule in ranking order.
func (r *Resolver) Candidates(rules []domain.PriceRule, scope domain.Scope, now time.Time) []domain.PriceRule {
	candidates := make([]domain.PriceRule, 0, len(rules))
	for i := range rules {
		rule := &rules[i]
		if rule.Active && rule.IsEffective(now) && rule.Matches(scope) {
			candidates = append(candidates, *rule)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return ranksBefore(&candidates[i], &candidates[j])
	})
	return candidates
}

// ResolveFrom loads active rules from source and resolves scope.
func (r *Resolver) ResolveFrom(ctx context.Context, source RuleSource, scope domain.Scope, now time.Time) (*domain.PriceRule, error) {
	rules, err := source.ListActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}
	return r.Resolve(rules, scope, now), nil
}

func ranksBefore(a, b *domain.PriceRule) bool {
	if sa, sb := a.Specificity(), b.Specificity(); sa != sb {
		return sa > sb
	}
	if a.IsDefault != b.IsDefault {
		return !a.IsDefault
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.EffectiveFrom.Equal(b.EffectiveFrom) {
		return a.EffectiveFrom.After(b.EffectiveFrom)
	}
	return a.ID > b.ID
}
