package domain

import (
	"strconv"
	"time"
)

// RuleType identifies the pricing strategy a rule selects.
type RuleType string

const (
	RuleTypeCostPlus          RuleType = "cost_plus"
	RuleTypeCompetitive       RuleType = "competitive"
	RuleTypeBrandPremium      RuleType = "brand_premium"
	RuleTypeConditionAdjusted RuleType = "condition_adjusted"
)

// RuleTypes lists every supported rule type.
var RuleTypes = []RuleType{RuleTypeCostPlus, RuleTypeCompetitive, RuleTypeBrandPremium, RuleTypeConditionAdjusted}

// StrategyDefault is reported as strategy_used when the system-default rule priced the item.
const StrategyDefault = "default"

// DefaultRulePriority sits below any operator-assigned priority.
const DefaultRulePriority = -1000

// ConditionLabel is the graded condition of a secondhand item.
type ConditionLabel string

const (
	ConditionNew       ConditionLabel = "new"
	ConditionExcellent ConditionLabel = "excellent"
	ConditionVeryGood  ConditionLabel = "very_good"
	ConditionGood      ConditionLabel = "good"
	ConditionFair      ConditionLabel = "fair"
	ConditionPoor      ConditionLabel = "poor"
)

// DefaultConditionMultipliers applies when a rule carries no multiplier for a label.
var DefaultConditionMultipliers = map[ConditionLabel]float64{
	ConditionNew:       1.0,
	ConditionExcellent: 0.92,
	ConditionVeryGood:  0.85,
	ConditionGood:      0.75,
	ConditionFair:      0.65,
	ConditionPoor:      0.50,
}

// IsKnownCondition reports whether label is one of the graded conditions.
func IsKnownCondition(label ConditionLabel) bool {
	_, ok := DefaultConditionMultipliers[label]
	return ok
}

// PositioningMode tells the competitive strategy how to read PositioningOffset.
type PositioningMode string

const (
	PositioningPercent  PositioningMode = "percent"
	PositioningAbsolute PositioningMode = "absolute"
)

// DefaultPositioningOffsetPercent undercuts the best competitor when a rule sets no offset.
const DefaultPositioningOffsetPercent = 2.0

// Scope is the (platform, brand, category) triple used for rule matching.
// A nil field on a rule is a wildcard; on an item it means "unknown".
type Scope struct {
	PlatformID *int64 `json:"platform_id,omitempty"`
	BrandID    *int64 `json:"brand_id,omitempty"`
	CategoryID *int64 `json:"category_id,omitempty"`
}

// PriceRule is a scoped pricing policy. Rules are never deleted, only deactivated.
type PriceRule struct {
	ID                     int64                      `json:"id"`
	Name                   string                     `json:"name" validate:"required,max=120"`
	RuleType               RuleType                   `json:"rule_type" validate:"required,oneof=cost_plus competitive brand_premium condition_adjusted"`
	Priority               int                        `json:"priority"`
	Active                 bool                       `json:"active"`
	BrandID                *int64                     `json:"brand_id,omitempty" validate:"omitempty,gt=0"`
	CategoryID             *int64                     `json:"category_id,omitempty" validate:"omitempty,gt=0"`
	PlatformID             *int64                     `json:"platform_id,omitempty" validate:"omitempty,gt=0"`
	BaseMarkupPercent      *float64                   `json:"base_markup_percent,omitempty" validate:"omitempty,gte=0,lt=100"`
	MinimumMarginPercent   *float64                   `json:"minimum_margin_percent,omitempty" validate:"omitempty,gte=0,lt=100"`
	MaximumDiscountPercent *float64                   `json:"maximum_discount_percent,omitempty" validate:"omitempty,gte=0,lt=100"`
	PositioningOffset      *float64                   `json:"positioning_offset,omitempty" validate:"omitempty,gte=0"`
	PositioningMode        PositioningMode            `json:"positioning_mode,omitempty" validate:"omitempty,oneof=percent absolute"`
	ConditionMultipliers   map[ConditionLabel]float64 `json:"condition_multipliers,omitempty"`
	SeasonalAdjustments    map[string]float64         `json:"seasonal_adjustments,omitempty"`
	EffectiveFrom          time.Time                  `json:"effective_from"`
	EffectiveUntil         *time.Time                 `json:"effective_until,omitempty"`
	IsDefault              bool                       `json:"is_default"`
	CreatedAt              time.Time                  `json:"created_at"`
	UpdatedAt              time.Time                  `json:"updated_at"`
}

// Specificity counts the non-wildcard scope fields (0..3).
func (r *PriceRule) Specificity() int {
	n := 0
	for _, f := range []*int64{r.BrandID, r.CategoryID, r.PlatformID} {
		if f != nil {
			n++
		}
	}
	return n
}

// IsEffective reports whether now lies in the half-open window [effective_from, effective_until).
func (r *PriceRule) IsEffective(now time.Time) bool {
	if r.EffectiveFrom.After(now) {
		return false
	}
	return r.EffectiveUntil == nil || r.EffectiveUntil.After(now)
}

// Matches reports whether every non-wildcard scope field equals the item's field.
func (r *PriceRule) Matches(s Scope) bool {
	return scopeFieldMatches(r.BrandID, s.BrandID) &&
		scopeFieldMatches(r.CategoryID, s.CategoryID) &&
		scopeFieldMatches(r.PlatformID, s.PlatformID)
}

func scopeFieldMatches(rule, item *int64) bool {
	if rule == nil {
		return true
	}
	return item != nil && *rule == *item
}

// Markup returns the base markup, or 0 when unset.
func (r *PriceRule) Markup() float64 { return deref(r.BaseMarkupPercent) }

// MinMargin returns the minimum margin, or 0 when unset.
func (r *PriceRule) MinMargin() float64 { return deref(r.MinimumMarginPercent) }

// SeasonalMultiplier returns the multiplier for the calendar month of now.
func (r *PriceRule) SeasonalMultiplier(now time.Time) (float64, bool) {
	if len(r.SeasonalAdjustments) == 0 {
		return 1.0, false
	}
	m, ok := r.SeasonalAdjustments[strconv.Itoa(int(now.Month()))]
	if !ok {
		return 1.0, false
	}
	return m, true
}

// BrandMultiplierType mirrors how operators tag brand multipliers.
type BrandMultiplierType string

const (
	MultiplierPremium  BrandMultiplierType = "premium"
	MultiplierDiscount BrandMultiplierType = "discount"
	MultiplierSeasonal BrandMultiplierType = "seasonal"
)

// BrandMultiplier scales a cost-plus base price for the brand_premium strategy.
type BrandMultiplier struct {
	ID             int64               `json:"id"`
	BrandID        int64               `json:"brand_id" validate:"required,gt=0"`
	Multiplier     float64             `json:"multiplier" validate:"gt=0"`
	MultiplierType BrandMultiplierType `json:"multiplier_type" validate:"omitempty,oneof=premium discount seasonal"`
	Active         bool                `json:"active"`
	EffectiveFrom  time.Time           `json:"effective_from"`
	EffectiveUntil *time.Time          `json:"effective_until,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// IsEffective uses the same half-open window as PriceRule.
func (b *BrandMultiplier) IsEffective(now time.Time) bool {
	if !b.Active || b.EffectiveFrom.After(now) {
		return false
	}
	return b.EffectiveUntil == nil || b.EffectiveUntil.After(now)
}

// PricingContext is assembled per request and never persisted.
type PricingContext struct {
	Item            Item
	NetCost         float64
	Condition       ConditionLabel
	Competitors     []MarketPrice
	CompetitorStale bool
	BrandMultiplier *BrandMultiplier
	LastApplied     *PriceHistory
	Now             time.Time
}

// Adjustment records one multiplicative pass or clamp applied during pricing.
type Adjustment struct {
	Name   string  `json:"name"`
	Factor float64 `json:"factor,omitempty"`
	Value  float64 `json:"value"`
}

// PricingResult is the output of one pricing computation.
type PricingResult struct {
	ItemID          int64        `json:"item_id"`
	SuggestedPrice  float64      `json:"suggested_price"`
	MarginPercent   float64      `json:"margin_percent"`
	MarkupPercent   float64      `json:"markup_percent"`
	ConfidenceScore float64      `json:"confidence_score"`
	StrategyUsed    string       `json:"strategy_used"`
	RuleID          int64        `json:"rule_id"`
	Adjustments     []Adjustment `json:"adjustments,omitempty"`
	Deductions      []string     `json:"deductions,omitempty"`
	MarketCondition string       `json:"market_condition,omitempty"`
	MarketPosition  string       `json:"market_position,omitempty"`
	ClampedToLast   bool         `json:"clamped_to_last,omitempty"`
	ComputedAt      time.Time    `json:"computed_at"`
}

// PriceType of a PriceHistory row.
type PriceType string

const (
	PriceSuggested      PriceType = "suggested"
	PriceApplied        PriceType = "applied"
	PriceMarketObserved PriceType = "market-observed"
)

// PriceHistory is an append-only ledger row. Superseding values are new rows.
type PriceHistory struct {
	ID         int64     `json:"id"`
	ItemID     int64     `json:"item_id"`
	Price      float64   `json:"price"`
	PriceType  PriceType `json:"price_type"`
	Source     string    `json:"source"`
	Confidence float64   `json:"confidence"`
	RuleID     *int64    `json:"rule_id,omitempty"`
	BatchID    string    `json:"batch_id,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Float64Ptr and Int64Ptr help build optional fields.
func Float64Ptr(v float64) *float64 { return &v }

func Int64Ptr(v int64) *int64 { return &v }
