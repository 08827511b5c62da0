package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/database"
	"github.com/aristath/reseller/internal/domain"
)

// RuleRepository persists price rules in catalog.db. Rules are never deleted.
type RuleRepository struct {
	catalogDB *sql.DB
	validator *Validator
	log       zerolog.Logger
}

// ruleColumns must match scanRule.
const ruleColumns = `id, name, rule_type, priority, active, brand_id, category_id, platform_id,
	base_markup_percent, minimum_margin_percent, maximum_discount_percent,
	positioning_offset, positioning_mode, condition_multipliers, seasonal_adjustments,
	effective_from, effective_until, is_default, created_at, updated_at`

// NewRuleRepository creates a new rule repository
func NewRuleRepository(catalogDB *sql.DB, validator *Validator, log zerolog.Logger) *RuleRepository {
	return &RuleRepository{
		catalogDB: catalogDB,
		validator: validator,
		log:       log.With().Str("repo", "price_rule").Logger(),
	}
}

// Create validates and inserts a rule, setting its ID and timestamps.
func (r *RuleRepository) Create(ctx context.Context, rule *domain.PriceRule) error {
	if err := r.validator.ValidateRule(rule); err != nil {
		return err
	}
	return r.insert(ctx, rule)
}

func (r *RuleRepository) insert(ctx context.Context, rule *domain.PriceRule) error {
	conditions, err := serializeConditionMultipliers(rule.ConditionMultipliers)
	if err != nil {
		return err
	}
	seasonal, err := serializeSeasonalAdjustments(rule.SeasonalAdjustments)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	query := `
		INSERT INTO price_rules
		(name, rule_type, priority, active, brand_id, category_id, platform_id,
		 base_markup_percent, minimum_margin_percent, maximum_discount_percent,
		 positioning_offset, positioning_mode, condition_multipliers, seasonal_adjustments,
		 effective_from, effective_until, is_default, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.catalogDB.ExecContext(ctx, query,
		rule.Name,
		string(rule.RuleType),
		rule.Priority,
		database.NullInt64(rule.BrandID),
		database.NullInt64(rule.CategoryID),
		database.NullInt64(rule.PlatformID),
		database.NullFloat64(rule.BaseMarkupPercent),
		database.NullFloat64(rule.MinimumMarginPercent),
		database.NullFloat64(rule.MaximumDiscountPercent),
		database.NullFloat64(rule.PositioningOffset),
		database.NullString(string(rule.PositioningMode)),
		conditions,
		seasonal,
		rule.EffectiveFrom.Unix(),
		database.NullUnix(rule.EffectiveUntil),
		database.BoolInt(rule.IsDefault),
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create price rule: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read price rule id: %w", err)
	}
	rule.ID = id
	rule.CreatedAt = now
	rule.UpdatedAt = now

	r.log.Info().
		Int64("rule_id", id).
		Str("rule_type", string(rule.RuleType)).
		Int("specificity", rule.Specificity()).
		Msg("Price rule created")

	return nil
}

// Update re-validates and overwrites the editable fields of an existing rule.
// The default flag is fixed at creation and the active flag only changes through
// Deactivate; both are reloaded into rule from the stored row.
func (r *RuleRepository) Update(ctx context.Context, rule *domain.PriceRule) error {
	if rule.ID <= 0 {
		return domain.NewValidationError("id", "is required")
	}
	if err := r.validator.ValidateRule(rule); err != nil {
		return err
	}

	conditions, err := serializeConditionMultipliers(rule.ConditionMultipliers)
	if err != nil {
		return err
	}
	seasonal, err := serializeSeasonalAdjustments(rule.SeasonalAdjustments)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	query := `
		UPDATE price_rules SET
			name = ?, rule_type = ?, priority = ?,
			brand_id = ?, category_id = ?, platform_id = ?,
			base_markup_percent = ?, minimum_margin_percent = ?, maximum_discount_percent = ?,
			positioning_offset = ?, positioning_mode = ?,
			condition_multipliers = ?, seasonal_adjustments = ?,
			effective_from = ?, effective_until = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.catalogDB.ExecContext(ctx, query,
		rule.Name,
		string(rule.RuleType),
		rule.Priority,
		database.NullInt64(rule.BrandID),
		database.NullInt64(rule.CategoryID),
		database.NullInt64(rule.PlatformID),
		database.NullFloat64(rule.BaseMarkupPercent),
		database.NullFloat64(rule.MinimumMarginPercent),
		database.NullFloat64(rule.MaximumDiscountPercent),
		database.NullFloat64(rule.PositioningOffset),
		database.NullString(string(rule.PositioningMode)),
		conditions,
		seasonal,
		rule.EffectiveFrom.Unix(),
		database.NullUnix(rule.EffectiveUntil),
		now.Unix(),
		rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update price rule %d: %w", rule.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundError{Entity: "price rule", Key: rule.ID}
	}

	stored, err := r.GetByID(ctx, rule.ID)
	if err != nil {
		return err
	}
	if stored != nil {
		rule.Active = stored.Active
		rule.IsDefault = stored.IsDefault
		rule.CreatedAt = stored.CreatedAt
	}
	rule.UpdatedAt = now

	r.log.Info().Int64("rule_id", rule.ID).Msg("Price rule updated")
	return nil
}

// Deactivate marks a rule inactive. The default rule cannot be deactivated.
func (r *RuleRepository) Deactivate(ctx context.Context, id int64) error {
	rule, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rule == nil {
		return domain.NotFoundError{Entity: "price rule", Key: id}
	}
	if rule.IsDefault {
		return domain.NewValidationError("id", "the default rule cannot be deactivated")
	}

	_, err = r.catalogDB.ExecContext(ctx,
		"UPDATE price_rules SET active = 0, updated_at = ? WHERE id = ?",
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate price rule %d: %w", id, err)
	}

	r.log.Info().Int64("rule_id", id).Msg("Price rule deactivated")
	return nil
}

// GetByID returns the rule, or nil if it does not exist.
func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*domain.PriceRule, error) {
	row := r.catalogDB.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM price_rules WHERE id = ?", id)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get price rule %d: %w", id, err)
	}
	return &rule, nil
}

// GetDefault returns the seeded default rule, or nil.
func (r *RuleRepository) GetDefault(ctx context.Context) (*domain.PriceRule, error) {
	row := r.catalogDB.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM price_rules WHERE is_default = 1")
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get default price rule: %w", err)
	}
	return &rule, nil
}

// ListActive returns active rules whose validity window contains now.
func (r *RuleRepository) ListActive(ctx context.Context, now time.Time) ([]domain.PriceRule, error) {
	query := `
		SELECT ` + ruleColumns + ` FROM price_rules
		WHERE active = 1
		  AND effective_from <= ?
		  AND (effective_until IS NULL OR effective_until > ?)
		ORDER BY id
	`
	return r.list(ctx, query, now.Unix(), now.Unix())
}

// ListEnabled returns every rule with active = 1, regardless of its validity window.
func (r *RuleRepository) ListEnabled(ctx context.Context) ([]domain.PriceRule, error) {
	return r.list(ctx, "SELECT "+ruleColumns+" FROM price_rules WHERE active = 1 ORDER BY id")
}

func (r *RuleRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.PriceRule, error) {
	rows, err := r.catalogDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list price rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.PriceRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rules: %w", err)
	}

	return rules, nil
}

// EnsureDefault seeds the unscoped cost_plus default rule if none exists.
// Calling it again returns the existing rule unchanged.
func (r *RuleRepository) EnsureDefault(ctx context.Context, marginPercent, minMarginPercent float64) (*domain.PriceRule, error) {
	existing, err := r.GetDefault(ctx)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	rule := DefaultRule(marginPercent, minMarginPercent, time.Unix(0, 0).UTC())
	if err := r.validator.ValidateRule(&rule); err != nil {
		return nil, fmt.Errorf("invalid default rule configuration: %w", err)
	}
	if err := r.insert(ctx, &rule); err != nil {
		return nil, err
	}

	r.log.Info().
		Float64("margin_percent", marginPercent).
		Float64("min_margin_percent", minMarginPercent).
		Msg("Seeded default price rule")
	return &rule, nil
}

// DefaultRule builds the system default rule. It is also used in memory when
// nothing has been seeded.
func DefaultRule(marginPercent, minMarginPercent float64, from time.Time) domain.PriceRule {
	return domain.PriceRule{
		Name:                 "system default",
		RuleType:             domain.RuleTypeCostPlus,
		Priority:             domain.DefaultRulePriority,
		Active:               true,
		BaseMarkupPercent:    domain.Float64Ptr(marginPercent),
		MinimumMarginPercent: domain.Float64Ptr(minMarginPercent),
		EffectiveFrom:        from,
		IsDefault:            true,
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (domain.PriceRule, error) {
	var (
		rule                                domain.PriceRule
		ruleType                            string
		active, isDefault                   int
		brandID, categoryID, platformID     sql.NullInt64
		markup, minMargin, maxDiscount      sql.NullFloat64
		offset                              sql.NullFloat64
		mode, conditions, seasonal          sql.NullString
		effectiveFrom, createdAt, updatedAt int64
		effectiveUntil                      sql.NullInt64
	)

	err := row.Scan(
		&rule.ID, &rule.Name, &ruleType, &rule.Priority, &active,
		&brandID, &categoryID, &platformID,
		&markup, &minMargin, &maxDiscount,
		&offset, &mode, &conditions, &seasonal,
		&effectiveFrom, &effectiveUntil, &isDefault, &createdAt, &updatedAt,
	)
	if err != nil {
		return domain.PriceRule{}, err
	}

	rule.RuleType = domain.RuleType(ruleType)
	rule.Active = active != 0
	rule.IsDefault = isDefault != 0
	rule.BrandID = database.Int64Ptr(brandID)
	rule.CategoryID = database.Int64Ptr(categoryID)
	rule.PlatformID = database.Int64Ptr(platformID)
	rule.BaseMarkupPercent = database.Float64Ptr(markup)
	rule.MinimumMarginPercent = database.Float64Ptr(minMargin)
	rule.MaximumDiscountPercent = database.Float64Ptr(maxDiscount)
	rule.PositioningOffset = database.Float64Ptr(offset)
	rule.PositioningMode = domain.PositioningMode(mode.String)
	rule.EffectiveFrom = database.FromUnix(effectiveFrom)
	rule.EffectiveUntil = database.TimePtr(effectiveUntil)
	rule.CreatedAt = database.FromUnix(createdAt)
	rule.UpdatedAt = database.FromUnix(updatedAt)

	if rule.ConditionMultipliers, err = parseConditionMultipliers(conditions); err != nil {
		return domain.PriceRule{}, err
	}
	if rule.SeasonalAdjustments, err = parseSeasonalAdjustments(seasonal); err != nil {
		return domain.PriceRule{}, err
	}

	return rule, nil
}
