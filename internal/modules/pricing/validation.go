package pricing

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aristath/reseller/internal/domain"
)

// Validator checks rules and brand multipliers before they are persisted.
// Struct tags cover ranges and enums; cross-field invariants are checked by hand.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator that reports JSON field names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// ValidateRule returns domain.ValidationErrors describing every problem with rule, or nil.
func (v *Validator) ValidateRule(rule *domain.PriceRule) error {
	errs := v.structErrors(rule)

	if rule.BaseMarkupPercent != nil && rule.MinimumMarginPercent != nil &&
		*rule.MinimumMarginPercent > *rule.BaseMarkupPercent {
		errs = append(errs, domain.NewValidationError("minimum_margin_percent",
			"must not exceed base_markup_percent (%.2f > %.2f)", *rule.MinimumMarginPercent, *rule.BaseMarkupPercent))
	}

	for label, m := range rule.ConditionMultipliers {
		if !domain.IsKnownCondition(label) {
			errs = append(errs, domain.NewValidationError("condition_multipliers", "unknown condition %q", label))
			continue
		}
		if m <= 0 {
			errs = append(errs, domain.NewValidationError("condition_multipliers", "multiplier for %s must be > 0", label))
		}
	}

	for key, m := range rule.SeasonalAdjustments {
		month, err := strconv.Atoi(key)
		if err != nil || month < 1 || month > 12 || key != strconv.Itoa(month) {
			errs = append(errs, domain.NewValidationError("seasonal_adjustments", "key %q must be a month number 1..12", key))
			continue
		}
		if m <= 0 {
			errs = append(errs, domain.NewValidationError("seasonal_adjustments", "multiplier for month %s must be > 0", key))
		}
	}

	if rule.EffectiveFrom.IsZero() {
		errs = append(errs, domain.NewValidationError("effective_from", "is required"))
	}
	if rule.EffectiveUntil != nil && !rule.EffectiveUntil.After(rule.EffectiveFrom) {
		errs = append(errs, domain.NewValidationError("effective_until", "must be after effective_from"))
	}

	return errs.OrNil()
}

// ValidateBrandMultiplier validates a brand multiplier.
func (v *Validator) ValidateBrandMultiplier(m *domain.BrandMultiplier) error {
	errs := v.structErrors(m)
	if m.EffectiveUntil != nil && !m.EffectiveUntil.After(m.EffectiveFrom) {
		errs = append(errs, domain.NewValidationError("effective_until", "must be after effective_from"))
	}
	return errs.OrNil()
}

// Struct validates any tagged request payload.
func (v *Validator) Struct(s interface{}) error {
	return v.structErrors(s).OrNil()
}

func (v *Validator) structErrors(s interface{}) domain.ValidationErrors {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return domain.ValidationErrors{domain.NewValidationError("", "%v", err)}
	}

	out := make(domain.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, domain.ValidationError{Field: fe.Field(), Message: describe(fe)})
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gt":
		return "must be > " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lt":
		return "must be < " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
