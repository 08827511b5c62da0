package testing

import (
	"fmt"
	"time"

	"github.com/aristath/reseller/internal/domain"
)

// FixedNow is the reference time used by fixtures.
var FixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// NewItemFixture returns an in-stock item with the given cost, brand and category.
func NewItemFixture(id int64, netCost float64, brandID, categoryID int64) domain.Item {
	return domain.Item{
		ID:         id,
		ProductID:  id * 10,
		SKU:        fmt.Sprintf("SKU-%04d", id),
		BrandID:    domain.Int64Ptr(brandID),
		CategoryID: domain.Int64Ptr(categoryID),
		PlatformID: domain.Int64Ptr(1),
		Platform:   "ebay",
		NetCost:    netCost,
		Condition:  domain.ConditionNew,
		Status:     domain.ItemListed,
		UpdatedAt:  FixedNow,
	}
}

// NewCostPlusRule returns an active unscoped cost-plus rule valid since a year before FixedNow.
func NewCostPlusRule(id int64, markup, minMargin float64) domain.PriceRule {
	return domain.PriceRule{
		ID:                   id,
		Name:                 "cost plus",
		RuleType:             domain.RuleTypeCostPlus,
		Active:               true,
		BaseMarkupPercent:    domain.Float64Ptr(markup),
		MinimumMarginPercent: domain.Float64Ptr(minMargin),
		EffectiveFrom:        FixedNow.AddDate(-1, 0, 0),
	}
}

// NewResaleObservation returns an in-stock resale observation at FixedNow.
func NewResaleObservation(itemID int64, source string, price float64) domain.MarketPrice {
	return domain.MarketPrice{
		ItemID:     itemID,
		Source:     source,
		ExternalID: source + "-ext",
		PriceType:  domain.ObservationResale,
		Price:      price,
		Currency:   "EUR",
		InStock:    true,
		ObservedAt: FixedNow,
	}
}

// NewRetailObservation returns an in-stock retail observation at FixedNow.
func NewRetailObservation(itemID int64, source string, price float64, vat *float64) domain.MarketPrice {
	obs := NewResaleObservation(itemID, source, price)
	obs.PriceType = domain.ObservationRetail
	obs.VATRate = vat
	return obs
}
