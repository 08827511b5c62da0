package domain

import "time"

// ItemStatus of an inventory record.
type ItemStatus string

const (
	ItemInStock ItemStatus = "in_stock"
	ItemListed  ItemStatus = "listed"
	ItemSold    ItemStatus = "sold"
)

// Item is the inventory record the pricing core reads from the item lookup.
type Item struct {
	ID          int64          `json:"id"`
	ProductID   int64          `json:"product_id"`
	SKU         string         `json:"sku,omitempty"`
	BrandID     *int64         `json:"brand_id,omitempty"`
	CategoryID  *int64         `json:"category_id,omitempty"`
	PlatformID  *int64         `json:"platform_id,omitempty"`
	Platform    string         `json:"platform,omitempty"`
	NetCost     float64        `json:"net_cost"`
	Condition   ConditionLabel `json:"condition"`
	Status      ItemStatus     `json:"status"`
	ListedPrice *float64       `json:"listed_price,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Scope returns the item's rule-matching triple.
func (i Item) Scope() Scope {
	return Scope{PlatformID: i.PlatformID, BrandID: i.BrandID, CategoryID: i.CategoryID}
}
