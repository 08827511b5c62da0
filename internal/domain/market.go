package domain

import "time"

// ObservationType distinguishes what a price source reported.
type ObservationType string

const (
	ObservationRetail ObservationType = "retail"
	ObservationResale ObservationType = "resale"
)

// MarketPrice is one price observation for an item from one source.
// Rows are append-only; uniqueness is per (item, source, external id, observed_at).
type MarketPrice struct {
	ID         int64           `json:"id"`
	ItemID     int64           `json:"item_id"`
	Source     string          `json:"source"`
	ExternalID string          `json:"external_id"`
	PriceType  ObservationType `json:"price_type"`
	Price      float64         `json:"price"`
	Currency   string          `json:"currency"`
	VATRate    *float64        `json:"vat_rate,omitempty"`
	InStock    bool            `json:"in_stock"`
	ObservedAt time.Time       `json:"observed_at"`
	Stale      bool            `json:"stale,omitempty"`
}

// OpportunityTier is derived from ROI thresholds.
type OpportunityTier string

const (
	TierLow    OpportunityTier = "LOW"
	TierMedium OpportunityTier = "MEDIUM"
	TierHigh   OpportunityTier = "HIGH"
)

// ProfitOpportunity pairs the best retail and resale observation for one item.
// Opportunities are recomputed per reconciliation run and superseded, never mutated.
type ProfitOpportunity struct {
	ID               int64           `json:"id"`
	RunID            string          `json:"run_id"`
	ItemID           int64           `json:"item_id"`
	RetailSource     string          `json:"retail_source"`
	RetailPrice      float64         `json:"retail_price"`
	VATRate          float64         `json:"vat_rate"`
	ResaleSource     string          `json:"resale_source"`
	ResalePrice      float64         `json:"resale_price"`
	PlatformFee      float64         `json:"platform_fee_percent"`
	NetPurchasePrice float64         `json:"net_purchase_price"`
	NetProceeds      float64         `json:"net_proceeds"`
	Profit           float64         `json:"profit"`
	ROIPercentage    float64         `json:"roi_percentage"`
	Tier             OpportunityTier `json:"tier"`
	CreatedAt        time.Time       `json:"created_at"`
}
