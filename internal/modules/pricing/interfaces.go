package pricing

import (
	"context"
	"time"

	"github.com/aristath/reseller/internal/domain"
)

// RuleSource supplies the active rules the resolver chooses from.
type RuleSource interface {
	ListActive(ctx context.Context, now time.Time) ([]domain.PriceRule, error)
}

// BrandMultiplierSource looks up the multiplier in effect for a brand.
type BrandMultiplierSource interface {
	GetActive(ctx context.Context, brandID int64, now time.Time) (*domain.BrandMultiplier, error)
}

// HistoryReader reads the latest price of a type for an item.
type HistoryReader interface {
	Latest(ctx context.Context, itemID int64, priceType domain.PriceType) (*domain.PriceHistory, error)
}

// MarketData supplies competitor observations for an item.
// Stale reports whether the observations came from the fallback cache.
type MarketData interface {
	Observations(ctx context.Context, item domain.Item) (observations []domain.MarketPrice, stale bool, err error)
}

// ItemLookup resolves inventory items by ID.
type ItemLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Item, error)
}

// AskHistory returns the most recent resale asks for an item, oldest first.
type AskHistory interface {
	RecentAsks(ctx context.Context, itemID int64, n int) ([]float64, error)
}
