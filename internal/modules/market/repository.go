package market

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/database"
	"github.com/aristath/reseller/internal/domain"
)

// PriceRepository stores market price observations in ledger.db. Rows are append-only.
type PriceRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// marketPriceColumns must match scanMarketPrice.
const marketPriceColumns = `id, item_id, source, external_id, price_type, price, currency, vat_rate, in_stock, observed_at`

// NewPriceRepository creates a new market price repository
func NewPriceRepository(ledgerDB *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "market_price").Logger(),
	}
}

// Record appends an observation. Re-recording the same (item, source, external id,
// observed_at) is a no-op. Returns whether a row was inserted.
func (r *PriceRepository) Record(ctx context.Context, obs *domain.MarketPrice) (bool, error) {
	if obs.Price <= 0 {
		return false, domain.NewValidationError("price", "must be positive, got %.2f", obs.Price)
	}
	if obs.Source == "" {
		return false, domain.NewValidationError("source", "is required")
	}
	if obs.PriceType != domain.ObservationRetail && obs.PriceType != domain.ObservationResale {
		return false, domain.NewValidationError("price_type", "must be retail or resale")
	}
	if obs.Currency == "" {
		obs.Currency = "EUR"
	}

	result, err := r.ledgerDB.ExecContext(ctx, `
		INSERT OR IGNORE INTO market_prices
		(item_id, source, external_id, price_type, price, currency, vat_rate, in_stock, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		obs.ItemID,
		obs.Source,
		obs.ExternalID,
		string(obs.PriceType),
		obs.Price,
		obs.Currency,
		database.NullFloat64(obs.VATRate),
		database.BoolInt(obs.InStock),
		obs.ObservedAt.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record market price for item %d: %w", obs.ItemID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}
	if obs.ID, err = result.LastInsertId(); err != nil {
		return false, fmt.Errorf("failed to read market price id: %w", err)
	}
	return true, nil
}

// latestPerSource picks the newest row per (item, source, price_type).
const latestPerSource = `
	SELECT ` + marketPriceColumns + ` FROM market_prices mp
	WHERE mp.id = (
		SELECT m2.id FROM market_prices m2
		WHERE m2.item_id = mp.item_id AND m2.source = mp.source AND m2.price_type = mp.price_type
		ORDER BY m2.observed_at DESC, m2.id DESC
		LIMIT 1
	)
`

// LatestByItem returns the newest observation of priceType per source for the item.
// An empty priceType returns both types.
func (r *PriceRepository) LatestByItem(ctx context.Context, itemID int64, priceType domain.ObservationType) ([]domain.MarketPrice, error) {
	query := latestPerSource + " AND mp.item_id = ?"
	args := []interface{}{itemID}
	if priceType != "" {
		query += " AND mp.price_type = ?"
		args = append(args, string(priceType))
	}
	query += " ORDER BY mp.source"
	return r.list(ctx, query, args...)
}

// LatestAll returns the newest observation per (item, source, price_type) across all items.
func (r *PriceRepository) LatestAll(ctx context.Context) ([]domain.MarketPrice, error) {
	return r.list(ctx, latestPerSource+" ORDER BY mp.item_id, mp.source")
}

// RecentAsks returns up to n of the newest resale prices for the item, oldest first.
func (r *PriceRepository) RecentAsks(ctx context.Context, itemID int64, n int) ([]float64, error) {
	rows, err := r.ledgerDB.QueryContext(ctx, `
		SELECT price FROM (
			SELECT price, observed_at, id FROM market_prices
			WHERE item_id = ? AND price_type = 'resale'
			ORDER BY observed_at DESC, id DESC
			LIMIT ?
		) ORDER BY observed_at ASC, id ASC
	`, itemID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent asks for item %d: %w", itemID, err)
	}
	defer rows.Close()

	var asks []float64
	for rows.Next() {
		var price float64
		if err := rows.Scan(&price); err != nil {
			return nil, fmt.Errorf("failed to scan ask: %w", err)
		}
		asks = append(asks, price)
	}
	return asks, rows.Err()
}

func (r *PriceRepository) list(ctx context.Context, query string, args ...interface{}) ([]domain.MarketPrice, error) {
	rows, err := r.ledgerDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query market prices: %w", err)
	}
	defer rows.Close()

	var prices []domain.MarketPrice
	for rows.Next() {
		var (
			p         domain.MarketPrice
			priceType string
			vat       sql.NullFloat64
			inStock   int
			observed  int64
		)
		if err := rows.Scan(&p.ID, &p.ItemID, &p.Source, &p.ExternalID, &priceType, &p.Price, &p.Currency, &vat, &inStock, &observed); err != nil {
			return nil, fmt.Errorf("failed to scan market price: %w", err)
		}
		p.PriceType = domain.ObservationType(priceType)
		p.VATRate = database.Float64Ptr(vat)
		p.InStock = inStock != 0
		p.ObservedAt = database.FromUnix(observed)
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating market prices: %w", err)
	}
	return prices, nil
}
