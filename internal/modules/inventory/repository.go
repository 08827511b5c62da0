// Package inventory reads and updates the inventory items the pricing core prices.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/database"
	"github.com/aristath/reseller/internal/domain"
)

// Repository handles inventory_items in catalog.db.
type Repository struct {
	catalogDB *sql.DB
	now       func() time.Time
	log       zerolog.Logger
}

// itemColumns must match scanItem.
const itemColumns = `id, product_id, sku, brand_id, category_id, platform_id, platform, net_cost, condition, status, listed_price, updated_at`

// NewRepository creates a new inventory repository
func NewRepository(catalogDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		catalogDB: catalogDB,
		now:       time.Now,
		log:       log.With().Str("repo", "inventory").Logger(),
	}
}

// Create inserts a new item.
func (r *Repository) Create(ctx context.Context, item *domain.Item) error {
	if item.NetCost <= 0 {
		return domain.NewValidationError("net_cost", "must be positive, got %.2f", item.NetCost)
	}
	if item.Condition == "" {
		item.Condition = domain.ConditionNew
	}
	if !domain.IsKnownCondition(item.Condition) {
		return domain.NewValidationError("condition", "unknown condition %q", item.Condition)
	}
	if item.Status == "" {
		item.Status = domain.ItemInStock
	}
	item.UpdatedAt = r.now().UTC().Truncate(time.Second)

	result, err := r.catalogDB.ExecContext(ctx, `
		INSERT INTO inventory_items
		(product_id, sku, brand_id, category_id, platform_id, platform, net_cost, condition, status, listed_price, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ProductID,
		database.NullString(item.SKU),
		database.NullInt64(item.BrandID),
		database.NullInt64(item.CategoryID),
		database.NullInt64(item.PlatformID),
		database.NullString(item.Platform),
		item.NetCost,
		string(item.Condition),
		string(item.Status),
		database.NullFloat64(item.ListedPrice),
		item.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	if item.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read item id: %w", err)
	}
	return nil
}

// GetByID returns nil, nil if the item does not exist.
func (r *Repository) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	row := r.catalogDB.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM inventory_items WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %d: %w", id, err)
	}
	return &item, nil
}

// List returns every item ordered by ID.
func (r *Repository) List(ctx context.Context) ([]domain.Item, error) {
	return r.list(ctx, "SELECT "+itemColumns+" FROM inventory_items ORDER BY id")
}

// ListActive returns items that are not sold.
func (r *Repository) ListActive(ctx context.Context) ([]domain.Item, error) {
	return r.list(ctx, "SELECT "+itemColumns+" FROM inventory_items WHERE status != 'sold' ORDER BY id")
}

// ListRepriceable returns listed or in-stock items. When ids is non-empty only those
// items are considered; sold items are always excluded.
func (r *Repository) ListRepriceable(ctx context.Context, ids []int64) ([]domain.Item, error) {
	query := "SELECT " + itemColumns + " FROM inventory_items WHERE status IN ('listed', 'in_stock')"
	args := make([]interface{}, 0, len(ids))
	if len(ids) > 0 {
		query += " AND id IN (" + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	return r.list(ctx, query+" ORDER BY id", args...)
}

// UpdateListedPrice sets the item's listed price and marks it listed.
func (r *Repository) UpdateListedPrice(ctx context.Context, itemID int64, price float64) error {
	if price <= 0 {
		return domain.NewValidationError("listed_price", "must be positive, got %.2f", price)
	}
	result, err := r.catalogDB.ExecContext(ctx, `
		UPDATE inventory_items SET listed_price = ?, status = 'listed', updated_at = ?
		WHERE id = ? AND status != 'sold'
	`, price, r.now().Unix(), itemID)
	if err != nil {
		return fmt.Errorf("failed to update listed price for item %d: %w", itemID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return domain.NotFoundError{Entity: "listed item", Key: itemID}
	}

	r.log.Debug().Int64("item_id", itemID).Float64("price", price).Msg("Listed price updated")
	return nil
}

func (r *Repository) list(ctx context.Context, query string, args ...interface{}) ([]domain.Item, error) {
	rows, err := r.catalogDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (domain.Item, error) {
	var (
		item                            domain.Item
		sku, platformName               sql.NullString
		brandID, categoryID, platformID sql.NullInt64
		listed                          sql.NullFloat64
		condition, status               string
		updated                         int64
	)
	err := row.Scan(&item.ID, &item.ProductID, &sku, &brandID, &categoryID, &platformID, &platformName,
		&item.NetCost, &condition, &status, &listed, &updated)
	if err != nil {
		return item, err
	}

	item.SKU = sku.String
	item.BrandID = database.Int64Ptr(brandID)
	item.CategoryID = database.Int64Ptr(categoryID)
	item.PlatformID = database.Int64Ptr(platformID)
	item.Platform = platformName.String
	item.Condition = domain.ConditionLabel(condition)
	item.Status = domain.ItemStatus(status)
	item.ListedPrice = database.Float64Ptr(listed)
	item.UpdatedAt = database.FromUnix(updated)
	return item, nil
}
