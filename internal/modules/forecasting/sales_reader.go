package forecasting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/database"
	"github.com/aristath/reseller/internal/domain"
)

// levelColumns maps a forecast level to its sales_transactions column.
var levelColumns = map[domain.ForecastLevel]string{
	domain.LevelProduct:  "product_id",
	domain.LevelBrand:    "brand_id",
	domain.LevelCategory: "category_id",
	domain.LevelPlatform: "platform_id",
}

// SQLSalesReader aggregates catalog.db sales_transactions into daily series.
type SQLSalesReader struct {
	catalogDB *sql.DB
	log       zerolog.Logger
}

// NewSQLSalesReader creates a sales reader over catalog.db.
func NewSQLSalesReader(catalogDB *sql.DB, log zerolog.Logger) *SQLSalesReader {
	return &SQLSalesReader{
		catalogDB: catalogDB,
		log:       log.With().Str("repo", "sales").Logger(),
	}
}

func column(level domain.ForecastLevel) (string, error) {
	col, ok := levelColumns[level]
	if !ok {
		return "", domain.NewValidationError("level", "unknown level %q", level)
	}
	return col, nil
}

// Series returns one point per UTC day with sales in [from, to).
func (r *SQLSalesReader) Series(ctx context.Context, level domain.ForecastLevel, subjectID int64, from, to time.Time) ([]domain.SalesPoint, error) {
	col, err := column(level)
	if err != nil {
		return nil, err
	}

	rows, err := r.catalogDB.QueryContext(ctx, fmt.Sprintf(`
		SELECT sold_at - (sold_at %% 86400) AS day, SUM(quantity), SUM(revenue)
		FROM sales_transactions
		WHERE %s = ? AND sold_at >= ? AND sold_at < ?
		GROUP BY day
		ORDER BY day
	`, col), subjectID, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query sales for %s %d: %w", level, subjectID, err)
	}
	defer rows.Close()

	var points []domain.SalesPoint
	for rows.Next() {
		var (
			p   domain.SalesPoint
			day int64
		)
		if err := rows.Scan(&day, &p.Units, &p.Revenue); err != nil {
			return nil, fmt.Errorf("failed to scan sales point: %w", err)
		}
		p.Day = database.FromUnix(day)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales points: %w", err)
	}
	return points, nil
}

// Subjects lists the distinct non-null ids at level with sales since the given time.
func (r *SQLSalesReader) Subjects(ctx context.Context, level domain.ForecastLevel, since time.Time) ([]int64, error) {
	col, err := column(level)
	if err != nil {
		return nil, err
	}

	rows, err := r.catalogDB.QueryContext(ctx, fmt.Sprintf(`
		SELECT DISTINCT %[1]s FROM sales_transactions
		WHERE %[1]s IS NOT NULL AND sold_at >= ?
		ORDER BY %[1]s
	`, col), since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s subjects: %w", level, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subjects: %w", err)
	}
	return ids, nil
}

// RecordSale appends one sale. Used by imports and tests.
func (r *SQLSalesReader) RecordSale(ctx context.Context, sale Sale) error {
	if sale.ProductID <= 0 {
		return domain.NewValidationError("product_id", "must be > 0")
	}
	if sale.Quantity <= 0 {
		return domain.NewValidationError("quantity", "must be > 0")
	}
	_, err := r.catalogDB.ExecContext(ctx, `
		INSERT INTO sales_transactions (item_id, product_id, brand_id, category_id, platform_id, quantity, revenue, sold_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, database.NullInt64(sale.ItemID), sale.ProductID, database.NullInt64(sale.BrandID),
		database.NullInt64(sale.CategoryID), database.NullInt64(sale.PlatformID),
		sale.Quantity, sale.Revenue, sale.SoldAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to record sale of product %d: %w", sale.ProductID, err)
	}
	return nil
}

// Sale is one realized transaction.
type Sale struct {
	ItemID     *int64    `json:"item_id,omitempty"`
	ProductID  int64     `json:"product_id"`
	BrandID    *int64    `json:"brand_id,omitempty"`
	CategoryID *int64    `json:"category_id,omitempty"`
	PlatformID *int64    `json:"platform_id,omitempty"`
	Quantity   float64   `json:"quantity"`
	Revenue    float64   `json:"revenue"`
	SoldAt     time.Time `json:"sold_at"`
}
