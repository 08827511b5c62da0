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

// PriceHistoryRepository is the append-only price ledger in ledger.db.
type PriceHistoryRepository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// priceHistoryColumns must match scanHistory.
const priceHistoryColumns = `id, item_id, price, price_type, source, confidence, rule_id, batch_id, recorded_at`

const insertPriceHistory = `
	INSERT INTO price_history
	(item_id, price, price_type, source, confidence, rule_id, batch_id, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

// NewPriceHistoryRepository creates a new price history repository
func NewPriceHistoryRepository(ledgerDB *sql.DB, log zerolog.Logger) *PriceHistoryRepository {
	return &PriceHistoryRepository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "price_history").Logger(),
	}
}

// Append records a new row. Rows are never updated.
func (r *PriceHistoryRepository) Append(ctx context.Context, row *domain.PriceHistory) error {
	return r.append(ctx, r.ledgerDB, row)
}

// AppendTx records a new row inside an existing transaction.
func (r *PriceHistoryRepository) AppendTx(ctx context.Context, tx *sql.Tx, row *domain.PriceHistory) error {
	return r.append(ctx, tx, row)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *PriceHistoryRepository) append(ctx context.Context, db execer, row *domain.PriceHistory) error {
	if row.Price <= 0 {
		return domain.NewValidationError("price", "must be positive, got %.2f", row.Price)
	}
	if row.RecordedAt.IsZero() {
		row.RecordedAt = time.Now().UTC()
	}

	result, err := db.ExecContext(ctx, insertPriceHistory,
		row.ItemID,
		row.Price,
		string(row.PriceType),
		row.Source,
		row.Confidence,
		database.NullInt64(row.RuleID),
		database.NullString(row.BatchID),
		row.RecordedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append price history for item %d: %w", row.ItemID, err)
	}
	if row.ID, err = result.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read price history id: %w", err)
	}

	r.log.Debug().
		Int64("item_id", row.ItemID).
		Str("price_type", string(row.PriceType)).
		Float64("price", row.Price).
		Msg("Price history appended")
	return nil
}

// Latest returns the newest row of priceType for the item, or nil.
func (r *PriceHistoryRepository) Latest(ctx context.Context, itemID int64, priceType domain.PriceType) (*domain.PriceHistory, error) {
	query := `
		SELECT ` + priceHistoryColumns + ` FROM price_history
		WHERE item_id = ? AND price_type = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`

	row, err := scanHistory(r.ledgerDB.QueryRowContext(ctx, query, itemID, string(priceType)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest %s price for item %d: %w", priceType, itemID, err)
	}
	return &row, nil
}

// ListByItem returns up to limit rows for the item, newest first.
func (r *PriceHistoryRepository) ListByItem(ctx context.Context, itemID int64, limit int) ([]domain.PriceHistory, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + priceHistoryColumns + ` FROM price_history
		WHERE item_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.ledgerDB.QueryContext(ctx, query, itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list price history for item %d: %w", itemID, err)
	}
	defer rows.Close()

	var history []domain.PriceHistory
	for rows.Next() {
		row, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		history = append(history, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price history: %w", err)
	}

	return history, nil
}

// RecentlyApplied returns the items with an applied price recorded at or after since.
func (r *PriceHistoryRepository) RecentlyApplied(ctx context.Context, since time.Time) (map[int64]bool, error) {
	rows, err := r.ledgerDB.QueryContext(ctx, `
		SELECT DISTINCT item_id FROM price_history
		WHERE price_type = 'applied' AND recorded_at >= ?
	`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query applied prices: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan applied item: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

func scanHistory(row rowScanner) (domain.PriceHistory, error) {
	var (
		h         domain.PriceHistory
		priceType string
		ruleID    sql.NullInt64
		batchID   sql.NullString
		recorded  int64
	)
	if err := row.Scan(&h.ID, &h.ItemID, &h.Price, &priceType, &h.Source, &h.Confidence, &ruleID, &batchID, &recorded); err != nil {
		return domain.PriceHistory{}, err
	}
	h.PriceType = domain.PriceType(priceType)
	h.RuleID = database.Int64Ptr(ruleID)
	h.BatchID = batchID.String
	h.RecordedAt = database.FromUnix(recorded)
	return h, nil
}
