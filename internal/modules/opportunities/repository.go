package opportunities

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

// Run is one reconciliation pass.
type Run struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Candidates    int       `json:"candidates"`
	Opportunities int       `json:"opportunities"`
}

// Filter narrows a run's opportunities. Zero values disable a criterion.
type Filter struct {
	Tier         domain.OpportunityTier
	ResaleSource string
	MinROI       float64
	MaxBuyPrice  float64
	Limit        int
}

// Repository stores runs and opportunities in ledger.db. Rows are append-only.
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// opportunityColumns must match scanOpportunity.
const opportunityColumns = `id, run_id, item_id, retail_source, retail_price, vat_rate, resale_source, resale_price,
	platform_fee_percent, net_purchase_price, net_proceeds, profit, roi_percentage, tier, created_at`

// NewRepository creates a new opportunities repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "opportunities").Logger(),
	}
}

// SaveRun writes the run row and all of its opportunities in one transaction.
func (r *Repository) SaveRun(ctx context.Context, run Run, opps []domain.ProfitOpportunity) error {
	return database.WithTransactionContext(ctx, r.ledgerDB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reconciliation_runs (run_id, started_at, finished_at, candidates, opportunities)
			VALUES (?, ?, ?, ?, ?)
		`, run.RunID, run.StartedAt.Unix(), run.FinishedAt.Unix(), run.Candidates, run.Opportunities)
		if err != nil {
			return fmt.Errorf("failed to insert reconciliation run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO profit_opportunities
			(run_id, item_id, retail_source, retail_price, vat_rate, resale_source, resale_price,
			 platform_fee_percent, net_purchase_price, net_proceeds, profit, roi_percentage, tier, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare opportunity insert: %w", err)
		}
		defer stmt.Close()

		for _, o := range opps {
			if _, err := stmt.ExecContext(ctx,
				run.RunID, o.ItemID, o.RetailSource, o.RetailPrice, o.VATRate, o.ResaleSource, o.ResalePrice,
				o.PlatformFee, o.NetPurchasePrice, o.NetProceeds, o.Profit, o.ROIPercentage, string(o.Tier),
				o.CreatedAt.Unix(),
			); err != nil {
				return fmt.Errorf("failed to insert opportunity for item %d: %w", o.ItemID, err)
			}
		}
		return nil
	})
}

// LatestRun returns the newest run, or nil when none exists.
func (r *Repository) LatestRun(ctx context.Context) (*Run, error) {
	var (
		run               Run
		started, finished int64
	)
	err := r.ledgerDB.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, candidates, opportunities
		FROM reconciliation_runs
		ORDER BY finished_at DESC, rowid DESC
		LIMIT 1
	`).Scan(&run.RunID, &started, &finished, &run.Candidates, &run.Opportunities)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest reconciliation run: %w", err)
	}
	run.StartedAt = database.FromUnix(started)
	run.FinishedAt = database.FromUnix(finished)
	return &run, nil
}

// ListByRun returns the run's opportunities ordered by ROI descending.
func (r *Repository) ListByRun(ctx context.Context, runID string, filter Filter) ([]domain.ProfitOpportunity, error) {
	query := "SELECT " + opportunityColumns + " FROM profit_opportunities WHERE run_id = ?"
	args := []interface{}{runID}
	if filter.Tier != "" {
		query += " AND tier = ?"
		args = append(args, string(filter.Tier))
	}
	if filter.ResaleSource != "" {
		query += " AND resale_source = ?"
		args = append(args, filter.ResaleSource)
	}
	if filter.MinROI > 0 {
		query += " AND roi_percentage >= ?"
		args = append(args, filter.MinROI)
	}
	if filter.MaxBuyPrice > 0 {
		query += " AND retail_price <= ?"
		args = append(args, filter.MaxBuyPrice)
	}
	query += " ORDER BY roi_percentage DESC, item_id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.ledgerDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities for run %s: %w", runID, err)
	}
	defer rows.Close()

	var opps []domain.ProfitOpportunity
	for rows.Next() {
		var (
			o       domain.ProfitOpportunity
			tier    string
			created int64
		)
		if err := rows.Scan(&o.ID, &o.RunID, &o.ItemID, &o.RetailSource, &o.RetailPrice, &o.VATRate,
			&o.ResaleSource, &o.ResalePrice, &o.PlatformFee, &o.NetPurchasePrice, &o.NetProceeds,
			&o.Profit, &o.ROIPercentage, &tier, &created); err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		o.Tier = domain.OpportunityTier(tier)
		o.CreatedAt = database.FromUnix(created)
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating opportunities: %w", err)
	}
	return opps, nil
}
