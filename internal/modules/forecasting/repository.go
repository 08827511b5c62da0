package forecasting

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

// Run is one stored forecast run.
type Run struct {
	RunID     string               `json:"run_id"`
	Level     domain.ForecastLevel `json:"level"`
	Horizon   domain.Horizon       `json:"horizon"`
	Forecasts int                  `json:"forecasts"`
	CreatedAt time.Time            `json:"created_at"`
}

// Repository stores forecasts and accuracy rows in ledger.db. Both tables are append-only.
type Repository struct {
	ledgerDB *sql.DB
	log      zerolog.Logger
}

// forecastColumns must match scanForecast.
const forecastColumns = `id, run_id, level, subject_id, horizon, target_start, target_end, predicted_units,
	lower_bound, upper_bound, predicted_revenue, method, fallback, confidence, periods_used, generated_at`

// accuracyColumns must match scanAccuracy.
const accuracyColumns = `id, forecast_id, run_id, method, actual_value, forecast_value, absolute_error,
	ape, squared_error, scored_at`

// NewRepository creates a new forecast repository
func NewRepository(ledgerDB *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		ledgerDB: ledgerDB,
		log:      log.With().Str("repo", "forecasts").Logger(),
	}
}

// SaveRun writes the run row and its forecasts in one transaction.
func (r *Repository) SaveRun(ctx context.Context, run Run, forecasts []domain.SalesForecast) error {
	return database.WithTransactionContext(ctx, r.ledgerDB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO forecast_runs (run_id, level, horizon, forecasts, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, run.RunID, string(run.Level), string(run.Horizon), run.Forecasts, run.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert forecast run: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, "INSERT INTO sales_forecasts ("+forecastColumns+
			") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare forecast insert: %w", err)
		}
		defer stmt.Close()

		for _, f := range forecasts {
			if _, err := stmt.ExecContext(ctx,
				f.ID, run.RunID, string(f.Level), f.SubjectID, string(f.Horizon),
				f.TargetStart.Unix(), f.TargetEnd.Unix(), f.PredictedUnits, f.LowerBound, f.UpperBound,
				f.PredictedRevenue, string(f.Method), database.BoolInt(f.Fallback), f.Confidence,
				f.PeriodsUsed, f.GeneratedAt.Unix(),
			); err != nil {
				return fmt.Errorf("failed to insert forecast for %s %d: %w", f.Level, f.SubjectID, err)
			}
		}
		return nil
	})
}

// GetRun returns the run, or nil when it does not exist.
func (r *Repository) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		run            Run
		level, horizon string
		created        int64
	)
	err := r.ledgerDB.QueryRowContext(ctx, `
		SELECT run_id, level, horizon, forecasts, created_at FROM forecast_runs WHERE run_id = ?
	`, runID).Scan(&run.RunID, &level, &horizon, &run.Forecasts, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get forecast run %s: %w", runID, err)
	}
	run.Level = domain.ForecastLevel(level)
	run.Horizon = domain.Horizon(horizon)
	run.CreatedAt = database.FromUnix(created)
	return &run, nil
}

// ListByRun returns the run's forecasts ordered by subject.
func (r *Repository) ListByRun(ctx context.Context, runID string) ([]domain.SalesForecast, error) {
	rows, err := r.ledgerDB.QueryContext(ctx,
		"SELECT "+forecastColumns+" FROM sales_forecasts WHERE run_id = ? ORDER BY subject_id", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list forecasts for run %s: %w", runID, err)
	}
	defer rows.Close()
	return scanForecasts(rows)
}

// ListElapsedUnscored returns forecasts whose target period ended at or before
// now and that have no accuracy row yet, oldest first.
func (r *Repository) ListElapsedUnscored(ctx context.Context, now time.Time, limit int) ([]domain.SalesForecast, error) {
	query := `
		SELECT f.id, f.run_id, f.level, f.subject_id, f.horizon, f.target_start, f.target_end, f.predicted_units,
			f.lower_bound, f.upper_bound, f.predicted_revenue, f.method, f.fallback, f.confidence,
			f.periods_used, f.generated_at
		FROM sales_forecasts f
		LEFT JOIN forecast_accuracy a ON a.forecast_id = f.id
		WHERE a.id IS NULL AND f.target_end <= ?
		ORDER BY f.target_end ASC, f.id ASC`
	args := []interface{}{now.Unix()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.ledgerDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list elapsed forecasts: %w", err)
	}
	defer rows.Close()
	return scanForecasts(rows)
}

// InsertAccuracy stores acc unless the forecast was already scored. It reports
// whether a row was written; an existing row is never touched.
func (r *Repository) InsertAccuracy(ctx context.Context, acc domain.ForecastAccuracy) (bool, error) {
	result, err := r.ledgerDB.ExecContext(ctx, `
		INSERT INTO forecast_accuracy
		(forecast_id, run_id, method, actual_value, forecast_value, absolute_error, ape, squared_error, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(forecast_id) DO NOTHING
	`, acc.ForecastID, acc.RunID, string(acc.Method), acc.ActualValue, acc.ForecastValue, acc.AbsoluteError,
		database.NullFloat64(acc.APE), acc.SquaredError, acc.ScoredAt.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to insert accuracy for forecast %s: %w", acc.ForecastID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// GetAccuracy returns the accuracy row of a forecast, or nil when it has not been scored.
func (r *Repository) GetAccuracy(ctx context.Context, forecastID string) (*domain.ForecastAccuracy, error) {
	row := r.ledgerDB.QueryRowContext(ctx,
		"SELECT "+accuracyColumns+" FROM forecast_accuracy WHERE forecast_id = ?", forecastID)
	acc, err := scanAccuracy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get accuracy for forecast %s: %w", forecastID, err)
	}
	return acc, nil
}

// ListAccuracyByRun returns every accuracy row of a run.
func (r *Repository) ListAccuracyByRun(ctx context.Context, runID string) ([]domain.ForecastAccuracy, error) {
	rows, err := r.ledgerDB.QueryContext(ctx,
		"SELECT "+accuracyColumns+" FROM forecast_accuracy WHERE run_id = ? ORDER BY id", runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accuracy for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []domain.ForecastAccuracy
	for rows.Next() {
		acc, err := scanAccuracy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan accuracy: %w", err)
		}
		out = append(out, *acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accuracy rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanForecasts(rows *sql.Rows) ([]domain.SalesForecast, error) {
	var out []domain.SalesForecast
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forecast: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forecasts: %w", err)
	}
	return out, nil
}

func scanForecast(s scanner) (*domain.SalesForecast, error) {
	var (
		f                      domain.SalesForecast
		level, horizon, method string
		start, end, generated  int64
		fallback               int
	)
	if err := s.Scan(&f.ID, &f.RunID, &level, &f.SubjectID, &horizon, &start, &end, &f.PredictedUnits,
		&f.LowerBound, &f.UpperBound, &f.PredictedRevenue, &method, &fallback, &f.Confidence,
		&f.PeriodsUsed, &generated); err != nil {
		return nil, err
	}
	f.Level = domain.ForecastLevel(level)
	f.Horizon = domain.Horizon(horizon)
	f.Method = domain.ForecastMethod(method)
	f.Fallback = fallback != 0
	f.TargetStart = database.FromUnix(start)
	f.TargetEnd = database.FromUnix(end)
	f.GeneratedAt = database.FromUnix(generated)
	return &f, nil
}

func scanAccuracy(s scanner) (*domain.ForecastAccuracy, error) {
	var (
		acc    domain.ForecastAccuracy
		method string
		ape    sql.NullFloat64
		scored int64
	)
	if err := s.Scan(&acc.ID, &acc.ForecastID, &acc.RunID, &method, &acc.ActualValue, &acc.ForecastValue,
		&acc.AbsoluteError, &ape, &acc.SquaredError, &scored); err != nil {
		return nil, err
	}
	acc.Method = domain.ForecastMethod(method)
	acc.APE = database.Float64Ptr(ape)
	acc.ScoredAt = database.FromUnix(scored)
	return &acc, nil
}
