package forecasting

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/reseller/internal/domain"
	testingpkg "github.com/aristath/reseller/internal/testing"
)

func newForecastFixture(runID string, subject int64, target time.Time) domain.SalesForecast {
	return domain.SalesForecast{
		ID:               uuid.New().String(),
		RunID:            runID,
		Level:            domain.LevelProduct,
		SubjectID:        subject,
		Horizon:          domain.HorizonDaily,
		TargetStart:      target,
		TargetEnd:        target.Add(24 * time.Hour),
		PredictedUnits:   4,
		LowerBound:       2,
		UpperBound:       6,
		PredictedRevenue: 40,
		Method:           domain.MethodEnsemble,
		Confidence:       0.8,
		PeriodsUsed:      14,
		GeneratedAt:      testingpkg.FixedNow,
	}
}

func newRepo(t *testing.T) *Repository {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)
	return NewRepository(db.Conn(), zerolog.Nop())
}

func TestRepository_SaveRunRoundTrip(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	run := Run{RunID: "run-1", Level: domain.LevelProduct, Horizon: domain.HorizonDaily, Forecasts: 2, CreatedAt: testingpkg.FixedNow}
	f1 := newForecastFixture("run-1", 2, today)
	f2 := newForecastFixture("run-1", 1, today)
	f2.Fallback = true
	require.NoError(t, repo.SaveRun(ctx, run, []domain.SalesForecast{f1, f2}))

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, *got)

	missing, err := repo.GetRun(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, err := repo.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, f2, list[0])
	assert.Equal(t, f1, list[1])
}

func TestRepository_SaveRunIsAtomic(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	f := newForecastFixture("run-1", 1, today)
	run := Run{RunID: "run-1", Level: domain.LevelProduct, Horizon: domain.HorizonDaily, Forecasts: 2, CreatedAt: testingpkg.FixedNow}
	// Duplicate primary key fails the second insert.
	err := repo.SaveRun(ctx, run, []domain.SalesForecast{f, f})
	require.Error(t, err)

	got, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_ElapsedUnscored(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	past := newForecastFixture("run-1", 1, today.AddDate(0, 0, -2))
	open := newForecastFixture("run-1", 2, today)
	run := Run{RunID: "run-1", Level: domain.LevelProduct, Horizon: domain.HorizonDaily, Forecasts: 2, CreatedAt: testingpkg.FixedNow}
	require.NoError(t, repo.SaveRun(ctx, run, []domain.SalesForecast{past, open}))

	elapsed, err := repo.ListElapsedUnscored(ctx, today, 0)
	require.NoError(t, err)
	require.Len(t, elapsed, 1)
	assert.Equal(t, past.ID, elapsed[0].ID)

	inserted, err := repo.InsertAccuracy(ctx, Score(past, 3, today))
	require.NoError(t, err)
	assert.True(t, inserted)

	elapsed, err = repo.ListElapsedUnscored(ctx, today, 0)
	require.NoError(t, err)
	assert.Empty(t, elapsed)
}

func TestRepository_InsertAccuracyOncePerForecast(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	f := newForecastFixture("run-1", 1, today.AddDate(0, 0, -1))
	run := Run{RunID: "run-1", Level: domain.LevelProduct, Horizon: domain.HorizonDaily, Forecasts: 1, CreatedAt: testingpkg.FixedNow}
	require.NoError(t, repo.SaveRun(ctx, run, []domain.SalesForecast{f}))

	inserted, err := repo.InsertAccuracy(ctx, Score(f, 5, today))
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = repo.InsertAccuracy(ctx, Score(f, 50, today.Add(time.Hour)))
	require.NoError(t, err)
	assert.False(t, inserted)

	acc, err := repo.GetAccuracy(ctx, f.ID)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, 5.0, acc.ActualValue)
	assert.Equal(t, today, acc.ScoredAt)
}

func TestRepository_AccuracyIsAppendOnly(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	defer cleanup()
	repo := NewRepository(db.Conn(), zerolog.Nop())
	ctx := context.Background()

	f := newForecastFixture("run-1", 1, today.AddDate(0, 0, -1))
	run := Run{RunID: "run-1", Level: domain.LevelProduct, Horizon: domain.HorizonDaily, Forecasts: 1, CreatedAt: testingpkg.FixedNow}
	require.NoError(t, repo.SaveRun(ctx, run, []domain.SalesForecast{f}))
	_, err := repo.InsertAccuracy(ctx, Score(f, 5, today))
	require.NoError(t, err)

	_, err = db.Conn().Exec("UPDATE forecast_accuracy SET actual_value = 1")
	assert.Error(t, err)
	_, err = db.Conn().Exec("DELETE FROM forecast_accuracy")
	assert.Error(t, err)
	_, err = db.Conn().Exec("UPDATE sales_forecasts SET predicted_units = 1")
	assert.Error(t, err)
}
