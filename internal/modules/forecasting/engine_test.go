package forecasting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/events"
	"github.com/aristath/reseller/internal/metrics"
	testingpkg "github.com/aristath/reseller/internal/testing"
)

// fakeSales serves in-memory daily points per subject.
type fakeSales struct {
	points map[int64][]domain.SalesPoint
	err    error
}

func newFakeSales() *fakeSales {
	return &fakeSales{points: make(map[int64][]domain.SalesPoint)}
}

// daily adds units per day for days days ending before end.
func (f *fakeSales) daily(subject int64, end time.Time, days int, units, unitPrice float64) {
	for d := days; d >= 1; d-- {
		f.points[subject] = append(f.points[subject], domain.SalesPoint{
			Day:     end.AddDate(0, 0, -d),
			Units:   units,
			Revenue: units * unitPrice,
		})
	}
}

func (f *fakeSales) Series(ctx context.Context, level domain.ForecastLevel, subjectID int64, from, to time.Time) ([]domain.SalesPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.SalesPoint
	for _, p := range f.points[subjectID] {
		if !p.Day.Before(from) && p.Day.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeSales) Subjects(ctx context.Context, level domain.ForecastLevel, since time.Time) ([]int64, error) {
	var ids []int64
	for id := range f.points {
		ids = append(ids, id)
	}
	return ids, nil
}

var today = testingpkg.FixedNow.Truncate(24 * time.Hour)

func testForecastConfig() config.ForecastConfig {
	return config.ForecastConfig{MinHistoryPeriods: 2, LookbackMultiplier: 4}
}

func newEngine(t *testing.T, sales *fakeSales) (*Engine, *Repository, *events.Bus) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)

	repo := NewRepository(db.Conn(), zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())
	engine := NewEngine(sales, repo, bus, metrics.New(), testForecastConfig(), zerolog.Nop()).
		WithClock(func() time.Time { return testingpkg.FixedNow })
	return engine, repo, bus
}

func TestForecast_SteadyHistory(t *testing.T) {
	sales := newFakeSales()
	sales.daily(10, today, 56, 1, 10)
	engine, _, _ := newEngine(t, sales)

	f, err := engine.Forecast(context.Background(), 10, domain.HorizonWeekly)
	require.NoError(t, err)

	assert.Equal(t, domain.MethodEnsemble, f.Method)
	assert.False(t, f.Fallback)
	assert.Equal(t, 8, f.PeriodsUsed)
	assert.InDelta(t, 7.0, f.PredictedUnits, 0.01)
	assert.InDelta(t, 70.0, f.PredictedRevenue, 0.01)
	assert.Equal(t, today, f.TargetStart)
	assert.Equal(t, today.AddDate(0, 0, 7), f.TargetEnd)
	assert.LessOrEqual(t, f.LowerBound, f.PredictedUnits)
	assert.GreaterOrEqual(t, f.UpperBound, f.PredictedUnits)
	assert.Greater(t, f.Confidence, fallbackConfidence)
	assert.NotEmpty(t, f.ID)
	assert.NotEmpty(t, f.RunID)
}

func TestForecast_ShortHistoryFallsBack(t *testing.T) {
	sales := newFakeSales()
	sales.daily(10, today, 7, 1, 10)
	engine, _, _ := newEngine(t, sales)

	f, err := engine.Forecast(context.Background(), 10, domain.HorizonWeekly)
	require.NoError(t, err)

	assert.Equal(t, domain.MethodMovingAverage, f.Method)
	assert.True(t, f.Fallback)
	assert.Equal(t, 1, f.PeriodsUsed)
	assert.Equal(t, fallbackConfidence, f.Confidence)
	assert.InDelta(t, 7.0, f.PredictedUnits, 0.01)
}

func TestForecast_NoHistory(t *testing.T) {
	engine, _, _ := newEngine(t, newFakeSales())

	f, err := engine.Forecast(context.Background(), 99, domain.HorizonDaily)
	require.NoError(t, err)

	assert.True(t, f.Fallback)
	assert.Equal(t, 0, f.PeriodsUsed)
	assert.Equal(t, 0.0, f.PredictedUnits)
	assert.Equal(t, noHistoryConfidence, f.Confidence)
}

func TestForecast_ExplicitMethodThatCannotFit(t *testing.T) {
	sales := newFakeSales()
	// Two weekly buckets: enough history, too short for a regression.
	sales.daily(10, today, 14, 2, 5)
	engine, _, _ := newEngine(t, sales)

	report, err := engine.Generate(context.Background(), Request{
		Level:    domain.LevelProduct,
		Horizon:  domain.HorizonWeekly,
		Subjects: []int64{10},
		Method:   domain.MethodLinearTrend,
	})
	require.NoError(t, err)
	require.Len(t, report.Forecasts, 1)
	assert.Equal(t, domain.MethodMovingAverage, report.Forecasts[0].Method)
	assert.True(t, report.Forecasts[0].Fallback)
}

func TestForecast_EnsembleWithOnlyMovingAverageFallsBack(t *testing.T) {
	sales := newFakeSales()
	sales.daily(10, today, 14, 2, 5)
	engine, _, _ := newEngine(t, sales)

	f, err := engine.Forecast(context.Background(), 10, domain.HorizonWeekly)
	require.NoError(t, err)

	assert.Equal(t, domain.MethodMovingAverage, f.Method)
	assert.True(t, f.Fallback)
	assert.Equal(t, 2, f.PeriodsUsed)
	assert.Equal(t, fallbackConfidence, f.Confidence)
	assert.InDelta(t, 14.0, f.PredictedUnits, 0.01)
}

func TestForecastRun_StoresOneRun(t *testing.T) {
	sales := newFakeSales()
	sales.daily(1, today, 28, 3, 20)
	sales.daily(2, today, 28, 1, 50)
	engine, repo, bus := newEngine(t, sales)
	sub := bus.Subscribe(4, events.ForecastRun)
	defer sub.Close()

	report, err := engine.ForecastRun(context.Background(), domain.LevelBrand, domain.HorizonDaily, []int64{1, 2})
	require.NoError(t, err)
	require.Len(t, report.Forecasts, 2)

	run, err := repo.GetRun(context.Background(), report.Run.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, domain.LevelBrand, run.Level)
	assert.Equal(t, domain.HorizonDaily, run.Horizon)
	assert.Equal(t, 2, run.Forecasts)

	stored, err := repo.ListByRun(context.Background(), report.Run.RunID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, f := range stored {
		assert.Equal(t, report.Run.RunID, f.RunID)
		assert.Equal(t, domain.LevelBrand, f.Level)
	}
	assert.InDelta(t, 3.0, stored[0].PredictedUnits, 0.01)
	assert.InDelta(t, 1.0, stored[1].PredictedUnits, 0.01)

	require.Len(t, sub.C, 1)
	ev := <-sub.C
	data, ok := ev.Data.(events.ForecastRunData)
	require.True(t, ok)
	assert.Equal(t, 2, data.Forecasts)
}

func TestForecastRun_DefaultsToSubjectsWithSales(t *testing.T) {
	sales := newFakeSales()
	sales.daily(7, today, 10, 1, 10)
	engine, _, _ := newEngine(t, sales)

	report, err := engine.ForecastRun(context.Background(), domain.LevelProduct, domain.HorizonDaily, nil)
	require.NoError(t, err)
	require.Len(t, report.Forecasts, 1)
	assert.Equal(t, int64(7), report.Forecasts[0].SubjectID)

	empty, _, _ := newEngine(t, newFakeSales())
	_, err = empty.ForecastRun(context.Background(), domain.LevelProduct, domain.HorizonDaily, nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestForecast_Validation(t *testing.T) {
	engine, _, _ := newEngine(t, newFakeSales())

	_, err := engine.Forecast(context.Background(), 1, domain.Horizon("yearly"))
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = engine.Forecast(context.Background(), 0, domain.HorizonDaily)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = engine.Generate(context.Background(), Request{Horizon: domain.HorizonDaily, Method: "arima"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestForecast_ReaderErrorAbortsRun(t *testing.T) {
	sales := newFakeSales()
	sales.err = errors.New("catalog locked")
	engine, _, _ := newEngine(t, sales)

	_, err := engine.Forecast(context.Background(), 1, domain.HorizonDaily)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog locked")
}

func TestBucketize(t *testing.T) {
	from := today.AddDate(0, 0, -14)
	points := []domain.SalesPoint{
		{Day: from, Units: 1, Revenue: 10},
		{Day: from.AddDate(0, 0, 6), Units: 2, Revenue: 20},
		{Day: from.AddDate(0, 0, 7), Units: 4, Revenue: 40},
		{Day: from.AddDate(0, 0, 14), Units: 100, Revenue: 1000},
	}
	units, revenue := bucketize(points, from, domain.HorizonWeekly, 2)
	assert.Equal(t, []float64{3, 4}, units)
	assert.Equal(t, []float64{30, 40}, revenue)
}

func TestRun_LoadsStoredRun(t *testing.T) {
	sales := newFakeSales()
	sales.daily(4, today, 14, 1, 10)
	engine, _, _ := newEngine(t, sales)

	f, err := engine.Forecast(context.Background(), 4, domain.HorizonDaily)
	require.NoError(t, err)

	report, err := engine.Run(context.Background(), f.RunID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Run.Forecasts)
	require.Len(t, report.Forecasts, 1)
	assert.Equal(t, f.ID, report.Forecasts[0].ID)

	_, err = engine.Run(context.Background(), "unknown")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
