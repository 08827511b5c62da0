package forecasting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/events"
	"github.com/aristath/reseller/internal/metrics"
)

type recordingExporter struct {
	exported []domain.RunMetrics
	err      error
}

func (r *recordingExporter) ExportRunMetrics(ctx context.Context, m domain.RunMetrics) error {
	r.exported = append(r.exported, m)
	return r.err
}

type scorerHarness struct {
	engine   *Engine
	scorer   *Scorer
	repo     *Repository
	sales    *fakeSales
	exporter *recordingExporter
	bus      *events.Bus
}

func newScorerHarness(t *testing.T) *scorerHarness {
	t.Helper()
	sales := newFakeSales()
	engine, repo, bus := newEngine(t, sales)
	exporter := &recordingExporter{}
	scorer := NewScorer(repo, sales, exporter, bus, metrics.New(), zerolog.Nop())
	return &scorerHarness{engine: engine, scorer: scorer, repo: repo, sales: sales, exporter: exporter, bus: bus}
}

func TestScoreElapsed_CreatesOneRowPerForecast(t *testing.T) {
	h := newScorerHarness(t)
	h.sales.daily(1, today, 14, 4, 10)

	f, err := h.engine.Forecast(context.Background(), 1, domain.HorizonDaily)
	require.NoError(t, err)
	require.InDelta(t, 4.0, f.PredictedUnits, 0.01)

	// Realized: 5 units on the target day.
	h.sales.points[1] = append(h.sales.points[1], domain.SalesPoint{Day: today, Units: 5, Revenue: 50})

	sub := h.bus.Subscribe(4, events.AccuracyScored)
	defer sub.Close()

	scoredAt := today.Add(25 * time.Hour)
	report, err := h.scorer.ScoreElapsed(context.Background(), scoredAt)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scored)
	assert.Equal(t, []string{f.RunID}, report.RunIDs)
	assert.Len(t, sub.C, 1)

	acc, err := h.repo.GetAccuracy(context.Background(), f.ID)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, 5.0, acc.ActualValue)
	assert.InDelta(t, 4.0, acc.ForecastValue, 0.01)
	assert.InDelta(t, 1.0, acc.AbsoluteError, 0.01)
	require.NotNil(t, acc.APE)
	assert.InDelta(t, 20.0, *acc.APE, 0.1)
	assert.InDelta(t, 1.0, acc.SquaredError, 0.01)

	require.Len(t, h.exporter.exported, 1)
	assert.Equal(t, f.RunID, h.exporter.exported[0].RunID)
	assert.Equal(t, 1, h.exporter.exported[0].RecordsEvaluated)
}

func TestScoreElapsed_SecondCallIsNoop(t *testing.T) {
	h := newScorerHarness(t)
	h.sales.daily(1, today, 14, 2, 10)

	f, err := h.engine.Forecast(context.Background(), 1, domain.HorizonDaily)
	require.NoError(t, err)

	first, err := h.scorer.ScoreElapsed(context.Background(), f.TargetEnd)
	require.NoError(t, err)
	require.Equal(t, 1, first.Scored)
	before, err := h.repo.GetAccuracy(context.Background(), f.ID)
	require.NoError(t, err)

	// New sales on the target day must not rewrite the stored row.
	h.sales.points[1] = append(h.sales.points[1], domain.SalesPoint{Day: today, Units: 9})

	second, err := h.scorer.ScoreElapsed(context.Background(), f.TargetEnd.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, second.Scored)

	after, err := h.repo.GetAccuracy(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	rows, err := h.repo.ListAccuracyByRun(context.Background(), f.RunID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestScoreElapsed_SkipsOpenPeriods(t *testing.T) {
	h := newScorerHarness(t)
	f, err := h.engine.Forecast(context.Background(), 1, domain.HorizonWeekly)
	require.NoError(t, err)

	report, err := h.scorer.ScoreElapsed(context.Background(), f.TargetEnd.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scored)
	assert.Empty(t, h.exporter.exported)
}

func TestScoreElapsed_ZeroActualHasNoAPE(t *testing.T) {
	h := newScorerHarness(t)
	h.sales.daily(1, today, 14, 3, 10)
	f, err := h.engine.Forecast(context.Background(), 1, domain.HorizonDaily)
	require.NoError(t, err)

	_, err = h.scorer.ScoreElapsed(context.Background(), f.TargetEnd)
	require.NoError(t, err)

	acc, err := h.repo.GetAccuracy(context.Background(), f.ID)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, 0.0, acc.ActualValue)
	assert.Nil(t, acc.APE)
}

func TestScoreElapsed_ExportFailureIsNotFatal(t *testing.T) {
	h := newScorerHarness(t)
	h.exporter.err = errors.New("bucket not found")
	f, err := h.engine.Forecast(context.Background(), 1, domain.HorizonDaily)
	require.NoError(t, err)

	report, err := h.scorer.ScoreElapsed(context.Background(), f.TargetEnd)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scored)
	assert.Len(t, report.Metrics, 1)
}

func TestRunMetrics_UnknownRun(t *testing.T) {
	h := newScorerHarness(t)
	_, err := h.scorer.RunMetrics(context.Background(), "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestComputeRunMetrics(t *testing.T) {
	rows := []domain.ForecastAccuracy{
		Score(domain.SalesForecast{ID: "a", PredictedUnits: 10}, 8, today),
		Score(domain.SalesForecast{ID: "b", PredictedUnits: 5}, 5, today),
		Score(domain.SalesForecast{ID: "c", PredictedUnits: 3}, 0, today),
	}

	m := ComputeRunMetrics("run-1", rows)
	assert.Equal(t, "run-1", m.RunID)
	assert.Equal(t, 3, m.RecordsEvaluated)
	assert.InDelta(t, 12.5, m.MAPE, 0.01)
	assert.InDelta(t, 2.0817, m.RMSE, 0.001)
	assert.InDelta(t, 1.6667, m.MAE, 0.001)
	assert.InDelta(t, 1.6667, m.Bias, 0.001)
	assert.InDelta(t, 0.602, m.R2, 0.001)

	empty := ComputeRunMetrics("run-2", nil)
	assert.Equal(t, 0, empty.RecordsEvaluated)
	assert.Equal(t, 0.0, empty.RMSE)
}
