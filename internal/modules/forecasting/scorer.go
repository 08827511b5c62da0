package forecasting

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/events"
	"github.com/aristath/reseller/internal/metrics"
	"github.com/aristath/reseller/internal/utils"
)

// scoreBatchSize bounds one ScoreElapsed pass.
const scoreBatchSize = 500

// ScoreReport is the outcome of one scoring pass.
type ScoreReport struct {
	Scored  int                 `json:"scored"`
	Failed  int                 `json:"failed"`
	RunIDs  []string            `json:"run_ids"`
	Metrics []domain.RunMetrics `json:"metrics"`
}

// Scorer compares elapsed forecasts with realized sales.
type Scorer struct {
	store    ForecastStore
	sales    SalesHistoryReader
	exporter MetricsExporter
	events   EventEmitter
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// NewScorer creates a scorer. exporter, emitter and m may be nil.
func NewScorer(store ForecastStore, sales SalesHistoryReader, exporter MetricsExporter, emitter EventEmitter, m *metrics.Metrics, log zerolog.Logger) *Scorer {
	return &Scorer{
		store:    store,
		sales:    sales,
		exporter: exporter,
		events:   emitter,
		metrics:  m,
		log:      log.With().Str("module", "forecast_accuracy").Logger(),
	}
}

// ScoreElapsed writes exactly one accuracy row for every forecast whose target
// period ended at or before now. Forecasts scored by an earlier pass are
// neither duplicated nor modified.
func (s *Scorer) ScoreElapsed(ctx context.Context, now time.Time) (*ScoreReport, error) {
	defer utils.OperationTimer("score_forecasts", s.log)()

	elapsed, err := s.store.ListElapsedUnscored(ctx, now, scoreBatchSize)
	if err != nil {
		return nil, err
	}

	report := &ScoreReport{RunIDs: []string{}, Metrics: []domain.RunMetrics{}}
	touched := make(map[string]struct{})

	for _, f := range elapsed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		actual, err := s.realized(ctx, f)
		if err != nil {
			report.Failed++
			s.log.Warn().Err(err).Str("forecast_id", f.ID).Msg("Failed to read realized sales")
			continue
		}

		inserted, err := s.store.InsertAccuracy(ctx, Score(f, actual, now))
		if err != nil {
			report.Failed++
			s.log.Error().Err(err).Str("forecast_id", f.ID).Msg("Failed to store forecast accuracy")
			continue
		}
		if inserted {
			report.Scored++
			touched[f.RunID] = struct{}{}
		}
	}

	for runID := range touched {
		report.RunIDs = append(report.RunIDs, runID)
	}
	sort.Strings(report.RunIDs)

	for _, runID := range report.RunIDs {
		m, err := s.RunMetrics(ctx, runID)
		if err != nil {
			s.log.Warn().Err(err).Str("run_id", runID).Msg("Failed to compute run metrics")
			continue
		}
		report.Metrics = append(report.Metrics, *m)
		if s.exporter != nil {
			if err := s.exporter.ExportRunMetrics(ctx, *m); err != nil {
				s.log.Warn().Err(err).Str("run_id", runID).Msg("Failed to export run metrics")
			}
		}
	}

	s.record(report)
	if report.Scored > 0 || report.Failed > 0 {
		s.log.Info().
			Int("scored", report.Scored).
			Int("failed", report.Failed).
			Int("runs", len(report.RunIDs)).
			Msg("Forecast accuracy scored")
	}
	return report, nil
}

// RunMetrics aggregates the accuracy rows of runID.
func (s *Scorer) RunMetrics(ctx context.Context, runID string) (*domain.RunMetrics, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, domain.NotFoundError{Entity: "forecast run", Key: runID}
	}
	rows, err := s.store.ListAccuracyByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	m := ComputeRunMetrics(runID, rows)
	return &m, nil
}

func (s *Scorer) realized(ctx context.Context, f domain.SalesForecast) (float64, error) {
	points, err := s.sales.Series(ctx, f.Level, f.SubjectID, f.TargetStart, f.TargetEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to read sales for forecast %s: %w", f.ID, err)
	}
	var units float64
	for _, p := range points {
		units += p.Units
	}
	return units, nil
}

func (s *Scorer) record(report *ScoreReport) {
	if s.metrics != nil && report.Scored > 0 {
		s.metrics.AccuracyScored.Add(float64(report.Scored))
	}
	if s.events != nil && report.Scored > 0 {
		s.events.Emit(events.AccuracyScored, "forecasting", events.AccuracyScoredData{
			Scored: report.Scored,
			RunIDs: report.RunIDs,
		})
	}
}

// Score builds the accuracy row of f against the realized value. APE is nil when actual is zero.
func Score(f domain.SalesForecast, actual float64, scoredAt time.Time) domain.ForecastAccuracy {
	diff := f.PredictedUnits - actual
	acc := domain.ForecastAccuracy{
		ForecastID:    f.ID,
		RunID:         f.RunID,
		Method:        f.Method,
		ActualValue:   actual,
		ForecastValue: f.PredictedUnits,
		AbsoluteError: math.Abs(diff),
		SquaredError:  diff * diff,
		ScoredAt:      scoredAt,
	}
	if actual != 0 {
		ape := math.Abs(diff) / math.Abs(actual) * 100
		acc.APE = &ape
	}
	return acc
}

// ComputeRunMetrics derives MAPE, RMSE, MAE, bias and R² from accuracy rows.
// MAPE averages only rows with a defined APE.
func ComputeRunMetrics(runID string, rows []domain.ForecastAccuracy) domain.RunMetrics {
	m := domain.RunMetrics{RunID: runID, RecordsEvaluated: len(rows)}
	if len(rows) == 0 {
		return m
	}

	var apeSum, seSum, aeSum, biasSum, actualSum float64
	apeCount := 0
	for _, r := range rows {
		if r.APE != nil {
			apeSum += *r.APE
			apeCount++
		}
		seSum += r.SquaredError
		aeSum += r.AbsoluteError
		biasSum += r.ForecastValue - r.ActualValue
		actualSum += r.ActualValue
	}
	n := float64(len(rows))
	if apeCount > 0 {
		m.MAPE = round(apeSum/float64(apeCount), 2)
	}
	m.RMSE = round(math.Sqrt(seSum/n), 4)
	m.MAE = round(aeSum/n, 4)
	m.Bias = round(biasSum/n, 4)

	mean := actualSum / n
	var ssTot float64
	for _, r := range rows {
		d := r.ActualValue - mean
		ssTot += d * d
	}
	switch {
	case ssTot > 0:
		m.R2 = round(1-seSum/ssTot, 4)
	case seSum == 0:
		m.R2 = 1
	}
	return m
}
