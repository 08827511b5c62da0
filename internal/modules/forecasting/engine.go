// Package forecasting projects sales volume per product (or brand, category,
// platform) one horizon period ahead and scores elapsed forecasts against
// realized sales.
package forecasting

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/domain"
	"github.com/aristath/reseller/internal/events"
	"github.com/aristath/reseller/internal/metrics"
	"github.com/aristath/reseller/internal/utils"
)

const (
	fallbackConfidence  = 0.4
	noHistoryConfidence = 0.2
	day                 = 24 * time.Hour
)

// Request selects the series and method for one forecast run.
// An empty Method means ensemble; empty Subjects means every series that sold during the lookback.
type Request struct {
	Level    domain.ForecastLevel  `json:"level"`
	Horizon  domain.Horizon        `json:"horizon"`
	Subjects []int64               `json:"subjects,omitempty"`
	Method   domain.ForecastMethod `json:"method,omitempty"`
}

// RunReport is a stored forecast run with its rows.
type RunReport struct {
	Run       Run                    `json:"run"`
	Forecasts []domain.SalesForecast `json:"forecasts"`
}

// Engine produces and stores forecasts.
type Engine struct {
	sales   SalesHistoryReader
	store   ForecastStore
	events  EventEmitter
	metrics *metrics.Metrics
	cfg     config.ForecastConfig
	now     func() time.Time
	log     zerolog.Logger
}

// NewEngine creates a forecast engine. emitter and m may be nil.
func NewEngine(sales SalesHistoryReader, store ForecastStore, emitter EventEmitter, m *metrics.Metrics, cfg config.ForecastConfig, log zerolog.Logger) *Engine {
	return &Engine{
		sales:   sales,
		store:   store,
		events:  emitter,
		metrics: m,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		log:     log.With().Str("module", "forecasting").Logger(),
	}
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Forecast projects one product's units for the next horizon period and stores it as a single-row run.
func (e *Engine) Forecast(ctx context.Context, productID int64, horizon domain.Horizon) (*domain.SalesForecast, error) {
	if productID <= 0 {
		return nil, domain.NewValidationError("product_id", "must be > 0")
	}
	report, err := e.ForecastRun(ctx, domain.LevelProduct, horizon, []int64{productID})
	if err != nil {
		return nil, err
	}
	return &report.Forecasts[0], nil
}

// ForecastRun forecasts every subject at level under one run ID.
func (e *Engine) ForecastRun(ctx context.Context, level domain.ForecastLevel, horizon domain.Horizon, subjects []int64) (*RunReport, error) {
	return e.Generate(ctx, Request{Level: level, Horizon: horizon, Subjects: subjects})
}

// Generate runs req and persists the run. A run without subjects is not stored.
func (e *Engine) Generate(ctx context.Context, req Request) (*RunReport, error) {
	defer utils.OperationTimer("forecast_run", e.log)()

	if err := validateRequest(&req); err != nil {
		return nil, err
	}

	now := e.now()
	end := now.Truncate(day)
	periods := e.lookbackPeriods(req.Horizon)
	from := end.Add(-time.Duration(periods*req.Horizon.Days()) * day)

	subjects := req.Subjects
	if len(subjects) == 0 {
		var err error
		if subjects, err = e.sales.Subjects(ctx, req.Level, from); err != nil {
			return nil, fmt.Errorf("failed to list %s subjects: %w", req.Level, err)
		}
	}
	if len(subjects) == 0 {
		return nil, domain.NotFoundError{Entity: "sales history", Key: req.Level}
	}

	run := Run{
		RunID:     uuid.New().String(),
		Level:     req.Level,
		Horizon:   req.Horizon,
		CreatedAt: now,
	}
	forecasts := make([]domain.SalesForecast, 0, len(subjects))

	for _, subject := range subjects {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		points, err := e.sales.Series(ctx, req.Level, subject, from, end)
		if err != nil {
			return nil, fmt.Errorf("failed to read sales for %s %d: %w", req.Level, subject, err)
		}
		f := e.project(req, subject, points, from, end, periods)
		f.RunID = run.RunID
		f.GeneratedAt = now
		forecasts = append(forecasts, f)
	}
	run.Forecasts = len(forecasts)

	if err := e.store.SaveRun(ctx, run, forecasts); err != nil {
		return nil, fmt.Errorf("failed to store forecast run: %w", err)
	}
	e.record(run, forecasts)

	e.log.Info().
		Str("run_id", run.RunID).
		Str("level", string(run.Level)).
		Str("horizon", string(run.Horizon)).
		Int("forecasts", run.Forecasts).
		Msg("Forecast run stored")

	return &RunReport{Run: run, Forecasts: forecasts}, nil
}

// Run returns a stored run with its forecasts.
func (e *Engine) Run(ctx context.Context, runID string) (*RunReport, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, domain.NotFoundError{Entity: "forecast run", Key: runID}
	}
	forecasts, err := e.store.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &RunReport{Run: *run, Forecasts: forecasts}, nil
}

// lookbackPeriods is the number of horizon buckets read per series. It covers
// the configured multiple and two full seasons.
func (e *Engine) lookbackPeriods(h domain.Horizon) int {
	return max(4, e.cfg.LookbackMultiplier, 2*h.SeasonLength())
}

// project builds the forecast of one series. Buckets before the first sale are
// not history; fewer than MinHistoryPeriods remaining buckets selects the fallback.
func (e *Engine) project(req Request, subject int64, points []domain.SalesPoint, from, end time.Time, periods int) domain.SalesForecast {
	units, revenue := bucketize(points, from, req.Horizon, periods)

	first := firstNonZero(units)
	if first < 0 {
		units, revenue = nil, nil
	} else {
		units, revenue = units[first:], revenue[first:]
	}
	history := capOutliers(units)

	f := domain.SalesForecast{
		ID:          uuid.New().String(),
		Level:       req.Level,
		SubjectID:   subject,
		Horizon:     req.Horizon,
		TargetStart: end,
		TargetEnd:   end.Add(time.Duration(req.Horizon.Days()) * day),
		PeriodsUsed: len(history),
	}

	var est estimate
	switch {
	case len(history) == 0:
		est = movingAverage(nil)
		est.confidence = noHistoryConfidence
		f.Fallback = true
	case len(history) < e.cfg.MinHistoryPeriods:
		est = movingAverage(history)
		est.confidence = fallbackConfidence
		f.Fallback = true
	default:
		var err error
		est, err = fitMethod(req.Method, history, req.Horizon.SeasonLength())
		if err != nil {
			e.log.Debug().
				Err(err).
				Str("method", string(req.Method)).
				Int64("subject_id", subject).
				Msg("Method cannot fit series, using moving average")
			est = movingAverage(history)
			est.confidence = fallbackConfidence
			f.Fallback = true
		}
	}

	f.Method = est.method
	f.PredictedUnits = round(est.pred, 2)
	f.LowerBound = round(est.lower, 2)
	f.UpperBound = round(est.upper, 2)
	f.Confidence = round(est.confidence, 3)
	f.PredictedRevenue = round(est.pred*revenuePerUnit(units, revenue), 2)
	return f
}

func (e *Engine) record(run Run, forecasts []domain.SalesForecast) {
	if e.metrics != nil {
		for _, f := range forecasts {
			e.metrics.Forecasts.WithLabelValues(string(f.Method)).Inc()
		}
	}
	if e.events != nil {
		e.events.Emit(events.ForecastRun, "forecasting", events.ForecastRunData{
			RunID:     run.RunID,
			Level:     string(run.Level),
			Horizon:   string(run.Horizon),
			Forecasts: run.Forecasts,
		})
	}
}

func validateRequest(req *Request) error {
	var errs domain.ValidationErrors
	if req.Level == "" {
		req.Level = domain.LevelProduct
	}
	switch req.Level {
	case domain.LevelProduct, domain.LevelBrand, domain.LevelCategory, domain.LevelPlatform:
	default:
		errs = append(errs, domain.NewValidationError("level", "unknown level %q", req.Level))
	}
	if req.Horizon.Days() == 0 {
		errs = append(errs, domain.NewValidationError("horizon", "must be one of daily, weekly, monthly"))
	}
	if req.Method == "" {
		req.Method = domain.MethodEnsemble
	}
	switch req.Method {
	case domain.MethodLinearTrend, domain.MethodSeasonalNaive, domain.MethodMovingAverage, domain.MethodEnsemble:
	default:
		errs = append(errs, domain.NewValidationError("method", "unknown method %q", req.Method))
	}
	for _, id := range req.Subjects {
		if id <= 0 {
			errs = append(errs, domain.NewValidationError("subjects", "ids must be > 0"))
			break
		}
	}
	return errs.OrNil()
}

// bucketize sums daily points into periods buckets of h starting at from.
func bucketize(points []domain.SalesPoint, from time.Time, h domain.Horizon, periods int) (units, revenue []float64) {
	units = make([]float64, periods)
	revenue = make([]float64, periods)
	width := time.Duration(h.Days()) * day
	for _, p := range points {
		idx := int(p.Day.Sub(from) / width)
		if idx < 0 || idx >= periods {
			continue
		}
		units[idx] += p.Units
		revenue[idx] += p.Revenue
	}
	return units, revenue
}

func firstNonZero(y []float64) int {
	for i, v := range y {
		if v != 0 {
			return i
		}
	}
	return -1
}

func revenuePerUnit(units, revenue []float64) float64 {
	var u, r float64
	for i := range units {
		u += units[i]
		r += revenue[i]
	}
	if u == 0 {
		return 0
	}
	return r / u
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
