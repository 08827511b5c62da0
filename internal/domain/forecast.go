package domain

import "time"

// Horizon is the forecast time bucket size.
type Horizon string

const (
	HorizonDaily   Horizon = "daily"
	HorizonWeekly  Horizon = "weekly"
	HorizonMonthly Horizon = "monthly"
)

// Horizons lists the supported horizons in ascending bucket size.
var Horizons = []Horizon{HorizonDaily, HorizonWeekly, HorizonMonthly}

// Days returns the bucket length in days, or 0 for an unknown horizon.
func (h Horizon) Days() int {
	switch h {
	case HorizonDaily:
		return 1
	case HorizonWeekly:
		return 7
	case HorizonMonthly:
		return 30
	default:
		return 0
	}
}

// SeasonLength is the seasonal-naive period, in buckets.
func (h Horizon) SeasonLength() int {
	switch h {
	case HorizonDaily:
		return 7
	case HorizonWeekly:
		return 4
	case HorizonMonthly:
		return 12
	default:
		return 0
	}
}

// ForecastLevel is the aggregation level a series is built at.
type ForecastLevel string

const (
	LevelProduct  ForecastLevel = "product"
	LevelBrand    ForecastLevel = "brand"
	LevelCategory ForecastLevel = "category"
	LevelPlatform ForecastLevel = "platform"
)

// ForecastMethod names the model that produced a forecast.
type ForecastMethod string

const (
	MethodLinearTrend   ForecastMethod = "linear_trend"
	MethodSeasonalNaive ForecastMethod = "seasonal_naive"
	MethodMovingAverage ForecastMethod = "moving_average"
	MethodEnsemble      ForecastMethod = "ensemble"
)

// SalesPoint is one day of realized sales for a series.
type SalesPoint struct {
	Day     time.Time `json:"day"`
	Units   float64   `json:"units"`
	Revenue float64   `json:"revenue"`
}

// SalesForecast is immutable once created; a new run creates new rows.
type SalesForecast struct {
	ID               string         `json:"id"`
	RunID            string         `json:"run_id"`
	Level            ForecastLevel  `json:"level"`
	SubjectID        int64          `json:"subject_id"`
	Horizon          Horizon        `json:"horizon"`
	TargetStart      time.Time      `json:"target_start"`
	TargetEnd        time.Time      `json:"target_end"`
	PredictedUnits   float64        `json:"predicted_units"`
	LowerBound       float64        `json:"lower_bound"`
	UpperBound       float64        `json:"upper_bound"`
	PredictedRevenue float64        `json:"predicted_revenue"`
	Method           ForecastMethod `json:"method"`
	Fallback         bool           `json:"fallback"`
	Confidence       float64        `json:"confidence"`
	PeriodsUsed      int            `json:"periods_used"`
	GeneratedAt      time.Time      `json:"generated_at"`
}

// ForecastAccuracy is created exactly once per elapsed forecast and never mutated.
type ForecastAccuracy struct {
	ID            int64          `json:"id"`
	ForecastID    string         `json:"forecast_id"`
	RunID         string         `json:"run_id"`
	Method        ForecastMethod `json:"method"`
	ActualValue   float64        `json:"actual_value"`
	ForecastValue float64        `json:"forecast_value"`
	AbsoluteError float64        `json:"absolute_error"`
	APE           *float64       `json:"absolute_percentage_error,omitempty"`
	SquaredError  float64        `json:"squared_error"`
	ScoredAt      time.Time      `json:"scored_at"`
}

// RunMetrics aggregates accuracy rows of one forecast run for model comparison.
type RunMetrics struct {
	RunID            string  `json:"run_id"`
	MAPE             float64 `json:"mape"`
	RMSE             float64 `json:"rmse"`
	MAE              float64 `json:"mae"`
	Bias             float64 `json:"bias"`
	R2               float64 `json:"r2"`
	RecordsEvaluated int     `json:"records_evaluated"`
}
