package forecasting

import (
	"math"
	"sort"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/reseller/internal/domain"
)

// z95 is the two-sided 95% normal quantile used for prediction intervals.
const z95 = 1.96

// Ensemble member weights. Renormalized over the members that could fit.
var ensembleWeights = map[domain.ForecastMethod]float64{
	domain.MethodLinearTrend:   0.3,
	domain.MethodSeasonalNaive: 0.4,
	domain.MethodMovingAverage: 0.3,
}

// estimate is the one-period-ahead output of a single method.
type estimate struct {
	method     domain.ForecastMethod
	pred       float64
	lower      float64
	upper      float64
	confidence float64
}

func newEstimate(method domain.ForecastMethod, pred, stderr, confidence float64) estimate {
	pred = math.Max(0, pred)
	return estimate{
		method:     method,
		pred:       pred,
		lower:      math.Max(0, pred-z95*stderr),
		upper:      pred + z95*stderr,
		confidence: clamp01(confidence),
	}
}

// linearTrend regresses units on the bucket index and projects one bucket ahead.
// The standard error is the root mean squared residual.
func linearTrend(y []float64) (estimate, error) {
	n := len(y)
	if n < 3 {
		return estimate{}, domain.InsufficientDataError{Required: 3, Available: n}
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(x, y, nil, false)

	var ssRes float64
	for i := range y {
		r := y[i] - (alpha + beta*x[i])
		ssRes += r * r
	}
	stderr := math.Sqrt(ssRes / float64(n))

	r2 := stat.RSquared(x, y, nil, alpha, beta)
	if math.IsNaN(r2) {
		// Constant series: the fit is exact.
		r2 = 1
	}

	return newEstimate(domain.MethodLinearTrend, alpha+beta*float64(n), stderr, 0.5+0.5*r2), nil
}

// seasonalNaive repeats the value observed one season ago. The season is
// shortened to half the available history, and must span at least two buckets.
func seasonalNaive(y []float64, season int) (estimate, error) {
	n := len(y)
	if season > n/2 {
		season = n / 2
	}
	if season < 2 {
		return estimate{}, domain.InsufficientDataError{Required: 4, Available: n}
	}

	recent := y[n-min(30, n):]
	stderr := stat.StdDev(recent, nil)

	// In-sample skill of "same as last season" drives confidence.
	var ssRes, ssTot float64
	mean := stat.Mean(y[season:], nil)
	for i := season; i < n; i++ {
		d := y[i] - y[i-season]
		ssRes += d * d
		t := y[i] - mean
		ssTot += t * t
	}
	skill := 0.0
	if ssTot > 0 {
		skill = clamp01(1 - ssRes/ssTot)
	} else if ssRes == 0 {
		skill = 1
	}

	return newEstimate(domain.MethodSeasonalNaive, y[n-season], stderr, 0.5+0.5*skill), nil
}

// movingAverage projects the mean of the last min(3, n) buckets.
func movingAverage(y []float64) estimate {
	n := len(y)
	if n == 0 {
		return newEstimate(domain.MethodMovingAverage, 0, 0, 0.5)
	}

	window := min(3, n)
	pred := stat.Mean(y[n-window:], nil)
	if window >= 2 {
		if sma := talib.Sma(y, window); len(sma) > 0 && !math.IsNaN(sma[len(sma)-1]) {
			pred = sma[len(sma)-1]
		}
	}

	stderr := 0.0
	if window >= 2 {
		stderr = stat.StdDev(y[n-window:], nil)
	}
	return newEstimate(domain.MethodMovingAverage, pred, stderr, 0.5)
}

// ensemble blends every member that can fit the series. A blend of the moving
// average alone is not an ensemble, so that case reports insufficient data.
func ensemble(y []float64, season int) (estimate, error) {
	members := []estimate{movingAverage(y)}
	if e, err := linearTrend(y); err == nil {
		members = append(members, e)
	}
	if e, err := seasonalNaive(y, season); err == nil {
		members = append(members, e)
	}
	if len(members) == 1 {
		return estimate{}, domain.InsufficientDataError{Required: 3, Available: len(y)}
	}

	var total float64
	for _, m := range members {
		total += ensembleWeights[m.method]
	}

	out := estimate{method: domain.MethodEnsemble}
	for _, m := range members {
		w := ensembleWeights[m.method] / total
		out.pred += w * m.pred
		out.lower += w * m.lower
		out.upper += w * m.upper
		out.confidence += w * m.confidence
	}
	return out, nil
}

// fitMethod runs the named method over y.
func fitMethod(method domain.ForecastMethod, y []float64, season int) (estimate, error) {
	switch method {
	case domain.MethodLinearTrend:
		return linearTrend(y)
	case domain.MethodSeasonalNaive:
		return seasonalNaive(y, season)
	case domain.MethodMovingAverage:
		return movingAverage(y), nil
	default:
		return ensemble(y, season)
	}
}

// capOutliers clamps values above the 99th percentile, for series longer than ten buckets.
func capOutliers(y []float64) []float64 {
	if len(y) <= 10 {
		return y
	}
	sorted := append([]float64(nil), y...)
	sort.Float64s(sorted)
	p99 := stat.Quantile(0.99, stat.LinInterp, sorted, nil)

	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = math.Min(v, p99)
	}
	return out
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
