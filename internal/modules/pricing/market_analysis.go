package pricing

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/reseller/internal/domain"
)

// Market condition labels.
const (
	MarketUnknown  = "unknown"
	MarketVolatile = "volatile"
	MarketBullish  = "bullish"
	MarketBearish  = "bearish"
	MarketStable   = "stable"
)

// Market position labels.
const (
	PositionBelow       = "below"
	PositionCompetitive = "competitive"
	PositionAbove       = "above"
)

const (
	marketWindow           = 5
	volatileRelativeStdDev = 0.10
	trendMeanChangePercent = 3.0
	belowMarketRatio       = 0.95
	aboveMarketRatio       = 1.05
)

// MarketCondition classifies the last few asks, oldest first.
func MarketCondition(asks []float64) string {
	if len(asks) > marketWindow {
		asks = asks[len(asks)-marketWindow:]
	}
	if len(asks) < 2 {
		return MarketUnknown
	}

	mean, std := stat.MeanStdDev(asks, nil)
	if mean > 0 && std/mean > volatileRelativeStdDev {
		return MarketVolatile
	}

	changes := make([]float64, 0, len(asks)-1)
	for i := 1; i < len(asks); i++ {
		if asks[i-1] > 0 {
			changes = append(changes, (asks[i]-asks[i-1])/asks[i-1]*100)
		}
	}
	if len(changes) == 0 {
		return MarketUnknown
	}

	switch meanChange := stat.Mean(changes, nil); {
	case meanChange > trendMeanChangePercent:
		return MarketBullish
	case meanChange < -trendMeanChangePercent:
		return MarketBearish
	default:
		return MarketStable
	}
}

// MarketPosition compares price with the lowest ask. Empty when there is no ask.
func MarketPosition(price, lowestAsk float64) string {
	if lowestAsk <= 0 {
		return ""
	}
	switch ratio := price / lowestAsk; {
	case ratio < belowMarketRatio:
		return PositionBelow
	case ratio > aboveMarketRatio:
		return PositionAbove
	default:
		return PositionCompetitive
	}
}

// askSeries orders resale observations by time and returns their prices.
func askSeries(observations []domain.MarketPrice) []float64 {
	resale := make([]domain.MarketPrice, 0, len(observations))
	for _, o := range observations {
		if o.PriceType == domain.ObservationResale && o.Price > 0 {
			resale = append(resale, o)
		}
	}
	sort.SliceStable(resale, func(i, j int) bool { return resale[i].ObservedAt.Before(resale[j].ObservedAt) })

	prices := make([]float64, len(resale))
	for i, o := range resale {
		prices[i] = o.Price
	}
	return prices
}
