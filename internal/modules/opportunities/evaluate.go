package opportunities

import (
	"math"

	"github.com/samber/lo"

	"github.com/aristath/reseller/internal/config"
	"github.com/aristath/reseller/internal/domain"
)

// Thresholds are the minimum ROI percentages of each tier.
type Thresholds struct {
	Low    float64
	Medium float64
	High   float64
}

// ThresholdsFrom reads the tier thresholds from the reconcile config.
func ThresholdsFrom(cfg config.ReconcileConfig) Thresholds {
	return Thresholds{Low: cfg.ROILow, Medium: cfg.ROIMedium, High: cfg.ROIHigh}
}

// Tier returns the tier for roi, or false when roi is below the LOW threshold.
func (t Thresholds) Tier(roi float64) (domain.OpportunityTier, bool) {
	switch {
	case roi >= t.High:
		return domain.TierHigh, true
	case roi >= t.Medium:
		return domain.TierMedium, true
	case roi >= t.Low:
		return domain.TierLow, true
	default:
		return "", false
	}
}

type retailLeg struct {
	obs         domain.MarketPrice
	vat         float64
	netPurchase float64
}

type resaleLeg struct {
	obs         domain.MarketPrice
	fee         float64
	netProceeds float64
}

// Evaluate pairs the cheapest net retail purchase with the resale source that nets
// the most, and returns the resulting opportunity. ok is false when either side has
// no usable observation or the ROI is below the LOW tier.
func Evaluate(retail, resale []domain.MarketPrice, cfg config.ReconcileConfig) (*domain.ProfitOpportunity, bool) {
	buys := lo.FilterMap(retail, func(obs domain.MarketPrice, _ int) (retailLeg, bool) {
		if obs.PriceType != domain.ObservationRetail || !obs.InStock || obs.Price <= 0 {
			return retailLeg{}, false
		}
		vat := cfg.StandardVATRate
		if obs.VATRate != nil {
			vat = *obs.VATRate
		}
		return retailLeg{obs: obs, vat: vat, netPurchase: obs.Price / (1 + vat/100)}, true
	})
	sells := lo.FilterMap(resale, func(obs domain.MarketPrice, _ int) (resaleLeg, bool) {
		if obs.PriceType != domain.ObservationResale || obs.Price <= 0 {
			return resaleLeg{}, false
		}
		fee := cfg.FeeFor(obs.Source)
		return resaleLeg{obs: obs, fee: fee, netProceeds: obs.Price * (1 - fee/100)}, true
	})
	if len(buys) == 0 || len(sells) == 0 {
		return nil, false
	}

	buy := lo.MinBy(buys, func(a, b retailLeg) bool {
		if a.netPurchase != b.netPurchase {
			return a.netPurchase < b.netPurchase
		}
		return a.obs.Source < b.obs.Source
	})
	sell := lo.MaxBy(sells, func(a, b resaleLeg) bool {
		if a.netProceeds != b.netProceeds {
			return a.netProceeds > b.netProceeds
		}
		return a.obs.Source < b.obs.Source
	})

	profit := sell.netProceeds - buy.netPurchase
	roi := profit / buy.netPurchase * 100

	tier, ok := ThresholdsFrom(cfg).Tier(roi)
	if !ok {
		return nil, false
	}

	return &domain.ProfitOpportunity{
		ItemID:           buy.obs.ItemID,
		RetailSource:     buy.obs.Source,
		RetailPrice:      buy.obs.Price,
		VATRate:          buy.vat,
		ResaleSource:     sell.obs.Source,
		ResalePrice:      sell.obs.Price,
		PlatformFee:      sell.fee,
		NetPurchasePrice: round(buy.netPurchase, 2),
		NetProceeds:      round(sell.netProceeds, 2),
		Profit:           round(profit, 2),
		ROIPercentage:    round(roi, 1),
		Tier:             tier,
	}, true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
