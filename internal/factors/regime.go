package factors

import (
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// Regime signals. The table is contrarian: crowded positioning scores
// against the crowd.
const (
	RegimeLongCrowded  = "LONG_CROWDED"
	RegimeShortCrowded = "SHORT_CROWDED"
	RegimeHealthyLong  = "HEALTHY_LONG"
	RegimeHealthyShort = "HEALTHY_SHORT"
	RegimeCapitulation = "CAPITULATION"
	RegimeNeutral      = "NEUTRAL"
)

// Regime classifies the OI/funding regime over the last hour.
// fundingExchange selects the settlement cadence used to annualise.
func Regime(oi, prices []models.SeriesPoint, fundingRate float64, fundingExchange string, nowMs int64) Result {
	oiChange, okOI := changeOverWindow(oi, time.Hour, nowMs)
	priceChange, okPrice := changeOverWindow(prices, time.Hour, nowMs)
	if !okOI || !okPrice {
		return unavailable()
	}

	apr := models.AnnualisedFundingPct(fundingRate, fundingExchange)
	oiRising := oiChange > 1
	oiFalling := oiChange < -1

	switch {
	case oiRising && apr > 30:
		return Result{Score: -0.6, Signal: RegimeLongCrowded, Available: true}
	case oiRising && apr < -30:
		return Result{Score: 0.6, Signal: RegimeShortCrowded, Available: true}
	case oiRising && apr > 10:
		return Result{Score: 0.4, Signal: RegimeHealthyLong, Available: true}
	case oiRising && apr < -10:
		return Result{Score: -0.4, Signal: RegimeHealthyShort, Available: true}
	case oiFalling && oiChange < -3:
		// Capitulation: direction follows the flush.
		score := 0.0
		if priceChange < -1 {
			score = 0.3
		} else if priceChange > 1 {
			score = -0.3
		}
		return Result{Score: score, Signal: RegimeCapitulation, Available: true}
	default:
		return Result{Score: 0, Signal: RegimeNeutral, Available: true}
	}
}
