package projection

import (
	"fmt"
	"time"

	"github.com/perpsignal/perpsignal/internal/factors"
	"github.com/perpsignal/perpsignal/internal/models"
)

// projectDaily is the 24 h bias: spot/perp divergence carries the most
// weight, funding mean-reversion and 8 h OI momentum follow. Gated by
// cross-exchange agreement and by data completeness.
func (e *Engine) projectDaily(coin string, nowMs int64) models.Projection {
	proj := models.Projection{Coin: coin, Horizon: models.HorizonDaily}

	in, ok := e.gather(coin)
	if !ok {
		proj.Status = models.StatusCollecting
		proj.Reason = "insufficient price history"
		return proj
	}
	proj.CurrentPrice = in.price

	completeness := factors.Completeness(len(in.prices), len(in.oi), len(in.perpCVD), len(in.funding))
	if completeness.Band == factors.BandWarmingUp {
		proj.Status = models.StatusWarmingUp
		proj.Reason = fmt.Sprintf("data completeness %.0f%%", completeness.Overall*100)
		return proj
	}

	crossEx := factors.CrossExchangeConfluence(e.crossExchangeChanges(coin, nowMs))
	if crossEx.Available && crossEx.Agreement < 0.70 {
		proj.Status = models.StatusVeto
		proj.Reason = fmt.Sprintf("cross-exchange agreement %.2f below 0.70", crossEx.Agreement)
		proj.Components = map[string]models.Component{"confluence": crossEx.Component()}
		return proj
	}

	spot6h := sumCVD(in.spotCVD, 6*time.Hour, nowMs)
	perp6h := sumCVD(in.perpCVD, 6*time.Hour, nowMs)
	hasCVD := len(in.spotCVD) > 0 && len(in.perpCVD) > 0

	divergence := factors.SpotPerpDivergence(spot6h, perp6h, coin, hasCVD)
	fundingRev := factors.FundingZScore(in.funding, nowMs)
	oiMomentum := factors.OIPriceMomentum(in.oi, in.prices, 8*time.Hour, nowMs)
	whales := factors.WhaleAlignment(e.store.WhaleConsensus(coin))

	var w weighted
	w.add(divergence, 0.35)
	w.add(fundingRev, 0.25)
	w.add(oiMomentum, 0.20)
	w.add(crossEx.Result, 0.10)
	w.add(whales, 0.05)
	score, ok := w.score()
	if !ok {
		proj.Status = models.StatusCollecting
		proj.Reason = "no factor produced data"
		return proj
	}

	// Signed bonuses after normalisation.
	sign := 1.0
	if score < 0 {
		sign = -1
	}
	if z, ok := factors.FundingZ(in.funding); ok && abs(z) >= 3 {
		score += sign * 0.10
	}
	aligned := allSameSign(divergence, fundingRev, oiMomentum)
	if aligned {
		score += sign * 0.10
	}
	score = clamp(score, -1, 1)

	rangePct := factors.Volatility(in.prices, nowMs).RangePct
	if r, ok := priceRangePct(in.prices, 24*time.Hour, nowMs); ok {
		rangePct = r
	}
	bias, strength := biasLabelDaily(score, rangePct)
	direction := directionFor(score, 0.08)

	confidence := 0.5
	if crossEx.Agreement >= 0.9 {
		confidence += 0.15
	}
	if aligned {
		confidence += 0.10
	}
	if whales.Available {
		confidence += 0.05
	}
	switch completeness.Band {
	case factors.BandLowCap:
		confidence = clamp(confidence, 0, 0.40)
	case factors.BandMediumCap:
		confidence = clamp(confidence, 0, 0.60)
	default:
		confidence = clamp(confidence, 0, 1)
	}

	proj.Status = models.StatusActive
	proj.Prediction = &models.PredictionSummary{
		Bias:      bias,
		Strength:  strength,
		Score:     score,
		Direction: direction,
	}
	proj.Confidence = &models.Confidence{Level: confidenceLevel(confidence), Score: confidence}
	proj.Invalidation = invalidation(in.prices, 24*time.Hour, 0.75, direction, nowMs)
	proj.Components = map[string]models.Component{
		"spotPerpDivergence":   divergence.Component(),
		"fundingMeanReversion": fundingRev.Component(),
		"oiPriceMomentum":      oiMomentum.Component(),
		"confluence":           crossEx.Component(),
		"whales":               whales.Component(),
	}
	proj.KeyFactors = keyFactors(proj.Components)
	return proj
}

func sumCVD(series []models.CVDPoint, window time.Duration, nowMs int64) float64 {
	start := nowMs - window.Milliseconds()
	var sum float64
	for _, p := range series {
		if p.Time >= start && p.Time <= nowMs {
			sum += p.Delta
		}
	}
	return sum
}

func priceRangePct(series []models.SeriesPoint, window time.Duration, nowMs int64) (float64, bool) {
	low, high, ok := factors.SwingLevels(series, window, nowMs)
	if !ok || low <= 0 {
		return 0, false
	}
	mid := (low + high) / 2
	return (high - low) / mid * 100, true
}

// allSameSign reports whether every available directional factor points
// the same way.
func allSameSign(results ...factors.Result) bool {
	pos, neg, n := 0, 0, 0
	for _, r := range results {
		if !r.Available || r.Score == 0 {
			continue
		}
		n++
		if r.Score > 0 {
			pos++
		} else {
			neg++
		}
	}
	return n >= 2 && (pos == n || neg == n)
}
