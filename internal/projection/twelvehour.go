package projection

import (
	"time"

	"github.com/perpsignal/perpsignal/internal/factors"
	"github.com/perpsignal/perpsignal/internal/models"
)

// project12H is the original BTC bias projection: momentum-led, with
// the regime and CVD legs, whale alignment when present, and a small
// cross-exchange confluence term. Weight redistributes over the factors
// that produced data.
func (e *Engine) project12H(coin string, nowMs int64) models.Projection {
	proj := models.Projection{Coin: coin, Horizon: models.Horizon12H}

	in, ok := e.gather(coin)
	if !ok {
		proj.Status = models.StatusCollecting
		proj.Reason = "insufficient price history"
		return proj
	}
	proj.CurrentPrice = in.price

	momentum := factors.Momentum(in.prices, nowMs)
	var fundingRate float64
	if n := len(in.funding); n > 0 {
		fundingRate = in.funding[n-1].Value
	}
	regime := factors.Regime(in.oi, in.prices, fundingRate, in.exchange, nowMs)
	cvd := factors.CVDPersistence(in.perpCVD, coin, nowMs)
	whales := factors.WhaleAlignment(e.store.WhaleConsensus(coin))
	crossEx := factors.CrossExchangeConfluence(e.crossExchangeChanges(coin, nowMs))
	vol := factors.Volatility(in.prices, nowMs)
	fundingZ := factors.FundingZScore(in.funding, nowMs)

	var w weighted
	w.add(momentum, 0.30)
	w.add(regime, 0.25)
	w.add(cvd, 0.20)
	w.add(whales, 0.15)
	w.add(crossEx.Result, 0.10)
	score, ok := w.score()
	if !ok {
		proj.Status = models.StatusCollecting
		proj.Reason = "no factor produced data"
		return proj
	}
	score = clamp(score, -1, 1)

	bias, strength := biasLabel12(score)
	direction := directionFor(score, 0.1)

	confidence := 0.5
	if crossEx.Available && crossEx.Agreement >= 0.8 {
		confidence += 0.15
	}
	if !vol.High {
		confidence += 0.10
	}
	if whales.Available {
		confidence += 0.10
	}
	if abs(regime.Score) >= 0.4 {
		confidence += 0.10
	}
	confidence = clamp(confidence, 0, 1)

	var warnings []string
	if vol.High {
		warnings = append(warnings, "high 4h volatility")
	}
	if regime.Signal == factors.RegimeLongCrowded || regime.Signal == factors.RegimeShortCrowded {
		warnings = append(warnings, "crowded positioning: "+regime.Signal)
	}
	if fundingZ.Signal == factors.ExtremeLongBias || fundingZ.Signal == factors.ExtremeShortBias {
		warnings = append(warnings, "extreme funding: "+fundingZ.Signal)
	}

	proj.Status = models.StatusActive
	proj.Prediction = &models.PredictionSummary{
		Bias:      bias,
		Strength:  strength,
		Score:     score,
		Direction: direction,
	}
	proj.Confidence = &models.Confidence{Level: confidenceLevel(confidence), Score: confidence}
	proj.Invalidation = invalidation(in.prices, 4*time.Hour, 0.5, direction, nowMs)
	proj.Warnings = warnings
	proj.Components = map[string]models.Component{
		"momentum":       momentum.Component(),
		"regime":         regime.Component(),
		"cvdPersistence": cvd.Component(),
		"whales":         whales.Component(),
		"confluence":     crossEx.Component(),
		"fundingZ":       fundingZ.Component(),
	}
	proj.KeyFactors = keyFactors(proj.Components)
	return proj
}

// keyFactors lists the available components ranked by |score|, biggest
// movers first, capped at three.
func keyFactors(components map[string]models.Component) []string {
	type kv struct {
		name  string
		score float64
	}
	ranked := make([]kv, 0, len(components))
	for name, c := range components {
		if c.Available && c.Score != 0 {
			ranked = append(ranked, kv{name, abs(c.Score)})
		}
	}
	for i := 0; i < len(ranked); i++ {
		for j := i + 1; j < len(ranked); j++ {
			if ranked[j].score > ranked[i].score {
				ranked[i], ranked[j] = ranked[j], ranked[i]
			}
		}
	}
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.name
	}
	return out
}
