package projection

import (
	"time"

	"github.com/perpsignal/perpsignal/internal/factors"
	"github.com/perpsignal/perpsignal/internal/models"
)

// project4H is the short-horizon flow read: confluence-led with the OI
// and CVD legs, graded A+ through C.
func (e *Engine) project4H(coin string, nowMs int64) models.Projection {
	proj := models.Projection{Coin: coin, Horizon: models.Horizon4H}

	in, ok := e.gather(coin)
	if !ok {
		proj.Status = models.StatusCollecting
		proj.Reason = "insufficient price history"
		return proj
	}
	proj.CurrentPrice = in.price

	confluence := factors.FlowConfluence(in.prices, in.oi, in.perpCVD, coin, nowMs)
	oiRoc := factors.OIRateOfChange(in.oi, in.prices, nowMs)
	cvd := factors.CVDPersistence(in.perpCVD, coin, nowMs)

	var w weighted
	w.add(confluence.Result, 0.40)
	w.add(oiRoc, 0.35)
	w.add(cvd, 0.25)
	score, ok := w.score()
	if !ok {
		proj.Status = models.StatusCollecting
		proj.Reason = "no factor produced data"
		return proj
	}
	score = clamp(score, -1, 1)

	bias, strength := biasLabel4(score)
	direction := directionFor(score, 0.15)
	allActive := confluence.Available && oiRoc.Available && cvd.Available
	grade := grade4(score, allActive)

	confidence := 0.5
	if confluence.Aligned {
		confidence += 0.20
	}
	if !confluence.Vetoed {
		confidence += 0.10
	}
	if abs(oiRoc.Score) >= 0.7 {
		confidence += 0.10
	}
	if abs(cvd.Score) >= 0.5 {
		confidence += 0.10
	}
	confidence = clamp(confidence, 0, 1)

	proj.Status = models.StatusActive
	proj.Prediction = &models.PredictionSummary{
		Bias:      bias,
		Strength:  strength,
		Score:     score,
		Grade:     grade,
		Direction: direction,
	}
	proj.Confidence = &models.Confidence{Level: confidenceLevel(confidence), Score: confidence}
	proj.Invalidation = invalidation(in.prices, 4*time.Hour, 0.5, direction, nowMs)
	proj.Components = map[string]models.Component{
		"flowConfluence": confluence.Component(),
		"oiRoC":          oiRoc.Component(),
		"cvdPersistence": cvd.Component(),
	}
	proj.KeyFactors = keyFactors(proj.Components)
	if confluence.Vetoed {
		proj.Warnings = append(proj.Warnings, "2h flow opposes 1h read")
	}
	return proj
}

// grade4 assigns the letter grade from |score| and whether every factor
// was active.
func grade4(score float64, allActive bool) string {
	a := abs(score)
	switch {
	case a >= 0.6 && allActive:
		return "A+"
	case a >= 0.6:
		return "A"
	case a >= 0.35 && allActive:
		return "B+"
	case a >= 0.35:
		return "B"
	default:
		return "C"
	}
}
