package factors

import (
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// OIRateOfChange scores the 4 h OI move against the 4 h price move.
// Rising OI with rising price confirms the trend; rising OI into a
// falling price marks trapped longs.
func OIRateOfChange(oi, prices []models.SeriesPoint, nowMs int64) Result {
	return OIPriceMomentum(oi, prices, 4*time.Hour, nowMs)
}

// OIPriceMomentum is the window-parameterised form; the daily
// projection runs it over 8 h.
func OIPriceMomentum(oi, prices []models.SeriesPoint, window time.Duration, nowMs int64) Result {
	oi4h, okOI := changeOverWindow(oi, window, nowMs)
	price4h, okPrice := changeOverWindow(prices, window, nowMs)
	if !okOI || !okPrice {
		return unavailable()
	}

	switch {
	case oi4h > 1 && price4h > 0.5:
		return Result{Score: 0.8, Signal: "FRESH_LONGS", Available: true}
	case oi4h > 0.5 && oi4h <= 1 && price4h > 0:
		return Result{Score: 0.5, Signal: "BUILDING_LONGS", Available: true}
	case oi4h > 1 && price4h < -0.5:
		return Result{Score: -0.7, Signal: "TRAPPED_LONGS", Available: true}
	case oi4h < -1 && price4h < -0.5:
		return Result{Score: -0.8, Signal: "LONG_UNWIND", Available: true}
	default:
		return Result{Score: 0, Signal: "NEUTRAL", Available: true}
	}
}

// flowSignal is one classified leg of the confluence check.
type flowSignal struct {
	direction trend
	strong    bool
}

func classifyFlow(change, weak, strong float64) flowSignal {
	switch {
	case change >= strong:
		return flowSignal{trendUp, true}
	case change >= weak:
		return flowSignal{trendUp, false}
	case change <= -strong:
		return flowSignal{trendDown, true}
	case change <= -weak:
		return flowSignal{trendDown, false}
	default:
		return flowSignal{trendFlat, false}
	}
}

// ConfluenceResult carries the composite flow score plus the veto state
// the 4 h engine needs for its confidence bonus.
type ConfluenceResult struct {
	Result
	Aligned bool `json:"aligned"` // all three legs one way
	Vetoed  bool `json:"vetoed"`  // 2 h composite opposed the 1 h one
	Strongs int  `json:"strongs"`
}

// FlowConfluence classifies the 1 h price, OI and CVD moves and scores
// their agreement; a 2 h composite pointing the other way halves the
// score. CVD legs are scaled by the coin's weak threshold.
func FlowConfluence(prices, oi []models.SeriesPoint, cvd []models.CVDPoint, coin string, nowMs int64) ConfluenceResult {
	price1h, okP := changeOverWindow(prices, time.Hour, nowMs)
	oi1h, okO := changeOverWindow(oi, time.Hour, nowMs)
	if !okP || !okO || len(cvd) == 0 {
		return ConfluenceResult{Result: unavailable()}
	}
	weak := models.CVDThresholdFor(coin).Weak
	cvd1h := sumDeltas(cvd, time.Hour, nowMs)

	legs1h := []flowSignal{
		classifyFlow(price1h, 0.3, 0.5),
		classifyFlow(oi1h, 0.5, 1.0),
		classifyFlow(cvd1h, weak, 2*weak),
	}

	bull, bear, strongs := 0, 0, 0
	for _, leg := range legs1h {
		switch leg.direction {
		case trendUp:
			bull++
		case trendDown:
			bear++
		}
		if leg.strong && leg.direction != trendFlat {
			strongs++
		}
	}

	var score float64
	var signal string
	sign := 1.0
	count := bull
	if bear > bull {
		sign = -1
		count = bear
	}
	switch {
	case count == 3 && strongs == 3:
		score, signal = 1.0, "STRONG_CONFLUENCE"
	case count == 3 && strongs >= 1:
		score, signal = 0.75, "CONFLUENCE"
	case count == 3:
		score, signal = 0.5, "WEAK_CONFLUENCE"
	case count == 2 && strongs >= 1:
		score, signal = 0.5, "PARTIAL_CONFLUENCE"
	case count == 2:
		score, signal = 0.35, "WEAK_PARTIAL_CONFLUENCE"
	default:
		return ConfluenceResult{Result: Result{Score: 0, Signal: "NO_CONFLUENCE", Available: true}}
	}
	score *= sign

	// 2 h composite veto: two or more legs opposing the 1 h direction
	// halves the score and downgrades the label.
	price2h, _ := changeOverWindow(prices, 2*time.Hour, nowMs)
	oi2h, _ := changeOverWindow(oi, 2*time.Hour, nowMs)
	cvd2h := sumDeltas(cvd, 2*time.Hour, nowMs)
	legs2h := []flowSignal{
		classifyFlow(price2h, 0.3, 0.5),
		classifyFlow(oi2h, 0.5, 1.0),
		classifyFlow(cvd2h, weak, 2*weak),
	}
	opposing := 0
	want := trendUp
	if sign < 0 {
		want = trendDown
	}
	for _, leg := range legs2h {
		if leg.direction != trendFlat && leg.direction != want {
			opposing++
		}
	}
	vetoed := opposing >= 2
	if vetoed {
		score *= 0.5
		signal = "FADING_" + signal
	}

	aligned := count == 3
	return ConfluenceResult{
		Result:  Result{Score: score, Signal: signal, Available: true},
		Aligned: aligned,
		Vetoed:  vetoed,
		Strongs: strongs,
	}
}
