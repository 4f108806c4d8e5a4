package factors

import (
	"time"

	"github.com/perpsignal/perpsignal/internal/models"
)

// CVDPersistence blends the 30 m and 2 h CVD sums (40/60) and scales by
// the coin's strong threshold, so BTC saturates at $10 M of sustained
// one-sided flow.
func CVDPersistence(cvd []models.CVDPoint, coin string, nowMs int64) Result {
	if len(cvd) == 0 {
		return unavailable()
	}
	d30 := sumDeltas(cvd, 30*time.Minute, nowMs)
	d2h := sumDeltas(cvd, 2*time.Hour, nowMs)
	weighted := 0.4*d30 + 0.6*d2h
	scale := models.CVDThresholdFor(coin).Strong
	score := clamp(weighted/scale, -1, 1)

	signal := "BALANCED"
	switch {
	case score >= 0.5:
		signal = "PERSISTENT_BUYING"
	case score >= 0.2:
		signal = "NET_BUYING"
	case score <= -0.5:
		signal = "PERSISTENT_SELLING"
	case score <= -0.2:
		signal = "NET_SELLING"
	}
	return Result{Score: score, Signal: signal, Available: true}
}

// Spot/perp divergence signals.
const (
	SpotAccumulation   = "SPOT_ACCUMULATION"
	CapitulationBottom = "CAPITULATION_BOTTOM"
	FakePump           = "FAKE_PUMP"
	Distribution       = "DISTRIBUTION"
	AlignedBullish     = "ALIGNED_BULLISH"
	AlignedBearish     = "ALIGNED_BEARISH"
)

type trend int

const (
	trendDown trend = -1
	trendFlat trend = 0
	trendUp   trend = 1
)

func classifyTrend(delta, weak float64) trend {
	if delta > weak {
		return trendUp
	}
	if delta < -weak {
		return trendDown
	}
	return trendFlat
}

// SpotPerpDivergence compares 6 h spot CVD against 6 h perp CVD. Spot
// leading is treated as the informed side.
func SpotPerpDivergence(spot6h, perp6h float64, coin string, hasData bool) Result {
	if !hasData {
		return unavailable()
	}
	weak := models.CVDThresholdFor(coin).Weak
	spot := classifyTrend(spot6h, weak)
	perp := classifyTrend(perp6h, weak)

	switch {
	case spot == trendUp && perp == trendUp:
		return Result{Score: 0.50, Signal: AlignedBullish, Available: true}
	case spot == trendUp && perp == trendDown:
		return Result{Score: 0.75, Signal: CapitulationBottom, Available: true}
	case spot == trendUp:
		return Result{Score: 0.85, Signal: SpotAccumulation, Available: true}
	case spot == trendDown && perp == trendUp:
		return Result{Score: -0.85, Signal: FakePump, Available: true}
	case spot == trendDown && perp == trendDown:
		return Result{Score: -0.50, Signal: AlignedBearish, Available: true}
	case spot == trendDown:
		return Result{Score: -0.70, Signal: Distribution, Available: true}
	default:
		return Result{Score: 0, Signal: "NEUTRAL", Available: true}
	}
}
