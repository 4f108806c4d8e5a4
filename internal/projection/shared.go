package projection

import (
	"time"

	"github.com/perpsignal/perpsignal/internal/factors"
	"github.com/perpsignal/perpsignal/internal/models"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// priceChange mirrors the factor-library window change for engine-side
// gating (cross-exchange legs, range checks).
func priceChange(series []models.SeriesPoint, window time.Duration, nowMs int64) (float64, bool) {
	start := nowMs - window.Milliseconds()
	var first, last *models.SeriesPoint
	for i := range series {
		if series[i].Timestamp < start {
			continue
		}
		if first == nil {
			first = &series[i]
		}
		last = &series[i]
	}
	if first == nil || first == last || first.Value == 0 {
		return 0, false
	}
	return (last.Value - first.Value) / first.Value * 100, true
}

// directionFor maps a score to a direction with a neutral band.
func directionFor(score, band float64) models.Direction {
	if score >= band {
		return models.DirBullish
	}
	if score <= -band {
		return models.DirBearish
	}
	return models.DirNeutral
}

// biasLabel12 is the 12 h band table: 0.6 / 0.3 / 0.1.
func biasLabel12(score float64) (bias, strength string) {
	a := abs(score)
	bull := score > 0
	switch {
	case a >= 0.6 && bull:
		return "STRONG_BULL", "STRONG"
	case a >= 0.6:
		return "STRONG_BEAR", "STRONG"
	case a >= 0.3 && bull:
		return "BULLISH", "MODERATE"
	case a >= 0.3:
		return "BEARISH", "MODERATE"
	case a >= 0.1 && bull:
		return "LEAN_BULL", "LEAN"
	case a >= 0.1:
		return "LEAN_BEAR", "LEAN"
	default:
		return "NEUTRAL", "NEUTRAL"
	}
}

// biasLabel4 is the 4 h band table: 0.6 / 0.35 / 0.15.
func biasLabel4(score float64) (bias, strength string) {
	a := abs(score)
	bull := score > 0
	switch {
	case a >= 0.6 && bull:
		return "STRONG_BULL", "STRONG"
	case a >= 0.6:
		return "STRONG_BEAR", "STRONG"
	case a >= 0.35 && bull:
		return "BULLISH", "MODERATE"
	case a >= 0.35:
		return "BEARISH", "MODERATE"
	case a >= 0.15 && bull:
		return "LEAN_BULL", "LEAN"
	case a >= 0.15:
		return "LEAN_BEAR", "LEAN"
	default:
		return "NEUTRAL", "NEUTRAL"
	}
}

// biasLabelDaily adds the micro band at 0.08 and falls back to
// CONSOLIDATION when the 24 h range is tight.
func biasLabelDaily(score, rangePct float64) (bias, strength string) {
	a := abs(score)
	bull := score > 0
	switch {
	case a >= 0.6 && bull:
		return "STRONG_BULL", "STRONG"
	case a >= 0.6:
		return "STRONG_BEAR", "STRONG"
	case a >= 0.3 && bull:
		return "BULLISH", "MODERATE"
	case a >= 0.3:
		return "BEARISH", "MODERATE"
	case a >= 0.15 && bull:
		return "LEAN_BULL", "LEAN"
	case a >= 0.15:
		return "LEAN_BEAR", "LEAN"
	case a >= 0.08 && bull:
		return "MICRO_BULL", "MICRO"
	case a >= 0.08:
		return "MICRO_BEAR", "MICRO"
	case rangePct > 0 && rangePct < 2.5:
		return "CONSOLIDATION", "NEUTRAL"
	default:
		return "NEUTRAL", "NEUTRAL"
	}
}

func confidenceLevel(score float64) string {
	switch {
	case score >= 0.7:
		return "HIGH"
	case score >= 0.5:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// invalidation builds the stop/breakout levels from the window's swing
// points buffered by a multiple of ATR.
func invalidation(prices []models.SeriesPoint, window time.Duration, atrMult float64, dir models.Direction, nowMs int64) *models.Invalidation {
	low, high, ok := factors.SwingLevels(prices, window, nowMs)
	if !ok {
		return nil
	}
	atr, ok := factors.ATR(prices, window, nowMs)
	if !ok {
		return nil
	}
	buffer := atrMult * atr
	switch dir {
	case models.DirBullish:
		return &models.Invalidation{Level: low - buffer, Type: "below"}
	case models.DirBearish:
		return &models.Invalidation{Level: high + buffer, Type: "above"}
	default:
		return &models.Invalidation{Type: "breakout_range", RangeLow: low - buffer, RangeHigh: high + buffer}
	}
}

// weighted accumulates present factors into a sum-of-present-weights
// composite.
type weighted struct {
	num, den float64
}

func (w *weighted) add(r factors.Result, weight float64) {
	if !r.Available {
		return
	}
	w.num += weight * r.Score
	w.den += weight
}

func (w *weighted) score() (float64, bool) {
	if w.den == 0 {
		return 0, false
	}
	return w.num / w.den, true
}
